package convergence

import (
	"strconv"

	"github.com/anthropics/convergence-engine/contracts"
)

// ShouldFreshStart reports whether a Trapped or Divergent attractor should
// trigger a fresh start, gated by the trajectory's remaining budget of
// fresh starts.
func ShouldFreshStart(trajectory *contracts.Trajectory, terminal contracts.ConvergencePhase) bool {
	if trajectory.TotalFreshStarts >= trajectory.Policy.MaxFreshStarts {
		return false
	}
	return terminal == contracts.PhaseTrapped || terminal == contracts.PhaseDiverging
}

// ApplyFreshStart resets trajectory's attractor to Indeterminate, records
// the reason in the fresh_start_reason hint (which marks the next
// StrategyEntry as a fresh start), and forbids the excluded strategy for
// the configured number of iterations by recording it in
// Hints (read by the strategy selector's caller, since the selector itself
// receives the exclusion set as a parameter rather than reading Hints
// directly). Existing observations are kept unchanged; they carry no
// fresh-start flag.
func ApplyFreshStart(trajectory *contracts.Trajectory, reason string) map[contracts.StrategyKind]bool {
	excluded := trajectory.LastObservation()
	var excludedStrategy contracts.StrategyKind
	if excluded != nil {
		excludedStrategy = excluded.ChosenStrategy
	}

	trajectory.Attractor = contracts.AttractorState{Type: contracts.AttractorIndeterminate}
	trajectory.TotalFreshStarts++
	if trajectory.Hints == nil {
		trajectory.Hints = make(map[string]string)
	}
	trajectory.Hints["fresh_start_reason"] = reason

	if excludedStrategy == "" {
		return nil
	}
	trajectory.Hints["fresh_start_excluded_strategy"] = string(excludedStrategy)
	trajectory.Hints["fresh_start_exclude_remaining"] = strconv.Itoa(trajectory.Policy.FreshStartExcludeIterations)
	return map[contracts.StrategyKind]bool{excludedStrategy: true}
}
