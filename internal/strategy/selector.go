// Package strategy selects the next convergence-loop iteration strategy
// via a contextual bandit keyed by (attractor, last delta sign), balancing
// exploration of the closed strategy set against exploitation of
// historical effectiveness read from the trajectory repository.
package strategy

import (
	"context"
	"math/rand"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
)

// EpsilonDecay controls how exploration probability shrinks across a
// trajectory's life: ε starts at EpsilonStart and decays linearly toward
// EpsilonFloor as ObservationCount grows, per spec.md §4.4 (0.3 -> 0.05).
const (
	EpsilonStart     = 0.3
	EpsilonFloor     = 0.05
	EpsilonDecaySpan = 20 // observations over which ε reaches the floor
)

// Rand abstracts the exploration arm's source of randomness so tests can
// inject a seeded generator for determinism.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

type defaultRand struct{ r *rand.Rand }

func (d defaultRand) Float64() float64 { return d.r.Float64() }
func (d defaultRand) Intn(n int) int   { return d.r.Intn(n) }

// Selector implements contracts.StrategySelector as an epsilon-greedy
// contextual bandit over contracts.TrajectoryRepository's persisted
// strategy-effectiveness history, mirroring how the teacher's
// cost.costCalculator depends on an injected collaborator rather than
// owning state itself.
type Selector struct {
	Trajectories contracts.TrajectoryRepository
	Rand         Rand
}

// NewSelector constructs a Selector backed by repo. The exploration arm
// draws from a generator seeded with seed unless Rand is overridden.
func NewSelector(repo contracts.TrajectoryRepository, seed int64) *Selector {
	return &Selector{
		Trajectories: repo,
		Rand:         defaultRand{r: rand.New(rand.NewSource(seed))},
	}
}

// Select returns the next strategy for trajectory. A non-nil
// ForcedStrategy is returned as is; the caller (the convergence loop)
// clears it, not Select.
func (s *Selector) Select(ctx context.Context, trajectory *contracts.Trajectory, excluded map[contracts.StrategyKind]bool) (contracts.StrategyKind, error) {
	if trajectory == nil {
		return "", contracts.ErrInvalidInput
	}
	if trajectory.ForcedStrategy != nil {
		return *trajectory.ForcedStrategy, nil
	}

	eps := epsilon(len(trajectory.Observations))
	if s.Rand.Float64() < eps {
		return s.explore(excluded), nil
	}

	key := contracts.StrategyContextKey{
		AttractorName: trajectory.Attractor.Type,
		LastDeltaSign: trajectory.Attractor.LastDeltaSign(),
	}
	return s.exploit(ctx, key, excluded)
}

// epsilon linearly decays from EpsilonStart to EpsilonFloor over
// EpsilonDecaySpan observations, then holds at the floor.
func epsilon(observationCount int) float64 {
	if observationCount >= EpsilonDecaySpan {
		return EpsilonFloor
	}
	frac := float64(observationCount) / float64(EpsilonDecaySpan)
	return EpsilonStart - frac*(EpsilonStart-EpsilonFloor)
}

// explore picks a uniformly random strategy excluding any forbidden kind
// (e.g. the last-used strategy after a fresh start).
func (s *Selector) explore(excluded map[contracts.StrategyKind]bool) contracts.StrategyKind {
	candidates := make([]contracts.StrategyKind, 0, len(contracts.AllStrategyKinds))
	for _, k := range contracts.AllStrategyKinds {
		if !excluded[k] {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		candidates = contracts.AllStrategyKinds
	}
	return candidates[s.Rand.Intn(len(candidates))]
}

// exploit chooses the strategy with the highest average convergence delta
// among the historical StrategyEntry rows matching key, loaded from the
// trajectory repository. A context nobody has acted in yet falls back in
// widening circles: first to strategies that succeeded under the same
// attractor regardless of delta sign, then to global effectiveness, then
// to the default strategy.
func (s *Selector) exploit(ctx context.Context, key contracts.StrategyContextKey, excluded map[contracts.StrategyKind]bool) (contracts.StrategyKind, error) {
	best, bestAvg, scope := s.bestInContext(ctx, key, excluded)
	if best == "" {
		best, bestAvg, scope = s.bestForAttractor(ctx, key.AttractorName, excluded)
	}
	if best == "" {
		best, bestAvg, scope = s.bestGlobal(ctx, excluded)
	}
	if best == "" {
		best, bestAvg, scope = contracts.StrategyRetryWithFeedback, 0, "default"
	}

	audit.Log("event=strategy_selected attractor=%s last_delta_sign=%d strategy=%s avg_delta=%.3f scope=%s",
		key.AttractorName, key.LastDeltaSign, best, bestAvg, scope)
	return best, nil
}

// bestInContext ranks candidates by their average delta among entries
// recorded under exactly key. Candidates with no history in this context
// do not compete; an empty result means the context is unexplored.
func (s *Selector) bestInContext(ctx context.Context, key contracts.StrategyContextKey, excluded map[contracts.StrategyKind]bool) (contracts.StrategyKind, float64, string) {
	best := contracts.StrategyKind("")
	bestAvg := -2.0 // below any valid [-1,1] delta so the first candidate always wins

	for _, k := range contracts.AllStrategyKinds {
		if excluded[k] {
			continue
		}
		eff, err := s.Trajectories.StrategyEffectivenessInContext(ctx, k, key)
		if err != nil || eff.TotalUses == 0 {
			continue
		}
		if eff.AverageDelta > bestAvg {
			bestAvg = eff.AverageDelta
			best = k
		}
	}
	return best, bestAvg, "context"
}

// bestForAttractor widens the context to every successful entry recorded
// under the same attractor, whatever its delta sign, ranking strategies by
// their average achieved delta among those rows.
func (s *Selector) bestForAttractor(ctx context.Context, attractor contracts.AttractorType, excluded map[contracts.StrategyKind]bool) (contracts.StrategyKind, float64, string) {
	entries, err := s.Trajectories.GetSuccessfulStrategies(ctx, attractor, 64)
	if err != nil || len(entries) == 0 {
		return "", 0, "attractor"
	}

	sums := make(map[contracts.StrategyKind]float64)
	counts := make(map[contracts.StrategyKind]int)
	for _, entry := range entries {
		if excluded[entry.Strategy] || entry.ConvergenceDeltaAchieved == nil {
			continue
		}
		sums[entry.Strategy] += *entry.ConvergenceDeltaAchieved
		counts[entry.Strategy]++
	}

	best := contracts.StrategyKind("")
	bestAvg := -2.0
	for _, k := range contracts.AllStrategyKinds {
		if counts[k] == 0 {
			continue
		}
		if avg := sums[k] / float64(counts[k]); avg > bestAvg {
			bestAvg = avg
			best = k
		}
	}
	return best, bestAvg, "attractor"
}

// bestGlobal is the last data-driven resort: context-free effectiveness
// across all history.
func (s *Selector) bestGlobal(ctx context.Context, excluded map[contracts.StrategyKind]bool) (contracts.StrategyKind, float64, string) {
	best := contracts.StrategyKind("")
	bestAvg := -2.0

	for _, k := range contracts.AllStrategyKinds {
		if excluded[k] {
			continue
		}
		eff, err := s.Trajectories.StrategyEffectiveness(ctx, k)
		if err != nil || eff.TotalUses == 0 {
			continue
		}
		if eff.AverageDelta > bestAvg {
			bestAvg = eff.AverageDelta
			best = k
		}
	}
	return best, bestAvg, "global"
}
