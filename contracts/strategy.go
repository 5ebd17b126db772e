package contracts

import "context"

// StrategyKind is the closed set of iteration strategies the strategy
// selector can return.
type StrategyKind string

const (
	StrategyRetryWithFeedback StrategyKind = "retry_with_feedback"
	StrategyRetryAugmented    StrategyKind = "retry_augmented"
	StrategyFocusedRepair     StrategyKind = "focused_repair"
	StrategyDecompose         StrategyKind = "decompose"
	StrategyRollback          StrategyKind = "rollback"
	StrategyBroaden           StrategyKind = "broaden"
	StrategySpecialize        StrategyKind = "specialize"
	StrategyFreshStart        StrategyKind = "fresh_start"
)

// AllStrategyKinds enumerates the closed set, used by the selector's
// exploration arm to pick a uniformly random strategy.
var AllStrategyKinds = []StrategyKind{
	StrategyRetryWithFeedback,
	StrategyRetryAugmented,
	StrategyFocusedRepair,
	StrategyDecompose,
	StrategyRollback,
	StrategyBroaden,
	StrategySpecialize,
	StrategyFreshStart,
}

// StrategyEntry is one row in a trajectory's strategy log: which strategy
// was chosen for which observation, under which bandit context, what it
// cost, and (written back retroactively once the resulting observation is
// appended) the delta it achieved.
type StrategyEntry struct {
	Strategy                 StrategyKind
	ObservationIndex         int
	Context                  StrategyContextKey
	TokensUsed               TokenCount
	WasFreshStart            bool
	ConvergenceDeltaAchieved *float64
}

// StrategyEffectiveness summarizes a strategy's historical performance,
// read by the selector's exploitation arm.
type StrategyEffectiveness struct {
	Strategy      StrategyKind
	TotalUses     int
	SuccessCount  int
	AverageDelta  float64
	AverageTokens TokenCount
}

// StrategyContextKey is the bandit's context: the attractor classification
// paired with the sign of the last observed delta.
type StrategyContextKey struct {
	AttractorName AttractorType
	LastDeltaSign int
}

// StrategySelector picks the next iteration strategy for a trajectory,
// balancing exploration against exploitation of historical effectiveness.
type StrategySelector interface {
	// Select returns the next strategy to apply. It honors
	// trajectory.ForcedStrategy by returning it; the caller (the
	// convergence loop) clears the field once Select returns.
	Select(ctx context.Context, trajectory *Trajectory, excluded map[StrategyKind]bool) (StrategyKind, error)
}
