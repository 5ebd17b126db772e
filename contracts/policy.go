package contracts

import "time"

// ConvergencePolicy holds the tunable knobs the convergence loop and
// overseer cluster consult: how confident is confident enough, whether to
// skip expensive overseers, how many fresh starts a trajectory may burn,
// and the windows that drive attractor classification.
type ConvergencePolicy struct {
	TargetConfidence       float64
	SkipExpensiveOverseers bool
	MaxFreshStarts         int
	PlateauWindow          int
	DivergenceThreshold    float64

	// DeltaEpsilon is the |delta| threshold under which an observation
	// counts as "flat" for FixedPoint/Plateau detection.
	DeltaEpsilon float64

	// BudgetFloor is the minimum per-iteration token allocation, preventing
	// starvation as a trajectory's remaining budget shrinks.
	BudgetFloor TokenCount

	// FreshStartExcludeIterations is how many iterations the strategy
	// selector forbids the last-used strategy for after a fresh start.
	FreshStartExcludeIterations int

	// IterationTimeout bounds a single iteration's dispatch-and-measure
	// span (DAG execution + overseer cluster). Zero means no deadline
	// beyond the caller's own context. A timed-out iteration surfaces as
	// a KindInfrastructure EngineError, pausing the goal the same as any
	// other infrastructure failure.
	IterationTimeout time.Duration
}

// DefaultConvergencePolicy returns the policy defaults used when a caller
// does not override them.
func DefaultConvergencePolicy() ConvergencePolicy {
	return ConvergencePolicy{
		TargetConfidence:            0.9,
		SkipExpensiveOverseers:      false,
		MaxFreshStarts:              2,
		PlateauWindow:               3,
		DivergenceThreshold:         0.0,
		DeltaEpsilon:                0.02,
		BudgetFloor:                 10_000,
		FreshStartExcludeIterations: 2,
		IterationTimeout:            5 * time.Minute,
	}
}
