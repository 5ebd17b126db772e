package orchestration

import (
	"github.com/anthropics/convergence-engine/contracts"
	ctxpkg "github.com/anthropics/convergence-engine/internal/context"
	"github.com/anthropics/convergence-engine/internal/cost"
)

// FactoryOptions customizes the cost-pricing collaborators a WaveExecutor
// is assembled with.
type FactoryOptions struct {
	// ModelCatalog overrides the default model catalog used to price
	// assembled context. If nil, uses the default catalog with standard
	// Anthropic models.
	ModelCatalog contracts.ModelCatalog

	// Currency overrides the default currency (USD) for cost estimation.
	Currency contracts.Currency
}

// NewWaveExecutorWithDefaults assembles a WaveExecutor for one convergence
// iteration's task batch, wired with the default retry policy, a
// per-agent-type circuit breaker registry, the conservative default
// restructure policy, and the default context/cost-estimation
// collaborators. Callers that need event-bus integration or custom
// policies should construct WaveExecutor directly via NewWaveExecutor.
func NewWaveExecutorWithDefaults(maxConcurrency int, executor TaskExecutorFunc) *WaveExecutor {
	return NewWaveExecutorWithOptions(maxConcurrency, executor, FactoryOptions{})
}

// NewWaveExecutorWithOptions assembles a WaveExecutor like
// NewWaveExecutorWithDefaults, but lets the caller override the model
// catalog and currency used to price each task's assembled context.
func NewWaveExecutorWithOptions(maxConcurrency int, executor TaskExecutorFunc, opts FactoryOptions) *WaveExecutor {
	var costCalc contracts.CostCalculator
	if opts.ModelCatalog != nil || opts.Currency != "" {
		costCalc = cost.NewCostCalculatorWithCatalog(opts.ModelCatalog, opts.Currency)
	} else {
		costCalc = cost.NewCostCalculator()
	}

	return NewWaveExecutor(WaveExecutor{
		Executor:       NewParallelExecutor(maxConcurrency, executor),
		MaxConcurrency: int64(maxConcurrency),
		ContextBuilder: ctxpkg.NewContextBuilder(),
		Compactor:      ctxpkg.NewContextCompactor(),
		TokenEstimator: cost.NewTokenEstimator(),
		CostCalc:       costCalc,
	})
}
