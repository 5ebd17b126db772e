package cost

import (
	"fmt"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// tokenBudgetEnforcer implements contracts.BudgetEnforcer over a
// trajectory's ConvergenceBudget. It is the single place the
// sum-of-iteration-spend invariant is maintained: the convergence loop
// never increments TokensUsed directly.
type tokenBudgetEnforcer struct {
	mu sync.Mutex
}

// NewBudgetEnforcer returns a BudgetEnforcer for trajectory token budgets.
func NewBudgetEnforcer() contracts.BudgetEnforcer {
	return &tokenBudgetEnforcer{}
}

// Allow reports whether another iteration may spend against the budget.
// A budget with no ceiling is a configuration error, not an unlimited
// grant.
func (e *tokenBudgetEnforcer) Allow(budget *contracts.ConvergenceBudget, estimate contracts.TokenCount) error {
	if budget == nil {
		return contracts.ErrInvalidInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if budget.MaxTokens <= 0 {
		return contracts.ErrBudgetNotSet
	}
	if budget.TokensUsed >= budget.MaxTokens {
		return fmt.Errorf("budget spent %d of %d tokens: %w",
			budget.TokensUsed, budget.MaxTokens, contracts.ErrBudgetExceeded)
	}
	// A floor-sized allocation may exceed what strictly remains; that is
	// allowed so the final iteration is never starved below the floor.
	// The ceiling itself is enforced at Record time.
	_ = estimate
	return nil
}

// Record folds an iteration's actual spend into the budget. TokensUsed is
// capped at MaxTokens so the budget invariant holds even when an agent
// overshoots its allocation; the overshoot is reported as
// ErrBudgetExceeded for the caller to log.
func (e *tokenBudgetEnforcer) Record(budget *contracts.ConvergenceBudget, actual contracts.TokenCount) error {
	if budget == nil {
		return contracts.ErrInvalidInput
	}
	if actual < 0 {
		return contracts.ErrInvalidInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	budget.TokensUsed += actual
	if budget.MaxTokens > 0 && budget.TokensUsed > budget.MaxTokens {
		over := budget.TokensUsed - budget.MaxTokens
		budget.TokensUsed = budget.MaxTokens
		return fmt.Errorf("iteration overshot budget by %d tokens: %w", over, contracts.ErrBudgetExceeded)
	}
	return nil
}
