package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
)

func TestBudgetAllow_NilBudgetRejected(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	assert.ErrorIs(t, enforcer.Allow(nil, 1000), contracts.ErrInvalidInput)
}

func TestBudgetAllow_NoCeilingIsConfigError(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 0}
	assert.ErrorIs(t, enforcer.Allow(budget, 1000), contracts.ErrBudgetNotSet)
}

func TestBudgetAllow_SpentBudgetRejected(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 50_000, TokensUsed: 50_000}
	assert.ErrorIs(t, enforcer.Allow(budget, 10_000), contracts.ErrBudgetExceeded)
}

func TestBudgetAllow_FloorSizedAllocationPermittedAgainstTail(t *testing.T) {
	// 2k remaining but a 10k floor allocation: permitted, so the last
	// iteration is never starved below the floor. The ceiling is enforced
	// at Record time instead.
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 50_000, TokensUsed: 48_000}
	assert.NoError(t, enforcer.Allow(budget, 10_000))
}

func TestBudgetRecord_AccumulatesSpend(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 100_000}

	require.NoError(t, enforcer.Record(budget, 30_000))
	require.NoError(t, enforcer.Record(budget, 20_000))
	assert.Equal(t, contracts.TokenCount(50_000), budget.TokensUsed)
}

func TestBudgetRecord_OvershootCapsAtCeiling(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 100_000, TokensUsed: 95_000}

	err := enforcer.Record(budget, 20_000)
	assert.ErrorIs(t, err, contracts.ErrBudgetExceeded)
	assert.Equal(t, budget.MaxTokens, budget.TokensUsed,
		"TokensUsed must never exceed MaxTokens")
}

func TestBudgetRecord_NegativeSpendRejected(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 100_000}
	assert.ErrorIs(t, enforcer.Record(budget, -1), contracts.ErrInvalidInput)
	assert.Zero(t, budget.TokensUsed)
}

func TestBudgetRecord_ConcurrentIterationsNeverExceedCeiling(t *testing.T) {
	enforcer := NewBudgetEnforcer()
	budget := &contracts.ConvergenceBudget{MaxTokens: 100_000}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = enforcer.Record(budget, 5_000)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, budget.TokensUsed, budget.MaxTokens)
}
