package convergence

import "github.com/anthropics/convergence-engine/contracts"

const maxIterationDivisor = 8

// AllocateIteration returns the token budget for the trajectory's next
// iteration:
//
//	max(remaining_tokens / max(1, min(8, est_remaining_iterations)), floor)
//
// An attractor with no estimate (EstRemainingIterations <= 0) uses the
// maximum divisor, 8.
//
// An attractor-reported EstRemainingTokens overrides the computed
// numerator entirely, since a FixedPoint classification's own estimate is
// more informed than the generic formula.
//
// The second return is the starved flag: true when the remaining budget
// could not cover the floor and the allocation was clamped up to it. The
// loop surfaces it to the strategy selector through the trajectory's
// hints.
func AllocateIteration(budget contracts.ConvergenceBudget, attractor contracts.AttractorState, policy contracts.ConvergencePolicy) (contracts.TokenCount, bool) {
	remaining := budget.Remaining()
	starved := remaining < policy.BudgetFloor

	if attractor.Type == contracts.AttractorFixedPoint && attractor.EstRemainingTokens > 0 {
		return clampFloor(attractor.EstRemainingTokens, policy.BudgetFloor), starved
	}

	divisor := attractor.EstRemainingIterations
	if divisor <= 0 {
		divisor = maxIterationDivisor
	}
	if divisor > maxIterationDivisor {
		divisor = maxIterationDivisor
	}
	if divisor < 1 {
		divisor = 1
	}

	allocated := contracts.TokenCount(int64(remaining) / int64(divisor))
	return clampFloor(allocated, policy.BudgetFloor), starved
}

func clampFloor(allocated, floor contracts.TokenCount) contracts.TokenCount {
	if allocated < floor {
		return floor
	}
	return allocated
}
