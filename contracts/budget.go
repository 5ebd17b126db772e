package contracts

// ComplexityTier seeds a Trajectory's starting token budget.
type ComplexityTier int

const (
	TierTrivial ComplexityTier = iota
	TierSimple
	TierModerate
	TierComplex
)

// SeedTokens returns the starting max_tokens for the tier.
func (t ComplexityTier) SeedTokens() TokenCount {
	switch t {
	case TierTrivial:
		return 50_000
	case TierSimple:
		return 150_000
	case TierModerate:
		return 400_000
	case TierComplex:
		return 1_000_000
	default:
		return 50_000
	}
}

// ConvergenceBudget tracks a Trajectory's token and iteration spend against
// its ceilings.
type ConvergenceBudget struct {
	MaxTokens             TokenCount
	TokensUsed            TokenCount
	MaxIterations         int
	IterationsUsed        int
	AllocatedPerIteration TokenCount
}

// Remaining returns the unspent token budget; never negative.
func (b *ConvergenceBudget) Remaining() TokenCount {
	r := b.MaxTokens - b.TokensUsed
	if r < 0 {
		return 0
	}
	return r
}

// Exhausted reports whether either ceiling has been reached.
func (b *ConvergenceBudget) Exhausted() bool {
	return b.TokensUsed >= b.MaxTokens || b.IterationsUsed >= b.MaxIterations
}
