package context

import (
	"fmt"

	"github.com/anthropics/convergence-engine/contracts"
)

// Compaction strategies for ContextPolicy.Strategy. Messages are ordered
// oldest-first, so both strategies shed from the front: the freshest
// dependency output and overseer feedback survive longest.
const (
	// StrategyTruncate drops the oldest messages until the bundle fits
	// the policy's token limit.
	StrategyTruncate = "truncate"
	// StrategyKeepLastN keeps only the newest N messages.
	StrategyKeepLastN = "keep_last_n"
	// StrategyNone leaves the bundle alone; an oversized bundle then
	// fails the final size check.
	StrategyNone = "none"
)

const compactorCharsPerToken = 4

// bundleCompactor implements contracts.ContextCompactor. It never mutates
// the bundle it is given; the DAG executor may fall back to the original
// when compaction fails.
type bundleCompactor struct {
	charsPerToken int
}

// NewContextCompactor returns the default compactor.
func NewContextCompactor() contracts.ContextCompactor {
	return NewContextCompactorWithRatio(compactorCharsPerToken)
}

// NewContextCompactorWithRatio returns a compactor with a custom
// chars-per-token ratio; non-positive falls back to the default.
func NewContextCompactorWithRatio(charsPerToken int) contracts.ContextCompactor {
	if charsPerToken <= 0 {
		charsPerToken = compactorCharsPerToken
	}
	return &bundleCompactor{charsPerToken: charsPerToken}
}

// Compact applies the policy's strategy to a copy of bundle, then checks
// the result against MaxTokens. Only Messages are shed; Memory and Tools
// carry the iteration facts and are kept whole. ErrContextTooLarge means
// the bundle still does not fit after shedding everything the strategy
// may shed.
func (c *bundleCompactor) Compact(bundle *contracts.ContextBundle, policy contracts.ContextPolicy) (*contracts.ContextBundle, error) {
	if bundle == nil {
		return nil, contracts.ErrInvalidInput
	}

	out := cloneBundle(bundle)

	switch policy.Strategy {
	case StrategyKeepLastN:
		if n := policy.KeepLastN; n > 0 && n < len(out.Messages) {
			out.Messages = out.Messages[len(out.Messages)-n:]
		}
	case StrategyTruncate:
		for policy.MaxTokens > 0 && c.size(out) > policy.MaxTokens && len(out.Messages) > 0 {
			out.Messages = out.Messages[1:]
		}
	case StrategyNone, "":
		// Size check below still applies.
	default:
		// Unrecognized strategies compact nothing rather than erroring:
		// a policy typo should not fail every dispatch in the run.
	}

	if policy.MaxTokens > 0 {
		if tokens := c.size(out); tokens > policy.MaxTokens {
			return nil, fmt.Errorf("context still %d tokens after compaction, limit %d: %w",
				tokens, policy.MaxTokens, contracts.ErrContextTooLarge)
		}
	}
	return out, nil
}

func (c *bundleCompactor) size(bundle *contracts.ContextBundle) contracts.TokenCount {
	var chars int
	for _, msg := range bundle.Messages {
		chars += len(msg)
	}
	for _, v := range bundle.Memory {
		chars += len(v)
	}
	for _, v := range bundle.Tools {
		chars += len(v)
	}
	return contracts.TokenCount(chars / c.charsPerToken)
}

func cloneBundle(bundle *contracts.ContextBundle) *contracts.ContextBundle {
	out := &contracts.ContextBundle{
		Messages: append([]string(nil), bundle.Messages...),
		Memory:   make(map[string]string, len(bundle.Memory)),
		Tools:    make(map[string]string, len(bundle.Tools)),
	}
	for k, v := range bundle.Memory {
		out.Memory[k] = v
	}
	for k, v := range bundle.Tools {
		out.Tools[k] = v
	}
	return out
}
