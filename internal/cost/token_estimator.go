package cost

import (
	"github.com/anthropics/convergence-engine/contracts"
)

// charsPerTokenDefault is the usual rough ratio for English prose and
// code. Deployments that know their tokenizer better can override it.
const charsPerTokenDefault = 4

// heuristicEstimator implements contracts.TokenEstimator by character
// count. The estimate only has to be proportional to real usage: it feeds
// per-dispatch cost logging and iteration accounting, never a hard gate.
type heuristicEstimator struct {
	charsPerToken int
}

// NewTokenEstimator returns the default character-ratio estimator.
func NewTokenEstimator() contracts.TokenEstimator {
	return NewTokenEstimatorWithRatio(charsPerTokenDefault)
}

// NewTokenEstimatorWithRatio returns an estimator with a custom
// chars-per-token ratio; non-positive ratios fall back to the default.
func NewTokenEstimatorWithRatio(charsPerToken int) contracts.TokenEstimator {
	if charsPerToken <= 0 {
		charsPerToken = charsPerTokenDefault
	}
	return &heuristicEstimator{charsPerToken: charsPerToken}
}

// Estimate sizes a task dispatch: the task's own prompt, inputs, and
// metadata plus everything the context builder assembled for it.
func (e *heuristicEstimator) Estimate(input *contracts.TaskInput, bundle *contracts.ContextBundle) (contracts.TokenCount, error) {
	if input == nil {
		return 0, contracts.ErrInvalidInput
	}

	chars := len(input.Prompt) + sizeOfMap(input.Inputs) + sizeOfMap(input.Metadata)
	if bundle != nil {
		for _, msg := range bundle.Messages {
			chars += len(msg)
		}
		chars += sizeOfMap(bundle.Memory) + sizeOfMap(bundle.Tools)
	}

	tokens := chars / e.charsPerToken
	if chars > 0 && tokens == 0 {
		// Round tiny dispatches up so they are never accounted as free.
		tokens = 1
	}
	return contracts.TokenCount(tokens), nil
}

func sizeOfMap(m map[string]string) int {
	var n int
	for _, v := range m {
		n += len(v)
	}
	return n
}
