package orchestration

import (
	"context"
	"fmt"

	"github.com/anthropics/convergence-engine/contracts"
)

// defaultRestructurePolicy implements a conservative restructure policy:
// retry once more with an augmented prompt, then accept the failure. Goal-
// and agent-specific decomposition logic belongs to a richer policy
// injected by the caller; this one exists so the executor has sane
// behavior out of the box.
type defaultRestructurePolicy struct {
	// retriedOnce tracks task IDs that already received one
	// RetryDifferentApproach before this policy gives up and accepts.
	retriedOnce map[contracts.TaskID]bool
}

// NewDefaultRestructurePolicy returns a policy that retries once with an
// augmented prompt, then accepts failure.
func NewDefaultRestructurePolicy() contracts.RestructurePolicy {
	return &defaultRestructurePolicy{retriedOnce: make(map[contracts.TaskID]bool)}
}

func (p *defaultRestructurePolicy) Decide(ctx context.Context, task *contracts.Task, lastErr *contracts.TaskError) (contracts.RestructureDecision, error) {
	if task == nil {
		return contracts.RestructureDecision{}, contracts.ErrInvalidInput
	}

	if !p.retriedOnce[task.ID] {
		p.retriedOnce[task.ID] = true
		msg := "retry with feedback from the prior failure"
		if lastErr != nil {
			msg = fmt.Sprintf("retry; prior attempt failed with: %s", lastErr.Message)
		}
		return contracts.RestructureDecision{
			Kind:         contracts.RestructureRetryDifferentApproach,
			NewPrompt:    msg,
			NewAgentType: task.AgentType,
		}, nil
	}

	reason := "retries and one restructure attempt exhausted"
	if lastErr != nil {
		reason = fmt.Sprintf("%s: %s", reason, lastErr.Message)
	}
	return contracts.RestructureDecision{
		Kind:   contracts.RestructureAcceptFailure,
		Reason: reason,
	}, nil
}
