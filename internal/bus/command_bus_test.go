package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/repository"
)

func newTestCommandBus() *CommandBus {
	return NewCommandBus(repository.NewTaskRepository(), repository.NewGoalRepository(), NewEventBus(nil))
}

func TestCommandBus_TaskSubmitThenTransition(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()

	result, err := b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t1", State: contracts.TaskPending}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.TaskPending, result.Task.State)

	result, err = b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind: contracts.CmdTaskTransition,
			TaskTransition: &contracts.TaskTransitionCommand{
				TaskID: "t1",
				To:     contracts.TaskReady,
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.TaskReady, result.Task.State)
}

func TestCommandBus_TaskSubmitRejectsMissingDependency(t *testing.T) {
	b := newTestCommandBus()
	_, err := b.Dispatch(context.Background(), contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind: contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{
				Task: &contracts.Task{ID: "t1", Deps: []contracts.TaskID{"missing"}},
			},
		},
	})
	assert.ErrorIs(t, err, contracts.ErrTaskNotFound)
}

func TestCommandBus_IllegalTransitionRejected(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()
	_, _ = b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t1", State: contracts.TaskPending}},
		},
	})

	_, err := b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind: contracts.CmdTaskTransition,
			TaskTransition: &contracts.TaskTransitionCommand{
				TaskID: "t1",
				To:     contracts.TaskCompleted, // pending -> completed is not a legal edge
			},
		},
	})
	assert.ErrorIs(t, err, contracts.ErrIllegalTransition)
}

func TestCommandBus_IdempotencyKeyShortCircuitsRepeatDispatch(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()
	env := contracts.CommandEnvelope{
		IdempotencyKey: "submit-t1",
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t1", State: contracts.TaskPending}},
		},
	}

	first, err := b.Dispatch(ctx, env)
	require.NoError(t, err)

	// A second submit for the same ID, without idempotency dedup, would fail
	// since the task already exists; confirm the cached result is returned
	// instead of re-running the command.
	second, err := b.Dispatch(ctx, env)
	require.NoError(t, err)
	assert.Same(t, first.Task, second.Task)
}

func TestCommandBus_IdempotentRepeatProducesNoExtraEvents(t *testing.T) {
	store := NewEventStore()
	b := NewCommandBus(repository.NewTaskRepository(), repository.NewGoalRepository(), NewEventBus(store))
	ctx := context.Background()
	env := contracts.CommandEnvelope{
		IdempotencyKey: "submit-t1",
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t1", State: contracts.TaskPending}},
		},
	}

	_, err := b.Dispatch(ctx, env)
	require.NoError(t, err)
	_, err = b.Dispatch(ctx, env)
	require.NoError(t, err)

	events, err := store.ReadSince(ctx, 0, 100)
	require.NoError(t, err)
	submitted := 0
	for _, ev := range events {
		if ev.Payload.Kind == contracts.PayloadTaskSubmitted {
			submitted++
		}
	}
	assert.Equal(t, 1, submitted, "the deduped dispatch must not publish again")
}

func TestCommandBus_IdempotencyKeyReusedForDifferentCommand(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()

	_, err := b.Dispatch(ctx, contracts.CommandEnvelope{
		IdempotencyKey: "key-1",
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t1", State: contracts.TaskPending}},
		},
	})
	require.NoError(t, err)

	_, err = b.Dispatch(ctx, contracts.CommandEnvelope{
		IdempotencyKey: "key-1",
		Command: contracts.Command{
			Kind:       contracts.CmdTaskCancel,
			TaskCancel: &contracts.TaskCancelCommand{TaskID: "t1"},
		},
	})
	assert.ErrorIs(t, err, contracts.ErrDuplicateCommand)
}

func TestCommandBus_AuthorizationTag(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()

	// A user or agent source without an actor id is rejected.
	_, err := b.Dispatch(ctx, contracts.CommandEnvelope{
		Source: contracts.CommandSource{Kind: contracts.CommandSourceUser},
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t1"}},
		},
	})
	assert.ErrorIs(t, err, contracts.ErrUnauthorized)

	// Agents may submit tasks but not drive goal lifecycle.
	_, err = b.Dispatch(ctx, contracts.CommandEnvelope{
		Source: contracts.CommandSource{Kind: contracts.CommandSourceAgent, ActorID: "agent-7"},
		Command: contracts.Command{
			Kind:       contracts.CmdTaskSubmit,
			TaskSubmit: &contracts.TaskSubmitCommand{Task: &contracts.Task{ID: "t2", State: contracts.TaskPending}},
		},
	})
	assert.NoError(t, err)

	_, err = b.Dispatch(ctx, contracts.CommandEnvelope{
		Source: contracts.CommandSource{Kind: contracts.CommandSourceAgent, ActorID: "agent-7"},
		Command: contracts.Command{
			Kind:         contracts.CmdGoalComplete,
			GoalComplete: &contracts.GoalCompleteCommand{GoalID: "g1"},
		},
	})
	assert.ErrorIs(t, err, contracts.ErrUnauthorized)
}

func TestCommandBus_GoalPauseRequiresActiveGoal(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()
	_, _ = b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:       contracts.CmdGoalCreate,
			GoalCreate: &contracts.GoalCreateCommand{Goal: &contracts.Goal{ID: "g1", Status: contracts.GoalPaused}},
		},
	})

	_, err := b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:      contracts.CmdGoalPause,
			GoalPause: &contracts.GoalPauseCommand{GoalID: "g1", Reason: "already paused"},
		},
	})
	assert.ErrorIs(t, err, contracts.ErrGoalNotActive)
}

func TestCommandBus_GoalPauseThenResume(t *testing.T) {
	b := newTestCommandBus()
	ctx := context.Background()
	_, _ = b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:       contracts.CmdGoalCreate,
			GoalCreate: &contracts.GoalCreateCommand{Goal: &contracts.Goal{ID: "g1", Status: contracts.GoalActive}},
		},
	})

	result, err := b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:      contracts.CmdGoalPause,
			GoalPause: &contracts.GoalPauseCommand{GoalID: "g1", Reason: "infra error"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.GoalPaused, result.Goal.Status)

	result, err = b.Dispatch(ctx, contracts.CommandEnvelope{
		Command: contracts.Command{
			Kind:       contracts.CmdGoalResume,
			GoalResume: &contracts.GoalResumeCommand{GoalID: "g1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.GoalActive, result.Goal.Status)
}
