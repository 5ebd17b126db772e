package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
)

// legalTaskTransitions enumerates the TaskState edges CommandBus accepts
// for CmdTaskTransition. Anything not listed here is rejected with
// ErrIllegalTransition regardless of the caller's intent.
var legalTaskTransitions = map[contracts.TaskState][]contracts.TaskState{
	contracts.TaskPending:   {contracts.TaskReady, contracts.TaskBlocked, contracts.TaskCanceled},
	contracts.TaskReady:     {contracts.TaskRunning, contracts.TaskBlocked, contracts.TaskCanceled, contracts.TaskSkipped},
	contracts.TaskRunning:   {contracts.TaskCompleted, contracts.TaskFailed, contracts.TaskReady, contracts.TaskCanceled},
	contracts.TaskFailed:    {contracts.TaskReady, contracts.TaskSkipped},
	contracts.TaskBlocked:   {contracts.TaskReady, contracts.TaskCanceled},
	contracts.TaskCompleted: {},
	contracts.TaskSkipped:   {},
	contracts.TaskCanceled:  {},
}

// taskTransitionPayloadKind picks the most specific event kind for a
// landed TaskState, falling back to the generic state-changed kind for
// transitions (e.g. Blocked/Failed -> Ready) with no dedicated payload.
func taskTransitionPayloadKind(to contracts.TaskState) contracts.EventPayloadKind {
	switch to {
	case contracts.TaskRunning:
		return contracts.PayloadTaskStarted
	case contracts.TaskCompleted:
		return contracts.PayloadTaskCompleted
	case contracts.TaskFailed:
		return contracts.PayloadTaskFailed
	case contracts.TaskCanceled:
		return contracts.PayloadTaskCanceled
	case contracts.TaskBlocked:
		return contracts.PayloadTaskBlocked
	default:
		return contracts.PayloadTaskStateChanged
	}
}

func legalTransition(from, to contracts.TaskState) bool {
	for _, allowed := range legalTaskTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// idempotencyEntry is the shadow-state record CommandBus keeps per
// idempotency key, written only for a dispatch that succeeded: the dispatch
// is guarded by mu (one writer), and once stored, result and err are
// immutable and safe to hand to any number of repeat callers without
// re-running the command. fingerprint detects a
// key being reused for a different command.
type idempotencyEntry struct {
	fingerprint string
	result      contracts.CommandResult
	err         error
}

// commandFingerprint identifies which operation a command targets, coarse
// enough to survive re-serialization but precise enough to catch an
// idempotency key reused across different commands.
func commandFingerprint(cmd contracts.Command) string {
	id := ""
	switch cmd.Kind {
	case contracts.CmdTaskSubmit:
		if cmd.TaskSubmit != nil && cmd.TaskSubmit.Task != nil {
			id = string(cmd.TaskSubmit.Task.ID)
		}
	case contracts.CmdTaskTransition:
		if cmd.TaskTransition != nil {
			id = string(cmd.TaskTransition.TaskID) + ":" + cmd.TaskTransition.To.String()
		}
	case contracts.CmdTaskCancel:
		if cmd.TaskCancel != nil {
			id = string(cmd.TaskCancel.TaskID)
		}
	case contracts.CmdTaskUpdate:
		if cmd.TaskUpdate != nil {
			id = string(cmd.TaskUpdate.TaskID)
		}
	case contracts.CmdGoalCreate:
		if cmd.GoalCreate != nil && cmd.GoalCreate.Goal != nil {
			id = string(cmd.GoalCreate.Goal.ID)
		}
	case contracts.CmdGoalPause:
		if cmd.GoalPause != nil {
			id = string(cmd.GoalPause.GoalID)
		}
	case contracts.CmdGoalResume:
		if cmd.GoalResume != nil {
			id = string(cmd.GoalResume.GoalID)
		}
	case contracts.CmdGoalComplete:
		if cmd.GoalComplete != nil {
			id = string(cmd.GoalComplete.GoalID)
		}
	}
	return string(cmd.Kind) + "/" + id
}

// authorize validates the envelope's source tag: the source kind must be
// known, non-system sources must name their actor, and goal lifecycle
// stays off-limits to agents (an agent reshaping its own goal would
// bypass the principal that declared it).
func authorize(env contracts.CommandEnvelope) error {
	switch env.Source.Kind {
	case contracts.CommandSourceSystem, "":
		// Envelopes built by internal callers default to system.
		return nil
	case contracts.CommandSourceUser, contracts.CommandSourceAgent:
		if env.Source.ActorID == "" {
			return fmt.Errorf("source %s requires an actor id: %w", env.Source.Kind, contracts.ErrUnauthorized)
		}
	default:
		return fmt.Errorf("unknown command source %q: %w", env.Source.Kind, contracts.ErrUnauthorized)
	}

	if env.Source.Kind == contracts.CommandSourceAgent {
		switch env.Command.Kind {
		case contracts.CmdGoalCreate, contracts.CmdGoalPause, contracts.CmdGoalResume, contracts.CmdGoalComplete:
			return fmt.Errorf("agent %s may not issue %s: %w", env.Source.ActorID, env.Command.Kind, contracts.ErrUnauthorized)
		}
	}
	return nil
}

// CommandBus is the single writer for every domain mutation: task and goal
// state changes are serialized through Dispatch, which validates the
// requested transition, applies it to the injected repositories, and
// publishes the resulting event(s). Modeled on the teacher's RunEntry
// shadow-state pattern in api/store.go — here the "shadow" is the
// idempotency cache, a synchronized record of a dispatch's settled outcome
// that repeat callers read instead of re-executing the mutation.
type CommandBus struct {
	mu sync.Mutex // serializes Dispatch; the single-writer guarantee

	Tasks  contracts.TaskRepository
	Goals  contracts.GoalRepository
	Events *EventBus

	idemMu sync.Mutex
	idem   map[string]*idempotencyEntry
}

// NewCommandBus constructs a CommandBus over the given repositories and
// event bus.
func NewCommandBus(tasks contracts.TaskRepository, goals contracts.GoalRepository, events *EventBus) *CommandBus {
	return &CommandBus{
		Tasks:  tasks,
		Goals:  goals,
		Events: events,
		idem:   make(map[string]*idempotencyEntry),
	}
}

// Dispatch applies env's command exactly once. Re-dispatching an envelope
// whose IdempotencyKey matches a previously successful dispatch returns the
// stored result without touching the repositories again; a failed dispatch
// is not stored, so a retry with the same key runs the command again.
func (b *CommandBus) Dispatch(ctx context.Context, env contracts.CommandEnvelope) (contracts.CommandResult, error) {
	if err := authorize(env); err != nil {
		audit.Log("event=command_unauthorized kind=%s source=%s actor=%s",
			env.Command.Kind, env.Source.Kind, env.Source.ActorID)
		return contracts.CommandResult{}, err
	}

	if env.IdempotencyKey != "" {
		if cached, ok := b.lookupIdempotent(env.IdempotencyKey); ok {
			if cached.fingerprint != commandFingerprint(env.Command) {
				return contracts.CommandResult{}, fmt.Errorf("idempotency key %s: %w",
					env.IdempotencyKey, contracts.ErrDuplicateCommand)
			}
			audit.Log("event=command_dedup idempotency_key=%s kind=%s", env.IdempotencyKey, env.Command.Kind)
			return cached.result, cached.err
		}
	}

	b.mu.Lock()
	result, err := b.apply(ctx, env)
	b.mu.Unlock()

	if env.IdempotencyKey != "" && err == nil {
		b.storeIdempotent(env.IdempotencyKey, commandFingerprint(env.Command), result, err)
	}

	if err != nil {
		audit.Log("event=command_rejected kind=%s source=%s actor=%s error=%s",
			env.Command.Kind, env.Source.Kind, env.Source.ActorID, err.Error())
		if b.Events != nil {
			b.Events.Publish(ctx, contracts.DomainEvent{
				Severity: contracts.SeverityWarning,
				Category: contracts.CategoryTask,
				Payload: contracts.EventPayload{
					Kind:            contracts.PayloadCommandRejected,
					CommandRejected: &contracts.CommandRejectedPayload{Reason: err.Error()},
				},
			})
		}
		return contracts.CommandResult{}, err
	}

	audit.Log("event=command_dispatched kind=%s source=%s actor=%s", env.Command.Kind, env.Source.Kind, env.Source.ActorID)
	return result, nil
}

func (b *CommandBus) lookupIdempotent(key string) (*idempotencyEntry, bool) {
	b.idemMu.Lock()
	defer b.idemMu.Unlock()
	entry, ok := b.idem[key]
	return entry, ok
}

func (b *CommandBus) storeIdempotent(key, fingerprint string, result contracts.CommandResult, err error) {
	b.idemMu.Lock()
	defer b.idemMu.Unlock()
	b.idem[key] = &idempotencyEntry{fingerprint: fingerprint, result: result, err: err}
}

// apply dispatches to the per-kind handler. Called with b.mu held.
func (b *CommandBus) apply(ctx context.Context, env contracts.CommandEnvelope) (contracts.CommandResult, error) {
	cmd := env.Command
	switch cmd.Kind {
	case contracts.CmdTaskSubmit:
		return b.applyTaskSubmit(ctx, cmd.TaskSubmit)
	case contracts.CmdTaskTransition:
		return b.applyTaskTransition(ctx, cmd.TaskTransition)
	case contracts.CmdTaskCancel:
		return b.applyTaskCancel(ctx, cmd.TaskCancel)
	case contracts.CmdTaskUpdate:
		return b.applyTaskUpdate(ctx, cmd.TaskUpdate)
	case contracts.CmdGoalCreate:
		return b.applyGoalCreate(ctx, cmd.GoalCreate)
	case contracts.CmdGoalPause:
		return b.applyGoalPause(ctx, cmd.GoalPause)
	case contracts.CmdGoalResume:
		return b.applyGoalResume(ctx, cmd.GoalResume)
	case contracts.CmdGoalComplete:
		return b.applyGoalComplete(ctx, cmd.GoalComplete)
	default:
		return contracts.CommandResult{}, fmt.Errorf("command kind %q: %w", cmd.Kind, contracts.ErrInvalidInput)
	}
}

func (b *CommandBus) applyTaskSubmit(ctx context.Context, c *contracts.TaskSubmitCommand) (contracts.CommandResult, error) {
	if c == nil || c.Task == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	for _, dep := range c.Task.Deps {
		if _, err := b.Tasks.Get(ctx, dep); err != nil {
			return contracts.CommandResult{}, fmt.Errorf("dependency %s: %w", dep, contracts.ErrTaskNotFound)
		}
	}
	if err := b.Tasks.Create(ctx, c.Task); err != nil {
		return contracts.CommandResult{}, err
	}
	b.publishTask(ctx, contracts.PayloadTaskSubmitted, c.Task)
	return contracts.CommandResult{Kind: contracts.ResultTask, Task: c.Task}, nil
}

func (b *CommandBus) applyTaskTransition(ctx context.Context, c *contracts.TaskTransitionCommand) (contracts.CommandResult, error) {
	if c == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	task, err := b.Tasks.Get(ctx, c.TaskID)
	if err != nil {
		return contracts.CommandResult{}, err
	}
	if !legalTransition(task.State, c.To) {
		return contracts.CommandResult{}, fmt.Errorf("%s -> %s: %w", task.State, c.To, contracts.ErrIllegalTransition)
	}
	task.State = c.To
	task.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
	if c.To == contracts.TaskFailed {
		task.Error = c.Error
	}
	if err := b.Tasks.Update(ctx, task); err != nil {
		return contracts.CommandResult{}, err
	}

	b.publishTask(ctx, taskTransitionPayloadKind(c.To), task)
	return contracts.CommandResult{Kind: contracts.ResultTask, Task: task}, nil
}

func (b *CommandBus) applyTaskCancel(ctx context.Context, c *contracts.TaskCancelCommand) (contracts.CommandResult, error) {
	if c == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	task, err := b.Tasks.Get(ctx, c.TaskID)
	if err != nil {
		return contracts.CommandResult{}, err
	}
	if task.State.IsTerminal() {
		return contracts.CommandResult{Kind: contracts.ResultTask, Task: task}, nil
	}
	task.State = contracts.TaskCanceled
	task.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
	if err := b.Tasks.Update(ctx, task); err != nil {
		return contracts.CommandResult{}, err
	}
	b.publishTask(ctx, contracts.PayloadTaskCanceled, task)
	return contracts.CommandResult{Kind: contracts.ResultTask, Task: task}, nil
}

func (b *CommandBus) applyTaskUpdate(ctx context.Context, c *contracts.TaskUpdateCommand) (contracts.CommandResult, error) {
	if c == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	task, err := b.Tasks.Get(ctx, c.TaskID)
	if err != nil {
		return contracts.CommandResult{}, err
	}
	if c.Description != nil {
		task.Description = *c.Description
	}
	if c.AgentType != nil {
		task.AgentType = *c.AgentType
	}
	if c.Priority != nil {
		task.Priority = *c.Priority
	}
	task.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
	if err := b.Tasks.Update(ctx, task); err != nil {
		return contracts.CommandResult{}, err
	}
	b.publishTask(ctx, contracts.PayloadTaskUpdated, task)
	return contracts.CommandResult{Kind: contracts.ResultTask, Task: task}, nil
}

func (b *CommandBus) applyGoalCreate(ctx context.Context, c *contracts.GoalCreateCommand) (contracts.CommandResult, error) {
	if c == nil || c.Goal == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	if err := b.Goals.Create(ctx, c.Goal); err != nil {
		return contracts.CommandResult{}, err
	}
	b.publishGoal(ctx, contracts.PayloadGoalCreated, c.Goal)
	return contracts.CommandResult{Kind: contracts.ResultGoal, Goal: c.Goal}, nil
}

func (b *CommandBus) applyGoalPause(ctx context.Context, c *contracts.GoalPauseCommand) (contracts.CommandResult, error) {
	if c == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	goal, err := b.Goals.Get(ctx, c.GoalID)
	if err != nil {
		return contracts.CommandResult{}, err
	}
	if goal.Status != contracts.GoalActive {
		return contracts.CommandResult{}, contracts.ErrGoalNotActive
	}
	goal.Status = contracts.GoalPaused
	goal.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
	if err := b.Goals.Update(ctx, goal); err != nil {
		return contracts.CommandResult{}, err
	}
	if b.Events != nil {
		b.Events.Publish(ctx, contracts.DomainEvent{
			Severity: contracts.SeverityWarning,
			Category: contracts.CategoryGoal,
			GoalID:   goal.ID,
			Payload: contracts.EventPayload{
				Kind:       contracts.PayloadGoalPaused,
				GoalPaused: &contracts.GoalPausedPayload{Reason: c.Reason},
			},
		})
	}
	return contracts.CommandResult{Kind: contracts.ResultGoal, Goal: goal}, nil
}

func (b *CommandBus) applyGoalResume(ctx context.Context, c *contracts.GoalResumeCommand) (contracts.CommandResult, error) {
	if c == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	goal, err := b.Goals.Get(ctx, c.GoalID)
	if err != nil {
		return contracts.CommandResult{}, err
	}
	if goal.Status != contracts.GoalPaused {
		return contracts.CommandResult{}, contracts.ErrGoalNotActive
	}
	goal.Status = contracts.GoalActive
	goal.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
	if err := b.Goals.Update(ctx, goal); err != nil {
		return contracts.CommandResult{}, err
	}
	b.publishGoal(ctx, contracts.PayloadGoalResumed, goal)
	return contracts.CommandResult{Kind: contracts.ResultGoal, Goal: goal}, nil
}

func (b *CommandBus) applyGoalComplete(ctx context.Context, c *contracts.GoalCompleteCommand) (contracts.CommandResult, error) {
	if c == nil {
		return contracts.CommandResult{}, contracts.ErrInvalidInput
	}
	goal, err := b.Goals.Get(ctx, c.GoalID)
	if err != nil {
		return contracts.CommandResult{}, err
	}
	goal.Status = contracts.GoalCompleted
	goal.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
	if err := b.Goals.Update(ctx, goal); err != nil {
		return contracts.CommandResult{}, err
	}
	b.publishGoal(ctx, contracts.PayloadGoalCompleted, goal)
	return contracts.CommandResult{Kind: contracts.ResultGoal, Goal: goal}, nil
}

func (b *CommandBus) publishTask(ctx context.Context, kind contracts.EventPayloadKind, task *contracts.Task) {
	if b.Events == nil {
		return
	}
	b.Events.Publish(ctx, contracts.DomainEvent{
		Severity: contracts.SeverityInfo,
		Category: contracts.CategoryTask,
		TaskID:   task.ID,
		Payload:  contracts.EventPayload{Kind: kind},
	})
}

func (b *CommandBus) publishGoal(ctx context.Context, kind contracts.EventPayloadKind, goal *contracts.Goal) {
	if b.Events == nil {
		return
	}
	b.Events.Publish(ctx, contracts.DomainEvent{
		Severity: contracts.SeverityInfo,
		Category: contracts.CategoryGoal,
		GoalID:   goal.ID,
		Payload:  contracts.EventPayload{Kind: kind},
	})
}
