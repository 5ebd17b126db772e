package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
	ctxpkg "github.com/anthropics/convergence-engine/internal/context"
	"github.com/anthropics/convergence-engine/internal/cost"
)

// EventSink receives the DAG executor's lifecycle events. Implementations
// typically forward to an internal/bus.EventBus; nil is replaced with a
// no-op sink so WaveExecutor never needs a nil check.
type EventSink interface {
	Emit(category contracts.EventCategory, severity contracts.EventSeverity, taskID contracts.TaskID, payload contracts.EventPayload)
}

type noopEventSink struct{}

func (noopEventSink) Emit(contracts.EventCategory, contracts.EventSeverity, contracts.TaskID, contracts.EventPayload) {
}

// WaveExecutor executes one convergence iteration's task batch in
// dependency-respecting waves: a maximal set of ready tasks dispatched
// concurrently (bounded by MaxConcurrency via golang.org/x/sync/errgroup's
// SetLimit), with per-task retry, circuit-breaker gating, and restructure handling on
// exhaustion. It is the generalization of the teacher's batched
// orchestrator for the convergence loop's per-iteration task graph: the
// same "parallel I/O, sequential deterministic merge" shape, but tasks are
// retried and restructured in place instead of failing the whole batch.
type WaveExecutor struct {
	Scheduler      contracts.Scheduler
	DepResolver    contracts.DependencyResolver
	Executor       contracts.ParallelExecutor
	RetryPolicy    contracts.RetryPolicy
	Circuits       *CircuitRegistry
	Restructure    contracts.RestructurePolicy
	Events         EventSink
	MaxConcurrency int64

	// ContextBuilder/Compactor assemble each task's prompt context from its
	// completed dependencies and the run's shared memory before dispatch,
	// the same context-assembly step the teacher's batched orchestrator ran
	// as part of its pre-check, now run per task as part of the wave.
	ContextBuilder contracts.ContextBuilder
	Compactor      contracts.ContextCompactor

	// TokenEstimator/CostCalc price each task's assembled context before
	// dispatch and the result is logged for per-iteration cost accounting;
	// unlike the teacher's budgetEnforcer, a wave never rejects a task on
	// the estimate alone — convergence.Loop enforces the trajectory budget
	// from actual usage once the wave returns.
	TokenEstimator contracts.TokenEstimator
	CostCalc       contracts.CostCalculator
}

// NewWaveExecutor assembles a WaveExecutor, filling in defaults for any
// zero-valued collaborator so callers only need to override what they care
// about.
func NewWaveExecutor(opts WaveExecutor) *WaveExecutor {
	if opts.Scheduler == nil {
		opts.Scheduler = NewScheduler()
	}
	if opts.DepResolver == nil {
		opts.DepResolver = NewDependencyResolver()
	}
	if opts.RetryPolicy == (contracts.RetryPolicy{}) {
		opts.RetryPolicy = contracts.RetryPolicy{MaxRetries: 2, BaseDelay: 500, MaxDelay: 10_000}
	}
	if opts.Circuits == nil {
		opts.Circuits = NewCircuitRegistry(DefaultCircuitBreakerConfig())
	}
	if opts.Restructure == nil {
		opts.Restructure = NewDefaultRestructurePolicy()
	}
	if opts.Events == nil {
		opts.Events = noopEventSink{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.ContextBuilder == nil {
		opts.ContextBuilder = ctxpkg.NewContextBuilder()
	}
	if opts.Compactor == nil {
		opts.Compactor = ctxpkg.NewContextCompactor()
	}
	if opts.TokenEstimator == nil {
		opts.TokenEstimator = cost.NewTokenEstimator()
	}
	if opts.CostCalc == nil {
		opts.CostCalc = cost.NewCostCalculator()
	}
	e := opts
	return &e
}

// waveTaskResult carries one dispatched task's outcome back to the
// sequential merge step.
type waveTaskResult struct {
	taskID    contracts.TaskID
	result    *contracts.TaskResult
	err       error
	isTimeout bool
	startTime time.Time
}

// Execute runs run's DAG to completion (every task terminal) or until the
// DAG is stuck (a wave comes back empty with non-terminal tasks remaining,
// which it reports as blocked rather than failing outright).
func (w *WaveExecutor) Execute(ctx context.Context, run *contracts.Run) (contracts.ExecutionResults, error) {
	start := time.Now()
	if run == nil || run.DAG == nil {
		return contracts.ExecutionResults{}, contracts.ErrInvalidInput
	}
	if err := w.DepResolver.Validate(run.DAG); err != nil {
		return contracts.ExecutionResults{}, err
	}

	run.State = contracts.RunRunning
	audit.Log("event=execution_started run_id=%s task_count=%d", run.ID, len(run.Tasks))
	w.Events.Emit(contracts.CategoryExecution, contracts.SeverityInfo, "", contracts.EventPayload{
		Kind: contracts.PayloadExecutionStarted,
	})

	waveNum := 0
	for {
		select {
		case <-ctx.Done():
			w.cancelRemaining(run)
			return w.collectResults(run, start), ctx.Err()
		default:
		}

		ready, err := w.Scheduler.NextReady(run)
		if err != nil {
			return w.collectResults(run, start), err
		}

		if len(ready) == 0 {
			if allTerminal(run) {
				run.State = contracts.RunCompleted
				if hasFailures(run) {
					run.State = contracts.RunFailed
				}
				audit.Log("event=execution_completed run_id=%s duration_ms=%d waves=%d",
					run.ID, time.Since(start).Milliseconds(), waveNum)
				results := w.collectResults(run, start)
				w.Events.Emit(contracts.CategoryExecution, contracts.SeverityInfo, "", contracts.EventPayload{
					Kind:               contracts.PayloadExecutionCompleted,
					ExecutionCompleted: &contracts.ExecutionCompletedPayload{Results: results},
				})
				return results, nil
			}
			// Stuck: mark remaining non-terminal tasks blocked and report
			// partial success rather than failing the whole execution.
			w.markStuckTasksBlocked(run)
			run.State = contracts.RunFailed
			audit.Log("event=execution_stuck run_id=%s duration_ms=%d", run.ID, time.Since(start).Milliseconds())
			return w.collectResults(run, start), nil
		}

		waveNum++
		w.Events.Emit(contracts.CategoryExecution, contracts.SeverityInfo, "", contracts.EventPayload{Kind: contracts.PayloadWaveStarted})
		audit.Log("event=wave_started run_id=%s wave=%d task_count=%d", run.ID, waveNum, len(ready))

		waveStart := time.Now()
		results := w.dispatchWave(ctx, run, ready)
		w.mergeWaveResults(ctx, run, results)

		audit.Log("event=wave_completed run_id=%s wave=%d duration_ms=%d",
			run.ID, waveNum, time.Since(waveStart).Milliseconds())
		w.Events.Emit(contracts.CategoryExecution, contracts.SeverityInfo, "", contracts.EventPayload{Kind: contracts.PayloadWaveCompleted})
	}
}

// dispatchWave runs every ready task concurrently, bounded by
// MaxConcurrency via errgroup.Group's SetLimit. Each goroutine swallows its
// own error into the results slice rather than returning it, so one task's
// failure never cancels its wave-mates — composing the errors happens in
// the later sequential merge, not here.
func (w *WaveExecutor) dispatchWave(ctx context.Context, run *contracts.Run, ready []contracts.TaskID) []waveTaskResult {
	results := make([]waveTaskResult, len(ready))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(w.MaxConcurrency))

	for i, tid := range ready {
		idx, taskID := i, tid
		g.Go(func() error {
			results[idx] = w.dispatchOne(gctx, run, taskID)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// dispatchOne runs a single task, consulting its agent-type circuit
// breaker before invoking the executor.
func (w *WaveExecutor) dispatchOne(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) waveTaskResult {
	task := run.Tasks[taskID]
	start := time.Now()

	scope := contracts.CircuitScope{Kind: contracts.ScopeAgentType, Key: task.AgentType}
	breaker := w.Circuits.Get(scope)
	if !breaker.Allow() {
		audit.Log("event=task_blocked run_id=%s task_id=%s reason=circuit_open agent_type=%s",
			run.ID, taskID, task.AgentType)
		return waveTaskResult{
			taskID: taskID,
			err:    fmt.Errorf("circuit open for agent type %s: %w", task.AgentType, contracts.ErrCircuitOpen),
		}
	}

	task.State = contracts.TaskRunning
	audit.Log("event=task_started run_id=%s task_id=%s attempt=%d", run.ID, taskID, task.RetryCount+1)
	w.Events.Emit(contracts.CategoryTask, contracts.SeverityInfo, taskID, contracts.EventPayload{Kind: contracts.PayloadTaskStarted})

	w.assembleContext(run, task, taskID)

	result, err := w.Executor.Execute(ctx, run, taskID)

	isTimeout := err != nil && (errors.Is(err, contracts.ErrTaskTimeout) || ctx.Err() == context.DeadlineExceeded)
	if err != nil {
		if tripped, action := breaker.RecordFailure(); tripped {
			audit.Log("event=circuit_tripped run_id=%s scope=%s action=%s", run.ID, task.AgentType, action)
			w.Events.Emit(contracts.CategoryExecution, contracts.SeverityWarning, taskID, contracts.EventPayload{
				Kind: contracts.PayloadCircuitTripped,
				CircuitTripped: &contracts.CircuitTrippedPayload{
					Scope:  scope,
					Action: action,
				},
			})
		}
	} else {
		breaker.RecordSuccess()
	}

	return waveTaskResult{taskID: taskID, result: result, err: err, isTimeout: isTimeout, startTime: start}
}

// assembleContext builds taskID's context bundle from its completed
// dependencies and the run's shared memory, compacts it against the run's
// context policy, folds the result into task.Inputs so the executor sees
// it, and prices the assembled prompt so every dispatch logs an estimate
// alongside the wave's other per-task audit events. Context and pricing
// failures are logged and swallowed rather than failing the task: they
// degrade the prompt's context, not its correctness.
func (w *WaveExecutor) assembleContext(run *contracts.Run, task *contracts.Task, taskID contracts.TaskID) {
	bundle, err := w.ContextBuilder.Build(run, taskID)
	if err != nil {
		audit.Log("event=context_build_failed run_id=%s task_id=%s error=%s", run.ID, taskID, err)
		return
	}

	compacted, err := w.Compactor.Compact(bundle, run.Policy.ContextPolicy)
	if err != nil {
		audit.Log("event=context_compact_failed run_id=%s task_id=%s error=%s", run.ID, taskID, err)
		compacted = bundle
	}

	if task.Inputs == nil {
		task.Inputs = &contracts.TaskInput{}
	}
	if len(compacted.Messages) > 0 {
		if task.Inputs.Inputs == nil {
			task.Inputs.Inputs = make(map[string]string)
		}
		task.Inputs.Inputs["_context"] = strings.Join(compacted.Messages, "\n---\n")
	}
	if task.Inputs.Metadata == nil {
		task.Inputs.Metadata = make(map[string]string)
	}
	for k, v := range compacted.Memory {
		task.Inputs.Metadata["memory:"+k] = v
	}

	tokens, err := w.TokenEstimator.Estimate(task.Inputs, compacted)
	if err != nil {
		audit.Log("event=token_estimation_failed run_id=%s task_id=%s error=%s", run.ID, taskID, err)
		return
	}

	var estimate contracts.Cost
	if task.Model != "" {
		estimate, err = w.CostCalc.Estimate(tokens, task.Model)
	} else {
		estimate, err = w.CostCalc.EstimateByRole(tokens, contracts.RoleBalanced)
	}
	if err != nil {
		audit.Log("event=cost_estimation_failed run_id=%s task_id=%s model=%s error=%s", run.ID, taskID, task.Model, err)
		return
	}
	audit.Log("event=cost_estimated run_id=%s task_id=%s estimated_tokens=%d estimated_cost=%.6f%s",
		run.ID, taskID, tokens, estimate.Amount, estimate.Currency)
}

// mergeWaveResults applies the wave's outcomes sequentially, sorted by
// TaskID for determinism: completed tasks advance the scheduler, failed
// tasks are retried or handed to the restructure policy once retries are
// exhausted. A retry's backoff delay is computed from RetryPolicy and
// reported in the audit log and the TaskRetrying event; the executor does
// not wait for it, and the task is dispatched again in the next wave.
func (w *WaveExecutor) mergeWaveResults(ctx context.Context, run *contracts.Run, results []waveTaskResult) {
	sort.Slice(results, func(i, j int) bool { return string(results[i].taskID) < string(results[j].taskID) })

	for _, r := range results {
		task, exists := run.Tasks[r.taskID]
		if !exists {
			continue
		}

		if r.err == nil {
			// MarkComplete sets the state and outputs and unblocks dependents;
			// it rejects a task that is already Completed.
			_ = w.Scheduler.MarkComplete(run, r.taskID, r.result)
			task.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())
			if r.result != nil {
				run.Usage.Tokens += r.result.Usage.Tokens
				run.Usage.Cost.Amount += r.result.Usage.Cost.Amount
				if run.Usage.Cost.Currency == "" {
					run.Usage.Cost.Currency = r.result.Usage.Cost.Currency
				}
			}
			audit.Log("event=task_completed run_id=%s task_id=%s duration_ms=%d",
				run.ID, r.taskID, time.Since(r.startTime).Milliseconds())
			w.Events.Emit(contracts.CategoryTask, contracts.SeverityInfo, r.taskID, contracts.EventPayload{Kind: contracts.PayloadTaskCompleted})
			continue
		}

		taskErr := &contracts.TaskError{Code: "execution_failed", Message: r.err.Error(), IsTimeout: r.isTimeout}
		task.Error = taskErr

		if task.RetryCount < task.MaxRetries {
			task.RetryCount++
			task.State = contracts.TaskReady
			delay := w.RetryPolicy.BackoffDelay(task.RetryCount)
			audit.Log("event=task_retrying run_id=%s task_id=%s attempt=%d delay_ms=%d",
				run.ID, r.taskID, task.RetryCount, delay)
			w.Events.Emit(contracts.CategoryTask, contracts.SeverityWarning, r.taskID, contracts.EventPayload{
				Kind:         contracts.PayloadTaskRetrying,
				TaskRetrying: &contracts.TaskRetryingPayload{Attempt: task.RetryCount, DelayMs: delay},
			})
			continue
		}

		task.State = contracts.TaskFailed
		audit.Log("event=task_failed run_id=%s task_id=%s reason=retries_exhausted", run.ID, r.taskID)
		w.Events.Emit(contracts.CategoryTask, contracts.SeverityError, r.taskID, contracts.EventPayload{
			Kind:       contracts.PayloadTaskFailed,
			TaskFailed: &contracts.TaskFailedPayload{Error: *taskErr, IsTimeout: r.isTimeout},
		})

		decision, derr := w.Restructure.Decide(ctx, task, taskErr)
		if derr != nil {
			continue
		}
		w.applyRestructureDecision(run, task, decision)
	}
}

// applyRestructureDecision carries out a RestructureDecision against the
// run's task set. In a full deployment these mutations would flow through
// the command bus like every other state change; WaveExecutor applies them
// directly because it is itself the component the command bus delegates
// DAG execution to.
func (w *WaveExecutor) applyRestructureDecision(run *contracts.Run, task *contracts.Task, decision contracts.RestructureDecision) {
	audit.Log("event=restructure_decision run_id=%s task_id=%s kind=%s", run.ID, task.ID, decision.Kind)
	w.Events.Emit(contracts.CategoryExecution, contracts.SeverityInfo, task.ID, contracts.EventPayload{
		Kind:                contracts.PayloadRestructureDecision,
		RestructureDecision: &contracts.RestructureDecisionPayload{TaskID: task.ID, Decision: decision},
	})

	switch decision.Kind {
	case contracts.RestructureRetryDifferentApproach:
		task.RetryCount = 0
		task.State = contracts.TaskReady
		if decision.NewAgentType != "" {
			task.AgentType = decision.NewAgentType
		}
		if decision.NewPrompt != "" && task.Inputs != nil {
			task.Inputs.Prompt = decision.NewPrompt
		}

	case contracts.RestructureDecomposeDifferently:
		for i := range decision.NewSubtasks {
			sub := decision.NewSubtasks[i]
			sub.ParentID = task.ID
			sub.State = contracts.TaskReady
			run.Tasks[sub.ID] = &sub
			if run.DAG.Nodes != nil {
				run.DAG.Nodes[sub.ID] = &contracts.DAGNode{ID: sub.ID, Pending: 0}
			}
		}
		if decision.RemoveOriginal {
			task.State = contracts.TaskCanceled
		}

	case contracts.RestructureAlternativePath:
		for i := range decision.NewTasks {
			sib := decision.NewTasks[i]
			sib.State = contracts.TaskReady
			run.Tasks[sib.ID] = &sib
			if run.DAG.Nodes != nil {
				run.DAG.Nodes[sib.ID] = &contracts.DAGNode{ID: sib.ID, Pending: 0}
			}
		}

	case contracts.RestructureWaitAndRetry:
		task.State = contracts.TaskReady
		task.RetryCount = 0

	case contracts.RestructureEscalate:
		w.Events.Emit(contracts.CategoryEscalation, contracts.SeverityError, task.ID, contracts.EventPayload{
			Kind:       contracts.PayloadEscalation,
			Escalation: &contracts.EscalationPayload{Reason: decision.Reason, Context: decision.Context},
		})

	case contracts.RestructureAcceptFailure:
		// task.State is already TaskFailed; nothing further to do.
	}
}

// cancelRemaining marks every non-terminal task canceled on context
// cancellation, cooperative-best-effort (the agent substrate session
// itself is signaled by the executor's own context propagation).
func (w *WaveExecutor) cancelRemaining(run *contracts.Run) {
	for _, task := range run.Tasks {
		if !task.State.IsTerminal() {
			task.State = contracts.TaskCanceled
		}
	}
	run.State = contracts.RunAborted
}

// markStuckTasksBlocked marks every non-terminal task blocked when a wave
// comes back empty but the DAG has not fully terminated.
func (w *WaveExecutor) markStuckTasksBlocked(run *contracts.Run) {
	for _, task := range run.Tasks {
		if !task.State.IsTerminal() {
			task.State = contracts.TaskBlocked
		}
	}
}

// collectResults builds the ExecutionResults snapshot from the run's
// current task states.
func (w *WaveExecutor) collectResults(run *contracts.Run, start time.Time) contracts.ExecutionResults {
	res := contracts.ExecutionResults{
		Total:          len(run.Tasks),
		DurationMs:     time.Since(start).Milliseconds(),
		TokensUsed:     run.Usage.Tokens,
		PerTaskResults: make(map[contracts.TaskID]contracts.TaskOutcome, len(run.Tasks)),
	}
	for id, task := range run.Tasks {
		switch task.State {
		case contracts.TaskCompleted:
			res.Completed++
		case contracts.TaskFailed:
			res.Failed++
		case contracts.TaskSkipped, contracts.TaskCanceled:
			res.Skipped++
		case contracts.TaskBlocked:
			res.Blocked++
		}
		res.PerTaskResults[id] = contracts.TaskOutcome{TaskID: id, State: task.State, Result: task.Outputs, Error: task.Error}
	}
	return res
}

// allTerminal checks if all tasks have reached a terminal state.
func allTerminal(run *contracts.Run) bool {
	for _, task := range run.Tasks {
		if !task.State.IsTerminal() {
			return false
		}
	}
	return true
}

// hasFailures checks if any task has failed.
func hasFailures(run *contracts.Run) bool {
	for _, task := range run.Tasks {
		if task.State == contracts.TaskFailed {
			return true
		}
	}
	return false
}
