package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/convergence-engine/contracts"
)

// TaskExecutorFunc is the function that actually performs one task: in
// production, a dispatch to the agent substrate; in tests, a fake.
type TaskExecutorFunc func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error)

// parallelExecutor implements contracts.ParallelExecutor with bounded
// concurrency. WaveExecutor.dispatchWave calls Execute once per ready task
// in a wave, relying on the semaphore below (not WaveExecutor's own
// errgroup.SetLimit) to cap how many agent sessions run at once when the
// same executor is shared across concurrent runs.
//
// Execute never mutates task.State or task.Outputs; state transitions
// belong to WaveExecutor and the scheduler.
type parallelExecutor struct {
	mu       sync.Mutex
	sem      chan struct{}
	executor TaskExecutorFunc
	running  map[contracts.TaskID]bool
}

// NewParallelExecutor creates a ParallelExecutor capped at maxParallelism
// concurrent tasks (minimum 1). A nil executor gets a no-op stand-in so
// local runs work without a substrate.
func NewParallelExecutor(maxParallelism int, executor TaskExecutorFunc) contracts.ParallelExecutor {
	if maxParallelism <= 0 {
		maxParallelism = 1
	}
	if executor == nil {
		executor = defaultExecutor
	}
	return &parallelExecutor{
		sem:      make(chan struct{}, maxParallelism),
		executor: executor,
		running:  make(map[contracts.TaskID]bool),
	}
}

// NewParallelExecutorFromPolicy creates a ParallelExecutor sized from the
// run policy.
func NewParallelExecutorFromPolicy(policy contracts.RunPolicy, executor TaskExecutorFunc) contracts.ParallelExecutor {
	return NewParallelExecutor(policy.MaxParallelism, executor)
}

func defaultExecutor(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
	return &contracts.TaskResult{
		Output: fmt.Sprintf("executed: %s", task.ID),
		Usage: contracts.Usage{
			Tokens: 100,
			Cost:   contracts.Cost{Amount: 0.001, Currency: "USD"},
		},
	}, nil
}

// Execute runs one task, blocking for a concurrency slot first. The run
// policy's TimeoutMs, when set, bounds the execution on top of ctx's own
// deadline; a policy timeout surfaces as ErrTaskTimeout so WaveExecutor
// can mark the failure with the timeout flag.
func (p *parallelExecutor) Execute(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
	if ctx == nil || run == nil {
		return nil, contracts.ErrInvalidInput
	}

	task, err := p.validateAndTrack(run, taskID)
	if err != nil {
		return nil, err
	}
	defer p.untrack(taskID)

	select {
	case p.sem <- struct{}{}:
		defer func() { <-p.sem }()
	case <-ctx.Done():
		return nil, fmt.Errorf("task %s: semaphore acquire cancelled: %w", taskID, contracts.ErrTaskCancelled)
	}

	execCtx := ctx
	if run.Policy.TimeoutMs > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(run.Policy.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	resultCh := make(chan *contracts.TaskResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := p.executor(execCtx, task)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case result := <-resultCh:
		return result, nil
	case err := <-errCh:
		return nil, fmt.Errorf("task %s failed: %w: %v", taskID, contracts.ErrTaskFailed, err)
	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("task %s timed out: %w", taskID, contracts.ErrTaskTimeout)
		}
		return nil, fmt.Errorf("task %s cancelled: %w", taskID, contracts.ErrTaskCancelled)
	}
}

// validateAndTrack rejects tasks that cannot run (unknown, terminal, or
// already in flight on this executor) and registers the task as running.
// TaskRunning state is allowed through: WaveExecutor sets it before
// calling Execute; the running map is what prevents double dispatch here.
func (p *parallelExecutor) validateAndTrack(run *contracts.Run, taskID contracts.TaskID) (*contracts.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if run.State != contracts.RunRunning {
		return nil, fmt.Errorf("run %s is not running: %w", run.ID, contracts.ErrTaskNotReady)
	}
	task, ok := run.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found: %w", taskID, contracts.ErrTaskNotFound)
	}
	if task.State == contracts.TaskCompleted ||
		task.State == contracts.TaskFailed ||
		task.State == contracts.TaskSkipped {
		return nil, fmt.Errorf("task %s is in terminal state %s: %w", taskID, task.State, contracts.ErrTaskNotReady)
	}
	if p.running[taskID] {
		return nil, fmt.Errorf("task %s is already being executed: %w", taskID, contracts.ErrTaskNotReady)
	}

	p.running[taskID] = true
	return task, nil
}

func (p *parallelExecutor) untrack(taskID contracts.TaskID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, taskID)
}
