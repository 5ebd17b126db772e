package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/convergence-engine/contracts"
)

func executorRun(tasks ...*contracts.Task) *contracts.Run {
	run := &contracts.Run{ID: "run-1", State: contracts.RunRunning,
		Tasks: make(map[contracts.TaskID]*contracts.Task, len(tasks))}
	for _, task := range tasks {
		run.Tasks[task.ID] = task
	}
	return run
}

func TestExecute_ReturnsResultWithoutMutatingTask(t *testing.T) {
	exec := NewParallelExecutor(2, func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
		return &contracts.TaskResult{Output: "fixed " + string(task.ID)}, nil
	})
	task := &contracts.Task{ID: "patch", State: contracts.TaskReady}
	run := executorRun(task)

	result, err := exec.Execute(context.Background(), run, "patch")
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "fixed patch" {
		t.Errorf("want executor output, got %q", result.Output)
	}
	if task.State != contracts.TaskReady || task.Outputs != nil {
		t.Error("Execute must not mutate task state or outputs")
	}
}

func TestExecute_SubstrateErrorWrapsTaskFailed(t *testing.T) {
	exec := NewParallelExecutor(1, func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
		return nil, errors.New("agent session crashed")
	})
	run := executorRun(&contracts.Task{ID: "patch", State: contracts.TaskReady})

	_, err := exec.Execute(context.Background(), run, "patch")
	if !errors.Is(err, contracts.ErrTaskFailed) {
		t.Fatalf("want ErrTaskFailed, got %v", err)
	}
}

func TestExecute_PolicyTimeout(t *testing.T) {
	exec := NewParallelExecutor(1, func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &contracts.TaskResult{}, nil
		}
	})
	run := executorRun(&contracts.Task{ID: "slow", State: contracts.TaskReady})
	run.Policy.TimeoutMs = 20

	_, err := exec.Execute(context.Background(), run, "slow")
	if !errors.Is(err, contracts.ErrTaskTimeout) {
		t.Fatalf("want ErrTaskTimeout, got %v", err)
	}
}

func TestExecute_ContextCancellation(t *testing.T) {
	exec := NewParallelExecutor(1, func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	run := executorRun(&contracts.Task{ID: "hang", State: contracts.TaskReady})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Execute(ctx, run, "hang")
	if !errors.Is(err, contracts.ErrTaskCancelled) {
		t.Fatalf("want ErrTaskCancelled, got %v", err)
	}
}

func TestExecute_BoundedConcurrency(t *testing.T) {
	var inFlight, peak int32
	exec := NewParallelExecutor(2, func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return &contracts.TaskResult{}, nil
	})

	tasks := make([]*contracts.Task, 6)
	for i := range tasks {
		tasks[i] = &contracts.Task{ID: contracts.TaskID(fmt.Sprintf("t%d", i)), State: contracts.TaskReady}
	}
	run := executorRun(tasks...)

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(id contracts.TaskID) {
			defer wg.Done()
			_, _ = exec.Execute(context.Background(), run, id)
		}(task.ID)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("max parallelism 2 exceeded: peak %d", got)
	}
}

func TestExecute_DoubleDispatchRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	exec := NewParallelExecutor(2, func(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
		close(started)
		<-release
		return &contracts.TaskResult{}, nil
	})
	run := executorRun(&contracts.Task{ID: "once", State: contracts.TaskReady})

	errCh := make(chan error, 1)
	go func() {
		_, err := exec.Execute(context.Background(), run, "once")
		errCh <- err
	}()
	<-started

	_, err := exec.Execute(context.Background(), run, "once")
	if !errors.Is(err, contracts.ErrTaskNotReady) {
		t.Fatalf("second dispatch of an in-flight task: want ErrTaskNotReady, got %v", err)
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first dispatch should finish cleanly: %v", err)
	}
}

func TestExecute_Validation(t *testing.T) {
	exec := NewParallelExecutor(1, nil)

	run := executorRun(&contracts.Task{ID: "done", State: contracts.TaskCompleted})
	if _, err := exec.Execute(context.Background(), run, "done"); !errors.Is(err, contracts.ErrTaskNotReady) {
		t.Errorf("terminal task: want ErrTaskNotReady, got %v", err)
	}
	if _, err := exec.Execute(context.Background(), run, "ghost"); !errors.Is(err, contracts.ErrTaskNotFound) {
		t.Errorf("unknown task: want ErrTaskNotFound, got %v", err)
	}
	if _, err := exec.Execute(context.Background(), nil, "x"); !errors.Is(err, contracts.ErrInvalidInput) {
		t.Errorf("nil run: want ErrInvalidInput, got %v", err)
	}

	idle := &contracts.Run{ID: "r", State: contracts.RunPending,
		Tasks: map[contracts.TaskID]*contracts.Task{"a": {ID: "a"}}}
	if _, err := exec.Execute(context.Background(), idle, "a"); !errors.Is(err, contracts.ErrTaskNotReady) {
		t.Errorf("non-running run: want ErrTaskNotReady, got %v", err)
	}
}

func TestNewParallelExecutor_Defaults(t *testing.T) {
	// Nil executor falls back to the no-op stand-in; zero parallelism
	// clamps to 1.
	exec := NewParallelExecutor(0, nil)
	run := executorRun(&contracts.Task{ID: "a", State: contracts.TaskReady})

	result, err := exec.Execute(context.Background(), run, "a")
	if err != nil {
		t.Fatal(err)
	}
	if result.Output == "" {
		t.Error("default executor should produce placeholder output")
	}
}
