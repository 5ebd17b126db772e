package orchestration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/convergence-engine/contracts"
)

type fakeParallelExecutor struct {
	run func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error)
}

func (f *fakeParallelExecutor) Execute(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
	return f.run(ctx, run, taskID)
}

func buildTestRun(t *testing.T, tasks []contracts.Task) *contracts.Run {
	t.Helper()
	dag, err := NewDependencyResolver().BuildDAG(tasks)
	require.NoError(t, err)

	taskMap := make(map[contracts.TaskID]*contracts.Task, len(tasks))
	for i := range tasks {
		tsk := tasks[i]
		taskMap[tsk.ID] = &tsk
	}
	return &contracts.Run{
		ID:    "run-1",
		State: contracts.RunRunning,
		DAG:   dag,
		Tasks: taskMap,
	}
}

func TestWaveExecutor_ExecutesDependentTasksInOrder(t *testing.T) {
	var order []contracts.TaskID
	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		order = append(order, taskID)
		return &contracts.TaskResult{}, nil
	}}

	run := buildTestRun(t, []contracts.Task{
		{ID: "a", AgentType: "coder", MaxRetries: 0},
		{ID: "b", AgentType: "coder", Deps: []contracts.TaskID{"a"}, MaxRetries: 0},
	})

	we := NewWaveExecutor(WaveExecutor{Executor: exec})
	results, err := we.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 2, results.Completed)
	assert.Equal(t, []contracts.TaskID{"a", "b"}, order)
}

func TestWaveExecutor_RetriesFailedTaskUpToMaxRetries(t *testing.T) {
	attempts := 0
	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		attempts++
		if attempts < 2 {
			return nil, assert.AnError
		}
		return &contracts.TaskResult{}, nil
	}}

	run := buildTestRun(t, []contracts.Task{
		{ID: "a", AgentType: "coder", MaxRetries: 2},
	})

	we := NewWaveExecutor(WaveExecutor{Executor: exec, RetryPolicy: contracts.RetryPolicy{MaxRetries: 2, BaseDelay: 1, MaxDelay: 2}})
	results, err := we.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, results.Completed)
	assert.Equal(t, 0, results.Failed)
}

func TestWaveExecutor_RestructuresAfterRetriesExhausted(t *testing.T) {
	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		return nil, assert.AnError
	}}

	run := buildTestRun(t, []contracts.Task{
		{ID: "a", AgentType: "coder", MaxRetries: 0},
	})

	we := NewWaveExecutor(WaveExecutor{Executor: exec})
	results, err := we.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, contracts.TaskFailed, run.Tasks["a"].State)
	assert.Equal(t, 1, results.Failed)
}

func TestWaveExecutor_CircuitOpenBlocksDispatch(t *testing.T) {
	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		return nil, assert.AnError
	}}

	registry := NewCircuitRegistry(CircuitBreakerConfig{FailureThreshold: 1, FailureWindow: 30_000_000_000, OpenTimeout: 30_000_000_000, SuccessThreshold: 1})
	run := buildTestRun(t, []contracts.Task{
		{ID: "a", AgentType: "coder", MaxRetries: 5},
		{ID: "b", AgentType: "coder", Deps: []contracts.TaskID{"a"}, MaxRetries: 5},
	})

	we := NewWaveExecutor(WaveExecutor{Executor: exec, Circuits: registry})
	_, err := we.Execute(context.Background(), run)
	require.NoError(t, err)

	scope := contracts.CircuitScope{Kind: contracts.ScopeAgentType, Key: "coder"}
	assert.Equal(t, contracts.CircuitOpen, registry.Get(scope).State())
}

func TestWaveExecutor_AssemblesDependencyContextBeforeDispatch(t *testing.T) {
	var seenContext string
	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		if taskID == "b" {
			seenContext = run.Tasks["b"].Inputs.Inputs["_context"]
		}
		return &contracts.TaskResult{Output: "out:" + string(taskID)}, nil
	}}

	run := buildTestRun(t, []contracts.Task{
		{ID: "a", AgentType: "coder", MaxRetries: 0},
		{ID: "b", AgentType: "coder", Deps: []contracts.TaskID{"a"}, MaxRetries: 0, Inputs: &contracts.TaskInput{Prompt: "do b"}},
	})
	run.Memory = map[string]string{"goal": "converge"}

	we := NewWaveExecutor(WaveExecutor{Executor: exec})
	results, err := we.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 2, results.Completed)
	assert.Equal(t, "[a] out:a", seenContext)
	assert.Equal(t, "converge", run.Tasks["b"].Inputs.Metadata["memory:goal"])
}

func TestWaveExecutor_CostEstimationFailureDoesNotBlockDispatch(t *testing.T) {
	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		return &contracts.TaskResult{Output: "ok"}, nil
	}}

	run := buildTestRun(t, []contracts.Task{
		{ID: "a", AgentType: "coder", MaxRetries: 0, Model: "no-such-model", Inputs: &contracts.TaskInput{Prompt: "hi"}},
	})

	we := NewWaveExecutor(WaveExecutor{Executor: exec})
	results, err := we.Execute(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, 1, results.Completed)
}

func TestWaveExecutor_CancelMarksRemainingCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeParallelExecutor{run: func(ctx context.Context, run *contracts.Run, taskID contracts.TaskID) (*contracts.TaskResult, error) {
		return &contracts.TaskResult{}, nil
	}}
	run := buildTestRun(t, []contracts.Task{{ID: "a", AgentType: "coder"}})

	we := NewWaveExecutor(WaveExecutor{Executor: exec})
	_, err := we.Execute(ctx, run)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, contracts.RunAborted, run.State)
	assert.Equal(t, contracts.TaskCanceled, run.Tasks["a"].State)
}
