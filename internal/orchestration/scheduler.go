package orchestration

import (
	"fmt"
	"sort"

	"github.com/anthropics/convergence-engine/contracts"
)

// scheduler implements contracts.Scheduler over a single convergence
// iteration's task DAG. WaveExecutor calls NextReady once per wave to find
// the maximal ready set and MarkComplete once per finished task to unblock
// its dependents; the scheduler itself holds no iteration-spanning state,
// so a trajectory's successive iterations each get a fresh one.
//
// Callers synchronize access to the Run; the scheduler takes no locks of
// its own.
type scheduler struct{}

// NewScheduler creates a new Scheduler.
func NewScheduler() contracts.Scheduler {
	return &scheduler{}
}

// NextReady returns the maximal wave: every task whose dependency count
// has drained to zero and whose state is still pending or ready. The
// result is sorted by task ID so wave composition is deterministic.
func (s *scheduler) NextReady(run *contracts.Run) ([]contracts.TaskID, error) {
	if run == nil {
		return nil, contracts.ErrInvalidInput
	}
	if run.State != contracts.RunRunning {
		return nil, fmt.Errorf("run %s is not running (state: %s): %w", run.ID, run.State, contracts.ErrRunCompleted)
	}
	if run.DAG == nil {
		return nil, fmt.Errorf("run %s has no DAG: %w", run.ID, contracts.ErrDAGInvalid)
	}
	if len(run.Tasks) == 0 {
		return []contracts.TaskID{}, nil
	}
	if run.DAG.Nodes == nil {
		return nil, fmt.Errorf("run %s has nil DAG nodes: %w", run.ID, contracts.ErrDAGInvalid)
	}

	var ready []contracts.TaskID
	for taskID, node := range run.DAG.Nodes {
		if node.Pending != 0 {
			continue
		}
		task, ok := run.Tasks[taskID]
		if !ok {
			// Node without a task is a restructure leftover; nothing to
			// dispatch for it.
			continue
		}
		if task.State == contracts.TaskPending || task.State == contracts.TaskReady {
			ready = append(ready, taskID)
		}
	}

	sort.Slice(ready, func(i, j int) bool { return string(ready[i]) < string(ready[j]) })
	return ready, nil
}

// MarkComplete marks a task completed and decrements the Pending count of
// every task waiting on it, the step that makes those dependents eligible
// for the wave's next NextReady call. Completing a task twice, or one
// already failed or skipped, is an error.
func (s *scheduler) MarkComplete(run *contracts.Run, taskID contracts.TaskID, result *contracts.TaskResult) error {
	if run == nil {
		return contracts.ErrInvalidInput
	}
	if run.State != contracts.RunRunning {
		return fmt.Errorf("run %s is not running (state: %s): %w", run.ID, run.State, contracts.ErrRunCompleted)
	}
	if run.DAG == nil {
		return fmt.Errorf("run %s has no DAG: %w", run.ID, contracts.ErrDAGInvalid)
	}

	task, ok := run.Tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found in run %s: %w", taskID, run.ID, contracts.ErrTaskNotFound)
	}
	switch task.State {
	case contracts.TaskCompleted:
		return fmt.Errorf("task %s already completed: %w", taskID, contracts.ErrTaskNotReady)
	case contracts.TaskFailed, contracts.TaskSkipped:
		return fmt.Errorf("task %s is in terminal state %s: %w", taskID, task.State, contracts.ErrTaskNotReady)
	}

	task.State = contracts.TaskCompleted
	task.Outputs = result

	if run.DAG.Nodes != nil {
		if node, ok := run.DAG.Nodes[taskID]; ok {
			for _, nextID := range node.Next {
				if next, ok := run.DAG.Nodes[nextID]; ok && next.Pending > 0 {
					next.Pending--
				}
			}
		}
	}
	return nil
}
