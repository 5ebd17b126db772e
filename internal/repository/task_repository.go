// Package repository provides in-memory, mutex-guarded reference
// implementations of the persistence-seam interfaces contracts defines
// (TaskRepository, GoalRepository, TrajectoryRepository), grounded in the
// teacher's api.RunStore: one map keyed by ID, one lock guarding it, and
// copies handed back to callers. The copies are shallow apart from the
// slices and maps each repository copies explicitly (a task's Deps; a
// trajectory's Observations, StrategyLog, Hints and ForcedStrategy); other
// pointer fields, such as a task's Inputs, Outputs and Error, are shared
// with the stored value.
package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// TaskRepository is an in-memory contracts.TaskRepository. Production
// deployments would back this with a real datastore; this implementation
// exists to make the rest of the engine runnable and testable without one.
type TaskRepository struct {
	mu    sync.RWMutex
	tasks map[contracts.TaskID]*contracts.Task
}

// NewTaskRepository creates an empty in-memory task store.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[contracts.TaskID]*contracts.Task)}
}

func copyTask(t *contracts.Task) *contracts.Task {
	cp := *t
	if t.Deps != nil {
		cp.Deps = append([]contracts.TaskID(nil), t.Deps...)
	}
	return &cp
}

// Get returns a copy of the task stored under id.
func (r *TaskRepository) Get(ctx context.Context, id contracts.TaskID) (*contracts.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, contracts.ErrTaskNotFound)
	}
	return copyTask(t), nil
}

// Create stores task, rejecting a duplicate ID.
func (r *TaskRepository) Create(ctx context.Context, task *contracts.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("task %s: %w", task.ID, contracts.ErrInvalidInput)
	}
	r.tasks[task.ID] = copyTask(task)
	return nil
}

// Update overwrites the stored task, requiring it to already exist.
func (r *TaskRepository) Update(ctx context.Context, task *contracts.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; !exists {
		return fmt.Errorf("task %s: %w", task.ID, contracts.ErrTaskNotFound)
	}
	r.tasks[task.ID] = copyTask(task)
	return nil
}

// Delete removes the task stored under id.
func (r *TaskRepository) Delete(ctx context.Context, id contracts.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[id]; !exists {
		return fmt.Errorf("task %s: %w", id, contracts.ErrTaskNotFound)
	}
	delete(r.tasks, id)
	return nil
}

// ListByStatus returns copies of every task in the given state.
func (r *TaskRepository) ListByStatus(ctx context.Context, state contracts.TaskState) ([]*contracts.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*contracts.Task
	for _, t := range r.tasks {
		if t.State == state {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

// ListBySource returns copies of every task whose Source.Kind matches.
func (r *TaskRepository) ListBySource(ctx context.Context, kind contracts.TaskSourceKind) ([]*contracts.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*contracts.Task
	for _, t := range r.tasks {
		if t.Source.Kind == kind {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

// List returns copies of every task matching filter's populated fields.
func (r *TaskRepository) List(ctx context.Context, filter contracts.TaskFilter) ([]*contracts.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*contracts.Task
	for _, t := range r.tasks {
		if filter.State != nil && t.State != *filter.State {
			continue
		}
		if filter.AgentType != "" && t.AgentType != filter.AgentType {
			continue
		}
		if filter.GoalID != "" && t.Source.GoalID != filter.GoalID {
			continue
		}
		out = append(out, copyTask(t))
	}
	return out, nil
}

// GetChildTasks returns copies of every task whose ParentID matches.
func (r *TaskRepository) GetChildTasks(ctx context.Context, parent contracts.TaskID) ([]*contracts.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*contracts.Task
	for _, t := range r.tasks {
		if t.ParentID == parent {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}
