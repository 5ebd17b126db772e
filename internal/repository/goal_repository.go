package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// GoalRepository is an in-memory contracts.GoalRepository.
type GoalRepository struct {
	mu    sync.RWMutex
	goals map[contracts.GoalID]*contracts.Goal
}

// NewGoalRepository creates an empty in-memory goal store.
func NewGoalRepository() *GoalRepository {
	return &GoalRepository{goals: make(map[contracts.GoalID]*contracts.Goal)}
}

// Get returns a copy of the goal stored under id.
func (r *GoalRepository) Get(ctx context.Context, id contracts.GoalID) (*contracts.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.goals[id]
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", id, contracts.ErrGoalNotFound)
	}
	cp := *g
	return &cp, nil
}

// Create stores goal, rejecting a duplicate ID.
func (r *GoalRepository) Create(ctx context.Context, goal *contracts.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.goals[goal.ID]; exists {
		return fmt.Errorf("goal %s: %w", goal.ID, contracts.ErrGoalAlreadyExists)
	}
	cp := *goal
	r.goals[goal.ID] = &cp
	return nil
}

// Update overwrites the stored goal, requiring it to already exist.
func (r *GoalRepository) Update(ctx context.Context, goal *contracts.Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.goals[goal.ID]; !exists {
		return fmt.Errorf("goal %s: %w", goal.ID, contracts.ErrGoalNotFound)
	}
	cp := *goal
	r.goals[goal.ID] = &cp
	return nil
}

// Delete removes the goal stored under id.
func (r *GoalRepository) Delete(ctx context.Context, id contracts.GoalID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.goals[id]; !exists {
		return fmt.Errorf("goal %s: %w", id, contracts.ErrGoalNotFound)
	}
	delete(r.goals, id)
	return nil
}
