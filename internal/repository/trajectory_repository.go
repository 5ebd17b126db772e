package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/anthropics/convergence-engine/contracts"
)

// TrajectoryRepository is an in-memory contracts.TrajectoryRepository. Its
// strategy-effectiveness and attractor-distribution reads scan every
// stored trajectory's StrategyLog / Observations; a real deployment would
// push this aggregation into the datastore, but the in-memory reference
// keeps the contract exact without one.
type TrajectoryRepository struct {
	mu           sync.RWMutex
	trajectories map[contracts.TrajectoryID]*contracts.Trajectory
	byTask       map[contracts.TaskID]contracts.TrajectoryID
	byGoal       map[contracts.GoalID]contracts.TrajectoryID
}

// NewTrajectoryRepository creates an empty in-memory trajectory store.
func NewTrajectoryRepository() *TrajectoryRepository {
	return &TrajectoryRepository{
		trajectories: make(map[contracts.TrajectoryID]*contracts.Trajectory),
		byTask:       make(map[contracts.TaskID]contracts.TrajectoryID),
		byGoal:       make(map[contracts.GoalID]contracts.TrajectoryID),
	}
}

func copyTrajectory(t *contracts.Trajectory) *contracts.Trajectory {
	cp := *t
	cp.Observations = append([]contracts.Observation(nil), t.Observations...)
	cp.StrategyLog = append([]contracts.StrategyEntry(nil), t.StrategyLog...)
	if t.Hints != nil {
		cp.Hints = make(map[string]string, len(t.Hints))
		for k, v := range t.Hints {
			cp.Hints[k] = v
		}
	}
	if t.ForcedStrategy != nil {
		s := *t.ForcedStrategy
		cp.ForcedStrategy = &s
	}
	return &cp
}

// Save upserts trajectory, indexing it by goal for GetByGoal lookups. Task
// indexing (byTask) is populated by the caller via AssociateTask, since a
// trajectory's observations don't carry task IDs directly.
func (r *TrajectoryRepository) Save(ctx context.Context, trajectory *contracts.Trajectory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trajectories[trajectory.ID] = copyTrajectory(trajectory)
	r.byGoal[trajectory.GoalID] = trajectory.ID
	return nil
}

// AssociateTask records that taskID was dispatched as part of trajectory,
// so GetByTask can find it later.
func (r *TrajectoryRepository) AssociateTask(trajectoryID contracts.TrajectoryID, taskID contracts.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTask[taskID] = trajectoryID
}

// Get returns a copy of the trajectory stored under id.
func (r *TrajectoryRepository) Get(ctx context.Context, id contracts.TrajectoryID) (*contracts.Trajectory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trajectories[id]
	if !ok {
		return nil, fmt.Errorf("trajectory %s: %w", id, contracts.ErrTrajectoryNotFound)
	}
	return copyTrajectory(t), nil
}

// GetByTask resolves the trajectory that dispatched taskID.
func (r *TrajectoryRepository) GetByTask(ctx context.Context, taskID contracts.TaskID) (*contracts.Trajectory, error) {
	r.mu.RLock()
	id, ok := r.byTask[taskID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, contracts.ErrTrajectoryNotFound)
	}
	return r.Get(ctx, id)
}

// GetByGoal resolves the (most recently saved) trajectory for goalID.
func (r *TrajectoryRepository) GetByGoal(ctx context.Context, goalID contracts.GoalID) (*contracts.Trajectory, error) {
	r.mu.RLock()
	id, ok := r.byGoal[goalID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("goal %s: %w", goalID, contracts.ErrTrajectoryNotFound)
	}
	return r.Get(ctx, id)
}

// GetRecent returns up to limit trajectories, most recently updated first.
func (r *TrajectoryRepository) GetRecent(ctx context.Context, limit int) ([]*contracts.Trajectory, error) {
	r.mu.RLock()
	all := make([]*contracts.Trajectory, 0, len(r.trajectories))
	for _, t := range r.trajectories {
		all = append(all, copyTrajectory(t))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt > all[j].UpdatedAt })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// GetSuccessfulStrategies returns the StrategyEntry rows, across all stored
// trajectories, that were chosen while the trajectory sat in the given
// attractor and whose ConvergenceDeltaAchieved was positive. Each entry
// carries the context it was recorded under, so a trajectory that later
// moved to a different attractor still contributes the rows it earned
// while in this one.
func (r *TrajectoryRepository) GetSuccessfulStrategies(ctx context.Context, attractor contracts.AttractorType, limit int) ([]contracts.StrategyEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []contracts.StrategyEntry
	for _, t := range r.trajectories {
		for _, entry := range t.StrategyLog {
			if entry.Context.AttractorName != attractor {
				continue
			}
			if entry.ConvergenceDeltaAchieved != nil && *entry.ConvergenceDeltaAchieved > 0 {
				out = append(out, entry)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StrategyEffectiveness aggregates every StrategyEntry across every stored
// trajectory for the given strategy, regardless of context.
func (r *TrajectoryRepository) StrategyEffectiveness(ctx context.Context, strategy contracts.StrategyKind) (contracts.StrategyEffectiveness, error) {
	return r.aggregateEffectiveness(strategy, func(contracts.StrategyEntry) bool { return true }), nil
}

// StrategyEffectivenessInContext aggregates only the rows recorded under
// key, the read backing the selector's contextual exploitation arm.
func (r *TrajectoryRepository) StrategyEffectivenessInContext(ctx context.Context, strategy contracts.StrategyKind, key contracts.StrategyContextKey) (contracts.StrategyEffectiveness, error) {
	return r.aggregateEffectiveness(strategy, func(entry contracts.StrategyEntry) bool {
		return entry.Context == key
	}), nil
}

func (r *TrajectoryRepository) aggregateEffectiveness(strategy contracts.StrategyKind, match func(contracts.StrategyEntry) bool) contracts.StrategyEffectiveness {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eff := contracts.StrategyEffectiveness{Strategy: strategy}
	var deltaSum float64
	var tokenSum contracts.TokenCount

	for _, t := range r.trajectories {
		for _, entry := range t.StrategyLog {
			if entry.Strategy != strategy || !match(entry) {
				continue
			}
			eff.TotalUses++
			tokenSum += entry.TokensUsed
			if entry.ConvergenceDeltaAchieved != nil {
				deltaSum += *entry.ConvergenceDeltaAchieved
				if *entry.ConvergenceDeltaAchieved > 0 {
					eff.SuccessCount++
				}
			}
		}
	}

	if eff.TotalUses > 0 {
		eff.AverageDelta = deltaSum / float64(eff.TotalUses)
		eff.AverageTokens = tokenSum / contracts.TokenCount(eff.TotalUses)
	}
	return eff
}

// AttractorDistribution counts how many stored trajectories currently
// carry each attractor type.
func (r *TrajectoryRepository) AttractorDistribution(ctx context.Context) (contracts.AttractorDistribution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dist := make(contracts.AttractorDistribution)
	for _, t := range r.trajectories {
		dist[string(t.Attractor.Type)]++
	}
	return dist, nil
}
