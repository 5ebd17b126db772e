package convergence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
	"github.com/anthropics/convergence-engine/internal/bus"
	"github.com/anthropics/convergence-engine/internal/cost"
	"github.com/anthropics/convergence-engine/internal/orchestration"
	"github.com/anthropics/convergence-engine/internal/overseer"
)

// ArtifactProducer turns one iteration's task batch into an artifact
// reference for the overseer cluster to measure, wrapping the DAG
// executor's ExecutionResults with whatever step writes the agent output
// to disk and hashes it. Concrete producers are outside this module's
// scope.
type ArtifactProducer interface {
	Produce(ctx context.Context, run *contracts.Run, results contracts.ExecutionResults) (contracts.ArtifactRef, error)
}

// Deps collects the loop's collaborators. Repositories, the selector, the
// artifact producer and the budget/usage trackers are injected interfaces;
// the overseer cluster, the wave executor, the buses and the correlation
// scope are concrete types.
type Deps struct {
	Trajectories contracts.TrajectoryRepository
	Goals        contracts.GoalRepository
	Selector     contracts.StrategySelector
	Overseers    *overseer.Cluster
	Executor     *orchestration.WaveExecutor
	Artifacts    ArtifactProducer
	Commands     *bus.CommandBus
	Events       *bus.EventBus
	Correlation  *bus.CorrelationScope

	// Budget guards the trajectory's token ceiling; Usage accumulates
	// per-trajectory spend for status views. NewLoop fills in the
	// internal/cost defaults when either is nil.
	Budget contracts.BudgetEnforcer
	Usage  contracts.UsageTracker

	// BuildRun constructs the next iteration's task DAG given the
	// trajectory's current specification and strategy. Concrete task
	// planning is outside this module's scope.
	BuildRun func(ctx context.Context, trajectory *contracts.Trajectory, strategy contracts.StrategyKind) (*contracts.Run, error)
}

// Loop implements the convergence-loop component: it drives a single
// goal's trajectory through iterate-measure-decide until a terminal phase
// is reached.
type Loop struct {
	deps Deps
}

// NewLoop constructs a Loop over deps.
func NewLoop(deps Deps) *Loop {
	if deps.Budget == nil {
		deps.Budget = cost.NewBudgetEnforcer()
	}
	if deps.Usage == nil {
		deps.Usage = cost.NewUsageTracker()
	}
	return &Loop{deps: deps}
}

// Run drives trajectory to a terminal phase, per spec.md §4.1's run(goal_id)
// operation. Infrastructure errors pause the goal and return
// EngineError{Kind: Infrastructure} rather than marking the trajectory
// failed; the trajectory itself remains Iterating so a later resume can
// pick up where it left off.
func (l *Loop) Run(ctx context.Context, trajectory *contracts.Trajectory) (contracts.TerminalReport, error) {
	for {
		if ctx.Err() != nil {
			return contracts.TerminalReport{}, ctx.Err()
		}

		phase := l.checkTermination(trajectory)
		if phase.IsTerminal() {
			report, freshStarted, err := l.finalize(ctx, trajectory, phase)
			if err != nil {
				return contracts.TerminalReport{}, err
			}
			if freshStarted {
				continue
			}
			return report, nil
		}

		if err := l.iterate(ctx, trajectory); err != nil {
			if infra, ok := err.(*contracts.EngineError); ok && infra.Kind == contracts.KindInfrastructure {
				l.pauseGoal(ctx, trajectory, err)
				return contracts.TerminalReport{}, err
			}
			return contracts.TerminalReport{}, err
		}
	}
}

// iterate runs exactly one convergence-loop iteration: allocate budget,
// select a strategy, dispatch the DAG executor, run overseers, append an
// observation, write the reward back, and reclassify the attractor. Fresh
// starts are decided afterwards, in finalize.
func (l *Loop) iterate(ctx context.Context, trajectory *contracts.Trajectory) error {
	iterCtx, corrID := l.deps.Correlation.Start(ctx)
	defer l.deps.Correlation.End(corrID)

	if d := trajectory.Policy.IterationTimeout; d > 0 {
		var cancel context.CancelFunc
		iterCtx, cancel = context.WithTimeout(iterCtx, d)
		defer cancel()
	}

	allocated, starved := AllocateIteration(trajectory.Budget, trajectory.Attractor, trajectory.Policy)
	trajectory.Budget.AllocatedPerIteration = allocated
	if trajectory.Hints == nil {
		trajectory.Hints = make(map[string]string)
	}
	if starved {
		trajectory.Hints["budget_starved"] = "true"
	} else {
		delete(trajectory.Hints, "budget_starved")
	}
	if err := l.deps.Budget.Allow(&trajectory.Budget, allocated); err != nil {
		return contracts.NewEngineError(contracts.KindValidation, err)
	}

	strategy, err := l.selectStrategy(iterCtx, trajectory)
	if err != nil {
		return contracts.NewEngineError(contracts.KindInfrastructure, err)
	}

	l.publish(iterCtx, trajectory, contracts.EventPayload{
		Kind: contracts.PayloadIterationStarted,
		IterationStarted: &contracts.IterationStartedPayload{
			IterationIndex:  len(trajectory.Observations),
			Strategy:        strategy,
			AllocatedTokens: allocated,
		},
	})

	run, err := l.deps.BuildRun(iterCtx, trajectory, strategy)
	if err != nil {
		return contracts.NewEngineError(contracts.KindInfrastructure, err)
	}

	start := time.Now()
	results, execErr := l.deps.Executor.Execute(iterCtx, run)
	if execErr != nil {
		return contracts.NewEngineError(contracts.KindInfrastructure, execErr)
	}

	artifact, err := l.deps.Artifacts.Produce(iterCtx, run, results)
	if err != nil {
		return contracts.NewEngineError(contracts.KindInfrastructure, err)
	}

	signals := l.deps.Overseers.Run(iterCtx, artifact, trajectory.Policy)

	l.appendObservation(trajectory, artifact, signals, strategy, results, time.Since(start))
	if err := l.deps.Budget.Record(&trajectory.Budget, results.TokensUsed); err != nil {
		audit.Log("event=budget_overshoot trajectory=%s tokens=%d error=%s", trajectory.ID, results.TokensUsed, err)
	}
	l.deps.Usage.Add(trajectory.ID, contracts.Usage{Tokens: results.TokensUsed})
	l.writeBackReward(trajectory)

	trajectory.Attractor = Classify(trajectory.Observations, trajectory.Policy)
	trajectory.Budget.IterationsUsed++
	trajectory.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())

	l.publish(iterCtx, trajectory, contracts.EventPayload{
		Kind: contracts.PayloadAttractorChanged,
		AttractorChanged: &contracts.AttractorChangedPayload{
			Current: trajectory.Attractor,
		},
	})

	if err := l.deps.Trajectories.Save(iterCtx, trajectory); err != nil {
		return contracts.NewEngineError(contracts.KindInfrastructure, err)
	}

	audit.Log("event=iteration_completed trajectory=%s iteration=%d strategy=%s attractor=%s level=%.3f",
		trajectory.ID, trajectory.Budget.IterationsUsed, strategy, trajectory.Attractor.Type, Level(&signals))
	return nil
}

func (l *Loop) selectStrategy(ctx context.Context, trajectory *contracts.Trajectory) (contracts.StrategyKind, error) {
	excluded := l.activeFreshStartExclusion(trajectory)

	strategy, err := l.deps.Selector.Select(ctx, trajectory, excluded)
	if err != nil {
		return "", err
	}
	trajectory.ForcedStrategy = nil
	return strategy, nil
}

// activeFreshStartExclusion derives the selector's exclusion set from the
// hints ApplyFreshStart wrote. Each consultation consumes one iteration of
// the exclusion window: the remaining count is decremented and written
// back, and both hints are cleared once the window is spent, so the
// excluded strategy becomes eligible again after exactly K iterations.
func (l *Loop) activeFreshStartExclusion(trajectory *contracts.Trajectory) map[contracts.StrategyKind]bool {
	raw, ok := trajectory.Hints["fresh_start_exclude_remaining"]
	if !ok {
		return nil
	}

	remaining, err := strconv.Atoi(raw)
	excludedName := contracts.StrategyKind(trajectory.Hints["fresh_start_excluded_strategy"])
	if err != nil || remaining <= 0 || excludedName == "" {
		delete(trajectory.Hints, "fresh_start_exclude_remaining")
		delete(trajectory.Hints, "fresh_start_excluded_strategy")
		return nil
	}

	if remaining--; remaining == 0 {
		delete(trajectory.Hints, "fresh_start_exclude_remaining")
		delete(trajectory.Hints, "fresh_start_excluded_strategy")
	} else {
		trajectory.Hints["fresh_start_exclude_remaining"] = strconv.Itoa(remaining)
	}
	return map[contracts.StrategyKind]bool{excludedName: true}
}

func (l *Loop) appendObservation(trajectory *contracts.Trajectory, artifact contracts.ArtifactRef, signals contracts.OverseerSignals, strategy contracts.StrategyKind, results contracts.ExecutionResults, elapsed time.Duration) {
	obs := contracts.Observation{
		SequenceIndex:  len(trajectory.Observations),
		Artifact:       artifact,
		Signals:        signals,
		ChosenStrategy: strategy,
		TokensConsumed: results.TokensUsed,
		WallTimeMs:     elapsed.Milliseconds(),
	}
	trajectory.Observations = append(trajectory.Observations, obs)

	// trajectory.Attractor still holds the pre-iteration classification
	// here (Classify runs after the append), which is exactly the context
	// the strategy was selected under.
	entry := contracts.StrategyEntry{
		Strategy:         strategy,
		ObservationIndex: obs.SequenceIndex,
		Context: contracts.StrategyContextKey{
			AttractorName: trajectory.Attractor.Type,
			LastDeltaSign: trajectory.Attractor.LastDeltaSign(),
		},
		TokensUsed:    results.TokensUsed,
		WasFreshStart: trajectory.Hints["fresh_start_reason"] != "",
	}
	trajectory.StrategyLog = append(trajectory.StrategyLog, entry)

	// The reason hint flags only the entry that launched the fresh-start
	// iteration; clear it so later entries are not misattributed.
	delete(trajectory.Hints, "fresh_start_reason")
}

// writeBackReward computes the delta the most recent strategy entry
// achieved (relative to the observation before it) and writes it back into
// that StrategyEntry, per spec.md §4.4's retroactive reward rule.
func (l *Loop) writeBackReward(trajectory *contracts.Trajectory) {
	n := len(trajectory.Observations)
	if n < 2 {
		return
	}
	prev, curr := trajectory.Observations[n-2].Signals, trajectory.Observations[n-1].Signals
	delta := Delta(&prev, &curr)

	logIdx := len(trajectory.StrategyLog) - 1
	if logIdx < 0 {
		return
	}
	trajectory.StrategyLog[logIdx].ConvergenceDeltaAchieved = &delta
}

// checkTermination applies spec.md §4.1's termination rules in order,
// first match wins.
func (l *Loop) checkTermination(trajectory *contracts.Trajectory) contracts.ConvergencePhase {
	last := trajectory.LastObservation()

	if last != nil {
		level := Level(&last.Signals)
		if last.Signals.AllPassing() && level >= trajectory.Policy.TargetConfidence {
			return contracts.PhaseConverged
		}
	}

	if trajectory.Attractor.Type == contracts.AttractorLimitCycle && trajectory.Attractor.Confidence >= 0.8 {
		return contracts.PhaseTrapped
	}
	if trajectory.Attractor.Type == contracts.AttractorDivergent && trajectory.Attractor.Confidence >= 0.8 {
		return contracts.PhaseDiverging
	}
	if trajectory.Budget.Exhausted() {
		return contracts.PhaseExhausted
	}
	return contracts.PhaseIterating
}

// finalize handles a terminal phase: Trapped/Divergent may trigger a fresh
// start instead of truly stopping, gated by the trajectory's remaining
// fresh-start budget.
func (l *Loop) finalize(ctx context.Context, trajectory *contracts.Trajectory, phase contracts.ConvergencePhase) (contracts.TerminalReport, bool, error) {
	if ShouldFreshStart(trajectory, phase) {
		excluded := ApplyFreshStart(trajectory, fmt.Sprintf("attractor=%s", trajectory.Attractor.Type))
		l.publish(ctx, trajectory, contracts.EventPayload{
			Kind: contracts.PayloadFreshStart,
			FreshStart: &contracts.FreshStartPayload{
				Reason: trajectory.Hints["fresh_start_reason"],
			},
		})
		audit.Log("event=fresh_start trajectory=%s phase=%s excluded=%v", trajectory.ID, phase, excluded)
		if err := l.deps.Trajectories.Save(ctx, trajectory); err != nil {
			return contracts.TerminalReport{}, false, contracts.NewEngineError(contracts.KindInfrastructure, err)
		}
		return contracts.TerminalReport{}, true, nil
	}

	trajectory.Phase = phase
	trajectory.UpdatedAt = contracts.Timestamp(time.Now().UnixMilli())

	var signals contracts.OverseerSignals
	if last := trajectory.LastObservation(); last != nil {
		signals = last.Signals
	}

	report := contracts.TerminalReport{
		Phase:        phase,
		FinalSignals: signals,
		TotalTokens:  trajectory.Budget.TokensUsed,
		Iterations:   trajectory.Budget.IterationsUsed,
		Attractor:    trajectory.Attractor,
		Rationale:    fmt.Sprintf("terminated at phase %s after %d iterations", phase, trajectory.Budget.IterationsUsed),
	}

	usage := l.deps.Usage.Snapshot(trajectory.ID)
	audit.Log("event=trajectory_terminal trajectory=%s phase=%s iterations=%d tokens=%d cost=%.6f%s",
		trajectory.ID, phase, report.Iterations, usage.Tokens, usage.Cost.Amount, usage.Cost.Currency)

	l.publish(ctx, trajectory, contracts.EventPayload{
		Kind:     contracts.PayloadTerminal,
		Terminal: &contracts.TerminalPayload{Report: report},
	})

	if err := l.deps.Trajectories.Save(ctx, trajectory); err != nil {
		return report, false, contracts.NewEngineError(contracts.KindInfrastructure, err)
	}
	return report, false, nil
}

// pauseGoal moves the trajectory's goal to Paused through the command bus
// on an infrastructure error, per spec.md §4.1's failure semantics.
func (l *Loop) pauseGoal(ctx context.Context, trajectory *contracts.Trajectory, cause error) {
	_, err := l.deps.Commands.Dispatch(ctx, contracts.CommandEnvelope{
		Source:   contracts.CommandSource{Kind: contracts.CommandSourceSystem},
		IssuedAt: contracts.Timestamp(time.Now().UnixMilli()),
		Command: contracts.Command{
			Kind: contracts.CmdGoalPause,
			GoalPause: &contracts.GoalPauseCommand{
				GoalID: trajectory.GoalID,
				Reason: cause.Error(),
			},
		},
	})
	if err != nil {
		audit.Log("event=goal_pause_failed goal=%s error=%s", trajectory.GoalID, err.Error())
	}
}

// Status returns a read-only snapshot of trajectory, per spec.md §4.1's
// status(goal_id) operation.
func (l *Loop) Status(trajectory *contracts.Trajectory) contracts.TrajectorySnapshot {
	snap := contracts.TrajectorySnapshot{
		ID:               trajectory.ID,
		GoalID:           trajectory.GoalID,
		Phase:            trajectory.Phase,
		ObservationCount: len(trajectory.Observations),
		Attractor:        trajectory.Attractor,
		Budget:           trajectory.Budget,
	}
	if last := trajectory.LastObservation(); last != nil {
		artifact := last.Artifact
		snap.LastArtifact = &artifact
	}
	return snap
}

// ForceStrategy sets trajectory.ForcedStrategy for the next iteration
// boundary, per spec.md §4.1's force_strategy(goal_id, strategy) operation.
func ForceStrategy(trajectory *contracts.Trajectory, strategy contracts.StrategyKind) {
	s := strategy
	trajectory.ForcedStrategy = &s
}

func (l *Loop) publish(ctx context.Context, trajectory *contracts.Trajectory, payload contracts.EventPayload) {
	if l.deps.Events == nil {
		return
	}
	l.deps.Events.Publish(ctx, contracts.DomainEvent{
		Severity: contracts.SeverityInfo,
		Category: contracts.CategoryOrchestrator,
		GoalID:   trajectory.GoalID,
		Payload:  payload,
	})
}
