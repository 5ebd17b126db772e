// Package engine wires the convergence loop, DAG executor, overseer
// cluster, strategy selector, and command/event bus into the single
// process-wide surface the API layer drives: create a goal, run it to a
// terminal phase, read its status, or force its next strategy.
package engine

import (
	"context"
	"fmt"

	"github.com/anthropics/convergence-engine/config"
	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
	"github.com/anthropics/convergence-engine/internal/bus"
	ctxpkg "github.com/anthropics/convergence-engine/internal/context"
	"github.com/anthropics/convergence-engine/internal/convergence"
	"github.com/anthropics/convergence-engine/internal/orchestration"
	"github.com/anthropics/convergence-engine/internal/overseer"
	"github.com/anthropics/convergence-engine/internal/repository"
	"github.com/anthropics/convergence-engine/internal/strategy"
)

// memory is the shared MemoryManager singleTaskBuildRun uses to seed each
// iteration's throwaway Run with the trajectory facts its task's context
// bundle is assembled from.
var memory = ctxpkg.NewMemoryManager()

// Config customizes the engine's collaborators. The zero value is a
// working default: in-memory repositories, an unconfigured overseer
// cluster (every phase empty, so every observation scores level 0 and the
// goal never converges; it runs until its budget is exhausted), and a
// single-task-per-iteration run builder. Callers
// wire concrete overseers/agent substrates through Overseers/BuildRun/
// Artifacts/Executor.
type Config struct {
	Overseers      []contracts.Overseer
	Policy         contracts.ConvergencePolicy
	Tier           contracts.ComplexityTier
	MaxIterations  int
	MaxConcurrency int
	TaskExecutor   orchestration.TaskExecutorFunc
	BuildRun       func(ctx context.Context, trajectory *contracts.Trajectory, strategy contracts.StrategyKind) (*contracts.Run, error)
	Artifacts      convergence.ArtifactProducer

	// Workflow, when set, supplies the static role pipeline the default
	// BuildRun decomposes a trajectory's iteration into whenever the
	// selector (or a forced strategy) picks StrategyDecompose; every other
	// strategy falls back to singleTaskBuildRun. Ignored if BuildRun is
	// overridden directly.
	Workflow *config.Workflow

	// ModelCatalog/Currency override the default model catalog and
	// currency the wave executor prices each iteration's assembled
	// context with.
	ModelCatalog contracts.ModelCatalog
	Currency     contracts.Currency
}

// Engine is the convergence-control surface per spec.md §6: run_goal,
// status, force_strategy, plus command dispatch and event subscription.
// One Engine serves every goal; each goal gets its own Trajectory and its
// own background Run.
type Engine struct {
	Goals         contracts.GoalRepository
	Tasks         contracts.TaskRepository
	Trajectories  contracts.TrajectoryRepository
	Commands      *bus.CommandBus
	Events        *bus.EventBus
	loop          *convergence.Loop
	policy        contracts.ConvergencePolicy
	tier          contracts.ComplexityTier
	maxIterations int
}

// New assembles an Engine from cfg, filling in in-memory defaults for any
// collaborator cfg leaves zero-valued.
func New(cfg Config) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.TaskExecutor == nil {
		cfg.TaskExecutor = echoExecutor
	}
	if cfg.Policy == (contracts.ConvergencePolicy{}) {
		cfg.Policy = contracts.DefaultConvergencePolicy()
	}
	if cfg.BuildRun == nil {
		cfg.BuildRun = workflowBuildRun(cfg.Workflow)
	}
	if cfg.Artifacts == nil {
		cfg.Artifacts = hashingArtifactProducer{}
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 50
	}

	goals := repository.NewGoalRepository()
	tasks := repository.NewTaskRepository()
	trajectories := repository.NewTrajectoryRepository()
	store := bus.NewEventStore()
	events := bus.NewEventBus(store)
	commands := bus.NewCommandBus(tasks, goals, events)
	correlation := bus.NewCorrelationScope()

	cluster := overseer.NewCluster(cfg.Overseers)
	selector := strategy.NewSelector(trajectories, 0)
	executor := orchestration.NewWaveExecutorWithOptions(cfg.MaxConcurrency, cfg.TaskExecutor, orchestration.FactoryOptions{
		ModelCatalog: cfg.ModelCatalog,
		Currency:     cfg.Currency,
	})

	loop := convergence.NewLoop(convergence.Deps{
		Trajectories: trajectories,
		Goals:        goals,
		Selector:     selector,
		Overseers:    cluster,
		Executor:     executor,
		Artifacts:    cfg.Artifacts,
		Commands:     commands,
		Events:       events,
		Correlation:  correlation,
		BuildRun:     cfg.BuildRun,
	})

	return &Engine{
		Goals:         goals,
		Tasks:         tasks,
		Trajectories:  trajectories,
		Commands:      commands,
		Events:        events,
		loop:          loop,
		policy:        cfg.Policy,
		tier:          cfg.Tier,
		maxIterations: cfg.MaxIterations,
	}
}

// CreateGoal dispatches a GoalCreate command and seeds a fresh Trajectory
// for it, per spec.md §3's ownership rule that only the command bus
// mutates a Goal.
func (e *Engine) CreateGoal(ctx context.Context, id contracts.GoalID, description string) (*contracts.Trajectory, error) {
	goal := &contracts.Goal{ID: id, Description: description, Status: contracts.GoalActive}
	if _, err := e.Commands.Dispatch(ctx, contracts.CommandEnvelope{
		Source:  contracts.CommandSource{Kind: contracts.CommandSourceSystem},
		Command: contracts.Command{Kind: contracts.CmdGoalCreate, GoalCreate: &contracts.GoalCreateCommand{Goal: goal}},
	}); err != nil {
		return nil, err
	}

	trajectory := &contracts.Trajectory{
		ID:     contracts.TrajectoryID(fmt.Sprintf("%s-trajectory", id)),
		GoalID: id,
		Spec:   contracts.Specification{Original: description, Evolved: description},
		Policy: e.policy,
		Budget: contracts.ConvergenceBudget{MaxTokens: e.tier.SeedTokens(), MaxIterations: e.maxIterations},
		Phase:  contracts.PhaseIterating,
		Hints:  make(map[string]string),
	}
	if err := e.Trajectories.Save(ctx, trajectory); err != nil {
		return nil, err
	}
	audit.Log("event=goal_created goal=%s trajectory=%s", id, trajectory.ID)
	return trajectory, nil
}

// RunGoal runs goal_id's trajectory to a terminal phase, per spec.md
// §4.1's run(goal_id) operation.
func (e *Engine) RunGoal(ctx context.Context, goalID contracts.GoalID) (contracts.TerminalReport, error) {
	trajectory, err := e.Trajectories.GetByGoal(ctx, goalID)
	if err != nil {
		return contracts.TerminalReport{}, err
	}
	return e.loop.Run(ctx, trajectory)
}

// Status returns goal_id's trajectory snapshot, per spec.md §4.1's
// status(goal_id) operation.
func (e *Engine) Status(ctx context.Context, goalID contracts.GoalID) (contracts.TrajectorySnapshot, error) {
	trajectory, err := e.Trajectories.GetByGoal(ctx, goalID)
	if err != nil {
		return contracts.TrajectorySnapshot{}, err
	}
	return e.loop.Status(trajectory), nil
}

// ForceStrategy overrides goal_id's next iteration strategy, per spec.md
// §4.1's force_strategy(goal_id, strategy) operation.
func (e *Engine) ForceStrategy(ctx context.Context, goalID contracts.GoalID, strat contracts.StrategyKind) error {
	trajectory, err := e.Trajectories.GetByGoal(ctx, goalID)
	if err != nil {
		return err
	}
	convergence.ForceStrategy(trajectory, strat)
	return e.Trajectories.Save(ctx, trajectory)
}

// echoExecutor is the fallback task executor when no agent substrate is
// configured: it calls no agent and returns a deterministic per-task
// output with a fixed 100-token usage.
func echoExecutor(ctx context.Context, task *contracts.Task) (*contracts.TaskResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return &contracts.TaskResult{
		Output: fmt.Sprintf("executed:%s", task.ID),
		Usage:  contracts.Usage{Tokens: 100, Cost: contracts.Cost{Amount: 0.001, Currency: "USD"}},
	}, nil
}

// singleTaskBuildRun is the run builder the default BuildRun
// (workflowBuildRun) uses for every strategy it does not decompose, and
// whenever no workflow is configured: one task per iteration,
// carrying the trajectory's current specification as its prompt. Concrete
// task planning (decomposition, agent routing) is outside this module's
// scope per spec.md's Non-goals; callers with a real planner override
// Config.BuildRun.
func singleTaskBuildRun(ctx context.Context, trajectory *contracts.Trajectory, strat contracts.StrategyKind) (*contracts.Run, error) {
	taskID := contracts.TaskID(fmt.Sprintf("%s-iter-%d", trajectory.ID, len(trajectory.Observations)))
	task := contracts.Task{
		ID:    taskID,
		State: contracts.TaskPending,
		Inputs: &contracts.TaskInput{
			Prompt: trajectory.Spec.Evolved,
			Metadata: map[string]string{
				"strategy": string(strat),
			},
		},
		MaxRetries: 1,
	}

	resolver := orchestration.NewDependencyResolver()
	dag, err := resolver.BuildDAG([]contracts.Task{task})
	if err != nil {
		return nil, err
	}

	run := &contracts.Run{
		ID:    contracts.RunID(fmt.Sprintf("%s-run-%d", trajectory.ID, len(trajectory.Observations))),
		State: contracts.RunPending,
		DAG:   dag,
		Tasks: map[contracts.TaskID]*contracts.Task{task.ID: &task},
	}
	seedRunMemory(run, trajectory)
	return run, nil
}

// seedRunMemory carries the trajectory facts a task's assembled context
// should see — the goal's original intent, the last chosen strategy, the
// prior iteration's build result, and the trajectory's hints — into the
// throwaway Run's
// shared memory via the same MemoryManager a real multi-task run would use,
// so WaveExecutor's per-task ContextBuilder.Build picks them up.
func seedRunMemory(run *contracts.Run, trajectory *contracts.Trajectory) {
	memory.Put(run, "goal_original", trajectory.Spec.Original)
	if last := trajectory.LastObservation(); last != nil {
		memory.Put(run, "last_strategy", string(last.ChosenStrategy))
		if last.Signals.BuildResult != nil {
			memory.Put(run, "last_build_success", fmt.Sprintf("%t", last.Signals.BuildResult.Success))
		}
	}
	for k, v := range trajectory.Hints {
		memory.Put(run, "hint:"+k, v)
	}
}

// hashingArtifactProducer turns an iteration's execution results into an
// artifact reference whose content hash is derived from the concatenated
// task outputs, so identical consecutive iterations hash identically
// (feeding FixedPoint classification) without needing a real filesystem
// artifact store. Concrete artifact production is outside this module's
// scope per spec.md's Non-goals.
type hashingArtifactProducer struct{}

func (hashingArtifactProducer) Produce(ctx context.Context, run *contracts.Run, results contracts.ExecutionResults) (contracts.ArtifactRef, error) {
	return contracts.ArtifactRef{
		Path:        fmt.Sprintf("runs/%s", run.ID),
		ContentHash: combinedOutputHash(run),
	}, nil
}
