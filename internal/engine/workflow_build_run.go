package engine

import (
	"context"
	"fmt"

	"github.com/anthropics/convergence-engine/config"
	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/orchestration"
)

// workflowBuildRun turns wf's static step pipeline into the per-iteration
// BuildRun the convergence loop needs: one contracts.Task per Step, wired
// into the same DAG shape as singleTaskBuildRun's single task, but with
// Step.DependsOn driving the DAG's edges and Step.Role seeding each task's
// AgentType. It is selected in place of singleTaskBuildRun whenever the
// strategy selector (or a forced strategy) picks StrategyDecompose — the
// one case where a goal's iteration genuinely benefits from the static
// analyst/architect/developer/validator pipeline instead of a single
// monolithic task.
func workflowBuildRun(wf *config.Workflow) func(ctx context.Context, trajectory *contracts.Trajectory, strat contracts.StrategyKind) (*contracts.Run, error) {
	return func(ctx context.Context, trajectory *contracts.Trajectory, strat contracts.StrategyKind) (*contracts.Run, error) {
		if strat != contracts.StrategyDecompose || wf == nil || len(wf.Steps) == 0 {
			return singleTaskBuildRun(ctx, trajectory, strat)
		}

		iter := len(trajectory.Observations)
		tasks := make([]contracts.Task, len(wf.Steps))
		taskMap := make(map[contracts.TaskID]*contracts.Task, len(wf.Steps))

		for i, step := range wf.Steps {
			taskID := contracts.TaskID(fmt.Sprintf("%s-iter-%d-%s", trajectory.ID, iter, step.ID))
			deps := make([]contracts.TaskID, len(step.DependsOn))
			for j, d := range step.DependsOn {
				deps[j] = contracts.TaskID(fmt.Sprintf("%s-iter-%d-%s", trajectory.ID, iter, d))
			}

			tasks[i] = contracts.Task{
				ID:        taskID,
				State:     contracts.TaskPending,
				AgentType: step.Role,
				Deps:      deps,
				Inputs: &contracts.TaskInput{
					Prompt: fmt.Sprintf("[%s] %s", step.Role, trajectory.Spec.Evolved),
					Metadata: map[string]string{
						"strategy": string(strat),
						"step_id":  step.ID,
					},
				},
				MaxRetries: 1,
			}
		}
		for i := range tasks {
			taskMap[tasks[i].ID] = &tasks[i]
		}

		resolver := orchestration.NewDependencyResolver()
		dag, err := resolver.BuildDAG(tasks)
		if err != nil {
			return nil, err
		}

		run := &contracts.Run{
			ID:    contracts.RunID(fmt.Sprintf("%s-run-%d", trajectory.ID, iter)),
			State: contracts.RunPending,
			DAG:   dag,
			Tasks: taskMap,
		}
		seedRunMemory(run, trajectory)
		return run, nil
	}
}
