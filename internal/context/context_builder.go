// Package context assembles, compacts, and routes the prompt context each
// task sees when the DAG executor dispatches it: the outputs of the
// dependencies it declared, plus the iteration facts the convergence loop
// seeded into the run's shared memory (goal intent, prior overseer
// feedback, hints).
package context

import (
	"fmt"

	"github.com/anthropics/convergence-engine/contracts"
)

// iterationContextBuilder implements contracts.ContextBuilder.
type iterationContextBuilder struct{}

// NewContextBuilder returns the default ContextBuilder.
func NewContextBuilder() contracts.ContextBuilder {
	return &iterationContextBuilder{}
}

// Build assembles taskID's context bundle: one labeled message per
// completed dependency that produced output, plus a copy of the run's
// shared memory. Dependencies that are missing from the run or produced
// nothing are skipped silently; a dependency with no output degrades the
// prompt, it does not invalidate the dispatch.
func (b *iterationContextBuilder) Build(run *contracts.Run, taskID contracts.TaskID) (*contracts.ContextBundle, error) {
	if run == nil {
		return nil, contracts.ErrInvalidInput
	}
	task, ok := run.Tasks[taskID]
	if !ok {
		return nil, contracts.ErrTaskNotFound
	}

	bundle := &contracts.ContextBundle{
		Messages: []string{},
		Memory:   make(map[string]string, len(run.Memory)),
		Tools:    make(map[string]string),
	}

	for _, depID := range task.Deps {
		dep, ok := run.Tasks[depID]
		if !ok || dep.Outputs == nil || dep.Outputs.Output == "" {
			continue
		}
		bundle.Messages = append(bundle.Messages, labelOutput(dep))
	}

	for k, v := range run.Memory {
		bundle.Memory[k] = v
	}

	return bundle, nil
}

// labelOutput prefixes a dependency's output with what produced it, so a
// task receiving several upstream outputs can tell them apart. Title is
// preferred; tasks built straight from a strategy have only an ID.
func labelOutput(dep *contracts.Task) string {
	name := dep.Title
	if name == "" {
		name = string(dep.ID)
	}
	return fmt.Sprintf("[%s] %s", name, dep.Outputs.Output)
}
