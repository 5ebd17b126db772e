package context

import (
	"github.com/anthropics/convergence-engine/contracts"
)

// outputRouter implements contracts.ContextRouter: it hands one task's
// result to another as a named input, keyed by the producing task's ID.
// Named outputs (TaskResult.Outputs) are folded in under "from.name" keys
// so a consumer can address a specific artifact of a multi-output task.
type outputRouter struct{}

// NewContextRouter returns the default ContextRouter.
func NewContextRouter() contracts.ContextRouter {
	return &outputRouter{}
}

func (r *outputRouter) Route(run *contracts.Run, from, to contracts.TaskID, output *contracts.TaskResult) error {
	if run == nil {
		return contracts.ErrInvalidInput
	}
	if _, ok := run.Tasks[from]; !ok {
		return contracts.ErrTaskNotFound
	}
	target, ok := run.Tasks[to]
	if !ok {
		return contracts.ErrTaskNotFound
	}

	if target.Inputs == nil {
		target.Inputs = &contracts.TaskInput{}
	}
	if target.Inputs.Inputs == nil {
		target.Inputs.Inputs = make(map[string]string)
	}

	if output == nil {
		target.Inputs.Inputs[string(from)] = ""
		return nil
	}

	target.Inputs.Inputs[string(from)] = output.Output
	for name, value := range output.Outputs {
		target.Inputs.Inputs[string(from)+"."+name] = value
	}
	return nil
}
