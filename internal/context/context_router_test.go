package context

import (
	"errors"
	"testing"

	"github.com/anthropics/convergence-engine/contracts"
)

func TestRoute_PrimaryOutputKeyedBySource(t *testing.T) {
	run := depRun(
		&contracts.Task{ID: "producer"},
		&contracts.Task{ID: "consumer"},
	)

	err := NewContextRouter().Route(run, "producer", "consumer",
		&contracts.TaskResult{Output: "diagnosis: flaky setup"})
	if err != nil {
		t.Fatal(err)
	}
	if got := run.Tasks["consumer"].Inputs.Inputs["producer"]; got != "diagnosis: flaky setup" {
		t.Errorf("want primary output under source ID, got %q", got)
	}
}

func TestRoute_NamedOutputsFoldedUnderDottedKeys(t *testing.T) {
	run := depRun(
		&contracts.Task{ID: "scan"},
		&contracts.Task{ID: "repair"},
	)

	err := NewContextRouter().Route(run, "scan", "repair", &contracts.TaskResult{
		Output:  "2 findings",
		Outputs: map[string]string{"report": "full report text", "sarif": "{}"},
	})
	if err != nil {
		t.Fatal(err)
	}

	inputs := run.Tasks["repair"].Inputs.Inputs
	if inputs["scan.report"] != "full report text" || inputs["scan.sarif"] != "{}" {
		t.Errorf("named outputs not folded in: %v", inputs)
	}
}

func TestRoute_NilResultRoutesEmpty(t *testing.T) {
	run := depRun(
		&contracts.Task{ID: "a"},
		&contracts.Task{ID: "b"},
	)

	if err := NewContextRouter().Route(run, "a", "b", nil); err != nil {
		t.Fatal(err)
	}
	if v, ok := run.Tasks["b"].Inputs.Inputs["a"]; !ok || v != "" {
		t.Errorf("nil result should still record the edge, got %q ok=%v", v, ok)
	}
}

func TestRoute_PreservesExistingInputs(t *testing.T) {
	run := depRun(
		&contracts.Task{ID: "a"},
		&contracts.Task{ID: "b", Inputs: &contracts.TaskInput{
			Prompt: "keep me",
			Inputs: map[string]string{"seeded": "value"},
		}},
	)

	if err := NewContextRouter().Route(run, "a", "b", &contracts.TaskResult{Output: "new"}); err != nil {
		t.Fatal(err)
	}
	target := run.Tasks["b"].Inputs
	if target.Prompt != "keep me" || target.Inputs["seeded"] != "value" {
		t.Errorf("routing must not clobber existing inputs: %+v", target)
	}
}

func TestRoute_Errors(t *testing.T) {
	router := NewContextRouter()
	run := depRun(&contracts.Task{ID: "only"})

	if err := router.Route(nil, "a", "b", nil); !errors.Is(err, contracts.ErrInvalidInput) {
		t.Errorf("nil run: want ErrInvalidInput, got %v", err)
	}
	if err := router.Route(run, "ghost", "only", nil); !errors.Is(err, contracts.ErrTaskNotFound) {
		t.Errorf("unknown source: want ErrTaskNotFound, got %v", err)
	}
	if err := router.Route(run, "only", "ghost", nil); !errors.Is(err, contracts.ErrTaskNotFound) {
		t.Errorf("unknown target: want ErrTaskNotFound, got %v", err)
	}
}
