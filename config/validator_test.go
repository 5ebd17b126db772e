package config

import (
	"errors"
	"testing"

	"github.com/anthropics/convergence-engine/contracts"
)

func validWorkflow() *Workflow {
	return &Workflow{
		Name: "repair-pipeline",
		Steps: []Step{
			{ID: "diagnose", Role: "analyst"},
			{ID: "patch", Role: "coder", DependsOn: []string{"diagnose"}},
			{ID: "verify", Role: "reviewer", DependsOn: []string{"patch"}},
		},
	}
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestValidate_NilConfig(t *testing.T) {
	if err := NewValidator().Validate(nil); !errors.Is(err, ErrConfigEmpty) {
		t.Fatalf("want ErrConfigEmpty, got %v", err)
	}
}

func TestValidate_AllSectionsAbsent(t *testing.T) {
	if err := NewValidator().Validate(&EngineConfig{}); err != nil {
		t.Fatalf("empty config must be valid, got %v", err)
	}
}

func TestValidateWorkflow(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Workflow)
		wantErr error
	}{
		{"valid pipeline", func(wf *Workflow) {}, nil},
		{"empty name", func(wf *Workflow) { wf.Name = "" }, ErrWorkflowNameEmpty},
		{"no steps", func(wf *Workflow) { wf.Steps = nil }, ErrNoSteps},
		{"empty step id", func(wf *Workflow) { wf.Steps[1].ID = "" }, ErrStepIDEmpty},
		{"duplicate step id", func(wf *Workflow) { wf.Steps[2].ID = "diagnose" }, ErrStepIDDuplicate},
		{"empty role", func(wf *Workflow) { wf.Steps[0].Role = "" }, ErrStepRoleEmpty},
		{"unknown dependency", func(wf *Workflow) { wf.Steps[1].DependsOn = []string{"ghost"} }, ErrDependencyNotFound},
		{"self cycle", func(wf *Workflow) { wf.Steps[0].DependsOn = []string{"diagnose"} }, ErrCycleDetected},
		{"three-step cycle", func(wf *Workflow) { wf.Steps[0].DependsOn = []string{"verify"} }, ErrCycleDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := validWorkflow()
			tt.mutate(wf)
			err := NewValidator().Validate(&EngineConfig{Workflow: wf})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("want valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateWorkflow_DiamondIsAcyclic(t *testing.T) {
	wf := &Workflow{
		Name: "diamond",
		Steps: []Step{
			{ID: "root", Role: "analyst"},
			{ID: "left", Role: "coder", DependsOn: []string{"root"}},
			{ID: "right", Role: "coder", DependsOn: []string{"root"}},
			{ID: "join", Role: "reviewer", DependsOn: []string{"left", "right"}},
		},
	}
	if err := NewValidator().Validate(&EngineConfig{Workflow: wf}); err != nil {
		t.Fatalf("diamond graph must validate, got %v", err)
	}
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name    string
		policy  PolicyConfig
		wantErr error
	}{
		{"valid overrides", PolicyConfig{TargetConfidence: floatPtr(0.75), PlateauWindow: intPtr(5)}, nil},
		{"confidence of exactly 1", PolicyConfig{TargetConfidence: floatPtr(1.0)}, nil},
		{"confidence above 1", PolicyConfig{TargetConfidence: floatPtr(1.5)}, ErrConfidenceOutOfRange},
		{"negative confidence", PolicyConfig{TargetConfidence: floatPtr(-0.1)}, ErrConfidenceOutOfRange},
		{"negative fresh starts", PolicyConfig{MaxFreshStarts: intPtr(-1)}, ErrNegativePolicyValue},
		{"negative plateau window", PolicyConfig{PlateauWindow: intPtr(-2)}, ErrNegativePolicyValue},
		{"negative timeout", PolicyConfig{IterationTimeoutSeconds: intPtr(-30)}, ErrNegativePolicyValue},
		{"negative epsilon", PolicyConfig{DeltaEpsilon: floatPtr(-0.01)}, ErrNegativePolicyValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewValidator().Validate(&EngineConfig{Policy: &tt.policy})
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("want valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateBudget(t *testing.T) {
	for _, tier := range []string{"trivial", "simple", "moderate", "complex", ""} {
		if err := NewValidator().Validate(&EngineConfig{Budget: &BudgetConfig{Tier: tier}}); err != nil {
			t.Errorf("tier %q must validate, got %v", tier, err)
		}
	}

	err := NewValidator().Validate(&EngineConfig{Budget: &BudgetConfig{Tier: "heroic"}})
	if !errors.Is(err, ErrUnknownTier) {
		t.Errorf("want ErrUnknownTier, got %v", err)
	}

	err = NewValidator().Validate(&EngineConfig{Budget: &BudgetConfig{MaxIterations: -1}})
	if !errors.Is(err, ErrNegativePolicyValue) {
		t.Errorf("want ErrNegativePolicyValue, got %v", err)
	}
}

func TestValidateModels(t *testing.T) {
	valid := &EngineConfig{Models: &ModelsConfig{
		Roles: map[string]string{"balanced": "anything"},
	}}
	if err := NewValidator().Validate(valid); err != nil {
		t.Fatalf("roles without a catalog section defer to the builtin catalog, got %v", err)
	}

	bad := &EngineConfig{Models: &ModelsConfig{
		Catalog: []contracts.ModelInfo{{ID: "local-7b", Provider: "local"}},
		Roles:   map[string]string{"fast": "missing-model"},
	}}
	if err := NewValidator().Validate(bad); !errors.Is(err, ErrRoleModelUnknown) {
		t.Fatalf("want ErrRoleModelUnknown, got %v", err)
	}

	good := &EngineConfig{Models: &ModelsConfig{
		Catalog: []contracts.ModelInfo{{ID: "local-7b", Provider: "local"}},
		Roles:   map[string]string{"fast": "local-7b"},
	}}
	if err := NewValidator().Validate(good); err != nil {
		t.Fatalf("want valid, got %v", err)
	}
}
