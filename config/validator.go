package config

import "fmt"

// Validator checks an EngineConfig section by section. Absent sections
// are valid; a present section must be internally consistent.
type Validator struct{}

// NewValidator creates a configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns nil for a valid config, or an error naming the first
// failure found.
func (v *Validator) Validate(cfg *EngineConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}
	if err := v.validateWorkflow(cfg.Workflow); err != nil {
		return err
	}
	if err := v.validatePolicy(cfg.Policy); err != nil {
		return err
	}
	if err := v.validateBudget(cfg.Budget); err != nil {
		return err
	}
	return v.validateModels(cfg.Models)
}

func (v *Validator) validateWorkflow(wf *Workflow) error {
	if wf == nil {
		return nil
	}
	if wf.Name == "" {
		return ErrWorkflowNameEmpty
	}
	if len(wf.Steps) == 0 {
		return ErrNoSteps
	}

	stepIDs := make(map[string]bool, len(wf.Steps))
	for i, step := range wf.Steps {
		if step.ID == "" {
			return fmt.Errorf("step[%d]: %w", i, ErrStepIDEmpty)
		}
		if stepIDs[step.ID] {
			return fmt.Errorf("step.id=%s: %w", step.ID, ErrStepIDDuplicate)
		}
		stepIDs[step.ID] = true
		if step.Role == "" {
			return fmt.Errorf("step[%d] id=%s: %w", i, step.ID, ErrStepRoleEmpty)
		}
	}

	for _, step := range wf.Steps {
		for _, depID := range step.DependsOn {
			if !stepIDs[depID] {
				return fmt.Errorf("step.id=%s depends_on=%s: %w", step.ID, depID, ErrDependencyNotFound)
			}
		}
	}

	return v.detectCycle(wf.Steps)
}

// detectCycle runs DFS with color marking over the step graph.
// Colors: 0=white (unvisited), 1=gray (visiting), 2=black (done).
func (v *Validator) detectCycle(steps []Step) error {
	adjacency := make(map[string][]string, len(steps))
	for _, step := range steps {
		for _, depID := range step.DependsOn {
			adjacency[depID] = append(adjacency[depID], step.ID)
		}
	}

	colors := make(map[string]int, len(steps))
	for _, step := range steps {
		if colors[step.ID] == 0 && v.hasCycle(step.ID, colors, adjacency) {
			return fmt.Errorf("starting from step.id=%s: %w", step.ID, ErrCycleDetected)
		}
	}
	return nil
}

func (v *Validator) hasCycle(node string, colors map[string]int, adj map[string][]string) bool {
	colors[node] = 1
	for _, next := range adj[node] {
		if colors[next] == 1 {
			return true
		}
		if colors[next] == 0 && v.hasCycle(next, colors, adj) {
			return true
		}
	}
	colors[node] = 2
	return false
}

func (v *Validator) validatePolicy(p *PolicyConfig) error {
	if p == nil {
		return nil
	}
	if p.TargetConfidence != nil && (*p.TargetConfidence < 0 || *p.TargetConfidence > 1) {
		return fmt.Errorf("target_confidence=%v: %w", *p.TargetConfidence, ErrConfidenceOutOfRange)
	}
	for name, val := range map[string]*int{
		"max_fresh_starts":          p.MaxFreshStarts,
		"plateau_window":            p.PlateauWindow,
		"iteration_timeout_seconds": p.IterationTimeoutSeconds,
	} {
		if val != nil && *val < 0 {
			return fmt.Errorf("policy.%s=%d: %w", name, *val, ErrNegativePolicyValue)
		}
	}
	if p.BudgetFloor != nil && *p.BudgetFloor < 0 {
		return fmt.Errorf("policy.budget_floor=%d: %w", *p.BudgetFloor, ErrNegativePolicyValue)
	}
	if p.DeltaEpsilon != nil && *p.DeltaEpsilon < 0 {
		return fmt.Errorf("policy.delta_epsilon=%v: %w", *p.DeltaEpsilon, ErrNegativePolicyValue)
	}
	return nil
}

func (v *Validator) validateBudget(b *BudgetConfig) error {
	if b == nil {
		return nil
	}
	if b.Tier != "" {
		if _, ok := tierNames[b.Tier]; !ok {
			return fmt.Errorf("budget.tier=%s: %w", b.Tier, ErrUnknownTier)
		}
	}
	if b.MaxIterations < 0 {
		return fmt.Errorf("budget.max_iterations=%d: %w", b.MaxIterations, ErrNegativePolicyValue)
	}
	return nil
}

func (v *Validator) validateModels(m *ModelsConfig) error {
	if m == nil {
		return nil
	}
	// Role mappings into a caller-supplied catalog must resolve within it.
	// With no catalog section the roles target the builtin catalog, whose
	// contents this package does not know; the catalog itself rejects
	// unknown IDs at SetRoleMapping time.
	if len(m.Catalog) == 0 {
		return nil
	}
	known := make(map[string]bool, len(m.Catalog))
	for _, info := range m.Catalog {
		known[string(info.ID)] = true
	}
	for role, id := range m.Roles {
		if !known[id] {
			return fmt.Errorf("role=%s model=%s: %w", role, id, ErrRoleModelUnknown)
		}
	}
	return nil
}
