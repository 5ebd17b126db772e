// Package config loads and validates the engine's static configuration:
// an optional decomposition workflow, convergence-policy overrides, the
// goal budget tier, and model-catalog overrides. Configuration is JSON,
// loaded once at startup, and validated before anything consumes it.
package config

import (
	"time"

	"github.com/anthropics/convergence-engine/contracts"
)

// EngineConfig is the root configuration document. Every section is
// optional; an empty document is valid and yields the engine defaults.
type EngineConfig struct {
	Workflow *Workflow     `json:"workflow,omitempty"`
	Policy   *PolicyConfig `json:"policy,omitempty"`
	Budget   *BudgetConfig `json:"budget,omitempty"`
	Models   *ModelsConfig `json:"models,omitempty"`
}

// Workflow is a named static step pipeline. When configured, iterations
// whose strategy is decomposition run one task per step instead of a
// single monolithic task.
type Workflow struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Step is one task template in a workflow. Role is an opaque agent-type
// tag resolved against the agent template registry at dispatch time.
type Step struct {
	ID        string   `json:"id"`
	Role      string   `json:"role"`
	DependsOn []string `json:"depends_on,omitempty"`
	Outputs   []string `json:"outputs,omitempty"`
}

// PolicyConfig overrides individual ConvergencePolicy knobs. Pointer
// fields distinguish "absent, keep the default" from an explicit zero.
type PolicyConfig struct {
	TargetConfidence        *float64 `json:"target_confidence,omitempty"`
	SkipExpensiveOverseers  *bool    `json:"skip_expensive_overseers,omitempty"`
	MaxFreshStarts          *int     `json:"max_fresh_starts,omitempty"`
	PlateauWindow           *int     `json:"plateau_window,omitempty"`
	DivergenceThreshold     *float64 `json:"divergence_threshold,omitempty"`
	DeltaEpsilon            *float64 `json:"delta_epsilon,omitempty"`
	BudgetFloor             *int64   `json:"budget_floor,omitempty"`
	IterationTimeoutSeconds *int     `json:"iteration_timeout_seconds,omitempty"`
}

// Apply folds the configured overrides into base and returns the result.
func (p *PolicyConfig) Apply(base contracts.ConvergencePolicy) contracts.ConvergencePolicy {
	if p == nil {
		return base
	}
	if p.TargetConfidence != nil {
		base.TargetConfidence = *p.TargetConfidence
	}
	if p.SkipExpensiveOverseers != nil {
		base.SkipExpensiveOverseers = *p.SkipExpensiveOverseers
	}
	if p.MaxFreshStarts != nil {
		base.MaxFreshStarts = *p.MaxFreshStarts
	}
	if p.PlateauWindow != nil {
		base.PlateauWindow = *p.PlateauWindow
	}
	if p.DivergenceThreshold != nil {
		base.DivergenceThreshold = *p.DivergenceThreshold
	}
	if p.DeltaEpsilon != nil {
		base.DeltaEpsilon = *p.DeltaEpsilon
	}
	if p.BudgetFloor != nil {
		base.BudgetFloor = contracts.TokenCount(*p.BudgetFloor)
	}
	if p.IterationTimeoutSeconds != nil {
		base.IterationTimeout = time.Duration(*p.IterationTimeoutSeconds) * time.Second
	}
	return base
}

// BudgetConfig seeds each new trajectory's budget.
type BudgetConfig struct {
	// Tier is one of trivial, simple, moderate, complex.
	Tier          string `json:"tier,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// tierNames maps the config spelling onto the complexity tier.
var tierNames = map[string]contracts.ComplexityTier{
	"trivial":  contracts.TierTrivial,
	"simple":   contracts.TierSimple,
	"moderate": contracts.TierModerate,
	"complex":  contracts.TierComplex,
}

// ComplexityTier resolves the configured tier name; validated spelling is
// guaranteed by the Validator, so an unknown name here falls back to
// trivial.
func (b *BudgetConfig) ComplexityTier() contracts.ComplexityTier {
	if b == nil {
		return contracts.TierTrivial
	}
	return tierNames[b.Tier]
}

// ModelsConfig overrides the builtin model catalog and role mappings.
type ModelsConfig struct {
	Catalog  []contracts.ModelInfo `json:"catalog,omitempty"`
	Roles    map[string]string     `json:"roles,omitempty"` // role name -> model ID
	Currency string                `json:"currency,omitempty"`
}

// RoleMappings converts the configured role map into catalog form.
func (m *ModelsConfig) RoleMappings() map[contracts.ModelRole]contracts.ModelID {
	if m == nil || len(m.Roles) == 0 {
		return nil
	}
	out := make(map[contracts.ModelRole]contracts.ModelID, len(m.Roles))
	for role, id := range m.Roles {
		out[contracts.ModelRole(role)] = contracts.ModelID(id)
	}
	return out
}
