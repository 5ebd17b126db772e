package config

import "errors"

// Sentinel errors for engine configuration validation.
var (
	// ErrConfigEmpty is returned when the config data is empty (zero bytes).
	ErrConfigEmpty = errors.New("engine configuration is empty")

	// ErrWorkflowNameEmpty is returned when workflow.name is empty.
	ErrWorkflowNameEmpty = errors.New("workflow.name is required")

	// ErrNoSteps is returned when workflow.steps is empty.
	ErrNoSteps = errors.New("workflow.steps must not be empty")

	// ErrStepIDEmpty is returned when a step has an empty id.
	ErrStepIDEmpty = errors.New("step.id is required")

	// ErrStepIDDuplicate is returned when two steps share an id.
	ErrStepIDDuplicate = errors.New("duplicate step.id")

	// ErrStepRoleEmpty is returned when a step has an empty role.
	ErrStepRoleEmpty = errors.New("step.role is required")

	// ErrDependencyNotFound is returned when depends_on references a non-existent id.
	ErrDependencyNotFound = errors.New("depends_on references unknown step id")

	// ErrCycleDetected is returned when step dependencies form a cycle.
	ErrCycleDetected = errors.New("cycle detected in step dependencies")

	// ErrConfidenceOutOfRange is returned when policy.target_confidence
	// falls outside [0, 1].
	ErrConfidenceOutOfRange = errors.New("policy.target_confidence must be in [0, 1]")

	// ErrNegativePolicyValue is returned when a policy count or duration
	// is negative.
	ErrNegativePolicyValue = errors.New("policy value must not be negative")

	// ErrUnknownTier is returned when budget.tier is not one of the four
	// complexity tiers.
	ErrUnknownTier = errors.New("budget.tier must be trivial, simple, moderate, or complex")

	// ErrRoleModelUnknown is returned when models.roles maps a role to a
	// model absent from models.catalog.
	ErrRoleModelUnknown = errors.New("models.roles references model not in catalog")
)
