package contracts

import "errors"

// Sentinel errors for the runtime layer.
var (
	// Budget errors
	ErrBudgetExceeded = errors.New("budget exceeded")
	ErrBudgetNotSet   = errors.New("budget not set")

	// Task errors
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskNotReady  = errors.New("task not ready for execution")
	ErrTaskFailed    = errors.New("task execution failed")
	ErrTaskTimeout   = errors.New("task execution timeout")
	ErrTaskCancelled = errors.New("task cancelled")

	// Run errors
	ErrRunCompleted = errors.New("run already completed")

	// DAG errors
	ErrDAGCycle    = errors.New("cycle detected in task dependencies")
	ErrDAGInvalid  = errors.New("invalid DAG structure")
	ErrDepNotFound = errors.New("dependency task not found")

	// Context errors
	ErrContextTooLarge = errors.New("context exceeds maximum token limit")

	// Estimation errors
	ErrModelUnknown = errors.New("unknown model for cost calculation")

	// Input validation errors
	ErrInvalidInput = errors.New("invalid input: nil or malformed")

	// Goal errors
	ErrGoalNotFound      = errors.New("goal not found")
	ErrGoalNotActive     = errors.New("goal is not active")
	ErrGoalAlreadyExists = errors.New("goal already exists")

	// Trajectory errors
	ErrTrajectoryNotFound = errors.New("trajectory not found")
	ErrTrajectoryFrozen   = errors.New("trajectory has reached a terminal phase")

	// Command bus errors
	ErrIllegalTransition = errors.New("illegal task state transition")
	ErrUnauthorized      = errors.New("command not authorized")
	ErrDuplicateCommand  = errors.New("idempotency key collision with differing command")

	// Circuit breaker errors
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// EngineErrorKind classifies an error for propagation-policy purposes (see
// the error taxonomy: Validation, Transient, AgentFailure, Infrastructure,
// Policy).
type EngineErrorKind string

const (
	KindValidation     EngineErrorKind = "validation"
	KindTransient      EngineErrorKind = "transient"
	KindAgentFailure   EngineErrorKind = "agent_failure"
	KindInfrastructure EngineErrorKind = "infrastructure"
	KindPolicy         EngineErrorKind = "policy"
)

// EngineError wraps an underlying error with the taxonomy kind that decides
// how it propagates: Validation errors surface to the caller, Transient
// errors are retried in place, AgentFailure errors feed the retry/restructure
// path, Infrastructure errors pause the goal, and Policy errors terminate the
// iteration with a classified phase.
type EngineError struct {
	Kind EngineErrorKind
	Err  error
}

func (e *EngineError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err with the given taxonomy kind.
func NewEngineError(kind EngineErrorKind, err error) *EngineError {
	return &EngineError{Kind: kind, Err: err}
}
