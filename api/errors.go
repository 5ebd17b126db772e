package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/anthropics/convergence-engine/contracts"
)

// ErrorCode is the machine-readable code in every error response body.
type ErrorCode string

const (
	CodeInvalidInput   ErrorCode = "invalid_input"
	CodeDAGCycle       ErrorCode = "dag_cycle"
	CodeDepNotFound    ErrorCode = "dep_not_found"
	CodeGoalNotFound   ErrorCode = "goal_not_found"
	CodeGoalExists     ErrorCode = "goal_exists"
	CodeGoalNotActive  ErrorCode = "goal_not_active"
	CodeBudgetExceeded ErrorCode = "budget_exceeded"
	CodeCircuitOpen    ErrorCode = "circuit_open"
	CodeCancelled      ErrorCode = "cancelled"
	CodeTimeout        ErrorCode = "timeout"
	CodeInfrastructure ErrorCode = "infrastructure"
	CodeInternalError  ErrorCode = "internal_error"
)

// HTTPError pairs a domain error with the status code and error code the
// response carries.
type HTTPError struct {
	StatusCode int
	Code       ErrorCode
	Err        error
}

func (e *HTTPError) Error() string {
	return e.Err.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// MapError maps a domain error onto its HTTP shape. Sentinel matches win
// over the coarse EngineError taxonomy, which wins over the 500 fallback.
func MapError(err error) *HTTPError {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, contracts.ErrInvalidInput),
		errors.Is(err, contracts.ErrIllegalTransition):
		return &HTTPError{http.StatusBadRequest, CodeInvalidInput, err}

	case errors.Is(err, contracts.ErrDAGCycle):
		return &HTTPError{http.StatusUnprocessableEntity, CodeDAGCycle, err}

	case errors.Is(err, contracts.ErrDepNotFound):
		return &HTTPError{http.StatusUnprocessableEntity, CodeDepNotFound, err}

	case errors.Is(err, contracts.ErrGoalNotFound),
		errors.Is(err, contracts.ErrTrajectoryNotFound),
		errors.Is(err, contracts.ErrTaskNotFound):
		return &HTTPError{http.StatusNotFound, CodeGoalNotFound, err}

	case errors.Is(err, contracts.ErrGoalAlreadyExists):
		return &HTTPError{http.StatusConflict, CodeGoalExists, err}

	case errors.Is(err, contracts.ErrGoalNotActive),
		errors.Is(err, contracts.ErrTrajectoryFrozen):
		return &HTTPError{http.StatusConflict, CodeGoalNotActive, err}

	case errors.Is(err, contracts.ErrBudgetExceeded),
		errors.Is(err, contracts.ErrBudgetNotSet):
		return &HTTPError{http.StatusUnprocessableEntity, CodeBudgetExceeded, err}

	case errors.Is(err, contracts.ErrCircuitOpen):
		return &HTTPError{http.StatusServiceUnavailable, CodeCircuitOpen, err}

	case errors.Is(err, context.Canceled),
		errors.Is(err, contracts.ErrTaskCancelled):
		// 499: nginx convention for "client closed request".
		return &HTTPError{499, CodeCancelled, err}

	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, contracts.ErrTaskTimeout):
		return &HTTPError{http.StatusGatewayTimeout, CodeTimeout, err}
	}

	// Errors carrying the engine taxonomy but no matching sentinel map by
	// kind: validation is the caller's fault, everything else is ours.
	var engineErr *contracts.EngineError
	if errors.As(err, &engineErr) {
		switch engineErr.Kind {
		case contracts.KindValidation:
			return &HTTPError{http.StatusBadRequest, CodeInvalidInput, err}
		case contracts.KindPolicy:
			return &HTTPError{http.StatusConflict, CodeBudgetExceeded, err}
		case contracts.KindTransient, contracts.KindInfrastructure:
			return &HTTPError{http.StatusServiceUnavailable, CodeInfrastructure, err}
		}
	}

	return &HTTPError{http.StatusInternalServerError, CodeInternalError, err}
}

// WriteError writes err's mapped HTTP shape to w.
func WriteError(w http.ResponseWriter, err error) {
	httpErr := MapError(err)
	if httpErr == nil {
		return
	}

	resp := ErrorDTO{
		Code:    string(httpErr.Code),
		Message: httpErr.Error(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.StatusCode)
	writeJSON(w, resp)
}
