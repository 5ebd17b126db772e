package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/anthropics/convergence-engine/contracts"
	"github.com/anthropics/convergence-engine/internal/audit"
	"github.com/anthropics/convergence-engine/internal/engine"
)

// GoalHandlers exposes the convergence-control surface (spec.md §6's
// run_goal/status/force_strategy operations) over HTTP.
type GoalHandlers struct {
	engine *engine.Engine
}

// NewGoalHandlers creates a new GoalHandlers over eng.
func NewGoalHandlers(eng *engine.Engine) *GoalHandlers {
	return &GoalHandlers{engine: eng}
}

// HandleCreateGoal handles POST /api/v1/goals: creates a goal and its
// trajectory, then runs it to a terminal phase in the background.
func (h *GoalHandlers) HandleCreateGoal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		WriteError(w, fmt.Errorf("failed to read request body: %w", contracts.ErrInvalidInput))
		return
	}

	var req CreateGoalRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, fmt.Errorf("invalid JSON: %w", contracts.ErrInvalidInput))
		return
	}
	if req.Description == "" {
		WriteError(w, fmt.Errorf("description is required: %w", contracts.ErrInvalidInput))
		return
	}

	goalID := contracts.GoalID(req.ID)
	if goalID == "" {
		goalID = contracts.GoalID(generateGoalID())
	}

	ctx := r.Context()
	if _, err := h.engine.CreateGoal(ctx, goalID, req.Description); err != nil {
		WriteError(w, err)
		return
	}

	go func() {
		runCtx := context.Background()
		if _, err := h.engine.RunGoal(runCtx, goalID); err != nil {
			audit.Log("event=run_goal_failed goal=%s error=%s", goalID, err.Error())
		}
	}()

	snap, err := h.engine.Status(ctx, goalID)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, SnapshotToTrajectoryResponse(snap))
}

// HandleGetGoalStatus handles GET /api/v1/goals/{id}.
func (h *GoalHandlers) HandleGetGoalStatus(w http.ResponseWriter, r *http.Request) {
	goalID := r.PathValue("id")
	if goalID == "" {
		WriteError(w, fmt.Errorf("missing goal ID: %w", contracts.ErrInvalidInput))
		return
	}

	snap, err := h.engine.Status(r.Context(), contracts.GoalID(goalID))
	if err != nil {
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, SnapshotToTrajectoryResponse(snap))
}

// HandleForceStrategy handles POST /api/v1/goals/{id}/force-strategy.
func (h *GoalHandlers) HandleForceStrategy(w http.ResponseWriter, r *http.Request) {
	goalID := r.PathValue("id")
	if goalID == "" {
		WriteError(w, fmt.Errorf("missing goal ID: %w", contracts.ErrInvalidInput))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		WriteError(w, fmt.Errorf("failed to read request body: %w", contracts.ErrInvalidInput))
		return
	}
	var req ForceStrategyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, fmt.Errorf("invalid JSON: %w", contracts.ErrInvalidInput))
		return
	}
	if req.Strategy == "" {
		WriteError(w, fmt.Errorf("strategy is required: %w", contracts.ErrInvalidInput))
		return
	}

	if err := h.engine.ForceStrategy(r.Context(), contracts.GoalID(goalID), contracts.StrategyKind(req.Strategy)); err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
