package api

import (
	"github.com/anthropics/convergence-engine/contracts"
)

// CreateGoalRequest is the request body for POST /api/v1/goals.
type CreateGoalRequest struct {
	ID          string `json:"id,omitempty"`
	Description string `json:"description"`
}

// ForceStrategyRequest is the request body for
// POST /api/v1/goals/{id}/force-strategy.
type ForceStrategyRequest struct {
	Strategy string `json:"strategy"`
}

// TrajectoryResponse is the response body for goal-status endpoints,
// mirroring contracts.TrajectorySnapshot.
type TrajectoryResponse struct {
	ID               string       `json:"id"`
	GoalID           string       `json:"goal_id"`
	Phase            string       `json:"phase"`
	ObservationCount int          `json:"observation_count"`
	Attractor        string       `json:"attractor"`
	Confidence       float64      `json:"confidence"`
	TokensUsed       int64        `json:"tokens_used"`
	MaxTokens        int64        `json:"max_tokens"`
	IterationsUsed   int          `json:"iterations_used"`
	LastArtifact     *ArtifactDTO `json:"last_artifact,omitempty"`
}

// ArtifactDTO mirrors contracts.ArtifactRef.
type ArtifactDTO struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
}

// TerminalReportResponse is the response body for run_goal, mirroring
// contracts.TerminalReport.
type TerminalReportResponse struct {
	Phase       string  `json:"phase"`
	TotalTokens int64   `json:"total_tokens"`
	Iterations  int     `json:"iterations"`
	Attractor   string  `json:"attractor"`
	Confidence  float64 `json:"confidence"`
	Rationale   string  `json:"rationale"`
}

// SnapshotToTrajectoryResponse converts a TrajectorySnapshot to its DTO.
func SnapshotToTrajectoryResponse(snap contracts.TrajectorySnapshot) *TrajectoryResponse {
	resp := &TrajectoryResponse{
		ID:               string(snap.ID),
		GoalID:           string(snap.GoalID),
		Phase:            snap.Phase.String(),
		ObservationCount: snap.ObservationCount,
		Attractor:        string(snap.Attractor.Type),
		Confidence:       snap.Attractor.Confidence,
		TokensUsed:       int64(snap.Budget.TokensUsed),
		MaxTokens:        int64(snap.Budget.MaxTokens),
		IterationsUsed:   snap.Budget.IterationsUsed,
	}
	if snap.LastArtifact != nil {
		resp.LastArtifact = &ArtifactDTO{Path: snap.LastArtifact.Path, ContentHash: snap.LastArtifact.ContentHash}
	}
	return resp
}

// ReportToResponse converts a TerminalReport to its DTO.
func ReportToResponse(report contracts.TerminalReport) *TerminalReportResponse {
	return &TerminalReportResponse{
		Phase:       report.Phase.String(),
		TotalTokens: int64(report.TotalTokens),
		Iterations:  report.Iterations,
		Attractor:   string(report.Attractor.Type),
		Confidence:  report.Attractor.Confidence,
		Rationale:   report.Rationale,
	}
}
