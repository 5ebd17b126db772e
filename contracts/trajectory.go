package contracts

// Specification captures a goal's original intent alongside any
// in-flight evolution the convergence loop has applied to it (e.g. after a
// Decompose or Broaden strategy rewrites scope).
type Specification struct {
	Original string
	Evolved  string
}

// ContextHealth tracks coarse signals about how strained the context
// window is across a trajectory's iterations, surfaced to diagnostics.
type ContextHealth struct {
	AverageTokensPerIteration TokenCount
	TruncationCount           int
}

// Trajectory is the time-series record of a goal's convergence attempt.
// Owned exclusively by the convergence loop for its goal; no other
// component mutates it.
type Trajectory struct {
	ID            TrajectoryID
	GoalID        GoalID
	Spec          Specification
	Observations  []Observation
	Attractor     AttractorState
	Budget        ConvergenceBudget
	Policy        ConvergencePolicy
	StrategyLog   []StrategyEntry
	ContextHealth ContextHealth
	Phase         ConvergencePhase
	Hints         map[string]string

	// ForcedStrategy, when set, is applied at the next iteration boundary
	// and cleared atomically at that boundary.
	ForcedStrategy *StrategyKind

	TotalFreshStarts int

	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// LastObservation returns the most recent observation, or nil if none has
// been appended yet.
func (t *Trajectory) LastObservation() *Observation {
	if len(t.Observations) == 0 {
		return nil
	}
	return &t.Observations[len(t.Observations)-1]
}

// TrajectorySnapshot is the read-only view returned by the convergence
// loop's status operation.
type TrajectorySnapshot struct {
	ID               TrajectoryID
	GoalID           GoalID
	Phase            ConvergencePhase
	ObservationCount int
	Attractor        AttractorState
	Budget           ConvergenceBudget
	LastArtifact     *ArtifactRef
}

// TerminalReport is produced once a trajectory reaches a terminal phase.
type TerminalReport struct {
	Phase        ConvergencePhase
	FinalSignals OverseerSignals
	TotalTokens  TokenCount
	Iterations   int
	Attractor    AttractorState
	Rationale    string
}
