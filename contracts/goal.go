package contracts

// Goal is an intent declared by an external principal. The engine owns a
// Goal once created: only the command bus mutates its status, and it owns
// zero or more Trajectories, one per convergence attempt.
type Goal struct {
	ID          GoalID
	Description string
	Status      GoalStatus
	CreatedAt   Timestamp
	UpdatedAt   Timestamp
}
