package contracts

import "context"

// =============================================================================
// Orchestration Interfaces
// =============================================================================

// Scheduler determines which tasks are ready to execute and tracks completion.
type Scheduler interface {
	// NextReady returns task IDs that are ready to execute (all deps satisfied).
	NextReady(run *Run) ([]TaskID, error)

	// MarkComplete marks a task as completed and updates the run state.
	MarkComplete(run *Run, taskID TaskID, result *TaskResult) error
}

// DependencyResolver builds and validates the task dependency graph.
type DependencyResolver interface {
	// BuildDAG constructs a DAG from a list of tasks.
	BuildDAG(tasks []Task) (*DAG, error)

	// Validate checks the DAG for cycles and missing dependencies.
	Validate(dag *DAG) error
}

// ParallelExecutor executes tasks with bounded concurrency.
type ParallelExecutor interface {
	// Execute runs a task and returns its result.
	Execute(ctx context.Context, run *Run, taskID TaskID) (*TaskResult, error)
}

// =============================================================================
// Cost Control Interfaces
// =============================================================================

// TokenEstimator predicts how many tokens dispatching a task will consume,
// given its input and assembled context bundle. Estimates gate nothing on
// their own; they feed per-iteration cost accounting and audit logs.
type TokenEstimator interface {
	Estimate(input *TaskInput, bundle *ContextBundle) (TokenCount, error)
}

// CostCalculator prices token usage against the model catalog, either for
// an explicit model or for whichever model currently fills a role.
type CostCalculator interface {
	Estimate(tokens TokenCount, model ModelID) (Cost, error)
	EstimateByRole(tokens TokenCount, role ModelRole) (Cost, error)
}

// BudgetEnforcer guards a trajectory's token budget: the lifetime sum of
// recorded tokens never exceeds ConvergenceBudget.MaxTokens.
type BudgetEnforcer interface {
	// Allow reports whether the budget has room left for another
	// iteration. ErrBudgetNotSet if no ceiling is configured,
	// ErrBudgetExceeded once the ceiling is reached.
	Allow(budget *ConvergenceBudget, estimate TokenCount) error

	// Record folds an iteration's actual spend into the budget. If the
	// spend overshoots the ceiling, TokensUsed is capped at MaxTokens and
	// ErrBudgetExceeded is returned so the caller can log the overshoot.
	Record(budget *ConvergenceBudget, actual TokenCount) error
}

// UsageTracker accumulates token and cost usage per trajectory across
// iterations, independent of the budget the enforcer guards.
type UsageTracker interface {
	Add(id TrajectoryID, usage Usage)
	Snapshot(id TrajectoryID) Usage
}

// =============================================================================
// Context Management Interfaces
// =============================================================================

// ContextBuilder builds the context bundle for a task.
type ContextBuilder interface {
	// Build constructs the context bundle for a task within a run.
	Build(run *Run, taskID TaskID) (*ContextBundle, error)
}

// ContextCompactor compacts context to fit within token limits.
type ContextCompactor interface {
	// Compact reduces the context bundle according to the policy.
	Compact(bundle *ContextBundle, policy ContextPolicy) (*ContextBundle, error)
}

// ContextRouter routes context between tasks.
type ContextRouter interface {
	// Route passes output from one task to another.
	Route(run *Run, from TaskID, to TaskID, output *TaskResult) error
}

// MemoryManager manages short-term memory within a run.
type MemoryManager interface {
	// Get retrieves a value from memory.
	Get(run *Run, key string) (string, bool)

	// Put stores a value in memory.
	Put(run *Run, key string, value string)
}
