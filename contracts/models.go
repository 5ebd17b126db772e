package contracts

// Run represents a single execution run containing multiple tasks.
type Run struct {
	ID        RunID
	State     RunState
	Policy    RunPolicy
	DAG       *DAG
	Tasks     map[TaskID]*Task
	Usage     Usage
	Memory    map[string]string // short-term memory for the run
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Task represents a single unit of work within a run.
//
// The fields below generalize the original DAG-executor task (ID, State,
// Inputs, Deps, Outputs, Error, Model, usage) with the richer attributes
// the convergence loop's task model requires: provenance, priority, agent
// routing, parent linkage, and retry bookkeeping.
type Task struct {
	ID           TaskID
	ParentID     TaskID // empty if this task has no parent
	Title        string
	Description  string
	State        TaskState
	Priority     TaskPriority
	AgentType    string // opaque tag resolved against an agent template registry
	Inputs       *TaskInput
	Deps         []TaskID
	Outputs      *TaskResult
	Error        *TaskError
	Model        ModelID
	EstimatedUse Usage
	ActualUse    Usage
	RetryCount   int
	MaxRetries   int
	Source       TaskSource
	CreatedAt    Timestamp
	UpdatedAt    Timestamp
}

// TaskPriority ranks a task's urgency for scheduling and diagnostics.
type TaskPriority int

const (
	PriorityNormal TaskPriority = iota
	PriorityLow
	PriorityHigh
	PriorityCritical
)

func (p TaskPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskSourceKind identifies what originated a task.
type TaskSourceKind string

const (
	SourceSystem         TaskSourceKind = "system"
	SourceGoalEvaluation TaskSourceKind = "goal_evaluation"
	SourceUser           TaskSourceKind = "user"
	SourceRestructure    TaskSourceKind = "restructure"
)

// TaskSource records provenance for a task: what kind of actor created it,
// and (for goal-evaluation) which goal drove its creation.
type TaskSource struct {
	Kind   TaskSourceKind
	GoalID GoalID // set when Kind == SourceGoalEvaluation
}

// DAG represents the directed acyclic graph of task dependencies.
type DAG struct {
	Nodes map[TaskID]*DAGNode
	Edges map[TaskID][]TaskID
}

// DAGNode represents a node in the dependency graph.
type DAGNode struct {
	ID      TaskID
	Deps    []TaskID
	Next    []TaskID
	Pending int
}

// Usage represents token and cost usage.
type Usage struct {
	Tokens TokenCount
	Cost   Cost
}

// Cost represents a monetary cost.
type Cost struct {
	Amount   float64
	Currency Currency
}

// TaskInput represents the input to a task.
type TaskInput struct {
	Prompt   string
	Inputs   map[string]string
	Metadata map[string]string
}

// TaskResult represents the output of a completed task.
type TaskResult struct {
	Output   string
	Outputs  map[string]string
	Usage    Usage
	Metadata map[string]string
}

// TaskError represents an error that occurred during task execution.
type TaskError struct {
	Code      string
	Message   string
	IsTimeout bool
}

// ContextBundle represents the context passed to a task.
type ContextBundle struct {
	Messages []string
	Memory   map[string]string
	Tools    map[string]string
}

// ContextPolicy defines how context should be managed.
type ContextPolicy struct {
	MaxTokens  TokenCount
	Strategy   string
	KeepLastN  int
	TruncateTo TokenCount
}

// RunPolicy defines execution constraints for a run.
type RunPolicy struct {
	TimeoutMs      int64
	MaxParallelism int
	BudgetLimit    Cost
	ContextPolicy  ContextPolicy
}
