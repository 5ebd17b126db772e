package contracts

import "context"

// =============================================================================
// Persistence Seam (spec.md §6 collaborator interfaces)
// =============================================================================

// TaskFilter narrows TaskRepository.List; zero-valued fields are
// unconstrained.
type TaskFilter struct {
	State     *TaskState
	AgentType string
	GoalID    GoalID
}

// TaskRepository owns Task storage. Only the command bus handler writes;
// any number of readers are welcome.
type TaskRepository interface {
	Get(ctx context.Context, id TaskID) (*Task, error)
	Create(ctx context.Context, task *Task) error
	Update(ctx context.Context, task *Task) error
	Delete(ctx context.Context, id TaskID) error

	ListByStatus(ctx context.Context, state TaskState) ([]*Task, error)
	ListBySource(ctx context.Context, kind TaskSourceKind) ([]*Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*Task, error)
	GetChildTasks(ctx context.Context, parent TaskID) ([]*Task, error)
}

// GoalRepository owns Goal storage.
type GoalRepository interface {
	Get(ctx context.Context, id GoalID) (*Goal, error)
	Create(ctx context.Context, goal *Goal) error
	Update(ctx context.Context, goal *Goal) error
	Delete(ctx context.Context, id GoalID) error
}

// AttractorDistribution maps an attractor type's string name to how many
// historical trajectories ended in it.
type AttractorDistribution map[string]int

// TrajectoryRepository owns Trajectory storage. Only the convergence loop
// for a given goal writes; other readers are welcome.
type TrajectoryRepository interface {
	Save(ctx context.Context, trajectory *Trajectory) error
	Get(ctx context.Context, id TrajectoryID) (*Trajectory, error)
	GetByTask(ctx context.Context, taskID TaskID) (*Trajectory, error)
	GetByGoal(ctx context.Context, goalID GoalID) (*Trajectory, error)
	GetRecent(ctx context.Context, limit int) ([]*Trajectory, error)

	GetSuccessfulStrategies(ctx context.Context, attractor AttractorType, limit int) ([]StrategyEntry, error)
	StrategyEffectiveness(ctx context.Context, strategy StrategyKind) (StrategyEffectiveness, error)

	// StrategyEffectivenessInContext aggregates only the StrategyEntry
	// rows recorded under the given bandit context key, the read backing
	// the selector's contextual exploitation arm.
	StrategyEffectivenessInContext(ctx context.Context, strategy StrategyKind, key StrategyContextKey) (StrategyEffectiveness, error)

	AttractorDistribution(ctx context.Context) (AttractorDistribution, error)
}

// AgentTemplate is the metadata a substrate needs to dispatch a task of a
// given agent type: name, opaque config, and version.
type AgentTemplate struct {
	Name    string
	Version string
	Config  map[string]string
}

// AgentRepository looks up agent templates by their opaque type tag.
type AgentRepository interface {
	Get(ctx context.Context, agentType string) (*AgentTemplate, error)
}

// SubstrateRequest is what the DAG executor hands the agent substrate to
// dispatch one task.
type SubstrateRequest struct {
	Task     *Task
	Template AgentTemplate
	Context  *ContextBundle
}

// SessionStatus is a substrate session's terminal or in-flight state.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionTimedOut  SessionStatus = "timed_out"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is a handle to one in-flight or completed agent dispatch. Each
// task's session is private to that task; sessions are never shared.
type Session interface {
	TotalTokens() TokenCount
	TurnsCompleted() int
	Result() (*TaskResult, error)
	Status() SessionStatus
}

// Substrate is the concrete agent-dispatch collaborator: CLI-spawning, API
// wrappers, or any other mechanism that turns a SubstrateRequest into
// agent turns. Concrete substrates are outside this module's scope; only
// the contract is specified here.
type Substrate interface {
	Execute(ctx context.Context, req SubstrateRequest) (Session, error)
	ExecuteStreaming(ctx context.Context, req SubstrateRequest) (<-chan TaskResult, Session, error)
}

// MemoryCheckKind optionally filters MemoryRepository.Search.
type MemoryCheckKind string

// MemoryEntry is one namespaced key/value record in long-term memory.
type MemoryEntry struct {
	Namespace string
	Key       string
	Value     string
	Type      MemoryCheckKind
}

// MemoryRepository is the optional long-term memory collaborator,
// distinct from the in-run contracts.MemoryManager: it is keyed by
// namespace and persists across trajectories.
type MemoryRepository interface {
	Add(ctx context.Context, entry MemoryEntry) error
	Get(ctx context.Context, namespace, key string) (*MemoryEntry, error)
	Search(ctx context.Context, prefix string, kind MemoryCheckKind) ([]MemoryEntry, error)
	Update(ctx context.Context, entry MemoryEntry) error
	Delete(ctx context.Context, namespace, key string) error
}
