package contracts

// CommandSourceKind identifies who issued a command.
type CommandSourceKind string

const (
	CommandSourceSystem CommandSourceKind = "system"
	CommandSourceUser   CommandSourceKind = "user"
	CommandSourceAgent  CommandSourceKind = "agent"
)

// CommandSource names the issuer of a CommandEnvelope. ActorID is empty for
// Kind == CommandSourceSystem.
type CommandSource struct {
	Kind    CommandSourceKind
	ActorID string
}

// CommandKind tags which operation a Command carries.
type CommandKind string

const (
	CmdTaskSubmit     CommandKind = "task_submit"
	CmdTaskTransition CommandKind = "task_transition"
	CmdTaskCancel     CommandKind = "task_cancel"
	CmdTaskUpdate     CommandKind = "task_update"
	CmdGoalCreate     CommandKind = "goal_create"
	CmdGoalPause      CommandKind = "goal_pause"
	CmdGoalResume     CommandKind = "goal_resume"
	CmdGoalComplete   CommandKind = "goal_complete"
)

// TaskSubmitCommand creates a new task.
type TaskSubmitCommand struct {
	Task *Task
}

// TaskTransitionCommand moves a task to a new state.
type TaskTransitionCommand struct {
	TaskID TaskID
	To     TaskState
	Error  *TaskError // set when To == TaskFailed
}

// TaskCancelCommand cancels a task.
type TaskCancelCommand struct {
	TaskID TaskID
	Reason string
}

// TaskUpdateCommand patches mutable task fields (description, priority,
// agent type) without a state transition, e.g. for RetryDifferentApproach.
type TaskUpdateCommand struct {
	TaskID      TaskID
	Description *string
	AgentType   *string
	Priority    *TaskPriority
}

// GoalCreateCommand creates a new goal.
type GoalCreateCommand struct {
	Goal *Goal
}

// GoalPauseCommand pauses a goal, e.g. on an infrastructure error.
type GoalPauseCommand struct {
	GoalID GoalID
	Reason string
}

// GoalResumeCommand resumes a paused goal.
type GoalResumeCommand struct {
	GoalID GoalID
}

// GoalCompleteCommand marks a goal completed.
type GoalCompleteCommand struct {
	GoalID GoalID
}

// Command is a tagged union over every domain mutation the command bus
// accepts. Exactly one of the typed fields matching Kind is populated.
type Command struct {
	Kind CommandKind

	TaskSubmit     *TaskSubmitCommand
	TaskTransition *TaskTransitionCommand
	TaskCancel     *TaskCancelCommand
	TaskUpdate     *TaskUpdateCommand

	GoalCreate   *GoalCreateCommand
	GoalPause    *GoalPauseCommand
	GoalResume   *GoalResumeCommand
	GoalComplete *GoalCompleteCommand
}

// CommandEnvelope wraps a Command with its provenance and an optional
// idempotency key. Re-dispatching an envelope whose idempotency key matches
// a prior successful dispatch returns the stored result without
// re-executing the command.
type CommandEnvelope struct {
	Source         CommandSource
	IssuedAt       Timestamp
	Command        Command
	IdempotencyKey string
}

// CommandResultKind tags which field of a CommandResult is populated.
type CommandResultKind string

const (
	ResultTask CommandResultKind = "task"
	ResultGoal CommandResultKind = "goal"
	ResultAck  CommandResultKind = "ack"
)

// CommandResult is the tagged-union outcome of a successful dispatch.
type CommandResult struct {
	Kind CommandResultKind
	Task *Task
	Goal *Goal
}
