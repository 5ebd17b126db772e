package orchestration

import (
	"fmt"

	"github.com/anthropics/convergence-engine/contracts"
)

// dependencyResolver implements contracts.DependencyResolver. Both
// BuildRun helpers (the single-task default and the workflow-step
// decomposition) hand it their iteration's task list to turn
// Task.Deps/Step.DependsOn into the DAG WaveExecutor schedules waves
// against; it has no notion of Goal/Trajectory above that.
//
// Stateless; safe for concurrent use.
type dependencyResolver struct{}

// NewDependencyResolver creates a new DependencyResolver.
func NewDependencyResolver() contracts.DependencyResolver {
	return &dependencyResolver{}
}

// BuildDAG constructs an iteration's DAG from its task list: one node per
// task, each seeded with its dependency count, plus forward edges so
// MarkComplete can drain dependents. Every dependency must name a task in
// the list (ErrDepNotFound otherwise). An empty list yields a valid empty
// DAG; nil is an error.
func (dr *dependencyResolver) BuildDAG(tasks []contracts.Task) (*contracts.DAG, error) {
	if tasks == nil {
		return nil, contracts.ErrInvalidInput
	}

	dag := &contracts.DAG{
		Nodes: make(map[contracts.TaskID]*contracts.DAGNode, len(tasks)),
		Edges: make(map[contracts.TaskID][]contracts.TaskID, len(tasks)),
	}

	known := make(map[contracts.TaskID]bool, len(tasks))
	for i := range tasks {
		known[tasks[i].ID] = true
	}

	for i := range tasks {
		task := &tasks[i]
		node := &contracts.DAGNode{
			ID:      task.ID,
			Deps:    append([]contracts.TaskID(nil), task.Deps...),
			Next:    []contracts.TaskID{},
			Pending: len(task.Deps),
		}
		dag.Nodes[task.ID] = node
	}

	for i := range tasks {
		task := &tasks[i]
		for _, depID := range task.Deps {
			if !known[depID] {
				return nil, fmt.Errorf("task %s depends on %s which not found: %w",
					task.ID, depID, contracts.ErrDepNotFound)
			}
			dag.Edges[depID] = append(dag.Edges[depID], task.ID)
			dag.Nodes[depID].Next = append(dag.Nodes[depID].Next, task.ID)
		}
		if _, ok := dag.Edges[task.ID]; !ok {
			dag.Edges[task.ID] = []contracts.TaskID{}
		}
	}

	return dag, nil
}

// Validate checks the DAG for cycles via DFS with color marking (white
// unvisited, gray on the current path, black done). A gray-to-gray edge
// is a back edge, i.e. a cycle.
func (dr *dependencyResolver) Validate(dag *contracts.DAG) error {
	if dag == nil {
		return contracts.ErrInvalidInput
	}
	if dag.Nodes == nil {
		return fmt.Errorf("DAG has nil Nodes: %w", contracts.ErrDAGInvalid)
	}
	if dag.Edges == nil {
		return fmt.Errorf("DAG has nil Edges: %w", contracts.ErrDAGInvalid)
	}

	colors := make(map[contracts.TaskID]int, len(dag.Nodes))
	for taskID := range dag.Nodes {
		if colors[taskID] == 0 {
			if hasCycle(taskID, colors, dag) {
				return contracts.ErrDAGCycle
			}
		}
	}
	return nil
}

func hasCycle(node contracts.TaskID, colors map[contracts.TaskID]int, dag *contracts.DAG) bool {
	colors[node] = 1 // gray

	dagNode, ok := dag.Nodes[node]
	if !ok {
		return false
	}
	for _, nextID := range dagNode.Next {
		switch colors[nextID] {
		case 1:
			return true
		case 0:
			if hasCycle(nextID, colors, dag) {
				return true
			}
		}
	}

	colors[node] = 2 // black
	return false
}
