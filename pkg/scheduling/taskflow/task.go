package taskflow

import (
	"fmt"
)

// Task is a lightweight handle to a task in a graph. The zero Task is
// invalid.
type Task struct {
	node *node
}

// Valid reports whether t refers to a task.
func (t Task) Valid() bool {
	return t.node != nil
}

// ID is unique among all tasks created by this process.
func (t Task) ID() uint64 {
	return t.node.id
}

// Name returns the task name.
func (t Task) Name() string {
	return t.node.name
}

// SetName renames the task.
func (t Task) SetName(name string) Task {
	t.node.name = name
	return t
}

// Kind reports what kind of callable the task runs.
func (t Task) Kind() Kind {
	return t.node.kind
}

// Precede adds edges from t to each of others. Adding an edge to a graph
// whose run is queued or in flight panics.
func (t Task) Precede(others ...Task) Task {
	for _, o := range others {
		t.link(o)
	}
	return t
}

// Succeed adds edges from each of others to t.
func (t Task) Succeed(others ...Task) Task {
	for _, o := range others {
		o.link(t)
	}
	return t
}

func (t Task) link(to Task) {
	if !t.Valid() || !to.Valid() {
		panic("taskflow: edge with an invalid task")
	}
	t.node.graph.mustBeIdle()
	to.node.graph.mustBeIdle()
	t.node.precede(to.node)
}

// NumSuccessors returns the number of outgoing edges.
func (t Task) NumSuccessors() int {
	return len(t.node.successors)
}

// NumDependents returns the number of incoming edges, weak ones included.
func (t Task) NumDependents() int {
	return len(t.node.dependents)
}

// NumStrongDependents counts dependents that are not condition tasks.
func (t Task) NumStrongDependents() int {
	return len(t.node.dependents) - t.node.numWeakDependents()
}

// NumWeakDependents counts dependents that are condition tasks.
func (t Task) NumWeakDependents() int {
	return t.node.numWeakDependents()
}

// ForEachSuccessor calls fn for each successor in edge order.
func (t Task) ForEachSuccessor(fn func(Task)) {
	for _, s := range t.node.successors {
		fn(Task{node: s})
	}
}

// ForEachDependent calls fn for each dependent in edge order.
func (t Task) ForEachDependent(fn func(Task)) {
	for _, d := range t.node.dependents {
		fn(Task{node: d})
	}
}

// Acquire makes t take one unit of every semaphore before it runs.
func (t Task) Acquire(sems ...*Semaphore) Task {
	t.node.graph.mustBeIdle()
	t.node.acquire = append(t.node.acquire, sems...)
	return t
}

// Release makes t return one unit of every semaphore after it runs. Returning
// a unit that no task holds panics on the worker.
func (t Task) Release(sems ...*Semaphore) Task {
	t.node.graph.mustBeIdle()
	t.node.release = append(t.node.release, sems...)
	return t
}

// Composed returns the graph of a module task, or nil.
func (t Task) Composed() *Graph {
	if c, ok := t.node.work.(Composable); ok {
		return c.FlowGraph()
	}
	return nil
}

// RunID identifies the run the task currently belongs to. It is empty
// outside a run.
func (t Task) RunID() string {
	if tp := t.node.topology; tp != nil {
		return tp.id.String()
	}
	if f := t.node.future; f != nil {
		return f.id.String()
	}
	return ""
}

func (t Task) String() string {
	if !t.Valid() {
		return "Task(invalid)"
	}
	name := t.node.name
	if name == "" {
		name = fmt.Sprintf("#%d", t.node.id)
	}
	return fmt.Sprintf("Task(%s, %s)", name, t.node.kind)
}
