package taskflow

import (
	"context"
	"sync/atomic"
)

// TaskFunc is the callable of a static or async task.
type TaskFunc func(ctx context.Context) error

// CondFunc returns the index of the single successor to run next. An index
// outside [0, NumSuccessors) runs nothing.
type CondFunc func(ctx context.Context) (int, error)

// MultiCondFunc returns the indices of every successor to run next.
type MultiCondFunc func(ctx context.Context) ([]int, error)

// SubflowFunc builds a dynamic subgraph while its task runs.
type SubflowFunc func(ctx context.Context, sf *Subflow) error

// RuntimeFunc receives a handle to the running executor.
type RuntimeFunc func(ctx context.Context, rt *Runtime) error

// Composable is anything that can be lowered into a Graph and composed as a
// module task.
type Composable interface {
	FlowGraph() *Graph
}

// Kind identifies the work a task performs.
type Kind uint8

const (
	KindPlaceholder Kind = iota
	KindStatic
	KindCondition
	KindMultiCondition
	KindSubflow
	KindModule
	KindRuntime
	KindAsync

	// NumKinds is the number of task kinds.
	NumKinds
)

var kindNames = [NumKinds]string{
	KindPlaceholder:    "placeholder",
	KindStatic:         "static",
	KindCondition:      "condition",
	KindMultiCondition: "multi-condition",
	KindSubflow:        "subflow",
	KindModule:         "module",
	KindRuntime:        "runtime",
	KindAsync:          "async",
}

func (k Kind) String() string {
	if k < NumKinds {
		return kindNames[k]
	}
	return "unknown"
}

// node state bits
const (
	stateConditioned uint32 = 1 << iota
	stateDetached
	stateAcquired
)

var nodeIDs atomic.Uint64

type node struct {
	id    uint64
	name  string
	kind  Kind
	work  any
	graph *Graph

	successors []*node
	dependents []*node

	// numStrong is the number of dependents that are not condition tasks.
	// Recomputed whenever the owning graph is set up for a run.
	numStrong int

	state atomic.Uint32
	join  atomic.Int64

	topology *topology
	parent   *node

	// subgraph is reused by subflow tasks across invocations.
	subgraph *Graph

	acquire []*Semaphore
	release []*Semaphore

	// async tasks carry their own completion instead of a topology
	future *Future
}

func newNode(g *Graph, name string, kind Kind, work any) *node {
	return &node{
		id:    nodeIDs.Add(1),
		name:  name,
		kind:  kind,
		work:  work,
		graph: g,
	}
}

func (n *node) precede(v *node) {
	n.successors = append(n.successors, v)
	v.dependents = append(v.dependents, n)
}

func (n *node) isConditionTask() bool {
	return n.kind == KindCondition || n.kind == KindMultiCondition
}

func (n *node) numWeakDependents() int {
	c := 0
	for _, d := range n.dependents {
		if d.isConditionTask() {
			c++
		}
	}
	return c
}

// setUpJoinCounter arms the join counter with the number of strong
// dependents and records whether any dependent is a condition task.
func (n *node) setUpJoinCounter() {
	weak := n.numWeakDependents()
	n.numStrong = len(n.dependents) - weak
	if weak > 0 {
		n.state.Or(stateConditioned)
	}
	n.join.Store(int64(n.numStrong))
}

func (n *node) hasState(bit uint32) bool {
	return n.state.Load()&bit != 0
}

func (n *node) canceled() bool {
	return n.topology != nil && n.topology.isCanceled()
}

// parentJoin returns the counter that tracks this node as outstanding work:
// the parent task for subflow and module children, otherwise the topology.
func (n *node) parentJoin() *atomic.Int64 {
	if n.parent != nil {
		return &n.parent.join
	}
	return &n.topology.join
}
