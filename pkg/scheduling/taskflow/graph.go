package taskflow

import (
	"sync"
	"sync/atomic"
)

// FlowBuilder adds tasks to a graph. It is embedded by Graph and Subflow.
type FlowBuilder struct {
	graph *Graph
}

func (b FlowBuilder) emplace(name string, kind Kind, work any) Task {
	n := newNode(b.graph, name, kind, work)
	b.graph.nodes = append(b.graph.nodes, n)
	return Task{node: n}
}

// AddTask adds a static task.
func (b FlowBuilder) AddTask(name string, fn TaskFunc) Task {
	if fn == nil {
		panic("taskflow: nil task function")
	}
	return b.emplace(name, KindStatic, fn)
}

// AddCondition adds a condition task. Its outgoing edges are weak: they do
// not count toward the successors' dependencies, and only the successor at
// the returned index runs.
func (b FlowBuilder) AddCondition(name string, fn CondFunc) Task {
	if fn == nil {
		panic("taskflow: nil condition function")
	}
	return b.emplace(name, KindCondition, fn)
}

// AddMultiCondition adds a condition task that may select several successors.
func (b FlowBuilder) AddMultiCondition(name string, fn MultiCondFunc) Task {
	if fn == nil {
		panic("taskflow: nil multi-condition function")
	}
	return b.emplace(name, KindMultiCondition, fn)
}

// AddSubflow adds a task that builds and joins a subgraph at run time.
func (b FlowBuilder) AddSubflow(name string, fn SubflowFunc) Task {
	if fn == nil {
		panic("taskflow: nil subflow function")
	}
	return b.emplace(name, KindSubflow, fn)
}

// AddRuntime adds a task that can schedule other tasks of the same run.
func (b FlowBuilder) AddRuntime(name string, fn RuntimeFunc) Task {
	if fn == nil {
		panic("taskflow: nil runtime function")
	}
	return b.emplace(name, KindRuntime, fn)
}

// AddPlaceholder adds a task with no work. It still orders its neighbours.
func (b FlowBuilder) AddPlaceholder(name string) Task {
	return b.emplace(name, KindPlaceholder, nil)
}

// ComposedOf adds a module task that runs c's graph to completion before its
// successors are released. The composed graph must outlive every run.
func (b FlowBuilder) ComposedOf(name string, c Composable) Task {
	if c == nil || c.FlowGraph() == nil {
		panic("taskflow: nil composable")
	}
	if c.FlowGraph() == b.graph {
		panic("taskflow: graph cannot compose itself")
	}
	return b.emplace(name, KindModule, c)
}

// Linearize chains tasks so each one precedes the next.
func (b FlowBuilder) Linearize(tasks ...Task) {
	for i := 1; i < len(tasks); i++ {
		tasks[i-1].Precede(tasks[i])
	}
}

// Graph is a reusable set of tasks and dependencies. A graph may be run any
// number of times; runs of the same graph execute one after another in
// submission order. The graph must not be modified while a run is queued or
// in flight.
type Graph struct {
	FlowBuilder

	name  string
	nodes []*node

	mu         sync.Mutex
	topologies []*topology
	busy       atomic.Int32
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	g := &Graph{name: name}
	g.FlowBuilder = FlowBuilder{graph: g}
	return g
}

// FlowGraph returns g, so a Graph can be composed into another graph.
func (g *Graph) FlowGraph() *Graph {
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// SetName renames the graph and returns it for chaining.
func (g *Graph) SetName(name string) *Graph {
	g.name = name
	return g
}

// NumTasks returns the number of tasks added to g, not counting subflow children.
func (g *Graph) NumTasks() int {
	return len(g.nodes)
}

// Empty reports whether g has no tasks.
func (g *Graph) Empty() bool {
	return len(g.nodes) == 0
}

// Clear removes every task.
func (g *Graph) Clear() {
	g.mustBeIdle()
	g.nodes = nil
}

// ForEachTask calls fn for every task in insertion order.
func (g *Graph) ForEachTask(fn func(Task)) {
	for _, n := range g.nodes {
		fn(Task{node: n})
	}
}

// Running reports whether a run of g is queued or in flight.
func (g *Graph) Running() bool {
	return g.busy.Load() > 0
}

func (g *Graph) mustBeIdle() {
	if g.Running() {
		panic("taskflow: graph " + g.name + " modified while a run is in flight")
	}
}

// sources returns the tasks without dependents.
func (g *Graph) sources() []*node {
	var src []*node
	for _, n := range g.nodes {
		if len(n.dependents) == 0 {
			src = append(src, n)
		}
	}
	return src
}

// enqueue appends tp to the run queue and reports whether it is at the head.
func (g *Graph) enqueue(tp *topology) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topologies = append(g.topologies, tp)
	g.busy.Add(1)
	return len(g.topologies) == 1
}

// dequeue removes the head run and returns the next one, if any.
func (g *Graph) dequeue() *topology {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topologies[0] = nil
	g.topologies = g.topologies[1:]
	g.busy.Add(-1)
	if len(g.topologies) == 0 {
		g.topologies = nil
		return nil
	}
	return g.topologies[0]
}
