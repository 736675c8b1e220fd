package taskflow

import (
	"context"
)

// Subflow builds tasks from inside a running subflow task. By default the
// subflow joins when its callable returns: the parent task completes only
// after every child finished. Detach instead lets the children run on their
// own within the same run.
type Subflow struct {
	FlowBuilder

	exec     *Executor
	worker   *worker
	parent   *node
	joinable bool
}

// Joinable reports whether Join or Detach may still be called.
func (sf *Subflow) Joinable() bool {
	return sf.joinable
}

// Join runs the children built so far and waits for them. The calling
// worker executes other work while waiting.
func (sf *Subflow) Join() {
	if !sf.joinable {
		panic("taskflow: subflow already joined or detached")
	}
	sf.join()
}

func (sf *Subflow) join() {
	sf.joinable = false
	sf.exec.corunGraph(sf.worker, sf.parent, sf.graph)
}

// Detach releases the children to run independently. They still belong to
// the current run, which does not complete before they do.
func (sf *Subflow) Detach() {
	if !sf.joinable {
		panic("taskflow: subflow already joined or detached")
	}
	sf.joinable = false

	g := sf.graph
	p := sf.parent
	// the next invocation of the parent must not reuse a graph that may
	// still be running
	p.subgraph = nil

	tp := p.topology
	src := sf.exec.setUpGraph(g, tp, nil, stateDetached)
	if len(src) == 0 {
		return
	}
	tp.join.Add(int64(len(src)))
	sf.exec.scheduleAll(sf.worker, src)
}

// Executor returns the executor running the subflow.
func (sf *Subflow) Executor() *Executor {
	return sf.exec
}

// Context returns the context of the run the subflow belongs to.
func (sf *Subflow) Context() context.Context {
	return sf.parent.topology.ctx
}
