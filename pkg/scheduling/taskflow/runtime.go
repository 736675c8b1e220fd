package taskflow

import (
	"context"
)

// Runtime gives a running task access to the executor that runs it.
type Runtime struct {
	exec   *Executor
	worker *worker
	parent *node
}

// Executor returns the executor running the task.
func (rt *Runtime) Executor() *Executor {
	return rt.exec
}

// WorkerID returns the id of the worker running the task.
func (rt *Runtime) WorkerID() int {
	return workerID(rt.worker)
}

// Context returns the context of the current run.
func (rt *Runtime) Context() context.Context {
	return rt.parent.topology.ctx
}

// Task returns the handle of the running task.
func (rt *Runtime) Task() Task {
	return Task{node: rt.parent}
}

// Schedule makes t ready immediately, regardless of its dependents. t must
// belong to the graph being run and count toward the same parent, so the
// run stays open until t finishes.
func (rt *Runtime) Schedule(t Task) {
	n := t.node
	n.join.Store(0)
	n.parentJoin().Add(1)
	rt.exec.schedule(rt.worker, n)
}

// Corun runs c's graph to completion as children of the running task and
// returns the run's first error, if any. The worker keeps executing other
// work while it waits.
func (rt *Runtime) Corun(c Composable) error {
	g := c.FlowGraph()
	g.busy.Add(1)
	rt.exec.corunGraph(rt.worker, rt.parent, g)
	g.busy.Add(-1)
	return rt.parent.topology.firstError()
}
