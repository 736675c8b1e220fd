package taskflow

import (
	"errors"
	"runtime/debug"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
)

// invoke runs n and releases its successors. The first newly ready
// successor is kept in a local cache and run next on the same worker.
func (e *Executor) invoke(w *worker, n *node) {
	for n != nil {
		n = e.invokeOne(w, n)
	}
}

func (e *Executor) invokeOne(w *worker, n *node) *node {
	if n.kind == KindAsync {
		e.invokeAsync(w, n)
		return nil
	}

	if n.canceled() {
		e.tearDownInvoke(w, n)
		return nil
	}

	if len(n.acquire) > 0 && !n.hasState(stateAcquired) {
		ok, woken := acquireAll(n)
		e.scheduleAll(w, woken)
		if !ok {
			// parked on a semaphore; rescheduled by its release
			return nil
		}
		n.state.Or(stateAcquired)
	}

	var conds []int
	switch n.kind {
	case KindPlaceholder:
	case KindStatic:
		e.invokeStatic(w, n)
	case KindCondition:
		conds = e.invokeCondition(w, n)
	case KindMultiCondition:
		conds = e.invokeMultiCondition(w, n)
	case KindSubflow:
		e.invokeSubflow(w, n)
	case KindModule:
		e.invokeModule(w, n)
	case KindRuntime:
		e.invokeRuntime(w, n)
	default:
		panic("taskflow: unknown task kind " + n.kind.String())
	}

	if n.hasState(stateAcquired) {
		n.state.And(^stateAcquired)
	}
	if len(n.release) > 0 {
		e.scheduleAll(w, releaseAll(n))
	}

	// Re-arm for the next iteration or a conditional loop back to n.
	n.join.Add(int64(n.numStrong))

	j := n.parentJoin()
	var cache *node
	ready := func(s *node) {
		j.Add(1)
		if cache != nil {
			e.schedule(w, cache)
		}
		cache = s
	}

	if n.isConditionTask() {
		for _, idx := range conds {
			if idx >= 0 && idx < len(n.successors) {
				s := n.successors[idx]
				s.join.Store(0)
				ready(s)
			}
		}
	} else {
		for _, s := range n.successors {
			if s.join.Add(-1) == 0 {
				ready(s)
			}
		}
	}

	e.tearDownInvoke(w, n)
	return cache
}

// tearDownInvoke retires n from its parent or topology. The last task of
// a topology iteration tears the topology down.
func (e *Executor) tearDownInvoke(w *worker, n *node) {
	if n.parent != nil {
		n.parent.join.Add(-1)
		return
	}
	tp := n.topology
	if tp.join.Add(-1) == 0 {
		e.tearDownTopology(w, tp)
	}
}

// call runs fn, turning a returned error or a panic into a TaskError.
func (e *Executor) call(w *worker, n *node, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &gferrors.TaskError{Task: n.name, Panic: r, Stack: debug.Stack()}
		}
		if err != nil {
			e.logger.Debug("task failed", "task", n.name, "kind", n.kind, "worker", workerID(w), "err", err)
			if e.metrics != nil {
				e.metrics.failed.Inc()
			}
		}
	}()

	if e.metrics != nil {
		e.metrics.executed[n.kind].Inc()
	}
	if err := fn(); err != nil {
		var te *gferrors.TaskError
		if errors.As(err, &te) {
			return err
		}
		return &gferrors.TaskError{Task: n.name, Err: err}
	}
	return nil
}

// fail records err on n's run. The run is cancelled: tasks already running
// finish, nothing new starts.
func (e *Executor) fail(n *node, err error) {
	if err != nil && n.topology != nil {
		n.topology.setError(err)
	}
}

func (e *Executor) invokeStatic(w *worker, n *node) {
	fn := n.work.(TaskFunc)
	e.observeEntry(w, n)
	e.fail(n, e.call(w, n, func() error { return fn(n.topology.ctx) }))
	e.observeExit(w, n)
}

func (e *Executor) invokeCondition(w *worker, n *node) []int {
	fn := n.work.(CondFunc)
	idx := -1
	e.observeEntry(w, n)
	err := e.call(w, n, func() error {
		i, err := fn(n.topology.ctx)
		if err == nil {
			idx = i
		}
		return err
	})
	e.observeExit(w, n)
	e.fail(n, err)
	if idx < 0 {
		return nil
	}
	return []int{idx}
}

func (e *Executor) invokeMultiCondition(w *worker, n *node) []int {
	fn := n.work.(MultiCondFunc)
	var idx []int
	e.observeEntry(w, n)
	err := e.call(w, n, func() error {
		i, err := fn(n.topology.ctx)
		if err == nil {
			idx = i
		}
		return err
	})
	e.observeExit(w, n)
	e.fail(n, err)
	return idx
}

func (e *Executor) invokeSubflow(w *worker, n *node) {
	fn := n.work.(SubflowFunc)
	if n.subgraph == nil {
		n.subgraph = NewGraph(n.name)
	} else {
		n.subgraph.Clear()
	}

	sf := &Subflow{
		FlowBuilder: n.subgraph.FlowBuilder,
		exec:        e,
		worker:      w,
		parent:      n,
		joinable:    true,
	}

	e.observeEntry(w, n)
	e.fail(n, e.call(w, n, func() error { return fn(n.topology.ctx, sf) }))
	if sf.joinable {
		sf.join()
	}
	e.observeExit(w, n)
}

func (e *Executor) invokeModule(w *worker, n *node) {
	g := n.work.(Composable).FlowGraph()
	e.observeEntry(w, n)
	g.busy.Add(1)
	e.corunGraph(w, n, g)
	g.busy.Add(-1)
	e.observeExit(w, n)
}

func (e *Executor) invokeRuntime(w *worker, n *node) {
	fn := n.work.(RuntimeFunc)
	rt := &Runtime{exec: e, worker: w, parent: n}
	e.observeEntry(w, n)
	e.fail(n, e.call(w, n, func() error { return fn(n.topology.ctx, rt) }))
	e.observeExit(w, n)
}

func (e *Executor) invokeAsync(w *worker, n *node) {
	aw := n.work.(*asyncWork)
	var err error
	if n.canceled() || aw.ctx.Err() != nil {
		err = gferrors.ErrCanceled
	} else {
		e.observeEntry(w, n)
		err = e.call(w, n, func() error { return aw.fn(aw.ctx) })
		e.observeExit(w, n)
	}
	n.future.cancel()
	n.future.resolve(err)
	e.decrementTopology()
}

// corunGraph runs g to completion with p as the parent of its tasks. The
// calling worker keeps executing other work while it waits.
func (e *Executor) corunGraph(w *worker, p *node, g *Graph) {
	src := e.setUpGraph(g, p.topology, p, 0)
	if len(src) == 0 {
		return
	}
	p.join.Add(int64(len(src)))
	e.scheduleAll(w, src)
	w.corunUntil(func() bool { return p.join.Load() == 0 })
}
