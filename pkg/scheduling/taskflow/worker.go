package taskflow

import (
	"math/rand/v2"
	"runtime"

	"github.com/vnykmshr/flowgraph/pkg/scheduling/notifier"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/wsq"
)

// maxYields bounds how long a worker spins on failed steals before it
// prepares to sleep.
const maxYields = 100

type worker struct {
	id     int
	exec   *Executor
	wsq    *wsq.Queue[node]
	waiter *notifier.Waiter
	rng    *rand.Rand

	// vtm is the victim of the next steal. vtm == id means the shared
	// queue.
	vtm int
}

func newWorker(e *Executor, id int) *worker {
	return &worker{
		id:     id,
		exec:   e,
		wsq:    wsq.New[node](e.config.QueueCapacity),
		waiter: e.notifier.Waiter(id),
		rng:    rand.New(rand.NewPCG(uint64(id)+1, rand.Uint64())),
		vtm:    id,
	}
}

func (w *worker) run() {
	e := w.exec
	defer e.wg.Done()

	if e.config.OnWorkerStart != nil {
		e.config.OnWorkerStart(w.id)
	}
	if e.config.OnWorkerStop != nil {
		defer e.config.OnWorkerStop(w.id)
	}

	var t *node
	for {
		w.exploit(t)
		var ok bool
		if t, ok = w.waitForTask(); !ok {
			return
		}
	}
}

// exploit runs t and then drains the worker's own deque.
func (w *worker) exploit(t *node) {
	for t != nil {
		w.exec.invoke(w, t)
		t = w.wsq.Pop()
	}
}

func (w *worker) randomVictim() int {
	return w.rng.IntN(len(w.exec.workers))
}

// steal takes one task from the current victim.
func (w *worker) steal() *node {
	e := w.exec
	if w.vtm == w.id {
		return e.shared.steal()
	}
	t := e.workers[w.vtm].wsq.Steal()
	if t != nil && e.metrics != nil {
		e.metrics.steals.Inc()
	}
	return t
}

// explore steals until it finds a task, gives up after maxYields, or the
// executor shuts down.
func (w *worker) explore() *node {
	e := w.exec
	maxSteals := (len(e.workers) + 1) * 2
	steals, yields := 0, 0

	for !e.done.Load() {
		if t := w.steal(); t != nil {
			return t
		}
		steals++
		if steals > maxSteals {
			runtime.Gosched()
			yields++
			if yields > maxYields {
				return nil
			}
		}
		w.vtm = w.randomVictim()
	}
	return nil
}

// waitForTask finds the next task or parks. It returns false when the
// executor is shutting down.
func (w *worker) waitForTask() (*node, bool) {
	e := w.exec
	for {
		if t := w.explore(); t != nil {
			return t, true
		}

		e.notifier.PrepareWait(w.waiter)

		if !e.shared.empty() {
			e.notifier.CancelWait(w.waiter)
			w.vtm = w.id
			continue
		}

		if e.done.Load() {
			e.notifier.CancelWait(w.waiter)
			e.notifier.Notify(true)
			return nil, false
		}

		found := false
		for vtm, v := range e.workers {
			if !v.wsq.Empty() {
				w.vtm = vtm
				found = true
				break
			}
		}
		if found {
			e.notifier.CancelWait(w.waiter)
			continue
		}

		if e.metrics != nil {
			e.metrics.parks.Inc()
		}
		e.notifier.CommitWait(w.waiter)
	}
}

// corunUntil keeps w busy with any available work until stop reports true.
// Subflow joins and module tasks use it so a worker never blocks waiting
// for its own children.
func (w *worker) corunUntil(stop func() bool) {
	e := w.exec
	maxSteals := (len(e.workers) + 1) * 2

	for !stop() {
		if t := w.wsq.Pop(); t != nil {
			e.invoke(w, t)
			continue
		}

		steals := 0
		for !stop() {
			if t := w.steal(); t != nil {
				e.invoke(w, t)
				break
			}
			steals++
			if steals > maxSteals {
				runtime.Gosched()
			}
			w.vtm = w.randomVictim()
		}
	}
}
