package taskflow

// Observer receives task lifecycle events. Callbacks run synchronously on
// the goroutine that triggers them and must not block. workerID is -1 when
// the event comes from a goroutine that is not one of the executor's
// workers.
type Observer interface {
	// SetUp is called once when the observer is added.
	SetUp(numWorkers int)
	// OnSchedule is called when a task is handed to a queue.
	OnSchedule(workerID int, t Task)
	// OnEntry is called right before a task's callable runs.
	OnEntry(workerID int, t Task)
	// OnExit is called right after a task's callable returns.
	OnExit(workerID int, t Task)
}

// AddObserver registers o with the executor.
func (e *Executor) AddObserver(o Observer) {
	o.SetUp(len(e.workers))
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	cur := e.loadObservers()
	next := make([]Observer, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, o)
	e.observers.Store(&next)
}

// RemoveObserver unregisters o. Observers are compared with ==.
func (e *Executor) RemoveObserver(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	cur := e.loadObservers()
	next := make([]Observer, 0, len(cur))
	for _, c := range cur {
		if c != o {
			next = append(next, c)
		}
	}
	e.observers.Store(&next)
}

// NumObservers returns the number of attached observers.
func (e *Executor) NumObservers() int {
	return len(e.loadObservers())
}

func (e *Executor) loadObservers() []Observer {
	if p := e.observers.Load(); p != nil {
		return *p
	}
	return nil
}

func workerID(w *worker) int {
	if w == nil {
		return -1
	}
	return w.id
}

func (e *Executor) observeSchedule(w *worker, n *node) {
	for _, o := range e.loadObservers() {
		o.OnSchedule(workerID(w), Task{node: n})
	}
}

func (e *Executor) observeEntry(w *worker, n *node) {
	for _, o := range e.loadObservers() {
		o.OnEntry(workerID(w), Task{node: n})
	}
}

func (e *Executor) observeExit(w *worker, n *node) {
	for _, o := range e.loadObservers() {
		o.OnExit(workerID(w), Task{node: n})
	}
}
