package taskflow

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
	"github.com/vnykmshr/flowgraph/pkg/common/validation"
	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/notifier"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/wsq"
)

// Config holds configuration options for creating an executor.
type Config struct {
	// Name labels log lines and metrics. Defaults to "default".
	Name string

	// Workers is the number of worker goroutines.
	// Must be greater than 0.
	Workers int

	// QueueCapacity is the initial capacity of each worker's deque.
	// Deques grow on demand. Zero selects wsq.DefaultCapacity.
	QueueCapacity int64

	// Logger receives lifecycle and task failure records. If nil,
	// log.Default() is used.
	Logger *log.Logger

	// Observers are registered before any worker starts.
	Observers []Observer

	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Registry

	// OnWorkerStart is called on each worker goroutine before it takes work.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on each worker goroutine when it exits.
	OnWorkerStop func(workerID int)
}

// DefaultConfig returns a configuration with one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Name:    "default",
		Workers: runtime.NumCPU(),
	}
}

func (c Config) validate() error {
	if err := validation.ValidatePositive("taskflow", "Workers", c.Workers); err != nil {
		return err
	}
	if err := validation.ValidateAtMost("taskflow", "Workers", c.Workers, notifier.MaxWaiters); err != nil {
		return err
	}
	if c.QueueCapacity < 0 {
		return gferrors.NewValidationError("taskflow", "QueueCapacity", c.QueueCapacity, "cannot be negative").
			WithHint("use 0 for the default capacity")
	}
	return nil
}

// Executor runs graphs on a fixed set of work-stealing workers.
type Executor struct {
	config  Config
	logger  *log.Logger
	metrics *execMetrics

	workers  []*worker
	notifier *notifier.Notifier
	shared   sharedQueue
	done     atomic.Bool
	wg       sync.WaitGroup

	topoMu        sync.Mutex
	topoCond      *sync.Cond
	numTopologies int
	closing       bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	obsMu     sync.Mutex
	observers atomic.Pointer[[]Observer]
}

// sharedQueue receives work from goroutines that are not workers. Pushes
// are serialized by mu; workers steal without locking.
type sharedQueue struct {
	mu sync.Mutex
	q  *wsq.Queue[node]
}

func (s *sharedQueue) push(nodes ...*node) {
	s.mu.Lock()
	for _, n := range nodes {
		s.q.Push(n)
	}
	s.mu.Unlock()
}

func (s *sharedQueue) steal() *node {
	return s.q.Steal()
}

func (s *sharedQueue) empty() bool {
	return s.q.Empty()
}

type execMetrics struct {
	executed   [NumKinds]prometheus.Counter
	failed     prometheus.Counter
	steals     prometheus.Counter
	parks      prometheus.Counter
	topologies prometheus.Gauge
}

func newExecMetrics(reg *metrics.Registry, name string, workers int) *execMetrics {
	if reg == nil {
		return nil
	}
	m := &execMetrics{
		failed:     reg.TasksFailed.WithLabelValues(name),
		steals:     reg.Steals.WithLabelValues(name),
		parks:      reg.Parks.WithLabelValues(name),
		topologies: reg.TopologiesActive.WithLabelValues(name),
	}
	for k := Kind(0); k < NumKinds; k++ {
		m.executed[k] = reg.TasksExecuted.WithLabelValues(name, k.String())
	}
	reg.Workers.WithLabelValues(name).Set(float64(workers))
	return m
}

// New creates an executor with the given number of workers. It panics on
// an invalid worker count; use NewWithConfig to get an error instead.
func New(workers int) *Executor {
	cfg := DefaultConfig()
	cfg.Workers = workers
	e, err := NewWithConfig(cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// NewWithConfig creates an executor and starts its workers.
func NewWithConfig(config Config) (*Executor, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "default"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	e := &Executor{
		config:     config,
		logger:     logger.With("executor", config.Name),
		metrics:    newExecMetrics(config.Metrics, config.Name, config.Workers),
		notifier:   notifier.New(config.Workers),
		shared:     sharedQueue{q: wsq.New[node](config.QueueCapacity)},
		shutdownCh: make(chan struct{}),
	}
	e.topoCond = sync.NewCond(&e.topoMu)

	e.workers = make([]*worker, config.Workers)
	for i := range e.workers {
		e.workers[i] = newWorker(e, i)
	}
	for _, o := range config.Observers {
		e.AddObserver(o)
	}

	e.wg.Add(len(e.workers))
	for _, w := range e.workers {
		go w.run()
	}
	e.logger.Debug("executor started", "workers", len(e.workers))
	return e, nil
}

// Name returns the name the executor was configured with.
func (e *Executor) Name() string {
	return e.config.Name
}

// NumWorkers returns the number of worker goroutines.
func (e *Executor) NumWorkers() int {
	return len(e.workers)
}

// NumTopologies returns the number of submitted runs and async tasks that
// have not completed.
func (e *Executor) NumTopologies() int {
	e.topoMu.Lock()
	defer e.topoMu.Unlock()
	return e.numTopologies
}

// Run executes g once.
func (e *Executor) Run(g *Graph) (*Future, error) {
	return e.RunN(g, 1)
}

// RunContext executes g once. Cancelling ctx cancels the run.
func (e *Executor) RunContext(ctx context.Context, g *Graph) (*Future, error) {
	return e.runUntil(ctx, g, counter(1), nil)
}

// RunN executes g n times in a row.
func (e *Executor) RunN(g *Graph, n int) (*Future, error) {
	return e.runUntil(context.Background(), g, counter(n), nil)
}

// RunUntil executes g repeatedly until pred returns true. pred is checked
// before the first iteration and after each one.
func (e *Executor) RunUntil(g *Graph, pred func() bool) (*Future, error) {
	return e.runUntil(context.Background(), g, pred, nil)
}

// RunWithCallback executes g once and calls fn before the future resolves.
func (e *Executor) RunWithCallback(g *Graph, fn func()) (*Future, error) {
	return e.runUntil(context.Background(), g, counter(1), fn)
}

func counter(n int) func() bool {
	return func() bool {
		stop := n <= 0
		n--
		return stop
	}
}

func (e *Executor) runUntil(ctx context.Context, g *Graph, pred func() bool, callback func()) (*Future, error) {
	if g == nil {
		panic("taskflow: nil graph")
	}
	if err := e.incrementTopology(); err != nil {
		return nil, err
	}

	if g.Empty() || pred() {
		if callback != nil {
			callback()
		}
		e.decrementTopology()
		return resolvedFuture(nil), nil
	}

	tp := newTopology(ctx, g, pred, callback)
	if g.enqueue(tp) {
		e.startTopology(nil, tp)
	}
	return tp.future, nil
}

// Async runs fn on a worker outside of any graph.
func (e *Executor) Async(fn TaskFunc) (*Future, error) {
	return e.async(context.Background(), fn)
}

// AsyncContext is Async with a context that fn receives and that cancels
// the task if it has not started yet.
func (e *Executor) AsyncContext(ctx context.Context, fn TaskFunc) (*Future, error) {
	return e.async(ctx, fn)
}

// SilentAsync runs fn on a worker and discards its result. Failures are
// logged.
func (e *Executor) SilentAsync(fn TaskFunc) error {
	_, err := e.async(context.Background(), fn)
	return err
}

type asyncWork struct {
	fn  TaskFunc
	ctx context.Context
}

func (e *Executor) async(ctx context.Context, fn TaskFunc) (*Future, error) {
	if fn == nil {
		panic("taskflow: nil async function")
	}
	if err := e.incrementTopology(); err != nil {
		return nil, err
	}
	actx, cancel := context.WithCancel(ctx)
	f := newFuture(cancel)
	n := newNode(nil, "async", KindAsync, &asyncWork{fn: fn, ctx: actx})
	n.future = f
	e.schedule(nil, n)
	return f, nil
}

// WaitForAll blocks until every submitted run and async task completes.
// It must not be called from inside a task.
func (e *Executor) WaitForAll() {
	e.topoMu.Lock()
	for e.numTopologies > 0 {
		e.topoCond.Wait()
	}
	e.topoMu.Unlock()
}

// Shutdown stops accepting work, waits for everything submitted so far and
// stops the workers. The returned channel closes when all workers exited.
func (e *Executor) Shutdown() <-chan struct{} {
	e.shutdownOnce.Do(func() {
		e.topoMu.Lock()
		e.closing = true
		e.topoMu.Unlock()

		go func() {
			e.WaitForAll()
			e.done.Store(true)
			e.notifier.Notify(true)
			e.wg.Wait()
			e.logger.Debug("executor stopped")
			close(e.shutdownCh)
		}()
	})
	return e.shutdownCh
}

func (e *Executor) incrementTopology() error {
	e.topoMu.Lock()
	defer e.topoMu.Unlock()
	if e.closing {
		return gferrors.ErrShutDown
	}
	e.numTopologies++
	if e.metrics != nil {
		e.metrics.topologies.Inc()
	}
	return nil
}

func (e *Executor) decrementTopology() {
	e.topoMu.Lock()
	defer e.topoMu.Unlock()
	e.numTopologies--
	if e.metrics != nil {
		e.metrics.topologies.Dec()
	}
	if e.numTopologies == 0 {
		e.topoCond.Broadcast()
	}
}

// schedule hands n to w's deque when called from one of this executor's
// workers, otherwise to the shared queue.
func (e *Executor) schedule(w *worker, n *node) {
	e.observeSchedule(w, n)
	if w != nil && w.exec == e {
		w.wsq.Push(n)
	} else {
		e.shared.push(n)
	}
	e.notifier.Notify(false)
}

func (e *Executor) scheduleAll(w *worker, nodes []*node) {
	if len(nodes) == 0 {
		return
	}
	for _, n := range nodes {
		e.observeSchedule(w, n)
	}
	if w != nil && w.exec == e {
		for _, n := range nodes {
			w.wsq.Push(n)
		}
	} else {
		e.shared.push(nodes...)
	}
	e.notifier.NotifyN(len(nodes))
}

// setUpGraph prepares every node of g for a run and returns the sources.
func (e *Executor) setUpGraph(g *Graph, tp *topology, parent *node, state uint32) []*node {
	var src []*node
	for _, n := range g.nodes {
		n.topology = tp
		n.parent = parent
		n.state.Store(state)
		n.setUpJoinCounter()
		if len(n.dependents) == 0 {
			src = append(src, n)
		}
	}
	return src
}

func (e *Executor) startTopology(w *worker, tp *topology) {
	tp.sources = e.setUpGraph(tp.graph, tp, nil, 0)
	if len(tp.sources) == 0 {
		tp.setError(gferrors.NewValidationError("taskflow", "graph", tp.graph.name, "has no source task").
			WithHint("every task has a dependent, so nothing can start"))
		e.tearDownTopology(w, tp)
		return
	}
	tp.join.Store(int64(len(tp.sources)))
	e.scheduleAll(w, tp.sources)
}

// tearDownTopology runs when the last task of an iteration finishes. It
// either starts the next iteration or resolves the run and starts the next
// queued run of the same graph.
func (e *Executor) tearDownTopology(w *worker, tp *topology) {
	if !tp.isCanceled() && !tp.pred() {
		tp.join.Store(int64(len(tp.sources)))
		e.scheduleAll(w, tp.sources)
		return
	}

	next := tp.graph.dequeue()
	if err := tp.firstError(); err != nil {
		e.logger.Debug("run failed", "graph", tp.graph.name, "run", tp.id, "err", err)
	}
	tp.finish()
	if next != nil {
		e.startTopology(w, next)
	}
	e.decrementTopology()
}
