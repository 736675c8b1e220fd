package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
	"github.com/vnykmshr/flowgraph/pkg/common/validation"
	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

var (
	// ErrJobExists is returned when a job id is already scheduled.
	ErrJobExists = errors.New("scheduler: job already exists")

	// ErrTooManyJobs is returned when MaxJobs jobs are already scheduled.
	ErrTooManyJobs = errors.New("scheduler: maximum number of jobs reached")

	// ErrAlreadyRunning is returned by Start on a started scheduler.
	ErrAlreadyRunning = errors.New("scheduler: already running")
)

const maxIDLength = 255

// Job describes a scheduled graph.
type Job struct {
	ID       string
	Graph    string
	RunAt    time.Time
	Interval time.Duration // zero for one-time and cron jobs
	Cron     string
	Created  time.Time
	Runs     uint64
	Skipped  uint64
	Running  bool
}

// JobSpec describes a job to add. Exactly one of At, Interval and Cron
// selects the trigger.
type JobSpec struct {
	ID    string
	Graph taskflow.Composable

	// At runs the graph once at the given time.
	At time.Time
	// Interval runs the graph now and then every Interval.
	Interval time.Duration
	// Cron runs the graph on a six-field cron expression, seconds first.
	Cron string

	Options JobOptions
}

// Scheduler triggers graph runs on an executor at given times, at fixed
// intervals or on cron expressions. A trigger that fires while the job's
// previous run is still in flight is skipped.
type Scheduler interface {
	// Basic scheduling
	Schedule(id string, g taskflow.Composable, runAt time.Time) error
	ScheduleAfter(id string, g taskflow.Composable, delay time.Duration) error
	ScheduleRepeating(id string, g taskflow.Composable, interval time.Duration) error

	// Cron scheduling
	ScheduleCron(id string, cronExpr string, g taskflow.Composable) error

	// Add schedules a job with options.
	Add(spec JobSpec) error

	// Job management
	Cancel(id string) bool
	CancelAll()
	List() []Job

	// Lifecycle
	Start() error
	Stop() <-chan struct{}
}

// Config holds scheduler configuration.
type Config struct {
	// Name labels log lines and metrics. Defaults to "scheduler".
	Name string

	// Executor runs triggered graphs. If nil, the scheduler creates one
	// with a worker per CPU and shuts it down on Stop.
	Executor *taskflow.Executor

	Location     *time.Location // for cron expressions, default time.Local
	TickInterval time.Duration  // how often due jobs are checked, default 50ms
	MaxJobs      int            // default 10000

	// Logger receives trigger and failure records. If nil, log.Default()
	// is used.
	Logger *log.Logger

	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Registry
}

type job struct {
	id       string
	graph    *taskflow.Graph
	runAt    time.Time
	interval time.Duration
	cronExpr string
	schedule cron.Schedule
	opts     JobOptions
	created  time.Time

	runs    uint64
	skipped uint64
	running bool

	seq   uint64
	index int
}

type schedMetrics struct {
	triggered prometheus.Counter
	skipped   prometheus.Counter
	failed    prometheus.Counter
}

type scheduler struct {
	name         string
	exec         *taskflow.Executor
	ownExec      bool
	location     *time.Location
	tickInterval time.Duration
	maxJobs      int
	cronParser   cron.Parser
	logger       *log.Logger
	metrics      *schedMetrics

	mu      sync.Mutex
	jobs    map[string]*job
	queue   jobQueue
	seq     uint64
	running bool
	done    chan struct{}
	loopEnd chan struct{}

	inflight sync.WaitGroup
}

// New creates a scheduler with default configuration and its own executor.
func New() Scheduler {
	s, err := NewWithConfig(Config{})
	if err != nil {
		panic(err)
	}
	return s
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (Scheduler, error) {
	if err := validation.ValidateNonNegativeDuration("scheduler", "TickInterval", cfg.TickInterval); err != nil {
		return nil, err
	}
	if cfg.MaxJobs < 0 {
		return nil, gferrors.NewValidationError("scheduler", "MaxJobs", cfg.MaxJobs, "must be non-negative")
	}

	name := cfg.Name
	if name == "" {
		name = "scheduler"
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	tickInterval := cfg.TickInterval
	if tickInterval == 0 {
		tickInterval = 50 * time.Millisecond
	}
	maxJobs := cfg.MaxJobs
	if maxJobs == 0 {
		maxJobs = 10000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &scheduler{
		name:         name,
		exec:         cfg.Executor,
		location:     location,
		tickInterval: tickInterval,
		maxJobs:      maxJobs,
		cronParser:   cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:       logger.With("scheduler", name),
		jobs:         make(map[string]*job),
	}
	if s.exec == nil {
		s.exec = taskflow.New(runtime.NumCPU())
		s.ownExec = true
	}
	if cfg.Metrics != nil {
		s.metrics = &schedMetrics{
			triggered: cfg.Metrics.JobsTriggered.WithLabelValues(name),
			skipped:   cfg.Metrics.JobsSkipped.WithLabelValues(name),
			failed:    cfg.Metrics.JobsFailed.WithLabelValues(name),
		}
	}
	return s, nil
}

func (s *scheduler) Schedule(id string, g taskflow.Composable, runAt time.Time) error {
	if runAt.IsZero() {
		return gferrors.NewValidationError("scheduler", "runAt", runAt, "cannot be zero")
	}
	return s.Add(JobSpec{ID: id, Graph: g, At: runAt})
}

func (s *scheduler) ScheduleAfter(id string, g taskflow.Composable, delay time.Duration) error {
	return s.Schedule(id, g, time.Now().Add(delay))
}

func (s *scheduler) ScheduleRepeating(id string, g taskflow.Composable, interval time.Duration) error {
	if interval <= 0 {
		return gferrors.NewValidationError("scheduler", "interval", interval, "must be positive")
	}
	return s.Add(JobSpec{ID: id, Graph: g, Interval: interval})
}

func (s *scheduler) ScheduleCron(id string, cronExpr string, g taskflow.Composable) error {
	if cronExpr == "" {
		return gferrors.NewValidationError("scheduler", "cronExpr", cronExpr, "cannot be empty")
	}
	return s.Add(JobSpec{ID: id, Graph: g, Cron: cronExpr})
}

func (s *scheduler) Add(spec JobSpec) error {
	if err := validation.ValidateNotEmpty("scheduler", "ID", spec.ID); err != nil {
		return err
	}
	if err := validation.ValidateAtMost("scheduler", "len(ID)", len(spec.ID), maxIDLength); err != nil {
		return err
	}
	if spec.Graph == nil || spec.Graph.FlowGraph() == nil {
		return gferrors.NewValidationError("scheduler", "Graph", nil, "cannot be nil")
	}
	triggers := 0
	for _, set := range []bool{!spec.At.IsZero(), spec.Interval != 0, spec.Cron != ""} {
		if set {
			triggers++
		}
	}
	if triggers != 1 {
		return gferrors.NewValidationError("scheduler", "JobSpec", spec.ID, "exactly one of At, Interval and Cron must be set")
	}
	if spec.Interval < 0 {
		return gferrors.NewValidationError("scheduler", "Interval", spec.Interval, "must be positive")
	}
	if spec.Options.MaxRuns < 0 {
		return gferrors.NewValidationError("scheduler", "MaxRuns", spec.Options.MaxRuns, "must be non-negative")
	}

	now := time.Now()
	j := &job{
		id:       spec.ID,
		graph:    spec.Graph.FlowGraph(),
		interval: spec.Interval,
		cronExpr: spec.Cron,
		opts:     spec.Options,
		created:  now,
		index:    -1,
	}
	switch {
	case spec.Cron != "":
		sched, err := s.cronParser.Parse(spec.Cron)
		if err != nil {
			return gferrors.NewValidationError("scheduler", "Cron", spec.Cron, err.Error()).
				WithHint("use six fields, seconds first, e.g. \"*/5 * * * * *\"")
		}
		j.schedule = sched
		j.runAt = sched.Next(now.In(s.location))
	case spec.Interval > 0:
		j.runAt = now
	default:
		j.runAt = spec.At
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.id]; exists {
		return fmt.Errorf("%w: %q", ErrJobExists, j.id)
	}
	if len(s.jobs) >= s.maxJobs {
		return fmt.Errorf("%w (%d)", ErrTooManyJobs, s.maxJobs)
	}

	s.seq++
	j.seq = s.seq
	s.jobs[j.id] = j
	heap.Push(&s.queue, j)
	return nil
}

func (s *scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if !exists {
		return false
	}
	delete(s.jobs, id)
	s.queue.remove(j)
	return true
}

func (s *scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = make(map[string]*job)
	for _, j := range s.queue {
		j.index = -1
	}
	s.queue = nil
}

// List returns the scheduled jobs ordered by next run time.
func (s *scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, Job{
			ID:       j.id,
			Graph:    j.graph.Name(),
			RunAt:    j.runAt,
			Interval: j.interval,
			Cron:     j.cronExpr,
			Created:  j.created,
			Runs:     j.runs,
			Skipped:  j.skipped,
			Running:  j.running,
		})
	}
	slices.SortFunc(jobs, func(a, b Job) int {
		if c := a.RunAt.Compare(b.RunAt); c != 0 {
			return c
		}
		return a.Created.Compare(b.Created)
	})
	return jobs
}

func (s *scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.done = make(chan struct{})
	s.loopEnd = make(chan struct{})

	go s.run(s.done, s.loopEnd)
	s.logger.Debug("scheduler started", "jobs", len(s.jobs), "tick", s.tickInterval)
	return nil
}

// Stop ends triggering. The returned channel closes once runs already
// triggered have completed and, if the scheduler created its executor,
// the executor has shut down.
func (s *scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	var loopEnd chan struct{}
	if s.running {
		s.running = false
		close(s.done)
		loopEnd = s.loopEnd
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if loopEnd != nil {
			<-loopEnd
		}
		s.inflight.Wait()
		if s.ownExec {
			<-s.exec.Shutdown()
		}
		s.logger.Debug("scheduler stopped")
	}()
	return stopped
}

func (s *scheduler) run(done <-chan struct{}, loopEnd chan<- struct{}) {
	defer close(loopEnd)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.fireDue(time.Now())
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			s.fireDue(now)
		}
	}
}

// fireDue triggers every job whose run time has come.
func (s *scheduler) fireDue(now time.Time) {
	var due []*job

	s.mu.Lock()
	for {
		j := s.queue.peek()
		if j == nil || j.runAt.After(now) {
			break
		}
		heap.Pop(&s.queue)

		if j.running {
			j.skipped++
			if s.metrics != nil {
				s.metrics.skipped.Inc()
			}
			s.logger.Debug("previous run still in flight, skipping", "job", j.id)
		} else {
			j.running = true
			j.runs++
			due = append(due, j)
		}

		if !s.reschedule(j, now) {
			delete(s.jobs, j.id)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		s.trigger(j)
	}
}

// reschedule computes the next run time of j and reports whether j stays
// scheduled.
func (s *scheduler) reschedule(j *job, now time.Time) bool {
	if j.opts.MaxRuns > 0 && j.runs >= uint64(j.opts.MaxRuns) {
		return false
	}
	switch {
	case j.interval > 0:
		j.runAt = now.Add(j.interval)
	case j.schedule != nil:
		j.runAt = j.schedule.Next(now.In(s.location))
	default:
		return false
	}
	heap.Push(&s.queue, j)
	return true
}

func (s *scheduler) trigger(j *job) {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if j.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, j.opts.Timeout)
	}

	if s.metrics != nil {
		s.metrics.triggered.Inc()
	}
	s.logger.Debug("triggering run", "job", j.id, "graph", j.graph.Name(), "run", j.runs)

	fut, err := s.exec.RunContext(ctx, j.graph)
	if err != nil {
		cancel()
		s.complete(j, err)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		err := fut.Wait()
		cancel()
		s.complete(j, err)
	}()
}

func (s *scheduler) complete(j *job, err error) {
	s.mu.Lock()
	j.running = false
	if err != nil {
		if s.metrics != nil {
			s.metrics.failed.Inc()
		}
		s.logger.Warn("scheduled run failed", "job", j.id, "err", err)
		if j.opts.StopOnError && s.jobs[j.id] == j {
			delete(s.jobs, j.id)
			s.queue.remove(j)
		}
	}
	s.mu.Unlock()

	if j.opts.OnComplete != nil {
		j.opts.OnComplete(j.id, err)
	}
}
