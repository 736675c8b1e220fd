package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// Config holds pipeline configuration options.
type Config struct {
	// Name labels the lowered graph, its tasks and metrics.
	// Defaults to "pipeline".
	Name string

	// Lines is the number of tokens that may be in flight at once.
	// Must be at least 1.
	Lines int

	// Pipes is the pipe sequence. The first pipe must be Serial.
	Pipes []Pipe

	// Metrics enables Prometheus collection when non-nil.
	Metrics *metrics.Registry
}

// Stats holds pipeline counters accumulated over all runs.
type Stats struct {
	Runs      uint64
	Tokens    uint64
	Deferrals uint64
	Resets    uint64
}

// Pipeline runs tokens through a sequence of pipes on a fixed number of
// lines. It is lowered into a taskflow graph: compose it into another graph
// with ComposedOf or run FlowGraph directly on an executor.
//
// Token ids continue across runs until Reset. A run that failed or was
// cancelled leaves the pipeline reset for the next run.
type Pipeline struct {
	name    string
	lines   int
	pipes   []Pipe
	metrics *pipeMetrics

	graph *taskflow.Graph
	tasks []taskflow.Task
	flows []Pipeflow
	// joins holds one counter per (line, pipe). Serial pipes need two
	// decrements to become ready, parallel pipes one.
	joins []atomic.Int32

	numTokens atomic.Uint64
	dirty     atomic.Bool

	mu      sync.Mutex
	ticket  int // line that runs the first pipe next
	stopped bool
	parked  int // line waiting for a deferred token after Stop, or -1
	tokens  tokenState

	runs      atomic.Uint64
	passed    atomic.Uint64
	deferrals atomic.Uint64
	resets    atomic.Uint64
}

type pipeMetrics struct {
	tokens    prometheus.Counter
	deferrals prometheus.Counter
	resets    prometheus.Counter
}

func newPipeMetrics(reg *metrics.Registry, name string) *pipeMetrics {
	if reg == nil {
		return nil
	}
	return &pipeMetrics{
		tokens:    reg.PipelineTokens.WithLabelValues(name),
		deferrals: reg.PipelineDeferrals.WithLabelValues(name),
		resets:    reg.PipelineResets.WithLabelValues(name),
	}
}

// New creates a pipeline with the given number of lines and pipes.
func New(lines int, pipes ...Pipe) (*Pipeline, error) {
	return NewWithConfig(Config{Lines: lines, Pipes: pipes})
}

// NewWithConfig creates a pipeline from config. An unusable shape is
// reported as a *errors.PipelineError.
func NewWithConfig(config Config) (*Pipeline, error) {
	if err := validate(config.Lines, config.Pipes); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = "pipeline"
	}

	p := &Pipeline{
		name:    config.Name,
		lines:   config.Lines,
		metrics: newPipeMetrics(config.Metrics, config.Name),
		flows:   make([]Pipeflow, config.Lines),
		tokens:  newTokenState(),
	}
	p.setPipes(slices.Clone(config.Pipes))
	p.build()
	p.resetLocked()
	return p, nil
}

func validate(lines int, pipes []Pipe) error {
	fail := func(reason string) error {
		return &gferrors.PipelineError{Lines: lines, Pipes: len(pipes), Reason: reason}
	}
	if lines < 1 {
		return fail("at least one line is required")
	}
	if len(pipes) == 0 {
		return fail("at least one pipe is required")
	}
	if pipes[0].Type != Serial {
		return fail("the first pipe must be serial")
	}
	if _, i, ok := lo.FindIndexOf(pipes, func(p Pipe) bool {
		return p.Type != Serial && p.Type != Parallel
	}); ok {
		return fail(fmt.Sprintf("pipe %d has an invalid type", i))
	}
	if _, i, ok := lo.FindIndexOf(pipes, func(p Pipe) bool { return p.Fn == nil }); ok {
		return fail(fmt.Sprintf("pipe %d has no callable", i))
	}
	return nil
}

func (p *Pipeline) setPipes(pipes []Pipe) {
	p.pipes = pipes
	p.joins = make([]atomic.Int32, p.lines*len(pipes))
}

// build lowers the pipeline: a condition task starts the line holding the
// first-pipe ticket, and each line is a runtime task that schedules the
// others as their join counters drop to zero.
func (p *Pipeline) build() {
	p.graph = taskflow.NewGraph(p.name)
	start := p.graph.AddCondition(p.name, p.start)
	p.tasks = make([]taskflow.Task, p.lines)
	for l := range p.tasks {
		line := l
		p.tasks[l] = p.graph.AddRuntime(fmt.Sprintf("%s/line-%d", p.name, l),
			func(ctx context.Context, rt *taskflow.Runtime) error {
				return p.runLine(ctx, rt, line)
			})
	}
	start.Precede(p.tasks...)
}

// FlowGraph returns the lowered graph.
func (p *Pipeline) FlowGraph() *taskflow.Graph {
	return p.graph
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// NumLines returns the number of parallel lines.
func (p *Pipeline) NumLines() int {
	return p.lines
}

// NumPipes returns the number of pipes in the current layout.
func (p *Pipeline) NumPipes() int {
	return len(p.pipes)
}

// NumTokens returns the number of tokens generated since construction or
// the last reset.
func (p *Pipeline) NumTokens() uint64 {
	return p.numTokens.Load()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Runs:      p.runs.Load(),
		Tokens:    p.passed.Load(),
		Deferrals: p.deferrals.Load(),
		Resets:    p.resets.Load(),
	}
}

// Reset restarts token ids at zero and clears all deferral state. It
// panics if a run of the pipeline is in flight.
func (p *Pipeline) Reset() {
	p.mustBeIdle()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	p.countReset()
}

func (p *Pipeline) mustBeIdle() {
	if p.graph.Running() {
		panic("pipeline: reset while a run is in flight")
	}
}

func (p *Pipeline) join(line, pipe int) *atomic.Int32 {
	return &p.joins[line*len(p.pipes)+pipe]
}

func (p *Pipeline) resetLocked() {
	p.numTokens.Store(0)
	p.ticket = 0
	p.stopped = false
	p.parked = -1
	p.tokens.clear()

	for l := 0; l < p.lines; l++ {
		p.flows[l] = Pipeflow{line: l, deps: p.flows[l].deps[:0]}
		for f := range p.pipes {
			var v int32
			switch {
			case l == 0 && f == 0:
				// started directly by the condition task
			case l == 0:
				// no earlier token on another line
				v = 1
			case f == 0:
				// this line has no token of its own yet
				v = int32(p.pipes[0].Type) - 1
			default:
				v = int32(p.pipes[f].Type)
			}
			p.join(l, f).Store(v)
		}
	}

	p.dirty.Store(false)
}

func (p *Pipeline) countReset() {
	p.resets.Add(1)
	if p.metrics != nil {
		p.metrics.resets.Inc()
	}
}

// start is the condition task of the lowered graph. It returns the line
// holding the first-pipe ticket.
func (p *Pipeline) start(context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirty.Load() || !p.tokens.settled() {
		p.resetLocked()
		p.countReset()
	}
	p.stopped = false
	p.parked = -1
	p.runs.Add(1)
	return p.ticket, nil
}

// call runs the current pipe. Any failure, including a panic, leaves the
// pipeline dirty so the next run starts from a reset.
func (p *Pipeline) call(pf *Pipeflow) error {
	ok := false
	defer func() {
		if !ok {
			p.dirty.Store(true)
		}
	}()
	err := p.pipes[pf.pipe].Fn(pf)
	ok = err == nil
	return err
}

// runLine drives tokens through the pipes. When a step makes another line
// ready, the worker either continues as that line or schedules it.
func (p *Pipeline) runLine(ctx context.Context, rt *taskflow.Runtime, line int) error {
	pf := &p.flows[line]
	numPipes := len(p.pipes)

	for {
		if ctx.Err() != nil {
			p.dirty.Store(true)
			return nil
		}

		// re-arm for the next token this line brings here
		p.join(pf.line, pf.pipe).Store(int32(p.pipes[pf.pipe].Type))
		pf.ctx = ctx

		if pf.pipe == 0 {
			passed, err := p.firstPipe(rt, pf)
			if !passed {
				return err
			}
		} else if err := p.call(pf); err != nil {
			return err
		}

		if pf.pipe == numPipes-1 {
			p.finish(rt, pf.token)
		}

		cur := pf.pipe
		next := (cur + 1) % numPipes
		nextLine := (pf.line + 1) % p.lines
		pf.pipe = next

		var ready int
		if p.pipes[cur].Type == Serial && p.join(nextLine, cur).Add(-1) == 0 {
			ready |= 1
		}
		if p.join(pf.line, next).Add(-1) == 0 {
			ready |= 2
		}

		switch ready {
		case 1:
			pf = &p.flows[nextLine]
		case 2:
		case 3:
			rt.Schedule(p.tasks[nextLine])
		default:
			return nil
		}
	}
}

// firstPipe runs the first pipe on the ticket line until a token passes
// it. It returns false when the line should stop: the pipeline drained,
// the line parked waiting for a deferred token, or a pipe failed.
func (p *Pipeline) firstPipe(rt *taskflow.Runtime, pf *Pipeflow) (bool, error) {
	for {
		p.mu.Lock()
		next := p.nextLocked(pf.line)
		p.mu.Unlock()

		switch next.action {
		case actionPark, actionDrained:
			return false, nil
		case actionUnresolved:
			p.dirty.Store(true)
			return false, gferrors.NewUnresolvedError(next.unresolved)
		}

		pf.token = next.token
		pf.numDeferrals = next.deferrals
		fresh := next.fresh

		for {
			pf.stop = false
			pf.deps = pf.deps[:0]
			if err := p.call(pf); err != nil {
				return false, err
			}

			if pf.stop {
				p.mu.Lock()
				p.stopped = true
				if !fresh {
					p.tokens.drop(pf.token)
				}
				p.mu.Unlock()
				break
			}

			if fresh {
				p.numTokens.Add(1)
				fresh = false
			}

			if len(pf.deps) == 0 {
				p.mu.Lock()
				p.tokens.pass(pf.token)
				p.ticket = (pf.line + 1) % p.lines
				p.mu.Unlock()

				p.passed.Add(1)
				if p.metrics != nil {
					p.metrics.tokens.Inc()
				}
				return true, nil
			}

			pf.numDeferrals++
			p.deferrals.Add(1)
			if p.metrics != nil {
				p.metrics.deferrals.Inc()
			}

			p.mu.Lock()
			waits := p.tokens.deferOn(pf.token, pf.numDeferrals, pf.deps, p.numTokens.Load())
			p.mu.Unlock()
			if waits {
				break
			}
			// everything it deferred on already finished: call it again
		}
	}
}

type action int

const (
	actionRun action = iota
	actionPark
	actionDrained
	actionUnresolved
)

type nextToken struct {
	action     action
	token      uint64
	deferrals  int
	fresh      bool
	unresolved []uint64
}

// nextLocked picks the token for the first pipe. Deferred tokens that
// became ready go first, in the order they became ready.
func (p *Pipeline) nextLocked(line int) nextToken {
	if tok, deferrals, ok := p.tokens.popReady(); ok {
		return nextToken{action: actionRun, token: tok, deferrals: deferrals}
	}
	if !p.stopped {
		return nextToken{action: actionRun, token: p.numTokens.Load(), fresh: true}
	}
	if p.tokens.numInFlight() > 0 {
		// a token still in flight may release a deferred one
		p.parked = line
		return nextToken{action: actionPark}
	}
	if w := p.tokens.waitingTokens(); len(w) > 0 {
		return nextToken{action: actionUnresolved, unresolved: w}
	}
	return nextToken{action: actionDrained}
}

// finish records that token passed the last pipe and releases the tokens
// deferred on it. A line parked after Stop is woken once there is a ready
// token or nothing left in flight.
func (p *Pipeline) finish(rt *taskflow.Runtime, token uint64) {
	p.mu.Lock()
	p.tokens.finish(token)
	wake := -1
	if p.parked >= 0 && (p.tokens.numReady() > 0 || p.tokens.numInFlight() == 0) {
		wake = p.parked
		p.parked = -1
	}
	p.mu.Unlock()

	if wake >= 0 {
		rt.Schedule(p.tasks[wake])
	}
}
