package pipeline

import (
	"context"
)

// PipeType tells whether a pipe processes tokens one at a time in order or
// concurrently across lines.
type PipeType int

const (
	// Parallel pipes may run on several lines at once, in any token order.
	Parallel PipeType = 1
	// Serial pipes run one token at a time, in the order tokens left the
	// first pipe.
	Serial PipeType = 2
)

func (t PipeType) String() string {
	switch t {
	case Serial:
		return "serial"
	case Parallel:
		return "parallel"
	default:
		return "invalid"
	}
}

// Pipe is one stage of a pipeline.
type Pipe struct {
	Type PipeType
	Fn   func(pf *Pipeflow) error
}

// SerialPipe creates a serial pipe.
func SerialPipe(fn func(pf *Pipeflow) error) Pipe {
	return Pipe{Type: Serial, Fn: fn}
}

// ParallelPipe creates a parallel pipe.
func ParallelPipe(fn func(pf *Pipeflow) error) Pipe {
	return Pipe{Type: Parallel, Fn: fn}
}

// Pipeflow is the view of the token a pipe callable is processing. It is
// only valid during the call.
type Pipeflow struct {
	ctx          context.Context
	line         int
	pipe         int
	token        uint64
	numDeferrals int

	stop bool
	deps []uint64
}

// Token returns the id of the token. Ids are dense and increasing in the
// order the first pipe generated them.
func (pf *Pipeflow) Token() uint64 {
	return pf.token
}

// Line returns the line the token travels on, in [0, NumLines).
func (pf *Pipeflow) Line() int {
	return pf.line
}

// Pipe returns the index of the pipe being run.
func (pf *Pipeflow) Pipe() int {
	return pf.pipe
}

// NumDeferrals returns how many times the token has been deferred so far.
func (pf *Pipeflow) NumDeferrals() int {
	return pf.numDeferrals
}

// Context returns the context of the run the pipeline is part of.
func (pf *Pipeflow) Context() context.Context {
	return pf.ctx
}

// Stop ends token generation. The current token is discarded and the
// pipeline drains the tokens already past the first pipe. Only the first
// pipe may call Stop.
func (pf *Pipeflow) Stop() {
	if pf.pipe != 0 {
		panic("pipeline: Stop called outside the first pipe")
	}
	pf.stop = true
}

// Defer makes the current token wait until token finishes the last pipe.
// The first pipe is called again for the current token once every token it
// deferred on has finished. Token ids not generated yet are allowed. Only
// the first pipe may call Defer.
func (pf *Pipeflow) Defer(token uint64) {
	if pf.pipe != 0 {
		panic("pipeline: Defer called outside the first pipe")
	}
	pf.deps = append(pf.deps, token)
}
