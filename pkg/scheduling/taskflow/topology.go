package taskflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
)

// topology is one submitted run of a graph. It may execute the graph
// several times (RunN, RunUntil) before its future resolves.
type topology struct {
	id     uuid.UUID
	graph  *Graph
	future *Future

	parent    context.Context
	ctx       context.Context
	cancelCtx context.CancelFunc
	done      <-chan struct{}

	pred     func() bool
	callback func()
	sources  []*node

	// join counts scheduled tasks of the current iteration that have not
	// finished, including detached subflow tasks.
	join atomic.Int64

	errMu sync.Mutex
	err   error
}

func newTopology(ctx context.Context, g *Graph, pred func() bool, callback func()) *topology {
	tctx, cancel := context.WithCancel(ctx)
	tp := &topology{
		graph:     g,
		parent:    ctx,
		ctx:       tctx,
		cancelCtx: cancel,
		pred:      pred,
		callback:  callback,
	}
	tp.done = tctx.Done()
	tp.future = newFuture(cancel)
	tp.id = tp.future.id
	return tp
}

// isCanceled reports whether the run's context is done, either through
// Future.Cancel, a task failure or the caller's context.
func (tp *topology) isCanceled() bool {
	select {
	case <-tp.done:
		return true
	default:
		return false
	}
}

// setError records err if it is the first failure and cancels the run.
func (tp *topology) setError(err error) {
	tp.errMu.Lock()
	if tp.err == nil {
		tp.err = err
	}
	tp.errMu.Unlock()
	tp.cancelCtx()
}

func (tp *topology) firstError() error {
	tp.errMu.Lock()
	defer tp.errMu.Unlock()
	return tp.err
}

func (tp *topology) result() error {
	if err := tp.firstError(); err != nil {
		return err
	}
	if tp.isCanceled() {
		if cause := tp.parent.Err(); cause != nil {
			return fmt.Errorf("%w: %w", gferrors.ErrCanceled, cause)
		}
		return gferrors.ErrCanceled
	}
	return nil
}

// finish resolves the future. No task of this run may execute afterwards.
func (tp *topology) finish() {
	err := tp.result()
	tp.cancelCtx()
	if tp.callback != nil {
		tp.callback()
	}
	tp.future.resolve(err)
}
