package taskflow

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Future is the completion handle of a submitted run or async task.
type Future struct {
	id   uuid.UUID
	done chan struct{}

	mu  sync.RWMutex
	err error

	cancel func()
}

func newFuture(cancel func()) *Future {
	return &Future{
		id:     uuid.New(),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// resolvedFuture returns a future that is already complete.
func resolvedFuture(err error) *Future {
	f := newFuture(nil)
	f.resolve(err)
	return f
}

func (f *Future) resolve(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.done)
}

// RunID identifies the run. Observers see the same value through
// Task.RunID.
func (f *Future) RunID() string {
	return f.id.String()
}

// Done is closed when the run completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the run completes and returns its error. Calling Wait
// from inside a task of the same executor can deadlock.
func (f *Future) Wait() error {
	<-f.done
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// WaitContext is Wait bounded by ctx. The run keeps going if ctx expires.
func (f *Future) WaitContext(ctx context.Context) error {
	select {
	case <-f.done:
		return f.Wait()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel asks the run to stop dispatching tasks. Tasks already running
// finish normally. It returns false if the run had already completed.
func (f *Future) Cancel() bool {
	select {
	case <-f.done:
		return false
	default:
	}
	if f.cancel != nil {
		f.cancel()
	}
	return true
}
