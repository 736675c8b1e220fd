package testutil

import (
	"bytes"
	"errors"
	"sync"
)

// ErrSimulated is returned by MockWriter once its write budget is spent.
var ErrSimulated = errors.New("simulated error")

// MockWriter records what is written to it and starts failing after a
// number of successful writes. DOT dumps, summaries and traces are written
// through it in tests.
type MockWriter struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes int
	budget int // successful writes left; negative means unlimited
	err    error
}

// NewMockWriter returns a writer that never fails.
func NewMockWriter() *MockWriter {
	return &MockWriter{budget: -1}
}

// FailAfter lets n more writes succeed; every later write returns
// ErrSimulated.
func (mw *MockWriter) FailAfter(n int) *MockWriter {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.budget = n
	mw.err = ErrSimulated
	return mw
}

// SetAlwaysError makes every write fail with err.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.budget = 0
	mw.err = err
}

func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writes++
	if mw.budget == 0 {
		return 0, mw.err
	}
	if mw.budget > 0 {
		mw.budget--
	}
	return mw.buf.Write(p)
}

// String returns everything written successfully.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Writes returns the number of Write calls, failed ones included.
func (mw *MockWriter) Writes() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writes
}
