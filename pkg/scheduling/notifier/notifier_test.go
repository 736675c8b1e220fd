package notifier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { New(-1) })
	assert.Panics(t, func() { New(MaxWaiters + 1) })
	assert.Equal(t, 3, New(3).Size())
}

func TestNotifyWithoutWaitersIsNoop(t *testing.T) {
	n := New(2)
	n.Notify(false)
	n.Notify(true)
	assert.Equal(t, stackMask, n.state.Load())
}

func TestCancelWaitRestoresState(t *testing.T) {
	n := New(1)
	w := n.Waiter(0)
	n.PrepareWait(w)
	n.CancelWait(w)
	assert.Equal(t, stackMask, n.state.Load())
}

// A signal posted between PrepareWait and CommitWait must not be lost.
func TestCommitWaitConsumesPendingSignal(t *testing.T) {
	n := New(1)
	w := n.Waiter(0)
	n.PrepareWait(w)
	n.Notify(false)

	done := make(chan struct{})
	go func() {
		n.CommitWait(w)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("CommitWait blocked despite pending signal")
	}
	assert.Equal(t, uint64(0), n.state.Load()&(waiterMask|signalMask))
}

func TestNotifyWakesSleeper(t *testing.T) {
	n := New(1)
	w := n.Waiter(0)

	var woke atomic.Bool
	committed := make(chan struct{})
	go func() {
		n.PrepareWait(w)
		close(committed)
		n.CommitWait(w)
		woke.Store(true)
	}()

	<-committed
	require.Eventually(t, func() bool {
		n.Notify(false)
		return woke.Load()
	}, time.Second, time.Millisecond)
}

func TestNotifyAllWakesEveryone(t *testing.T) {
	const workers = 8
	n := New(workers)

	var wg sync.WaitGroup
	var ready sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		ready.Add(1)
		go func(w *Waiter) {
			defer wg.Done()
			n.PrepareWait(w)
			ready.Done()
			n.CommitWait(w)
		}(n.Waiter(i))
	}
	ready.Wait()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		n.Notify(true)
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("not all waiters woke up")
		case <-time.After(time.Millisecond):
		}
	}
}

// Producers publish work then notify; consumers follow the
// prepare/re-check/commit protocol. No item may be stranded.
func TestNoLostWakeups(t *testing.T) {
	const (
		consumers = 4
		items     = 20000
	)
	n := New(consumers)

	var (
		mu      sync.Mutex
		queue   int
		taken   atomic.Int64
		stopped atomic.Bool
	)
	tryTake := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if queue == 0 {
			return false
		}
		queue--
		return true
	}

	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func(w *Waiter) {
			defer wg.Done()
			for {
				if tryTake() {
					taken.Add(1)
					continue
				}
				n.PrepareWait(w)
				mu.Lock()
				pending := queue > 0
				mu.Unlock()
				if pending {
					n.CancelWait(w)
					continue
				}
				if stopped.Load() {
					n.CancelWait(w)
					n.Notify(true)
					return
				}
				n.CommitWait(w)
			}
		}(n.Waiter(i))
	}

	for i := 0; i < items; i++ {
		mu.Lock()
		queue++
		mu.Unlock()
		n.Notify(false)
	}

	require.Eventually(t, func() bool { return taken.Load() == items }, 5*time.Second, time.Millisecond)
	stopped.Store(true)
	n.Notify(true)
	wg.Wait()
}

func TestNotifyN(t *testing.T) {
	n := New(4)
	for i := 0; i < 4; i++ {
		n.PrepareWait(n.Waiter(i))
	}
	n.NotifyN(2)
	s := n.state.Load()
	assert.Equal(t, uint64(2), (s&signalMask)>>signalShift)

	n.NotifyN(10)
	s = n.state.Load()
	assert.Equal(t, uint64(4), (s&signalMask)>>signalShift)
}
