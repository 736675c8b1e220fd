// Package notifier provides an eventcount that lets idle workers sleep
// without missing work submitted concurrently.
//
// A worker that found nothing to do calls PrepareWait, re-checks every queue,
// and then either CancelWait (work appeared) or CommitWait (sleep). A
// producer calls Notify after publishing work. A Notify that follows a
// PrepareWait is never lost: either the waiter's re-check sees the work or
// the waiter is woken.
//
// The state word packs, from the low bits up: the index of the top of the
// sleeping-waiter stack, the number of pre-waiting workers, the number of
// pending signals for pre-waiters, and an epoch that defeats ABA on the
// stack.
package notifier

import (
	"sync"
	"sync/atomic"
)

const (
	waiterBits  = 14
	stackMask   = (uint64(1) << waiterBits) - 1
	waiterShift = waiterBits
	waiterMask  = ((uint64(1) << waiterBits) - 1) << waiterShift
	waiterInc   = uint64(1) << waiterShift
	signalShift = 2 * waiterBits
	signalMask  = ((uint64(1) << waiterBits) - 1) << signalShift
	signalInc   = uint64(1) << signalShift
	epochShift  = 3 * waiterBits
	epochBits   = 64 - epochShift
	epochMask   = ((uint64(1) << epochBits) - 1) << epochShift
	epochInc    = uint64(1) << epochShift
)

// MaxWaiters is the largest number of waiters a Notifier supports.
const MaxWaiters = int(stackMask)

const (
	notSignaled = iota
	waiting
	signaled
)

// Waiter is the per-worker parking slot. Waiters live in a fixed array owned
// by the Notifier; nothing is allocated on the wait path.
type Waiter struct {
	next  atomic.Uint64
	id    uint64
	epoch uint64

	mu    sync.Mutex
	cond  *sync.Cond
	state int
}

// Notifier is an eventcount over a fixed set of waiters.
type Notifier struct {
	state   atomic.Uint64
	waiters []Waiter
}

// New creates a notifier with n waiter slots.
func New(n int) *Notifier {
	if n < 0 || n > MaxWaiters {
		panic("notifier: waiter count out of range")
	}
	nt := &Notifier{waiters: make([]Waiter, n)}
	nt.state.Store(stackMask)
	for i := range nt.waiters {
		w := &nt.waiters[i]
		w.id = uint64(i)
		w.next.Store(stackMask)
		w.cond = sync.NewCond(&w.mu)
	}
	return nt
}

// Size returns the number of waiter slots.
func (n *Notifier) Size() int {
	return len(n.waiters)
}

// Waiter returns the slot at index i.
func (n *Notifier) Waiter(i int) *Waiter {
	return &n.waiters[i]
}

// PrepareWait registers the caller as about to wait. The caller must re-check
// its wake-up condition and then call CancelWait or CommitWait.
func (n *Notifier) PrepareWait(*Waiter) {
	for {
		s := n.state.Load()
		if n.state.CompareAndSwap(s, s+waiterInc) {
			return
		}
	}
}

// CancelWait withdraws a PrepareWait without sleeping.
func (n *Notifier) CancelWait(*Waiter) {
	for {
		s := n.state.Load()
		next := s - waiterInc
		// If pre-waiters equal signals, one of those signals was meant for
		// us; consume it so it is not delivered to nobody.
		if (s&waiterMask)>>waiterShift == (s&signalMask)>>signalShift {
			next -= signalInc
		}
		if n.state.CompareAndSwap(s, next) {
			return
		}
	}
}

// CommitWait sleeps until a Notify wakes w. It returns immediately when a
// signal was posted after PrepareWait.
func (n *Notifier) CommitWait(w *Waiter) {
	w.mu.Lock()
	w.state = notSignaled
	w.mu.Unlock()

	me := w.id | w.epoch
	for {
		s := n.state.Load()
		var next uint64
		if s&signalMask != 0 {
			next = s - waiterInc - signalInc
		} else {
			next = ((s & waiterMask) - waiterInc) | me
			w.next.Store(s & (stackMask | epochMask))
		}
		if n.state.CompareAndSwap(s, next) {
			if s&signalMask == 0 {
				w.epoch += epochInc
				n.park(w)
			}
			return
		}
	}
}

// Notify wakes one waiter, or every waiter when all is true.
func (n *Notifier) Notify(all bool) {
	for {
		s := n.state.Load()
		waiters := (s & waiterMask) >> waiterShift
		signals := (s & signalMask) >> signalShift
		if s&stackMask == stackMask && waiters == signals {
			return
		}

		var next uint64
		switch {
		case all:
			next = (s & waiterMask) | (waiters << signalShift) | stackMask
		case signals < waiters:
			next = s + signalInc
		default:
			top := &n.waiters[s&stackMask]
			next = (s & (waiterMask | signalMask)) | top.next.Load()
		}

		if n.state.CompareAndSwap(s, next) {
			if !all && signals < waiters {
				return
			}
			if s&stackMask == stackMask {
				return
			}
			top := &n.waiters[s&stackMask]
			if !all {
				top.next.Store(stackMask)
			}
			n.unpark(top)
			return
		}
	}
}

// NotifyN wakes up to k waiters.
func (n *Notifier) NotifyN(k int) {
	if k >= len(n.waiters) {
		n.Notify(true)
		return
	}
	for i := 0; i < k; i++ {
		n.Notify(false)
	}
}

func (n *Notifier) park(w *Waiter) {
	w.mu.Lock()
	for w.state != signaled {
		w.state = waiting
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// unpark wakes w and every waiter chained behind it.
func (n *Notifier) unpark(w *Waiter) {
	for w != nil {
		idx := w.next.Load() & stackMask
		var next *Waiter
		if idx != stackMask {
			next = &n.waiters[idx]
		}

		w.mu.Lock()
		prev := w.state
		w.state = signaled
		w.mu.Unlock()
		if prev == waiting {
			w.cond.Signal()
		}
		w = next
	}
}
