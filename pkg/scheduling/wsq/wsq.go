// Package wsq implements the Chase-Lev work-stealing deque used by executor
// workers.
//
// One goroutine owns the deque and uses Push and Pop at the bottom. Any
// goroutine may Steal from the top. All index updates use sync/atomic, whose
// operations are sequentially consistent, so the owner's push happens-before
// a successful steal of the same element.
package wsq

import (
	"sync/atomic"
)

// DefaultCapacity is the initial buffer size used by New when capacity <= 0.
const DefaultCapacity = 1024

type ring[T any] struct {
	mask  int64
	slots []atomic.Pointer[T]
}

func newRing[T any](capacity int64) *ring[T] {
	return &ring[T]{
		mask:  capacity - 1,
		slots: make([]atomic.Pointer[T], capacity),
	}
}

func (r *ring[T]) capacity() int64 {
	return r.mask + 1
}

func (r *ring[T]) put(i int64, v *T) {
	r.slots[i&r.mask].Store(v)
}

func (r *ring[T]) get(i int64) *T {
	return r.slots[i&r.mask].Load()
}

// grow copies the live range [t, b) into a ring twice as large.
func (r *ring[T]) grow(b, t int64) *ring[T] {
	next := newRing[T](2 * r.capacity())
	for i := t; i != b; i++ {
		next.put(i, r.get(i))
	}
	return next
}

// Queue is a lock-free single-owner, multi-thief deque of *T.
type Queue[T any] struct {
	top    atomic.Int64
	bottom atomic.Int64
	buf    atomic.Pointer[ring[T]]
}

// New creates a queue. capacity is rounded up to a power of two.
func New[T any](capacity int64) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := int64(1)
	for c < capacity {
		c <<= 1
	}
	q := &Queue[T]{}
	q.buf.Store(newRing[T](c))
	return q
}

// Empty reports whether the queue looked empty at the time of the call.
func (q *Queue[T]) Empty() bool {
	b := q.bottom.Load()
	t := q.top.Load()
	return b <= t
}

// Size returns a best-effort element count.
func (q *Queue[T]) Size() int64 {
	b := q.bottom.Load()
	t := q.top.Load()
	if b >= t {
		return b - t
	}
	return 0
}

// Capacity returns the current buffer capacity.
func (q *Queue[T]) Capacity() int64 {
	return q.buf.Load().capacity()
}

// Push appends v at the bottom. Owner only.
//
// A full buffer is replaced by one twice as large. Thieves still reading the
// old buffer keep it reachable, so the garbage collector reclaims it only
// after they are done.
func (q *Queue[T]) Push(v *T) {
	b := q.bottom.Load()
	t := q.top.Load()
	r := q.buf.Load()

	if r.capacity()-1 < b-t {
		r = r.grow(b, t)
		q.buf.Store(r)
	}

	r.put(b, v)
	q.bottom.Store(b + 1)
}

// Pop removes the bottom element. Owner only. Returns nil when the queue is
// empty or a thief won the race for the last element.
func (q *Queue[T]) Pop() *T {
	b := q.bottom.Load() - 1
	r := q.buf.Load()
	q.bottom.Store(b)
	t := q.top.Load()

	if t > b {
		q.bottom.Store(b + 1)
		return nil
	}

	v := r.get(b)
	if t == b {
		// last element: settle the dispute with thieves on top
		if !q.top.CompareAndSwap(t, t+1) {
			v = nil
		}
		q.bottom.Store(b + 1)
	}
	return v
}

// Steal removes the top element. Safe from any goroutine. Returns nil when
// the queue is empty or the CAS on top lost against Pop or another Steal; the
// caller should retry or pick another victim.
func (q *Queue[T]) Steal() *T {
	t := q.top.Load()
	b := q.bottom.Load()

	if t >= b {
		return nil
	}

	r := q.buf.Load()
	v := r.get(t)
	if !q.top.CompareAndSwap(t, t+1) {
		return nil
	}
	return v
}
