package taskflow

import (
	"sync"
)

// Semaphore limits how many tasks holding it run at once. A task that
// cannot acquire is parked on the semaphore and rescheduled when a unit is
// released; it never blocks a worker.
type Semaphore struct {
	mu      sync.Mutex
	count   int
	max     int
	waiters []*node
}

// NewSemaphore creates a semaphore with max units.
func NewSemaphore(max int) *Semaphore {
	if max <= 0 {
		panic("taskflow: semaphore size must be positive")
	}
	return &Semaphore{count: max, max: max}
}

// Count returns the number of available units.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Max returns the capacity the semaphore was created with.
func (s *Semaphore) Max() int {
	return s.max
}

func (s *Semaphore) tryAcquire(n *node) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count > 0 {
		s.count--
		return true
	}
	s.waiters = append(s.waiters, n)
	return false
}

// release returns a unit and hands back every parked task for rescheduling.
// Releasing a unit that was never acquired panics.
func (s *Semaphore) release() []*node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == s.max {
		panic("taskflow: semaphore released more times than acquired")
	}
	s.count++
	w := s.waiters
	s.waiters = nil
	return w
}

// acquireAll takes every semaphore n needs. On failure n is parked on the
// semaphore that refused it and the units already taken are given back;
// the returned waiters must be rescheduled by the caller.
func acquireAll(n *node) (bool, []*node) {
	for i, s := range n.acquire {
		if s.tryAcquire(n) {
			continue
		}
		var woken []*node
		for _, held := range n.acquire[:i] {
			woken = append(woken, held.release()...)
		}
		return false, woken
	}
	return true, nil
}

func releaseAll(n *node) []*node {
	var woken []*node
	for _, s := range n.release {
		woken = append(woken, s.release()...)
	}
	return woken
}
