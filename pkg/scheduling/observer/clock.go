package observer

import (
	"sync"
	"time"
)

// clock tracks when each worker entered the tasks it is currently running.
// Tasks nest on a worker when a callable joins a subflow or a module, so
// every slot is a stack. Events from goroutines outside the executor share
// the last slot.
type clock struct {
	slots []clockSlot
}

type clockSlot struct {
	mu     sync.Mutex
	starts []time.Time
}

func newClock(numWorkers int) *clock {
	return &clock{slots: make([]clockSlot, numWorkers+1)}
}

func (c *clock) slot(worker int) *clockSlot {
	if worker < 0 || worker >= len(c.slots)-1 {
		return &c.slots[len(c.slots)-1]
	}
	return &c.slots[worker]
}

func (c *clock) enter(worker int) time.Time {
	now := time.Now()
	s := c.slot(worker)
	s.mu.Lock()
	s.starts = append(s.starts, now)
	s.mu.Unlock()
	return now
}

// exit pops the innermost entry of worker. An exit without an entry
// reports a zero-length interval.
func (c *clock) exit(worker int) (start, end time.Time) {
	end = time.Now()
	s := c.slot(worker)
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.starts); n > 0 {
		start = s.starts[n-1]
		s.starts = s.starts[:n-1]
		return start, end
	}
	return end, end
}
