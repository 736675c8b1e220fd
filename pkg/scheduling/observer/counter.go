package observer

import (
	"sync/atomic"

	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// Counts is a snapshot of a Counter.
type Counts struct {
	Scheduled uint64
	Entered   uint64
	Exited    uint64
	// PerWorker counts entries by worker id. Entries from outside the
	// executor are not included.
	PerWorker []uint64
}

// Counter counts observer events. It is cheap enough to leave attached.
type Counter struct {
	scheduled atomic.Uint64
	entered   atomic.Uint64
	exited    atomic.Uint64
	perWorker []atomic.Uint64
}

// NewCounter returns a Counter with every count at zero.
func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) SetUp(numWorkers int) {
	c.perWorker = make([]atomic.Uint64, numWorkers)
}

func (c *Counter) OnSchedule(int, taskflow.Task) {
	c.scheduled.Add(1)
}

func (c *Counter) OnEntry(workerID int, _ taskflow.Task) {
	c.entered.Add(1)
	if workerID >= 0 && workerID < len(c.perWorker) {
		c.perWorker[workerID].Add(1)
	}
}

func (c *Counter) OnExit(int, taskflow.Task) {
	c.exited.Add(1)
}

// Counts returns a snapshot of the counters.
func (c *Counter) Counts() Counts {
	out := Counts{
		Scheduled: c.scheduled.Load(),
		Entered:   c.entered.Load(),
		Exited:    c.exited.Load(),
		PerWorker: make([]uint64, len(c.perWorker)),
	}
	for i := range c.perWorker {
		out.PerWorker[i] = c.perWorker[i].Load()
	}
	return out
}
