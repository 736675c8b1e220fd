package observer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// Metrics observes the time spent in task callables into the
// TaskDuration histogram of a registry, labelled by executor and kind.
type Metrics struct {
	clock    *clock
	observer [taskflow.NumKinds]prometheus.Observer
}

// NewMetrics creates a histogram observer. executor is the label value,
// usually the executor's Name.
func NewMetrics(reg *metrics.Registry, executor string) *Metrics {
	if reg == nil {
		reg = metrics.Default()
	}
	m := &Metrics{clock: newClock(0)}
	for k := range m.observer {
		m.observer[k] = reg.TaskDuration.WithLabelValues(executor, taskflow.Kind(k).String())
	}
	return m
}

func (m *Metrics) SetUp(numWorkers int) {
	m.clock = newClock(numWorkers)
}

func (m *Metrics) OnSchedule(int, taskflow.Task) {}

func (m *Metrics) OnEntry(workerID int, _ taskflow.Task) {
	m.clock.enter(workerID)
}

func (m *Metrics) OnExit(workerID int, t taskflow.Task) {
	start, end := m.clock.exit(workerID)
	if k := int(t.Kind()); k < len(m.observer) {
		m.observer[k].Observe(end.Sub(start).Seconds())
	}
}
