package observer

import (
	"github.com/charmbracelet/log"

	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// Logger writes a debug record for every task entry and exit, with the
// time spent in the callable on exit.
type Logger struct {
	logger *log.Logger
	clock  *clock
}

// NewLogger creates a logging observer. A nil logger selects log.Default().
func NewLogger(logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	return &Logger{logger: logger.WithPrefix("taskflow"), clock: newClock(0)}
}

func (l *Logger) SetUp(numWorkers int) {
	l.clock = newClock(numWorkers)
	l.logger.Debug("observer attached", "workers", numWorkers)
}

func (l *Logger) OnSchedule(int, taskflow.Task) {}

func (l *Logger) OnEntry(workerID int, t taskflow.Task) {
	l.clock.enter(workerID)
	l.logger.Debug("task entry", "task", t.Name(), "kind", t.Kind(), "worker", workerID, "run", t.RunID())
}

func (l *Logger) OnExit(workerID int, t taskflow.Task) {
	start, end := l.clock.exit(workerID)
	l.logger.Debug("task exit", "task", t.Name(), "kind", t.Kind(), "worker", workerID,
		"run", t.RunID(), "elapsed", end.Sub(start))
}
