package observer

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"

	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// Segment is one execution of a task callable.
type Segment struct {
	Task   string
	Kind   taskflow.Kind
	RunID  string
	Worker int
	Start  time.Time
	End    time.Time
}

func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Profiler records a Segment for every task executed while it is attached.
type Profiler struct {
	clock *clock

	mu       sync.Mutex
	segments []Segment
}

// NewProfiler creates a profiler. Attach it with Executor.AddObserver or
// taskflow.Config.Observers.
func NewProfiler() *Profiler {
	return &Profiler{clock: newClock(0)}
}

func (p *Profiler) SetUp(numWorkers int) {
	p.clock = newClock(numWorkers)
}

func (p *Profiler) OnSchedule(int, taskflow.Task) {}

func (p *Profiler) OnEntry(workerID int, _ taskflow.Task) {
	p.clock.enter(workerID)
}

func (p *Profiler) OnExit(workerID int, t taskflow.Task) {
	start, end := p.clock.exit(workerID)
	seg := Segment{
		Task:   t.Name(),
		Kind:   t.Kind(),
		RunID:  t.RunID(),
		Worker: workerID,
		Start:  start,
		End:    end,
	}
	p.mu.Lock()
	p.segments = append(p.segments, seg)
	p.mu.Unlock()
}

// Segments returns the recorded segments ordered by start time.
func (p *Profiler) Segments() []Segment {
	p.mu.Lock()
	out := slices.Clone(p.segments)
	p.mu.Unlock()
	slices.SortFunc(out, func(a, b Segment) int { return a.Start.Compare(b.Start) })
	return out
}

// Reset discards the recorded segments.
func (p *Profiler) Reset() {
	p.mu.Lock()
	p.segments = nil
	p.mu.Unlock()
}

// WorkerSummary aggregates the segments of one worker.
type WorkerSummary struct {
	Worker int
	Tasks  int
	// Busy sums segment durations. Nested tasks are counted in full, so
	// Busy may exceed the wall time of the profile.
	Busy time.Duration
	Min  time.Duration
	Max  time.Duration
}

// Summary aggregates a profile.
type Summary struct {
	Tasks   int
	Span    time.Duration
	Workers []WorkerSummary
	ByKind  map[taskflow.Kind]int
}

// Summary aggregates the recorded segments per worker.
func (p *Profiler) Summary() Summary {
	segs := p.Segments()
	s := Summary{Tasks: len(segs), ByKind: lo.CountValuesBy(segs, func(seg Segment) taskflow.Kind { return seg.Kind })}
	if len(segs) == 0 {
		return s
	}

	first := segs[0].Start
	last := lo.MaxBy(segs, func(a, b Segment) bool { return a.End.After(b.End) }).End
	s.Span = last.Sub(first)

	byWorker := lo.GroupBy(segs, func(seg Segment) int { return seg.Worker })
	for _, w := range slices.Sorted(maps.Keys(byWorker)) {
		ws := WorkerSummary{Worker: w, Tasks: len(byWorker[w]), Min: byWorker[w][0].Duration()}
		for _, seg := range byWorker[w] {
			d := seg.Duration()
			ws.Busy += d
			ws.Min = min(ws.Min, d)
			ws.Max = max(ws.Max, d)
		}
		s.Workers = append(s.Workers, ws)
	}
	return s
}

// WriteTo prints the summary as a table.
func (s Summary) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "worker\ttasks\tbusy\tmin\tmax\t\n")
	for _, ws := range s.Workers {
		name := fmt.Sprint(ws.Worker)
		if ws.Worker < 0 {
			name = "ext"
		}
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%v\t\n", name, ws.Tasks, ws.Busy, ws.Min, ws.Max)
	}
	fmt.Fprintf(tw, "total\t%d\tspan %v\t\t\t\n", s.Tasks, s.Span)
	err := tw.Flush()
	return cw.n, err
}

type chromeEvent struct {
	Name  string            `json:"name"`
	Cat   string            `json:"cat"`
	Phase string            `json:"ph"`
	TS    float64           `json:"ts"`
	Dur   float64           `json:"dur"`
	PID   int               `json:"pid"`
	TID   int               `json:"tid"`
	Args  map[string]string `json:"args,omitempty"`
}

type chromeTrace struct {
	TraceEvents     []chromeEvent `json:"traceEvents"`
	DisplayTimeUnit string        `json:"displayTimeUnit"`
}

// WriteChromeTrace writes the profile in the Chrome trace event format,
// one complete event per segment with one thread per worker. Load the
// output in chrome://tracing or Perfetto.
func (p *Profiler) WriteChromeTrace(w io.Writer) error {
	segs := p.Segments()
	trace := chromeTrace{TraceEvents: make([]chromeEvent, 0, len(segs)), DisplayTimeUnit: "ns"}
	if len(segs) > 0 {
		origin := segs[0].Start
		for _, seg := range segs {
			trace.TraceEvents = append(trace.TraceEvents, chromeEvent{
				Name:  seg.Task,
				Cat:   seg.Kind.String(),
				Phase: "X",
				TS:    float64(seg.Start.Sub(origin).Nanoseconds()) / 1e3,
				Dur:   float64(seg.Duration().Nanoseconds()) / 1e3,
				TID:   seg.Worker,
				Args:  map[string]string{"run": seg.RunID},
			})
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(trace)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
