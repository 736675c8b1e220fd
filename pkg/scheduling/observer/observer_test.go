package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vnykmshr/flowgraph/internal/testutil"
	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newExecutor(t *testing.T, workers int, observers ...taskflow.Observer) *taskflow.Executor {
	t.Helper()
	e, err := taskflow.NewWithConfig(taskflow.Config{
		Name:      t.Name(),
		Workers:   workers,
		Observers: observers,
	})
	require.NoError(t, err)
	t.Cleanup(func() { <-e.Shutdown() })
	return e
}

func runGraph(t *testing.T, e *taskflow.Executor, g *taskflow.Graph) *taskflow.Future {
	t.Helper()
	f, err := e.Run(g)
	require.NoError(t, err)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.NoError(t, f.WaitContext(ctx))
	return f
}

// fanOut builds a source task followed by n-1 independent leaves.
func fanOut(name string, n int) *taskflow.Graph {
	g := taskflow.NewGraph(name)
	src := g.AddTask("src", func(context.Context) error { return nil })
	for i := 1; i < n; i++ {
		src.Precede(g.AddTask(fmt.Sprintf("leaf-%d", i), func(context.Context) error {
			time.Sleep(100 * time.Microsecond)
			return nil
		}))
	}
	return g
}

func TestProfilerRecordsEverySegment(t *testing.T) {
	p := NewProfiler()
	e := newExecutor(t, 4, p)
	f := runGraph(t, e, fanOut("profiled", 20))

	segs := p.Segments()
	require.Len(t, segs, 20)
	assert.Equal(t, "src", segs[0].Task)
	for i, s := range segs {
		assert.False(t, s.End.Before(s.Start), "segment %d", i)
		assert.Equal(t, f.RunID(), s.RunID)
		assert.GreaterOrEqual(t, s.Worker, 0)
		assert.Less(t, s.Worker, 4)
		if i > 0 {
			assert.False(t, s.Start.Before(segs[i-1].Start))
		}
	}

	sum := p.Summary()
	assert.Equal(t, 20, sum.Tasks)
	assert.Equal(t, 20, sum.ByKind[taskflow.KindStatic])
	assert.Positive(t, sum.Span)
	total := 0
	for _, w := range sum.Workers {
		total += w.Tasks
		assert.LessOrEqual(t, w.Min, w.Max)
	}
	assert.Equal(t, 20, total)

	var buf bytes.Buffer
	n, err := sum.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Contains(t, buf.String(), "total")

	p.Reset()
	assert.Empty(t, p.Segments())
	assert.Zero(t, p.Summary().Tasks)
}

func TestProfilerNestsSubflowSegments(t *testing.T) {
	p := NewProfiler()
	e := newExecutor(t, 2, p)

	g := taskflow.NewGraph("nested")
	g.AddSubflow("spawn", func(_ context.Context, sf *taskflow.Subflow) error {
		for i := 0; i < 4; i++ {
			sf.AddTask("child", func(context.Context) error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}
		return nil
	})
	runGraph(t, e, g)

	segs := p.Segments()
	require.Len(t, segs, 5)
	var parent Segment
	for _, s := range segs {
		if s.Kind == taskflow.KindSubflow {
			parent = s
		}
	}
	require.Equal(t, "spawn", parent.Task)
	for _, s := range segs {
		if s.Task != "child" {
			continue
		}
		assert.False(t, s.Start.Before(parent.Start))
		assert.False(t, s.End.After(parent.End))
	}
}

func TestWriteChromeTrace(t *testing.T) {
	p := NewProfiler()
	e := newExecutor(t, 2, p)
	runGraph(t, e, fanOut("trace", 6))

	var buf bytes.Buffer
	require.NoError(t, p.WriteChromeTrace(&buf))

	var trace struct {
		TraceEvents []struct {
			Name  string            `json:"name"`
			Cat   string            `json:"cat"`
			Phase string            `json:"ph"`
			TS    float64           `json:"ts"`
			Dur   float64           `json:"dur"`
			TID   int               `json:"tid"`
			Args  map[string]string `json:"args"`
		} `json:"traceEvents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &trace))
	require.Len(t, trace.TraceEvents, 6)
	assert.Equal(t, "src", trace.TraceEvents[0].Name)
	assert.Zero(t, trace.TraceEvents[0].TS)
	for _, ev := range trace.TraceEvents {
		assert.Equal(t, "X", ev.Phase)
		assert.Equal(t, "static", ev.Cat)
		assert.GreaterOrEqual(t, ev.Dur, 0.0)
		assert.NotEmpty(t, ev.Args["run"])
	}

	// an empty profile is still a valid trace
	buf.Reset()
	require.NoError(t, NewProfiler().WriteChromeTrace(&buf))
	assert.Contains(t, buf.String(), `"traceEvents": []`)
}

func TestWriteChromeTraceWriterError(t *testing.T) {
	p := NewProfiler()
	w := testutil.NewMockWriter()
	w.SetAlwaysError(testutil.ErrSimulated)
	assert.ErrorIs(t, p.WriteChromeTrace(w), testutil.ErrSimulated)
}

func TestLoggerWritesEntryAndExit(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	e := newExecutor(t, 2, NewLogger(logger))

	g := taskflow.NewGraph("logged")
	a := g.AddTask("alpha", func(context.Context) error { return nil })
	b := g.AddTask("beta", func(context.Context) error { return nil })
	a.Precede(b)
	runGraph(t, e, g)

	out := buf.String()
	assert.Contains(t, out, "observer attached")
	assert.Equal(t, 2, strings.Count(out, "task entry"))
	assert.Equal(t, 2, strings.Count(out, "task exit"))
	assert.Contains(t, out, "task=alpha")
	assert.Contains(t, out, "task=beta")
	assert.Contains(t, out, "elapsed=")
}

func TestLoggerQuietAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel})
	e := newExecutor(t, 1, NewLogger(logger))
	runGraph(t, e, fanOut("quiet", 3))
	assert.Empty(t, buf.String())
}

func TestMetricsObservesDurations(t *testing.T) {
	preg := prometheus.NewRegistry()
	reg := metrics.NewRegistry(preg)
	e := newExecutor(t, 2, NewMetrics(reg, "hist"))

	g := fanOut("metered", 5)
	g.AddCondition("cond", func(context.Context) (int, error) { return 0, nil })
	runGraph(t, e, g)

	counts := map[string]uint64{}
	mfs, err := preg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if !strings.HasSuffix(mf.GetName(), "task_duration_seconds") {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "kind" {
					counts[lp.GetValue()] += m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	assert.Equal(t, uint64(5), counts["static"])
	assert.Equal(t, uint64(1), counts["condition"])
	assert.Zero(t, counts["subflow"])
}

func TestCounter(t *testing.T) {
	c := NewCounter()
	e := newExecutor(t, 3, c)
	runGraph(t, e, fanOut("counted", 10))

	got := c.Counts()
	assert.Equal(t, uint64(10), got.Entered)
	assert.Equal(t, uint64(10), got.Exited)
	assert.Positive(t, got.Scheduled)
	require.Len(t, got.PerWorker, 3)
	var sum uint64
	for _, n := range got.PerWorker {
		sum += n
	}
	assert.Equal(t, uint64(10), sum)

	e.RemoveObserver(c)
	runGraph(t, e, fanOut("counted", 10))
	assert.Equal(t, uint64(10), c.Counts().Entered)
}
