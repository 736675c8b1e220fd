package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/flowgraph/internal/testutil"
	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	c := New(&stderr, log.InfoLevel)
	root := c.RootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskbench.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
workers = 3
trace = "out.json"

[graph]
shape = "layered"
width = 8
work = "25us"

[pipeline]
lines = 2
layout = "sp"
tokens = 50
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "out.json", cfg.Trace)
	assert.Equal(t, "layered", cfg.Graph.Shape)
	assert.Equal(t, 8, cfg.Graph.Width)
	assert.Equal(t, 25*time.Microsecond, cfg.Graph.Work.Duration)
	assert.Equal(t, 10000, cfg.Graph.Tasks, "unset keys keep their defaults")
	assert.Equal(t, uint64(50), cfg.Pipeline.Tokens)
	assert.Equal(t, "flowgraph:tasks", cfg.Redis.Stream)
	assert.NoError(t, cfg.validate())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "workerz = 3\n"))
	assert.ErrorContains(t, err, "unknown keys workerz")

	_, err = LoadConfig(writeConfig(t, "[graph]\nwork = \"soon\"\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"shape", func(c *Config) { c.Graph.Shape = "star" }},
		{"tasks", func(c *Config) { c.Graph.Tasks = -1 }},
		{"negative work", func(c *Config) { c.Pipeline.Work.Duration = -time.Second }},
		{"tokens", func(c *Config) { c.Pipeline.Tokens = 0 }},
		{"lines", func(c *Config) { c.Pipeline.Lines = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			assert.ErrorIs(t, err, gferrors.ErrInvalidConfiguration)
		})
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "workers = 3\n[graph]\ntasks = 40\nrounds = 1\n")
	out, _, err := execute(t, "--config", path, "-w", "2", "graph", "--tasks", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "independent-64 on 2 workers")
}

func TestGraphCommand(t *testing.T) {
	for _, shape := range []string{shapeIndependent, shapeChain, shapeLayered} {
		t.Run(shape, func(t *testing.T) {
			out, _, err := execute(t, "-w", "3", "graph", "--shape", shape, "--tasks", "60", "--width", "6", "-r", "2")
			require.NoError(t, err)
			assert.Contains(t, out, "workload")
			assert.Contains(t, out, "share")
			// one distribution row per worker
			assert.Equal(t, 3, strings.Count(out, "%\n"))
		})
	}
}

func TestGraphCommandTrace(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "trace.json")
	out, _, err := execute(t, "-w", "2", "--trace", tracePath, "graph", "--tasks", "20", "-r", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "span")

	b, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	var trace struct {
		TraceEvents []struct {
			Phase string `json:"ph"`
		} `json:"traceEvents"`
	}
	require.NoError(t, json.Unmarshal(b, &trace))
	require.Len(t, trace.TraceEvents, 20)
	for _, ev := range trace.TraceEvents {
		assert.Equal(t, "X", ev.Phase)
	}
}

func TestPipelineCommand(t *testing.T) {
	out, _, err := execute(t, "-w", "4", "pipeline", "-l", "3", "--layout", "spps", "-t", "100", "-r", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "3 lines, 4 pipes")
	assert.Contains(t, out, "runs 2  tokens 200  deferrals 0  resets 2")
}

func TestPipelineCommandBadLayout(t *testing.T) {
	_, _, err := execute(t, "pipeline", "--layout", "sxp")
	assert.ErrorContains(t, err, "unknown pipe")
}

func TestCompareCommand(t *testing.T) {
	out, _, err := execute(t, "-w", "2", "compare", "-n", "200", "-r", "1")
	require.NoError(t, err)
	for _, variant := range []string{"executor", "ants", "errgroup"} {
		assert.Contains(t, out, variant)
	}
}

func TestDumpCommand(t *testing.T) {
	out, _, err := execute(t, "dump")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "strict digraph"))
	assert.Contains(t, out, "retry")
	assert.Contains(t, out, "cluster")
	assert.NotContains(t, out, "part-0", "subflow children exist only after a run")

	out, _, err = execute(t, "-w", "2", "dump", "--run")
	require.NoError(t, err)
	assert.Contains(t, out, "part-0")
}

func TestDumpToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.dot")
	out, stderr, err := execute(t, "dump", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "graph written")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "digraph")
}

func TestInvalidFlags(t *testing.T) {
	_, _, err := execute(t, "-w", "0", "graph")
	assert.ErrorIs(t, err, gferrors.ErrInvalidConfiguration)

	_, _, err = execute(t, "graph", "--shape", "ring")
	assert.ErrorContains(t, err, "unknown shape")
}

func TestTiming(t *testing.T) {
	tm := timing{label: "x", items: 1000, rounds: []time.Duration{4 * time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}}
	assert.Equal(t, 2*time.Millisecond, tm.best())
	assert.Equal(t, 3*time.Millisecond, tm.mean())
	assert.InDelta(t, 500000, tm.rate(), 1)

	assert.Zero(t, timing{}.mean())
	assert.Zero(t, timing{items: 5}.rate())
}

func TestReportWriteErrors(t *testing.T) {
	w := testutil.NewMockWriter().FailAfter(0)
	assert.ErrorIs(t, writeTimings(w, timing{label: "x", rounds: []time.Duration{time.Millisecond}}), testutil.ErrSimulated)
	assert.ErrorIs(t, writeDistribution(w, []uint64{1, 2}), testutil.ErrSimulated)
}
