// Package benchmark holds the workloads shared by the taskbench command and
// the package benchmarks: graph shapes, pipelines, and the goroutine-pool
// baselines the executor is compared against.
package benchmark

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/flowgraph/pkg/scheduling/pipeline"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// Spin busy-waits for d. It stands in for CPU-bound task work without
// yielding the worker the way time.Sleep would.
func Spin(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}

// Independent builds a graph of n unconnected tasks that each spin for
// work and bump counter.
func Independent(n int, work time.Duration, counter *atomic.Int64) *taskflow.Graph {
	g := taskflow.NewGraph(fmt.Sprintf("independent-%d", n))
	for i := 0; i < n; i++ {
		g.AddTask(fmt.Sprintf("t%d", i), func(context.Context) error {
			Spin(work)
			counter.Add(1)
			return nil
		})
	}
	return g
}

// Chain builds a linear chain of n tasks.
func Chain(n int, work time.Duration, counter *atomic.Int64) *taskflow.Graph {
	g := taskflow.NewGraph(fmt.Sprintf("chain-%d", n))
	tasks := make([]taskflow.Task, n)
	for i := range tasks {
		tasks[i] = g.AddTask(fmt.Sprintf("c%d", i), func(context.Context) error {
			Spin(work)
			counter.Add(1)
			return nil
		})
	}
	g.Linearize(tasks...)
	return g
}

// Layered builds depth layers of width tasks where every task depends on
// every task of the previous layer.
func Layered(depth, width int, work time.Duration, counter *atomic.Int64) *taskflow.Graph {
	g := taskflow.NewGraph(fmt.Sprintf("layered-%dx%d", depth, width))
	var prev []taskflow.Task
	for d := 0; d < depth; d++ {
		layer := lo.Times(width, func(w int) taskflow.Task {
			return g.AddTask(fmt.Sprintf("l%d-%d", d, w), func(context.Context) error {
				Spin(work)
				counter.Add(1)
				return nil
			})
		})
		for _, p := range prev {
			p.Precede(layer...)
		}
		prev = layer
	}
	return g
}

// ParsePipes turns a pipe layout such as "spps" into pipe types, one letter
// per pipe: s for serial and p for parallel.
func ParsePipes(layout string) ([]pipeline.PipeType, error) {
	layout = strings.ToLower(strings.TrimSpace(layout))
	if layout == "" {
		return nil, fmt.Errorf("empty pipe layout")
	}
	types := make([]pipeline.PipeType, 0, len(layout))
	for i, c := range layout {
		switch c {
		case 's':
			types = append(types, pipeline.Serial)
		case 'p':
			types = append(types, pipeline.Parallel)
		default:
			return nil, fmt.Errorf("pipe layout %q: unknown pipe %q at %d", layout, c, i)
		}
	}
	return types, nil
}

// Pipeline builds a pipeline over the given pipe types that generates
// tokens tokens. The first pipe is always serial; it is prepended when
// types starts with a parallel pipe. Every pipe spins for work. Token ids
// continue across runs, so Reset the pipeline before running it again.
func Pipeline(lines int, types []pipeline.PipeType, tokens uint64, work time.Duration, counter *atomic.Int64) (*pipeline.Pipeline, error) {
	first := pipeline.SerialPipe(func(pf *pipeline.Pipeflow) error {
		if pf.Token() >= tokens {
			pf.Stop()
			return nil
		}
		Spin(work)
		return nil
	})

	pipes := []pipeline.Pipe{first}
	if len(types) > 0 && types[0] == pipeline.Serial {
		types = types[1:]
	}
	for _, t := range types {
		pipes = append(pipes, pipeline.Pipe{Type: t, Fn: func(*pipeline.Pipeflow) error {
			Spin(work)
			return nil
		}})
	}
	last := len(pipes) - 1
	inner := pipes[last].Fn
	pipes[last].Fn = func(pf *pipeline.Pipeflow) error {
		err := inner(pf)
		counter.Add(1)
		return err
	}

	return pipeline.NewWithConfig(pipeline.Config{
		Name:  fmt.Sprintf("pipeline-%dx%d", lines, len(pipes)),
		Lines: lines,
		Pipes: pipes,
	})
}

// RunAnts runs n spinning tasks on an ants pool of the given size and
// waits for them.
func RunAnts(size, n int, work time.Duration, counter *atomic.Int64) error {
	pool, err := ants.NewPool(size, ants.WithPreAlloc(true))
	if err != nil {
		return err
	}
	defer func() { _ = pool.ReleaseTimeout(time.Second) }()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			Spin(work)
			counter.Add(1)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// RunGoroutines runs n spinning tasks with at most limit goroutines at a
// time.
func RunGoroutines(ctx context.Context, limit, n int, work time.Duration, counter *atomic.Int64) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			Spin(work)
			counter.Add(1)
			return nil
		})
	}
	return g.Wait()
}

// RunGraph runs g once on e and waits for it.
func RunGraph(ctx context.Context, e *taskflow.Executor, g taskflow.Composable) error {
	fut, err := e.RunContext(ctx, g.FlowGraph())
	if err != nil {
		return err
	}
	return fut.Wait()
}
