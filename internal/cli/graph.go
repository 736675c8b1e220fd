package cli

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowgraph/internal/benchmark"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

const (
	shapeIndependent = "independent"
	shapeChain       = "chain"
	shapeLayered     = "layered"
)

// buildGraph returns the configured graph shape and its task count.
func buildGraph(cfg GraphConfig, counter *atomic.Int64) (*taskflow.Graph, int) {
	work := cfg.Work.Duration
	switch cfg.Shape {
	case shapeChain:
		return benchmark.Chain(cfg.Tasks, work, counter), cfg.Tasks
	case shapeLayered:
		depth := max(cfg.Tasks/cfg.Width, 1)
		return benchmark.Layered(depth, cfg.Width, work, counter), depth * cfg.Width
	default:
		return benchmark.Independent(cfg.Tasks, work, counter), cfg.Tasks
	}
}

func (c *CLI) graphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Run a synthetic task graph and report throughput",
		Long: `Run a synthetic task graph several times on the executor and report
the best and mean round time and how the task entries were spread over the
workers.

Shapes:
  independent  tasks without edges
  chain        one linear chain
  layered      layers of --width tasks, each task depending on the
               whole previous layer`,
		Example: `  # 100k independent tasks on 8 workers
  taskbench graph --tasks 100000 -w 8

  # Layered graph with 10us of work per task and a Chrome trace
  taskbench graph --shape layered --width 64 --work 10us --trace graph.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd.Context(), cmd)
		},
	}

	f := &c.flags.Graph
	cmd.Flags().StringVar(&f.Shape, "shape", f.Shape, "graph shape: independent, chain or layered")
	cmd.Flags().IntVarP(&f.Tasks, "tasks", "n", f.Tasks, "number of tasks")
	cmd.Flags().IntVar(&f.Width, "width", f.Width, "layer width for the layered shape")
	cmd.Flags().DurationVar(&f.Work.Duration, "work", f.Work.Duration, "busy work per task")
	cmd.Flags().IntVarP(&f.Rounds, "rounds", "r", f.Rounds, "number of rounds")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, cmd *cobra.Command) error {
	cfg := c.config.Graph
	e, err := c.newEngine("graph")
	if err != nil {
		return err
	}
	defer e.close(c)

	var counter atomic.Int64
	g, tasks := buildGraph(cfg, &counter)
	t := timing{label: g.Name(), items: tasks}

	err = c.serve(ctx, e, func(ctx context.Context) error {
		for round := 0; round < cfg.Rounds; round++ {
			if e.profiler != nil {
				e.profiler.Reset()
			}
			start := time.Now()
			if err := benchmark.RunGraph(ctx, e.exec, g); err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
			t.rounds = append(t.rounds, time.Since(start))
			c.Logger.Debug("round done", "round", round, "elapsed", t.rounds[round])
		}
		return nil
	})
	if err != nil {
		return err
	}
	if got, want := counter.Load(), int64(tasks*cfg.Rounds); got != want {
		return fmt.Errorf("ran %d tasks, want %d", got, want)
	}

	out := cmd.OutOrStdout()
	printTitle(out, "graph", fmt.Sprintf("%s on %d workers", g.Name(), e.exec.NumWorkers()))
	if err := writeTimings(out, t); err != nil {
		return err
	}
	fmt.Fprintln(out)
	if err := writeDistribution(out, e.counter.Counts().PerWorker); err != nil {
		return err
	}
	if e.profiler != nil {
		fmt.Fprintln(out)
		if _, err := e.profiler.Summary().WriteTo(out); err != nil {
			return err
		}
	}
	return c.writeTrace(e)
}
