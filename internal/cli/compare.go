package cli

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowgraph/internal/benchmark"
)

func (c *CLI) compareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the executor with goroutine pools on independent tasks",
		Long: `Run the same number of independent tasks on the work-stealing executor,
on an ants goroutine pool, and on an errgroup limited to the same number of
goroutines, and report the round times of each.`,
		Example: `  taskbench compare --tasks 100000 --work 2us -w 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCompare(cmd.Context(), cmd)
		},
	}

	f := &c.flags.Graph
	cmd.Flags().IntVarP(&f.Tasks, "tasks", "n", f.Tasks, "number of tasks")
	cmd.Flags().DurationVar(&f.Work.Duration, "work", f.Work.Duration, "busy work per task")
	cmd.Flags().IntVarP(&f.Rounds, "rounds", "r", f.Rounds, "number of rounds")

	return cmd
}

// measure runs fn rounds times and records each duration.
func measure(label string, items, rounds int, fn func() error) (timing, error) {
	t := timing{label: label, items: items}
	for i := 0; i < rounds; i++ {
		start := time.Now()
		if err := fn(); err != nil {
			return t, fmt.Errorf("%s round %d: %w", label, i, err)
		}
		t.rounds = append(t.rounds, time.Since(start))
	}
	return t, nil
}

func (c *CLI) runCompare(ctx context.Context, cmd *cobra.Command) error {
	cfg := c.config.Graph
	workers := c.config.Workers

	e, err := c.newEngine("compare")
	if err != nil {
		return err
	}
	defer e.close(c)

	var counter atomic.Int64
	g := benchmark.Independent(cfg.Tasks, cfg.Work.Duration, &counter)

	var timings []timing
	err = c.serve(ctx, e, func(ctx context.Context) error {
		variants := []struct {
			label string
			run   func() error
		}{
			{"executor", func() error { return benchmark.RunGraph(ctx, e.exec, g) }},
			{"ants", func() error { return benchmark.RunAnts(workers, cfg.Tasks, cfg.Work.Duration, &counter) }},
			{"errgroup", func() error {
				return benchmark.RunGoroutines(ctx, workers, cfg.Tasks, cfg.Work.Duration, &counter)
			}},
		}
		for _, v := range variants {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := measure(v.label, cfg.Tasks, cfg.Rounds, v.run)
			if err != nil {
				return err
			}
			c.Logger.Debug("variant done", "variant", v.label, "best", t.best())
			timings = append(timings, t)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if got, want := counter.Load(), int64(cfg.Tasks*cfg.Rounds*len(timings)); got != want {
		return fmt.Errorf("ran %d tasks, want %d", got, want)
	}

	out := cmd.OutOrStdout()
	printTitle(out, "compare", fmt.Sprintf("%d tasks, %v work, %d workers", cfg.Tasks, cfg.Work.Duration, workers))
	return writeTimings(out, timings...)
}
