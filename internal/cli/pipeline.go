package cli

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowgraph/internal/benchmark"
)

func (c *CLI) pipelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run tokens through a synthetic pipeline and report throughput",
		Long: `Run a fixed number of tokens through a pipeline whose pipes are given as a
layout string, one letter per pipe: s for a serial pipe and p for a parallel
pipe. The first pipe is always serial and generates the tokens; a layout
starting with p gets a serial generator in front.`,
		Example: `  # Four lines, alternating serial and parallel pipes
  taskbench pipeline --lines 4 --layout spsp --tokens 100000

  # Parallel stages with some work per pipe
  taskbench pipeline --lines 16 --layout spp --work 5us`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPipeline(cmd.Context(), cmd)
		},
	}

	f := &c.flags.Pipeline
	cmd.Flags().IntVarP(&f.Lines, "lines", "l", f.Lines, "number of pipeline lines")
	cmd.Flags().StringVar(&f.Layout, "layout", f.Layout, "pipe layout, e.g. spsp")
	cmd.Flags().Uint64VarP(&f.Tokens, "tokens", "t", f.Tokens, "tokens per round")
	cmd.Flags().DurationVar(&f.Work.Duration, "work", f.Work.Duration, "busy work per pipe call")
	cmd.Flags().IntVarP(&f.Rounds, "rounds", "r", f.Rounds, "number of rounds")

	return cmd
}

func (c *CLI) runPipeline(ctx context.Context, cmd *cobra.Command) error {
	cfg := c.config.Pipeline
	types, err := benchmark.ParsePipes(cfg.Layout)
	if err != nil {
		return err
	}

	e, err := c.newEngine("pipeline")
	if err != nil {
		return err
	}
	defer e.close(c)

	var counter atomic.Int64
	p, err := benchmark.Pipeline(cfg.Lines, types, cfg.Tokens, cfg.Work.Duration, &counter)
	if err != nil {
		return err
	}
	t := timing{label: p.Name(), items: int(cfg.Tokens)}

	err = c.serve(ctx, e, func(ctx context.Context) error {
		for round := 0; round < cfg.Rounds; round++ {
			if e.profiler != nil {
				e.profiler.Reset()
			}
			p.Reset()
			start := time.Now()
			if err := benchmark.RunGraph(ctx, e.exec, p); err != nil {
				return fmt.Errorf("round %d: %w", round, err)
			}
			t.rounds = append(t.rounds, time.Since(start))
			c.Logger.Debug("round done", "round", round, "elapsed", t.rounds[round], "tokens", p.NumTokens())
		}
		return nil
	})
	if err != nil {
		return err
	}
	if got, want := counter.Load(), int64(cfg.Tokens)*int64(cfg.Rounds); got != want {
		return fmt.Errorf("completed %d tokens, want %d", got, want)
	}

	stats := p.Stats()
	out := cmd.OutOrStdout()
	printTitle(out, "pipeline", fmt.Sprintf("%d lines, %d pipes, %d workers", p.NumLines(), p.NumPipes(), e.exec.NumWorkers()))
	if err := writeTimings(out, t); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nruns %d  tokens %d  deferrals %d  resets %d\n", stats.Runs, stats.Tokens, stats.Deferrals, stats.Resets)
	return c.writeTrace(e)
}
