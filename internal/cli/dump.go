package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowgraph/internal/benchmark"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/pipeline"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// sampleGraph builds a graph with one task of every kind the DOT dump
// distinguishes: a condition loop, a subflow, a composed graph and a
// composed pipeline.
func sampleGraph() (*taskflow.Graph, error) {
	var counter atomic.Int64
	p, err := benchmark.Pipeline(2, []pipeline.PipeType{pipeline.Serial, pipeline.Parallel}, 4, 0, &counter)
	if err != nil {
		return nil, err
	}

	g := taskflow.NewGraph("sample")
	start := g.AddTask("start", func(context.Context) error { return nil })
	setup := g.AddTask("setup", func(context.Context) error { return nil })

	var attempts atomic.Int32
	retry := g.AddCondition("retry", func(context.Context) (int, error) {
		if attempts.Add(1) < 3 {
			return 0, nil
		}
		return 1, nil
	})
	fan := g.AddSubflow("fan-out", func(_ context.Context, sf *taskflow.Subflow) error {
		join := sf.AddPlaceholder("join")
		for i := 0; i < 3; i++ {
			sf.AddTask(fmt.Sprintf("part-%d", i), func(context.Context) error { return nil }).Precede(join)
		}
		return nil
	})
	layers := g.ComposedOf("layers", benchmark.Layered(2, 2, 0, &counter))
	stream := g.ComposedOf("stream", p)
	done := g.AddPlaceholder("done")

	start.Precede(setup)
	setup.Precede(retry)
	retry.Precede(setup, fan)
	fan.Precede(layers, stream)
	done.Succeed(layers, stream)
	return g, nil
}

func (c *CLI) dumpCommand() *cobra.Command {
	var output string
	var run bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print a sample task graph in DOT format",
		Long: `Print a sample task graph in DOT format. Condition edges are dashed,
composed graphs are drawn as clusters. With --run the graph is run first so
the subgraph spawned by its subflow task appears in the output too.`,
		Example: `  taskbench dump | dot -Tsvg -o sample.svg
  taskbench dump --run -o sample.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := sampleGraph()
			if err != nil {
				return err
			}
			if err := g.Validate(); err != nil {
				return err
			}
			if run {
				e, err := c.newEngine("dump")
				if err != nil {
					return err
				}
				defer e.close(c)
				if err := benchmark.RunGraph(cmd.Context(), e.exec, g); err != nil {
					return err
				}
				c.Logger.Debug("sample graph ran", "tasks", e.counter.Counts().Exited)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := g.Dump(w); err != nil {
				return err
			}
			if output != "" {
				c.Logger.Info("graph written", "path", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout if empty)")
	cmd.Flags().BoolVar(&run, "run", false, "run the graph before dumping it")

	return cmd
}
