/*
Package pipeline runs tokens through a sequence of pipes on a fixed number
of parallel lines, on top of a taskflow executor.

A pipeline has L lines and P pipes. The first pipe generates tokens: each
call either lets the current token through, defers it on other tokens, or
stops generation. A token then travels along one line through the rest of
the pipes. Serial pipes see tokens one at a time in the order they left the
first pipe; parallel pipes may run on several lines at once. At most L
tokens are in flight.

# Quick Start

	var buf [4]int

	p, err := pipeline.New(4,
		pipeline.SerialPipe(func(pf *pipeline.Pipeflow) error {
			if pf.Token() == 100 {
				pf.Stop()
				return nil
			}
			buf[pf.Line()] = int(pf.Token())
			return nil
		}),
		pipeline.ParallelPipe(func(pf *pipeline.Pipeflow) error {
			buf[pf.Line()] *= 2
			return nil
		}),
		pipeline.SerialPipe(func(pf *pipeline.Pipeflow) error {
			fmt.Println(buf[pf.Line()])
			return nil
		}),
	)
	if err != nil {
		return err // bad shape, see errors.PipelineError
	}

	exec := taskflow.New(runtime.NumCPU())
	defer func() { <-exec.Shutdown() }()

	fut, _ := exec.Run(p.FlowGraph())
	err = fut.Wait()

Per-line buffers indexed by Pipeflow.Line are the usual way to pass data
between pipes: only one token occupies a line at a time.

# Composition

A Pipeline is a taskflow.Composable. Compose it into a larger graph and the
module task completes once the pipeline has drained:

	g := taskflow.NewGraph("etl")
	load := g.AddTask("load", loadInput)
	run := g.ComposedOf("transform", p)
	load.Precede(run)

# Deferred Tokens

The first pipe may defer the current token on other token ids, including
ids not generated yet. The token leaves the first pipe and is offered to it
again, with NumDeferrals incremented, once every token it deferred on has
finished the last pipe:

	pipeline.SerialPipe(func(pf *pipeline.Pipeflow) error {
		if pf.Token() == 5 && pf.NumDeferrals() == 0 {
			pf.Defer(7)
			return nil
		}
		...
	})

Ready deferred tokens are served before new ones. Tokens still waiting when
the run drains make it fail with an *errors.UnresolvedError.

# Runs and Resets

Token ids continue across runs. Reset restarts them at zero. A run that
fails or is cancelled leaves partial state behind; the next run resets it
first. ScalablePipeline can also replace its pipes between runs.

Reset panics while a run is in flight.
*/
package pipeline
