/*
Package taskflow provides a task-graph executor with work-stealing workers.

A Graph holds tasks and the dependencies between them. An Executor runs
graphs on a fixed number of worker goroutines. Each worker owns a
work-stealing deque: it pushes and pops newly ready tasks at one end while
idle workers steal from the other. A worker that finds nothing to do parks
on an eventcount and is woken when new work is scheduled.

# Basic Usage

	g := taskflow.NewGraph("etl")
	extract := g.AddTask("extract", func(ctx context.Context) error { ... })
	transform := g.AddTask("transform", func(ctx context.Context) error { ... })
	load := g.AddTask("load", func(ctx context.Context) error { ... })
	extract.Precede(transform)
	transform.Precede(load)

	exec := taskflow.New(runtime.NumCPU())
	defer func() { <-exec.Shutdown() }()

	fut, err := exec.Run(g)
	if err != nil {
		return err // executor was shut down
	}
	if err := fut.Wait(); err != nil {
		return err // first task failure of the run
	}

# Task Kinds

  - Static tasks run a TaskFunc.
  - Condition tasks return the index of the one successor to run next.
    Their outgoing edges are weak and do not count as dependencies, which
    allows loops and branches. Multi-condition tasks may select several.
  - Subflow tasks build a subgraph at run time and join it before they
    complete, or detach it.
  - Module tasks run another graph (or any Composable, such as a pipeline)
    to completion before releasing their successors.
  - Runtime tasks may schedule other tasks of the same run directly.
  - Placeholders do nothing but order their neighbours.

# Runs

Run, RunN and RunUntil submit a run and return a Future. Runs of the same
graph execute one after another in submission order. A graph must not be
modified while one of its runs is queued or in flight; adding an edge then
panics.

The first task error or panic of a run is captured as a
*errors.TaskError and cancels the run: tasks already running finish,
nothing new starts, and the Future resolves with that error. Cancelling
explicitly through Future.Cancel or the context given to RunContext
resolves with errors.ErrCanceled when no task failed. Tasks receive the
run's context and should return early once it is done.

# Semaphores

Tasks can acquire and release Semaphores to limit concurrency across
unrelated parts of a graph. A task that cannot acquire is parked on the
semaphore instead of blocking a worker.

# Observers

Observers receive schedule, entry and exit events for every task. See
package observer for a profiler, a logger, Prometheus and Redis stream
implementations.
*/
package taskflow
