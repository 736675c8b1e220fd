/*
Package flowgraph provides a work-stealing task-graph executor for Go and a
token pipeline engine built on top of it.

Task Scheduling (pkg/scheduling):
  - taskflow: Task graphs, conditions, subflows, modules and the executor
  - pipeline: Serial and parallel pipes over a fixed number of lines
  - scheduler: Time, interval and cron triggered graph runs
  - observer: Profiling, logging, metrics and Redis task event streams
  - wsq: Work-stealing deque used by the executor workers
  - notifier: Wait/notify primitive for parking idle workers

Supporting packages:
  - metrics: Prometheus registry shared by every component
  - common/errors: Sentinel and typed errors
  - common/validation: Configuration checks

Example usage:

	import (
		"github.com/vnykmshr/flowgraph/pkg/scheduling/pipeline"
		"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
	)

	exec := taskflow.New(8)
	defer func() { <-exec.Shutdown() }()

	p, _ := pipeline.New(4,
		pipeline.SerialPipe(read),
		pipeline.ParallelPipe(transform),
		pipeline.SerialPipe(write),
	)

	g := taskflow.NewGraph("etl")
	open := g.AddTask("open", openInput)
	stream := g.ComposedOf("stream", p)
	open.Precede(stream)

	fut, _ := exec.Run(g)
	err := fut.Wait()

The taskbench command (cmd/taskbench) runs synthetic workloads on the
executor and compares it with goroutine pools.
*/
package flowgraph
