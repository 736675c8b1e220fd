/*
Package observer provides ready-made taskflow observers.

  - Profiler records one Segment per executed task and exports the profile
    as a per-worker Summary or in the Chrome trace event format.
  - Logger writes debug records for task entry and exit.
  - Metrics feeds task durations into a Prometheus histogram.
  - Counter counts schedule, entry and exit events.
  - RedisStream appends finished tasks to a Redis stream.

Attach observers when creating the executor or later:

	prof := observer.NewProfiler()
	exec, _ := taskflow.NewWithConfig(taskflow.Config{
		Workers:   8,
		Observers: []taskflow.Observer{prof},
	})

	// ... run graphs ...

	f, _ := os.Create("trace.json")
	defer f.Close()
	_ = prof.WriteChromeTrace(f)

Observer callbacks run on the worker that executes the task, so all of
these keep their per-task work small. RedisStream never blocks a worker:
it drops events when its buffer is full.
*/
package observer
