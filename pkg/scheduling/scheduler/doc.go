/*
Package scheduler triggers taskflow graph runs at given times, at fixed
intervals or on cron expressions.

Any taskflow.Composable can be scheduled: a Graph, or a pipeline.Pipeline
through its FlowGraph.

Basic Usage:

	s := scheduler.New()
	defer func() { <-s.Stop() }()

	g := taskflow.NewGraph("report")
	// ... add tasks ...

	s.ScheduleAfter("warmup", g, time.Minute)
	s.ScheduleRepeating("refresh", g, 30*time.Second)
	s.ScheduleCron("nightly", "0 0 2 * * *", g)
	s.Start()

Cron expressions have six fields, seconds first. Descriptors such as
"@hourly" and "@every 5m" are accepted as well. Cron jobs are evaluated in
Config.Location.

Overlapping Runs:

A job is never run concurrently with itself. When a trigger fires while
the job's previous run is still in flight the trigger is skipped and
counted in Job.Skipped. Repeating jobs are rescheduled from the time of
the trigger, not from the end of the run.

Options:

Add takes a JobSpec with JobOptions for limiting the number of runs,
removing a job after a failure, bounding each run with a timeout, and
observing results:

	s.Add(scheduler.JobSpec{
		ID:       "sync",
		Graph:    g,
		Interval: time.Minute,
		Options: scheduler.JobOptions{
			Timeout:     50 * time.Second,
			StopOnError: true,
			OnComplete: func(id string, err error) {
				log.Printf("%s: %v", id, err)
			},
		},
	})

Backoff wraps a single task callable with retries:

	g.AddTask("fetch", scheduler.Backoff{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
	}.Wrap(fetch))

Executors:

Without Config.Executor the scheduler creates an executor with one worker
per CPU and shuts it down on Stop. A scheduler that owns its executor
cannot be started again after Stop. Stop waits for runs already triggered
to complete.

Metrics:

When Config.Metrics is set, triggered, skipped and failed runs are
counted per scheduler name.
*/
package scheduler
