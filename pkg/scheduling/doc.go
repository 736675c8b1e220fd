/*
Package scheduling groups the task-graph execution packages.

  - taskflow: Graph model and the work-stealing executor
  - pipeline: Token pipelines lowered into taskflow graphs
  - scheduler: Triggers graph runs at times, intervals or cron expressions
  - observer: Built-in taskflow observers
  - wsq: Chase-Lev work-stealing deque
  - notifier: Eventcount used to park and wake workers

Task Graphs:

A graph is built once and run any number of times:

	g := taskflow.NewGraph("diamond")
	a := g.AddTask("A", fetch)
	b := g.AddTask("B", parse)
	c := g.AddTask("C", index)
	d := g.AddTask("D", publish)
	a.Precede(b, c)
	d.Succeed(b, c)

	exec := taskflow.New(runtime.NumCPU())
	defer func() { <-exec.Shutdown() }()

	fut, _ := exec.Run(g)
	err := fut.Wait()

Pipelines:

A pipeline moves tokens through a sequence of pipes. Serial pipes see one
token at a time in token order; parallel pipes may run many at once:

	p, _ := pipeline.New(4,
		pipeline.SerialPipe(func(pf *pipeline.Pipeflow) error {
			if pf.Token() == 100 {
				pf.Stop()
			}
			return nil
		}),
		pipeline.ParallelPipe(work),
	)
	fut, _ := exec.Run(p.FlowGraph())

Scheduled Runs:

	s := scheduler.New()
	defer func() { <-s.Stop() }()
	s.ScheduleCron("nightly", "0 0 2 * * *", g)
	s.Start()

All executor and pipeline operations are safe for concurrent use unless
their documentation says otherwise.
*/
package scheduling
