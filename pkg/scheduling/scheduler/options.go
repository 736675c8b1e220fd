package scheduler

import (
	"context"
	"time"

	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// JobOptions tune how a job's runs are triggered and handled.
type JobOptions struct {
	// MaxRuns removes the job after it was triggered this many times.
	// Zero means unlimited.
	MaxRuns int

	// StopOnError removes the job after a run fails.
	StopOnError bool

	// Timeout cancels a run that takes longer. Zero disables it.
	Timeout time.Duration

	// OnComplete is called after every triggered run with the run's result.
	// It runs on a scheduler goroutine and should return quickly.
	OnComplete func(id string, err error)
}

// Backoff retries a failing task callable with exponentially growing
// delays.
type Backoff struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Wrap returns a TaskFunc that calls fn until it succeeds, the retries are
// used up, or ctx is done. The last error is returned.
func (b Backoff) Wrap(fn taskflow.TaskFunc) taskflow.TaskFunc {
	return func(ctx context.Context) error {
		var lastErr error
		delay := b.InitialDelay

		for attempt := 0; attempt <= b.MaxRetries; attempt++ {
			if attempt > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}

				delay *= 2
				if b.MaxDelay > 0 && delay > b.MaxDelay {
					delay = b.MaxDelay
				}
			}

			lastErr = fn(ctx)
			if lastErr == nil {
				return nil
			}
		}
		return lastErr
	}
}
