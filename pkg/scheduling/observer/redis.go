package observer

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
	"github.com/vnykmshr/flowgraph/pkg/common/validation"
	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// RedisConfig holds configuration for a RedisStream observer.
type RedisConfig struct {
	// Redis is the client events are written with.
	Redis redis.UniversalClient

	// Stream is the stream key. Defaults to "flowgraph:tasks".
	Stream string

	// MaxLen trims the stream to about this many entries. Zero disables
	// trimming.
	MaxLen int64

	// BufferSize is the number of events held in memory. Events that
	// arrive while the buffer is full are dropped. Defaults to 4096.
	BufferSize int

	// BatchSize is the maximum number of events per pipelined write.
	// Defaults to 256.
	BatchSize int

	// FlushInterval is how long events may wait before a partial batch is
	// written. Defaults to 100ms.
	FlushInterval time.Duration

	// RedisTimeout bounds each write. Defaults to 2s.
	RedisTimeout time.Duration

	// Logger receives write failures. If nil, log.Default() is used.
	Logger *log.Logger

	// Metrics counts dropped events when non-nil.
	Metrics *metrics.Registry
}

func (c *RedisConfig) setDefaults() {
	if c.Stream == "" {
		c.Stream = "flowgraph:tasks"
	}
	if c.BufferSize == 0 {
		c.BufferSize = 4096
	}
	if c.BatchSize == 0 {
		c.BatchSize = 256
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 100 * time.Millisecond
	}
	if c.RedisTimeout == 0 {
		c.RedisTimeout = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
}

func (c RedisConfig) validate() error {
	if err := validation.ValidateNotNil("observer", "Redis", c.Redis); err != nil {
		return err
	}
	if err := validation.ValidatePositive("observer", "BufferSize", c.BufferSize); err != nil {
		return err
	}
	if err := validation.ValidatePositive("observer", "BatchSize", c.BatchSize); err != nil {
		return err
	}
	if c.MaxLen < 0 {
		return gferrors.NewValidationError("observer", "MaxLen", c.MaxLen, "must be non-negative")
	}
	return validation.ValidateNonNegativeDuration("observer", "FlushInterval", c.FlushInterval)
}

type taskEvent struct {
	task   string
	kind   taskflow.Kind
	run    string
	worker int
	start  time.Time
	dur    time.Duration
}

func (e taskEvent) values() map[string]interface{} {
	return map[string]interface{}{
		"task":   e.task,
		"kind":   e.kind.String(),
		"run":    e.run,
		"worker": strconv.Itoa(e.worker),
		"start":  e.start.UnixMicro(),
		"dur_us": e.dur.Microseconds(),
	}
}

// RedisStream appends one entry per finished task to a Redis stream. Tasks
// never wait on Redis: events are buffered and written in pipelined
// batches by a background goroutine. Call Close to flush and stop it.
type RedisStream struct {
	config  RedisConfig
	clock   *clock
	events  chan taskEvent
	dropped atomic.Uint64
	written atomic.Uint64
	dropCtr prometheus.Counter

	closed    atomic.Bool
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewRedisStream creates a stream observer and starts its writer.
func NewRedisStream(config RedisConfig) (*RedisStream, error) {
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}

	s := &RedisStream{
		config:  config,
		clock:   newClock(0),
		events:  make(chan taskEvent, config.BufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.config.Logger = config.Logger.With("stream", config.Stream)
	if config.Metrics != nil {
		s.dropCtr = config.Metrics.ObserverEventsDropped.WithLabelValues("redis")
	}
	go s.run()
	return s, nil
}

func (s *RedisStream) SetUp(numWorkers int) {
	s.clock = newClock(numWorkers)
}

func (s *RedisStream) OnSchedule(int, taskflow.Task) {}

func (s *RedisStream) OnEntry(workerID int, _ taskflow.Task) {
	s.clock.enter(workerID)
}

func (s *RedisStream) OnExit(workerID int, t taskflow.Task) {
	start, end := s.clock.exit(workerID)
	if s.closed.Load() {
		s.drop()
		return
	}
	ev := taskEvent{task: t.Name(), kind: t.Kind(), run: t.RunID(), worker: workerID, start: start, dur: end.Sub(start)}
	select {
	case s.events <- ev:
	default:
		s.drop()
	}
}

func (s *RedisStream) drop() {
	s.dropped.Add(1)
	if s.dropCtr != nil {
		s.dropCtr.Inc()
	}
}

// Dropped returns the number of events discarded because the buffer was
// full, a write failed, or the observer was closed.
func (s *RedisStream) Dropped() uint64 {
	return s.dropped.Load()
}

// Written returns the number of events appended to the stream.
func (s *RedisStream) Written() uint64 {
	return s.written.Load()
}

// Close flushes buffered events and stops the writer. Detach the observer
// from its executor first; events arriving after Close are dropped.
func (s *RedisStream) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})
	<-s.stopped
	return nil
}

func (s *RedisStream) run() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]taskEvent, 0, s.config.BatchSize)
	for {
		select {
		case ev := <-s.events:
			batch = append(batch, ev)
			if len(batch) >= s.config.BatchSize {
				batch = s.flush(batch)
			}
		case <-ticker.C:
			batch = s.flush(batch)
		case <-s.done:
			for {
				select {
				case ev := <-s.events:
					batch = append(batch, ev)
					if len(batch) >= s.config.BatchSize {
						batch = s.flush(batch)
					}
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

func (s *RedisStream) flush(batch []taskEvent) []taskEvent {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.RedisTimeout)
	defer cancel()

	_, err := s.config.Redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range batch {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: s.config.Stream,
				MaxLen: s.config.MaxLen,
				Approx: s.config.MaxLen > 0,
				Values: ev.values(),
			})
		}
		return nil
	})
	if err != nil {
		s.config.Logger.Warn("stream write failed", "events", len(batch),
			"err", gferrors.NewOperationError("observer", "xadd", err))
		for range batch {
			s.drop()
		}
	} else {
		s.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}
