package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/flowgraph/pkg/metrics"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/observer"
	"github.com/vnykmshr/flowgraph/pkg/scheduling/taskflow"
)

// engine is an executor with the observers selected by the config.
type engine struct {
	exec     *taskflow.Executor
	counter  *observer.Counter
	profiler *observer.Profiler

	metrics  *metrics.Registry
	gatherer *prometheus.Registry

	rdb    *redis.Client
	stream *observer.RedisStream
}

func (c *CLI) newEngine(name string) (*engine, error) {
	cfg := c.config
	e := &engine{counter: observer.NewCounter()}
	observers := []taskflow.Observer{e.counter}

	if cfg.MetricsAddr != "" {
		e.gatherer = prometheus.NewRegistry()
		e.gatherer.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		e.metrics = metrics.NewRegistryWithConfig(metrics.Config{
			Enabled:  true,
			Registry: e.gatherer,
			Labels:   prometheus.Labels{"workload": name},
		})
		observers = append(observers, observer.NewMetrics(e.metrics, name))
	}
	if cfg.Trace != "" {
		e.profiler = observer.NewProfiler()
		observers = append(observers, e.profiler)
	}
	if cfg.LogTasks {
		observers = append(observers, observer.NewLogger(c.Logger))
	}
	if cfg.Redis.Addr != "" {
		e.rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		stream, err := observer.NewRedisStream(observer.RedisConfig{
			Redis:   e.rdb,
			Stream:  cfg.Redis.Stream,
			MaxLen:  cfg.Redis.MaxLen,
			Logger:  c.Logger,
			Metrics: e.metrics,
		})
		if err != nil {
			_ = e.rdb.Close()
			return nil, err
		}
		e.stream = stream
		observers = append(observers, stream)
	}

	exec, err := taskflow.NewWithConfig(taskflow.Config{
		Name:      name,
		Workers:   cfg.Workers,
		Logger:    c.Logger,
		Observers: observers,
		Metrics:   e.metrics,
	})
	if err != nil {
		e.closeStream()
		return nil, err
	}
	e.exec = exec
	c.Logger.Debug("executor ready", "name", name, "workers", cfg.Workers, "observers", len(observers))
	return e, nil
}

// close shuts the executor down and flushes the Redis stream.
func (e *engine) close(c *CLI) {
	<-e.exec.Shutdown()
	if e.stream != nil {
		c.Logger.Debug("redis stream closed", "written", e.stream.Written(), "dropped", e.stream.Dropped())
	}
	e.closeStream()
}

func (e *engine) closeStream() {
	if e.stream != nil {
		_ = e.stream.Close()
	}
	if e.rdb != nil {
		_ = e.rdb.Close()
	}
}

// writeTrace writes the profile to the configured trace file.
func (c *CLI) writeTrace(e *engine) error {
	if e.profiler == nil {
		return nil
	}
	f, err := os.Create(c.config.Trace)
	if err != nil {
		return err
	}
	if err := e.profiler.WriteChromeTrace(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	c.Logger.Info("trace written", "path", c.config.Trace, "segments", len(e.profiler.Segments()))
	return nil
}

// serve runs work while the metrics endpoint is up. Without a metrics
// address it just runs work.
func (c *CLI) serve(ctx context.Context, e *engine, work func(context.Context) error) error {
	if e.gatherer == nil {
		return work(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{Registry: e.gatherer}))
	srv := &http.Server{
		Addr:              c.config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.Info("serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := work(gctx); err != nil {
			return err
		}
		if c.config.Hold {
			c.Logger.Info("workload finished, holding metrics endpoint")
			<-gctx.Done()
		}
		return nil
	})
	return g.Wait()
}
