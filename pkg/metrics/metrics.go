// Package metrics provides Prometheus instrumentation for flowgraph components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for flowgraph components.
type Registry struct {
	// Executor metrics
	TasksExecuted    *prometheus.CounterVec
	TasksFailed      *prometheus.CounterVec
	Steals           *prometheus.CounterVec
	Parks            *prometheus.CounterVec
	TopologiesActive *prometheus.GaugeVec
	Workers          *prometheus.GaugeVec
	TaskDuration     *prometheus.HistogramVec

	// Pipeline metrics
	PipelineTokens    *prometheus.CounterVec
	PipelineDeferrals *prometheus.CounterVec
	PipelineResets    *prometheus.CounterVec

	// Scheduler metrics
	JobsTriggered *prometheus.CounterVec
	JobsSkipped   *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec

	// Observer metrics
	ObserverEventsDropped *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns a registry bound to prometheus.DefaultRegisterer. It is
// created on first use so importing the package registers nothing.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithConfig(Config{Registry: reg, Namespace: DefaultNamespace})
}

// NewRegistryWithConfig creates a registry honoring cfg.Namespace and cfg.Labels.
func NewRegistryWithConfig(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: cfg.Labels,
		}, labels)
	}

	return &Registry{
		TasksExecuted: counter("executor", "tasks_executed_total",
			"Total number of task callables invoked", "executor", "kind"),
		TasksFailed: counter("executor", "tasks_failed_total",
			"Total number of task callables that returned an error or panicked", "executor"),
		Steals: counter("executor", "steals_total",
			"Total number of tasks obtained by stealing", "executor"),
		Parks: counter("executor", "parks_total",
			"Total number of times a worker went to sleep", "executor"),
		TopologiesActive: gauge("executor", "topologies_active",
			"Number of submitted runs that have not completed", "executor"),
		Workers: gauge("executor", "workers",
			"Number of worker goroutines", "executor"),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "executor",
			Name:        "task_duration_seconds",
			Help:        "Time spent inside task callables",
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 12),
			ConstLabels: cfg.Labels,
		}, []string{"executor", "kind"}),

		PipelineTokens: counter("pipeline", "tokens_total",
			"Total number of tokens accepted by the first pipe", "pipeline"),
		PipelineDeferrals: counter("pipeline", "deferrals_total",
			"Total number of token deferrals", "pipeline"),
		PipelineResets: counter("pipeline", "resets_total",
			"Total number of pipeline resets", "pipeline"),

		JobsTriggered: counter("scheduler", "jobs_triggered_total",
			"Total number of scheduled graph runs submitted", "scheduler"),
		JobsSkipped: counter("scheduler", "jobs_skipped_total",
			"Total number of triggers skipped because the previous run was in flight", "scheduler"),
		JobsFailed: counter("scheduler", "jobs_failed_total",
			"Total number of scheduled runs that completed with an error", "scheduler"),

		ObserverEventsDropped: counter("observer", "events_dropped_total",
			"Total number of observer events dropped because a buffer was full", "observer"),
	}
}
