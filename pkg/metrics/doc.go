// Package metrics provides Prometheus instrumentation for flowgraph components.
//
// # Overview
//
// The executor, pipelines and the scheduler accept a *Registry. A nil
// registry disables collection, so the hot path pays nothing unless
// metrics were requested.
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	exec, _ := taskflow.NewWithConfig(taskflow.Config{
//		Name:    "ingest",
//		Workers: 8,
//		Metrics: reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// Executor:
//
//   - flowgraph_executor_tasks_executed_total{executor,kind}
//   - flowgraph_executor_tasks_failed_total{executor}
//   - flowgraph_executor_steals_total{executor}
//   - flowgraph_executor_parks_total{executor}
//   - flowgraph_executor_topologies_active{executor}
//   - flowgraph_executor_workers{executor}
//   - flowgraph_executor_task_duration_seconds{executor,kind} (observer.Metrics)
//
// Pipeline:
//
//   - flowgraph_pipeline_tokens_total{pipeline}
//   - flowgraph_pipeline_deferrals_total{pipeline}
//   - flowgraph_pipeline_resets_total{pipeline}
//
// Scheduler:
//
//   - flowgraph_scheduler_jobs_triggered_total{scheduler}
//   - flowgraph_scheduler_jobs_skipped_total{scheduler}
//   - flowgraph_scheduler_jobs_failed_total{scheduler}
//
// Observers:
//
//   - flowgraph_observer_events_dropped_total{observer}
//
// # Custom Registry
//
// Use a separate Prometheus registry per test or per component to avoid
// duplicate registration panics:
//
//	registry := metrics.NewRegistryWithConfig(metrics.Config{
//		Registry:  prometheus.NewRegistry(),
//		Namespace: "myapp",
//	})
package metrics
