// Package metric provides the Prometheus metrics of a varmsg process.
//
// MetricsRegistry owns a private Prometheus registry with the Go runtime and
// process collectors, the process-wide Metrics (NATS connection health,
// directory change rate, pipeline count) and any component metrics added
// through the MetricsRegistrar methods. Handler exposes the registry for
// scraping; the api package mounts it at /metrics.
//
// PipelineMetrics holds the per-pipeline series, labelled by prefix:
//
//	varmsg_pipeline_transmissions_total{prefix,trigger}
//	varmsg_pipeline_errors_total{prefix,stage}
//	varmsg_pipeline_render_duration_seconds{prefix}
//	varmsg_pipeline_enabled{prefix}
//	varmsg_pipeline_cache_size{prefix,cache}
//
// Usage:
//
//	registry := metric.NewMetricsRegistry()
//	pm, err := metric.NewPipelineMetrics(registry)
//	if err != nil {
//	    return err
//	}
//	pm.RecordTransmission("/varmsg/gps", metric.TriggerInterval)
//
// A nil *PipelineMetrics ignores every call, so components can run
// without metrics in tests.
package metric
