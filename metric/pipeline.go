package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Trigger labels on the transmissions counter
const (
	TriggerInterval = "interval"
	TriggerChange   = "trigger"
)

// Error stages on the errors counter
const (
	StageResolve = "resolve"
	StageRender  = "render"
	StageHeader  = "header"
	StageDeliver = "deliver"
	StageStatus  = "status"
)

// PipelineMetrics are the per-pipeline metrics, labelled by prefix. A nil
// *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	Transmissions  *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	RenderDuration *prometheus.HistogramVec
	Enabled        *prometheus.GaugeVec
	CacheSize      *prometheus.GaugeVec
	HeaderReloads  *prometheus.GaugeVec
}

// NewPipelineMetrics creates the pipeline metrics and registers them with
// registry. A nil registry returns nil.
func NewPipelineMetrics(registry *MetricsRegistry) (*PipelineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &PipelineMetrics{
		Transmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "transmissions_total",
				Help:      "Messages delivered, by what caused the firing",
			},
			[]string{"prefix", "trigger"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "errors_total",
				Help:      "Failed resolutions, renders and deliveries",
			},
			[]string{"prefix", "stage"},
		),
		RenderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "render_duration_seconds",
				Help:      "Time to read all variables and build one message",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"prefix"},
		),
		Enabled: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "enabled",
				Help:      "Pipeline enable state (0=disabled, 1=enabled)",
			},
			[]string{"prefix"},
		),
		CacheSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "cache_size",
				Help:      "Resolved variables per cache",
			},
			[]string{"prefix", "cache"},
		),
		HeaderReloads: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "pipeline",
				Name:      "header_reloads",
				Help:      "Times the pipeline's header template was re-read from disk",
			},
			[]string{"prefix"},
		),
	}

	for name, vec := range map[string]*prometheus.CounterVec{
		"transmissions_total": m.Transmissions,
		"errors_total":        m.Errors,
	} {
		if err := registry.RegisterCounterVec("pipeline", name, vec); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterHistogramVec("pipeline", "render_duration_seconds", m.RenderDuration); err != nil {
		return nil, err
	}
	for name, vec := range map[string]*prometheus.GaugeVec{
		"enabled":        m.Enabled,
		"cache_size":     m.CacheSize,
		"header_reloads": m.HeaderReloads,
	} {
		if err := registry.RegisterGaugeVec("pipeline", name, vec); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordTransmission counts one delivered message
func (m *PipelineMetrics) RecordTransmission(prefix, trigger string) {
	if m == nil {
		return
	}
	m.Transmissions.WithLabelValues(prefix, trigger).Inc()
}

// RecordError counts one failure at stage
func (m *PipelineMetrics) RecordError(prefix, stage string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(prefix, stage).Inc()
}

// RecordRender observes one render duration
func (m *PipelineMetrics) RecordRender(prefix string, d time.Duration) {
	if m == nil {
		return
	}
	m.RenderDuration.WithLabelValues(prefix).Observe(d.Seconds())
}

// RecordEnabled sets the enable gauge
func (m *PipelineMetrics) RecordEnabled(prefix string, enabled bool) {
	if m == nil {
		return
	}
	m.Enabled.WithLabelValues(prefix).Set(boolValue(enabled))
}

// RecordCacheSizes sets both cache size gauges
func (m *PipelineMetrics) RecordCacheSizes(prefix string, trigger, body int) {
	if m == nil {
		return
	}
	m.CacheSize.WithLabelValues(prefix, "trigger").Set(float64(trigger))
	m.CacheSize.WithLabelValues(prefix, "body").Set(float64(body))
}

// RecordHeaderReloads sets the header reload gauge
func (m *PipelineMetrics) RecordHeaderReloads(prefix string, n uint64) {
	if m == nil {
		return
	}
	m.HeaderReloads.WithLabelValues(prefix).Set(float64(n))
}
