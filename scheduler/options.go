package scheduler

import (
	"log/slog"
	"time"

	"github.com/c360/varmsg/metric"
	"github.com/c360/varmsg/render"
)

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the scheduler logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records per-pipeline metrics
func WithMetrics(m *metric.PipelineMetrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithCoreMetrics records directory change counts
func WithCoreMetrics(m *metric.Metrics) Option {
	return func(s *Scheduler) {
		s.core = m
	}
}

// WithVerbose logs every message sent
func WithVerbose(verbose bool) Option {
	return func(s *Scheduler) {
		s.verbose = verbose
	}
}

// WithTickInterval changes the countdown tick. Intervals in pipeline
// definitions count ticks, so anything other than one second is for tests.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithHeaders shares a header set with other users
func WithHeaders(h *render.Headers) Option {
	return func(s *Scheduler) {
		s.headers = h
	}
}
