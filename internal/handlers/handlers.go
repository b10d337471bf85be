package handlers

import (
	"time"
)

// Deps are the services the handlers delegate to.
type Deps struct {
	Store      Store
	Lifecycle  Lifecycle
	Scanner    Scanner
	Escalation EscalationSweeper
	Resolver   AutoResolver
	Summary    SummaryBuilder
	Digests    DigestGrouper
}

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	Deps
	metrics       MetricsRecorder
	metricsReader MetricsReader
	checks        map[string]HealthCheck
	now           func() time.Time
}

// Option is a functional option for configuring Handlers.
type Option func(*Handlers)

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(h *Handlers) {
		if m != nil {
			h.metrics = m
		}
	}
}

// WithMetricsReader enables GET /api/v1/metrics.
func WithMetricsReader(r MetricsReader) Option {
	return func(h *Handlers) {
		h.metricsReader = r
	}
}

// WithHealthCheck adds a named dependency check to /health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handlers) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// WithClock overrides the time source used for scans, sweeps and notification flags.
func WithClock(fn func() time.Time) Option {
	return func(h *Handlers) {
		if fn != nil {
			h.now = fn
		}
	}
}

// NewHandlers creates a new handlers instance.
func NewHandlers(d Deps, opts ...Option) *Handlers {
	h := &Handlers{
		Deps:    d,
		metrics: NoOpMetrics{}, // Default to no-op, never nil
		checks:  make(map[string]HealthCheck),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
