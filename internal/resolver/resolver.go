// Package resolver closes alerts automatically: auto-resolve alerts whose condition
// cleared, and low-priority alerts left untouched past their deadline.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Store is the persistence the resolver needs.
type Store interface {
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)
	ListAlertsByStatus(ctx context.Context, statuses ...alert.Status) ([]*alert.Alert, error)
	TransitionAlert(ctx context.Context, id string, from alert.Status, change alert.StatusChange) (*alert.Alert, error)
}

// Checker re-runs the rule that raised an alert against its entity.
type Checker interface {
	Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error)
}

// MetricsRecorder defines the metrics operations needed by the resolver.
type MetricsRecorder interface {
	RecordProcessed(latency time.Duration)
	RecordError()
	AddCustom(name string, value uint64)
}

// NoOpMetrics is a null-object implementation of MetricsRecorder.
type NoOpMetrics struct{}

var _ MetricsRecorder = NoOpMetrics{}

func (NoOpMetrics) RecordProcessed(_ time.Duration) {}
func (NoOpMetrics) RecordError()                    {}
func (NoOpMetrics) AddCustom(_ string, _ uint64)    {}

// Outcome is what a check did to one alert.
type Outcome string

const (
	OutcomeResolved  Outcome = "resolved"
	OutcomeExpired   Outcome = "expired"
	OutcomeUnchanged Outcome = "unchanged"
)

// Result summarizes one sweep.
type Result struct {
	Checked  int `json:"checked"`
	Resolved int `json:"resolved"`
	Expired  int `json:"expired"`
	Failed   int `json:"failed"`
}

// Resolver runs automatic resolution.
type Resolver struct {
	store   Store
	checker Checker
	metrics MetricsRecorder
}

// Option is a functional option for configuring Resolver.
type Option func(*Resolver)

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// New creates a Resolver.
func New(store Store, checker Checker, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		checker: checker,
		metrics: NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep checks every open alert once. Failures are logged per alert and never stop the sweep.
func (r *Resolver) Sweep(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	var res Result

	open, err := r.store.ListAlertsByStatus(ctx, alert.OpenStatuses...)
	if err != nil {
		r.metrics.RecordError()
		return res, fmt.Errorf("failed to list open alerts: %w", err)
	}

	for _, a := range open {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !eligible(a, now) {
			continue
		}
		res.Checked++
		out, err := r.check(ctx, a, now)
		if err != nil {
			res.Failed++
			r.metrics.RecordError()
			slog.Warn("Auto-resolution check failed",
				"alert_id", a.ID,
				"category", a.Category,
				"error", err,
			)
			continue
		}
		switch out {
		case OutcomeResolved:
			res.Resolved++
		case OutcomeExpired:
			res.Expired++
		}
	}

	r.metrics.AddCustom("alerts_auto_resolved", uint64(res.Resolved))
	r.metrics.AddCustom("alerts_expired", uint64(res.Expired))
	r.metrics.RecordProcessed(time.Since(start))
	slog.Info("Resolution sweep completed",
		"open", len(open),
		"checked", res.Checked,
		"resolved", res.Resolved,
		"expired", res.Expired,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res, nil
}

// CheckOne runs the automatic check for a single alert.
func (r *Resolver) CheckOne(ctx context.Context, id string, now time.Time) (Outcome, *alert.Alert, error) {
	a, err := r.store.GetAlert(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if a.Status.IsTerminal() {
		return "", nil, fmt.Errorf("alert %s is %s: %w", id, a.Status, alert.ErrAlreadyResolved)
	}
	if !a.AutoResolve {
		return "", nil, fmt.Errorf("%w: alert %s is not auto-resolvable", alert.ErrValidation, id)
	}
	out, err := r.check(ctx, a, now)
	if err != nil {
		return "", nil, err
	}
	if out != OutcomeUnchanged {
		a, err = r.store.GetAlert(ctx, id)
		if err != nil {
			return "", nil, err
		}
	}
	return out, a, nil
}

// eligible selects auto-resolve alerts, and LOW/INFO alerts whose deadline passed.
func eligible(a *alert.Alert, now time.Time) bool {
	return a.AutoResolve || (lowUrgency(a.Priority) && a.Status == alert.StatusActive && a.Overdue(now))
}

func lowUrgency(p alert.Priority) bool {
	return p == alert.PriorityLow || p == alert.PriorityInfo
}

func (r *Resolver) check(ctx context.Context, a *alert.Alert, now time.Time) (Outcome, error) {
	if !a.AutoResolve {
		return r.close(ctx, a, alert.StatusExpired, now)
	}

	violating, err := r.checker.Recheck(ctx, a, now)
	if err != nil {
		return "", err
	}
	if !violating {
		return r.close(ctx, a, alert.StatusResolved, now)
	}
	if a.Overdue(now) && lowUrgency(a.Priority) {
		return r.close(ctx, a, alert.StatusExpired, now)
	}
	return OutcomeUnchanged, nil
}

// close transitions by SystemActor. Losing the race to a manual transition is not an error.
func (r *Resolver) close(ctx context.Context, a *alert.Alert, to alert.Status, now time.Time) (Outcome, error) {
	_, err := r.store.TransitionAlert(ctx, a.ID, a.Status, alert.StatusChange{
		To:    to,
		Actor: alert.SystemActor,
		At:    now,
	})
	if errors.Is(err, alert.ErrConcurrentModification) {
		slog.Debug("Alert changed during auto-resolution, skipping", "alert_id", a.ID)
		return OutcomeUnchanged, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to close alert %s: %w", a.ID, err)
	}

	slog.Info("Alert closed automatically",
		"alert_id", a.ID,
		"category", a.Category,
		"status", to,
	)
	if to == alert.StatusResolved {
		return OutcomeResolved, nil
	}
	return OutcomeExpired, nil
}
