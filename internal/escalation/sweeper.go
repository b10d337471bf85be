package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/policy"
)

// Result summarizes one sweep.
type Result struct {
	Inspected int `json:"inspected"`
	Escalated int `json:"escalated"`
	Notified  int `json:"notified"`
	Failed    int `json:"failed"`
}

// Sweeper runs the escalation sweep. Sweeps are re-entrant: the level update is a
// compare-and-set, so overlapping sweeps escalate each crossing once.
type Sweeper struct {
	store   Store
	planner Planner
	policy  policy.Policy
	metrics MetricsRecorder
}

// Option is a functional option for configuring Sweeper.
type Option func(*Sweeper)

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Sweeper) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewSweeper creates a Sweeper.
func NewSweeper(store Store, planner Planner, pol policy.Policy, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:   store,
		planner: planner,
		policy:  pol,
		metrics: NoOpMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep inspects every ACTIVE alert and advances each due alert by one level,
// notifying the tier of the new level.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (Result, error) {
	start := time.Now()
	var res Result

	active, err := s.store.ListAlertsByStatus(ctx, alert.StatusActive)
	if err != nil {
		s.metrics.RecordError()
		return res, fmt.Errorf("failed to list active alerts: %w", err)
	}

	for _, a := range active {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Inspected++
		if !s.policy.EscalationDue(a, now) {
			continue
		}
		notified, ok, err := s.escalate(ctx, a, now)
		if err != nil {
			res.Failed++
			s.metrics.RecordError()
			slog.Warn("Failed to escalate alert",
				"alert_id", a.ID,
				"level", a.EscalationLevel,
				"error", err,
			)
			continue
		}
		if ok {
			res.Escalated++
			res.Notified += notified
		}
	}

	s.metrics.AddCustom("alerts_escalated", uint64(res.Escalated))
	s.metrics.RecordProcessed(time.Since(start))
	slog.Info("Escalation sweep completed",
		"inspected", res.Inspected,
		"escalated", res.Escalated,
		"notified", res.Notified,
		"failed", res.Failed,
		"duration", time.Since(start),
	)
	return res, nil
}

func (s *Sweeper) escalate(ctx context.Context, a *alert.Alert, now time.Time) (int, bool, error) {
	next := a.EscalationLevel + 1
	tier, ok := s.policy.TierAt(next)
	if !ok {
		return 0, false, nil
	}

	notifs, err := s.planner.PlanTier(ctx, a, tier, now)
	if err != nil {
		// The level stays put so the next sweep retries the lookup.
		return 0, false, err
	}

	inserted, ok, err := s.store.EscalateAlert(ctx, a.ID, a.EscalationLevel, now, notifs)
	if err != nil {
		return 0, false, fmt.Errorf("failed to escalate alert %s: %w", a.ID, err)
	}
	if !ok {
		slog.Debug("Alert changed before escalation, skipping", "alert_id", a.ID)
		return 0, false, nil
	}

	a.EscalationLevel = next
	a.LastEscalatedAt = &now
	slog.Info("Alert escalated",
		"alert_id", a.ID,
		"priority", a.Priority,
		"level", next,
		"tier", tier,
		"notifications", len(inserted),
	)
	s.planner.Announce(ctx, a, inserted)
	return len(inserted), true, nil
}
