// Package fanout turns an alert into per-recipient notifications and hands them to the dispatcher.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
	"github.com/stargan-id/jaga-gizi-alerting/internal/policy"
)

// Publisher hands dispatch requests to the external dispatcher.
type Publisher interface {
	Publish(ctx context.Context, ready *events.NotificationReady) error
}

// MetricsRecorder defines the metrics operations needed by the fanout.
type MetricsRecorder interface {
	RecordPublished()
	RecordError()
}

// NoOpMetrics is a no-op implementation of MetricsRecorder.
type NoOpMetrics struct{}

func (NoOpMetrics) RecordPublished() {}
func (NoOpMetrics) RecordError()     {}

// Fanout plans notifications from the routing policy and publishes them after commit.
type Fanout struct {
	directory gateway.Directory
	policy    policy.Policy
	publisher Publisher
	metrics   MetricsRecorder
	newID     func() string
}

// Option is a functional option for configuring Fanout.
type Option func(*Fanout)

// WithIDGenerator overrides notification id generation.
func WithIDGenerator(fn func() string) Option {
	return func(f *Fanout) {
		if fn != nil {
			f.newID = fn
		}
	}
}

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(f *Fanout) {
		if m != nil {
			f.metrics = m
		}
	}
}

// New creates a Fanout.
func New(directory gateway.Directory, pol policy.Policy, publisher Publisher, opts ...Option) *Fanout {
	f := &Fanout{
		directory: directory,
		policy:    pol,
		publisher: publisher,
		metrics:   NoOpMetrics{},
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the routing policy in use.
func (f *Fanout) Policy() policy.Policy {
	return f.policy
}

// Plan resolves the recipients of the policy's creation tiers, one notification per distinct user.
// Site staff are scoped by site and regional tiers by organization.
// Any lookup failure yields no notifications and an error; callers keep the alert.
func (f *Fanout) Plan(ctx context.Context, a *alert.Alert, now time.Time) ([]*alert.Notification, error) {
	scope := scopeOf(a)
	seen := make(map[string]bool)
	var out []*alert.Notification

	for _, tier := range f.policy.CreationTiers() {
		if tier == alert.TierSiteOperator && scope.SiteID == "" {
			continue
		}
		if (tier == alert.TierRegionalSupervisor || tier == alert.TierProvincialManager) && scope.OrganizationID == "" {
			continue
		}
		users, err := f.directory.Recipients(ctx, tier, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s recipients: %w", tier, err)
		}
		for _, userID := range users {
			if userID == "" || seen[userID] {
				continue
			}
			seen[userID] = true
			out = append(out, f.newNotification(a, userID, tier, now))
		}
	}
	return out, nil
}

// PlanTier resolves the recipients of one tier, used when an alert escalates.
func (f *Fanout) PlanTier(ctx context.Context, a *alert.Alert, tier alert.Tier, now time.Time) ([]*alert.Notification, error) {
	users, err := f.directory.Recipients(ctx, tier, scopeOf(a))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s recipients: %w", tier, err)
	}
	return f.PlanUsers(a, users, tier, now), nil
}

// PlanUsers builds notifications for an explicit user list.
func (f *Fanout) PlanUsers(a *alert.Alert, userIDs []string, tier alert.Tier, now time.Time) []*alert.Notification {
	seen := make(map[string]bool, len(userIDs))
	out := make([]*alert.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		if userID == "" || seen[userID] {
			continue
		}
		seen[userID] = true
		out = append(out, f.newNotification(a, userID, tier, now))
	}
	return out
}

// Announce publishes a dispatch request per notification. It must only be called after
// the notifications are committed. Failures are logged and never undo the commit.
// Returns the number of requests published.
func (f *Fanout) Announce(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) int {
	if f.publisher == nil {
		return 0
	}
	published := 0
	for _, n := range notifs {
		if err := f.publisher.Publish(ctx, events.NewNotificationReady(a, n)); err != nil {
			slog.Error("Failed to publish notification ready event",
				"alert_id", a.ID,
				"notification_id", n.ID,
				"user_id", n.UserID,
				"error", err,
			)
			f.metrics.RecordError()
			continue
		}
		f.metrics.RecordPublished()
		published++
	}
	return published
}

func (f *Fanout) newNotification(a *alert.Alert, userID string, tier alert.Tier, now time.Time) *alert.Notification {
	return &alert.Notification{
		ID:            f.newID(),
		AlertID:       a.ID,
		UserID:        userID,
		Tier:          tier,
		Channels:      f.policy.ChannelsFor(a.Priority),
		DispatchAfter: now.Add(f.policy.DelayFor(a.Priority)),
		CreatedAt:     now,
	}
}

func scopeOf(a *alert.Alert) gateway.Scope {
	var s gateway.Scope
	if a.SiteID != nil {
		s.SiteID = *a.SiteID
	}
	if a.OrganizationID != nil {
		s.OrganizationID = *a.OrganizationID
	}
	return s
}
