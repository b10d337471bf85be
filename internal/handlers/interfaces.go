// Package handlers provides HTTP handlers for the alert engine API.
package handlers

import (
	"context"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/escalation"
	"github.com/stargan-id/jaga-gizi-alerting/internal/fanout"
	"github.com/stargan-id/jaga-gizi-alerting/internal/lifecycle"
	"github.com/stargan-id/jaga-gizi-alerting/internal/resolver"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
	"github.com/stargan-id/jaga-gizi-alerting/internal/summary"
	"github.com/stargan-id/jaga-gizi-alerting/pkg/metrics"
)

// Store is the read side of the alert store plus the recipient-owned notification flags.
type Store interface {
	ListAlerts(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error)
	NotificationsForAlert(ctx context.Context, alertID string) ([]*alert.Notification, error)
	ListNotifications(ctx context.Context, userID string, f alert.NotificationFilter) (*alert.NotificationListResult, error)
	RecentNotificationItems(ctx context.Context, userID string, since time.Time) ([]*alert.NotificationItem, error)
	MarkNotifications(ctx context.Context, userID string, ids []string, action alert.MarkAction, at time.Time) (int, error)
}

// Lifecycle performs manual transitions and administrative edits.
type Lifecycle interface {
	Get(ctx context.Context, id string) (*alert.Alert, error)
	Acknowledge(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error)
	Resolve(ctx context.Context, id string, actor alert.Actor, actionTaken, actionResult *string) (*alert.Alert, error)
	Dismiss(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error)
	Create(ctx context.Context, req lifecycle.CreateRequest, actor alert.Actor) (*alert.Alert, error)
	Update(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor) (*alert.Alert, error)
	Delete(ctx context.Context, id string, actor alert.Actor) error
}

// Scanner runs monitoring rules on demand.
type Scanner interface {
	Scan(ctx context.Context, kind rules.Kind, now time.Time) (int, error)
	ScanAll(ctx context.Context, now time.Time) (map[rules.Kind]int, error)
	Rules() []rules.Rule
}

// EscalationSweeper runs one escalation sweep.
type EscalationSweeper interface {
	Sweep(ctx context.Context, now time.Time) (escalation.Result, error)
}

// AutoResolver runs automatic resolution.
type AutoResolver interface {
	Sweep(ctx context.Context, now time.Time) (resolver.Result, error)
	CheckOne(ctx context.Context, id string, now time.Time) (resolver.Outcome, *alert.Alert, error)
}

// SummaryBuilder builds the dashboard summary.
type SummaryBuilder interface {
	Build(ctx context.Context, orgID *string) *summary.Summary
}

// DigestGrouper groups a recipient's notifications into digests.
type DigestGrouper interface {
	Digests(items []*alert.NotificationItem) []fanout.Digest
}

// MetricsReader reads service metrics reported by engine instances.
type MetricsReader interface {
	Instances(ctx context.Context) ([]*metrics.Snapshot, error)
	Totals(ctx context.Context) (map[string]uint64, error)
}

// MetricsRecorder defines the interface for recording metrics.
// This uses the null object pattern - a no-op implementation avoids nil checks.
type MetricsRecorder interface {
	RecordError()
	IncrementCustom(name string)
}

// NoOpMetrics is a no-op implementation of MetricsRecorder.
type NoOpMetrics struct{}

var _ MetricsRecorder = NoOpMetrics{}

func (NoOpMetrics) RecordError()             {}
func (NoOpMetrics) IncrementCustom(_ string) {}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error
