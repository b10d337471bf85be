// Package escalation moves unacknowledged alerts up the recipient hierarchy.
package escalation

import (
	"context"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Store is the persistence the sweep needs.
type Store interface {
	ListAlertsByStatus(ctx context.Context, statuses ...alert.Status) ([]*alert.Alert, error)

	// EscalateAlert is a compare-and-set on (status=ACTIVE, level=fromLevel). It stores the
	// notifications in the same transaction and returns those actually inserted.
	EscalateAlert(ctx context.Context, id string, fromLevel int, at time.Time, notifs []*alert.Notification) ([]*alert.Notification, bool, error)
}

// Planner plans and announces the notifications of the next tier.
type Planner interface {
	PlanTier(ctx context.Context, a *alert.Alert, tier alert.Tier, now time.Time) ([]*alert.Notification, error)
	Announce(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) int
}

// MetricsRecorder defines the metrics operations needed by the sweep.
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
