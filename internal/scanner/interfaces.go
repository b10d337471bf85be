// Package scanner runs monitoring rules against upstream data and raises deduplicated alerts.
package scanner

import (
	"context"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

// Store is the persistence the scanner needs.
type Store interface {
	// HasOpenAlert reports whether an ACTIVE or IN_PROGRESS alert exists for the key.
	HasOpenAlert(ctx context.Context, key alert.DedupeKey) (bool, error)

	// CreateAlert inserts the alert and its notifications atomically.
	// Returns false without error when an open alert with the same key already exists.
	CreateAlert(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) (bool, error)
}

// Planner plans and announces notifications for a new alert.
type Planner interface {
	Plan(ctx context.Context, a *alert.Alert, now time.Time) ([]*alert.Notification, error)
	Announce(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) int
}

// Rule detects violations of one monitoring rule and re-checks a single entity.
type Rule interface {
	// Config returns the rule configuration.
	Config() rules.Rule

	// Find returns one candidate alert per violating entity. Candidates carry no id or audit stamps.
	Find(ctx context.Context, now time.Time) ([]*alert.Alert, error)

	// Recheck reports whether the entity behind a still violates the rule.
	// An entity that no longer exists does not violate it.
	Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error)
}

// MetricsRecorder defines the metrics operations needed by the scanner.
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
