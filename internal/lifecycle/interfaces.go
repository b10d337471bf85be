// Package lifecycle applies manual state transitions and administrative edits to alerts.
package lifecycle

import (
	"context"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Store is the persistence the lifecycle service needs.
type Store interface {
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)
	CreateAlert(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) (bool, error)
	UpdateAlertDetails(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor, at time.Time) (*alert.Alert, error)
	DeleteAlert(ctx context.Context, id string) error

	// TransitionAlert is a compare-and-set on the current status.
	TransitionAlert(ctx context.Context, id string, from alert.Status, change alert.StatusChange) (*alert.Alert, error)
}

// Planner builds and announces notifications for administratively created alerts.
type Planner interface {
	Plan(ctx context.Context, a *alert.Alert, now time.Time) ([]*alert.Notification, error)
	PlanUsers(a *alert.Alert, userIDs []string, tier alert.Tier, now time.Time) []*alert.Notification
	Announce(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) int
}
