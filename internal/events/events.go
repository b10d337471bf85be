// Package events defines the messages the engine hands to the external dispatcher.
package events

import (
	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// SchemaVersion is the version of NotificationReady carried in the message header.
const SchemaVersion = 1

// NotificationReady asks the dispatcher to deliver one notification.
// DispatchAfter is advisory: the dispatcher should not deliver earlier.
type NotificationReady struct {
	NotificationID  string   `json:"notification_id"`
	AlertID         string   `json:"alert_id"`
	UserID          string   `json:"user_id"`
	Tier            string   `json:"tier"`
	Title           string   `json:"title"`
	Category        string   `json:"category"`
	Priority        string   `json:"priority"`
	Channels        []string `json:"channels"`
	DispatchAfter   int64    `json:"dispatch_after"` // Unix timestamp
	CreatedAt       int64    `json:"created_at"`     // Unix timestamp
	EscalationLevel int      `json:"escalation_level"`
	SchemaVersion   int      `json:"schema_version"`
}

// NewNotificationReady builds the dispatch request for a persisted notification.
func NewNotificationReady(a *alert.Alert, n *alert.Notification) *NotificationReady {
	channels := make([]string, len(n.Channels))
	for i, c := range n.Channels {
		channels[i] = string(c)
	}
	return &NotificationReady{
		NotificationID:  n.ID,
		AlertID:         a.ID,
		UserID:          n.UserID,
		Tier:            string(n.Tier),
		Title:           a.Title,
		Category:        string(a.Category),
		Priority:        string(a.Priority),
		Channels:        channels,
		DispatchAfter:   n.DispatchAfter.Unix(),
		CreatedAt:       n.CreatedAt.Unix(),
		EscalationLevel: a.EscalationLevel,
		SchemaVersion:   SchemaVersion,
	}
}
