package alert

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Alert is a detected or manually raised problem requiring attention.
type Alert struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Category        Category   `json:"category"`
	Priority        Priority   `json:"priority"`
	Status          Status     `json:"status"`
	Entity          EntityRef  `json:"entity"`
	Payload         Payload    `json:"payload,omitempty"`
	SiteID          *string    `json:"site_id,omitempty"`
	OrganizationID  *string    `json:"organization_id,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	ActionTaken     *string    `json:"action_taken,omitempty"`
	ActionResult    *string    `json:"action_result,omitempty"`
	AutoResolve     bool       `json:"auto_resolve"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *Actor     `json:"resolved_by,omitempty"`
	CreatedBy       Actor      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedBy       Actor      `json:"updated_by"`
	UpdatedAt       time.Time  `json:"updated_at"`
	EscalationLevel int        `json:"escalation_level"`
	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`
}

// alertFields has the fields of Alert without its methods.
type alertFields Alert

// alertJSON is the wire shape of an Alert: the payload travels in its kind envelope.
type alertJSON struct {
	*alertFields
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the payload with its kind so clients can tell the variants apart.
func (a Alert) MarshalJSON() ([]byte, error) {
	payload, err := EncodePayload(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(alertJSON{alertFields: (*alertFields)(&a), Payload: payload})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Alert) UnmarshalJSON(data []byte) error {
	aux := alertJSON{alertFields: (*alertFields)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p, err := DecodePayload(aux.Payload)
	if err != nil {
		return err
	}
	a.Payload = p
	return nil
}

// DedupeKey returns the uniqueness key for open alerts.
func (a *Alert) DedupeKey() DedupeKey {
	return DedupeKey{Category: a.Category, EntityKind: a.Entity.Kind, EntityID: a.Entity.ID}
}

// Overdue reports whether the action deadline has passed.
func (a *Alert) Overdue(now time.Time) bool {
	return a.Deadline != nil && now.After(*a.Deadline)
}

// Clone returns a deep copy of the alert.
func (a *Alert) Clone() *Alert {
	c := *a
	c.SiteID = cloneString(a.SiteID)
	c.OrganizationID = cloneString(a.OrganizationID)
	c.Deadline = cloneTime(a.Deadline)
	c.ActionTaken = cloneString(a.ActionTaken)
	c.ActionResult = cloneString(a.ActionResult)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	c.LastEscalatedAt = cloneTime(a.LastEscalatedAt)
	if a.ResolvedBy != nil {
		rb := *a.ResolvedBy
		c.ResolvedBy = &rb
	}
	return &c
}

// Validate checks the fields required before an alert can be persisted.
func (a *Alert) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !a.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrValidation, a.Category)
	}
	if !a.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, a.Priority)
	}
	if !a.Entity.Kind.Valid() {
		return fmt.Errorf("%w: unknown entity kind %q", ErrValidation, a.Entity.Kind)
	}
	if a.Entity.ID == "" {
		return fmt.Errorf("%w: entity id is required", ErrValidation)
	}
	if a.CreatedBy.IsZero() {
		return fmt.Errorf("%w: created_by is required", ErrValidation)
	}
	return nil
}

// Notification is one recipient's copy of an alert.
type Notification struct {
	ID            string     `json:"id"`
	AlertID       string     `json:"alert_id"`
	UserID        string     `json:"user_id"`
	Tier          Tier       `json:"tier"`
	Channels      []Channel  `json:"channels"`
	Read          bool       `json:"read"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
	Dismissed     bool       `json:"dismissed"`
	DismissedAt   *time.Time `json:"dismissed_at,omitempty"`
	DispatchAfter time.Time  `json:"dispatch_after"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Clone returns a deep copy of the notification.
func (n *Notification) Clone() *Notification {
	c := *n
	c.Channels = append([]Channel(nil), n.Channels...)
	c.ReadAt = cloneTime(n.ReadAt)
	c.DismissedAt = cloneTime(n.DismissedAt)
	return &c
}

// NotificationItem is a notification joined with the alert fields a recipient's inbox shows.
type NotificationItem struct {
	Notification
	AlertTitle    string   `json:"alert_title"`
	AlertPriority Priority `json:"alert_priority"`
	AlertCategory Category `json:"alert_category"`
	AlertStatus   Status   `json:"alert_status"`
}

// StatusChange describes a single lifecycle transition.
type StatusChange struct {
	To           Status
	Actor        Actor
	At           time.Time
	ActionTaken  *string
	ActionResult *string
}

// DetailsUpdate holds the administrative edits allowed on an alert. Nil fields are left unchanged.
type DetailsUpdate struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	ActionTaken  *string    `json:"action_taken,omitempty"`
	ActionResult *string    `json:"action_result,omitempty"`
}

// Validate rejects empty titles and unknown priorities.
func (u DetailsUpdate) Validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if u.Priority != nil && !u.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, *u.Priority)
	}
	return nil
}

// Apply copies the set fields onto a.
func (u DetailsUpdate) Apply(a *Alert) {
	if u.Title != nil {
		a.Title = *u.Title
	}
	if u.Description != nil {
		a.Description = *u.Description
	}
	if u.Priority != nil {
		a.Priority = *u.Priority
	}
	if u.Deadline != nil {
		a.Deadline = cloneTime(u.Deadline)
	}
	if u.ActionTaken != nil {
		a.ActionTaken = cloneString(u.ActionTaken)
	}
	if u.ActionResult != nil {
		a.ActionResult = cloneString(u.ActionResult)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
