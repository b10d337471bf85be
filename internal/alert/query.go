package alert

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter selects alerts for the paginated list view.
type ListFilter struct {
	Page           int
	Limit          int
	Category       *Category
	Priority       *Priority
	Status         *Status
	SiteID         *string
	OrganizationID *string
	DateFrom       *time.Time
	DateTo         *time.Time
	Search         string
	// ShowResolved includes terminal alerts when no explicit status is requested.
	ShowResolved bool
}

// Normalize applies paging defaults and rejects out-of-range values.
func (f *ListFilter) Normalize() error {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageSize
	}
	if f.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrValidation)
	}
	if f.Limit < 1 || f.Limit > MaxPageSize {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, MaxPageSize)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return fmt.Errorf("%w: date_to is before date_from", ErrValidation)
	}
	f.Search = strings.TrimSpace(f.Search)
	return nil
}

// Offset returns the row offset of the requested page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches evaluates the filter against a single alert in memory.
func (f ListFilter) Matches(a *Alert) bool {
	if f.Category != nil && a.Category != *f.Category {
		return false
	}
	if f.Priority != nil && a.Priority != *f.Priority {
		return false
	}
	if f.Status != nil {
		if a.Status != *f.Status {
			return false
		}
	} else if !f.ShowResolved && a.Status.IsTerminal() {
		return false
	}
	if f.SiteID != nil && (a.SiteID == nil || *a.SiteID != *f.SiteID) {
		return false
	}
	if f.OrganizationID != nil && (a.OrganizationID == nil || *a.OrganizationID != *f.OrganizationID) {
		return false
	}
	if f.DateFrom != nil && a.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && a.CreatedAt.After(*f.DateTo) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.Title), needle) &&
			!strings.Contains(strings.ToLower(a.Description), needle) {
			return false
		}
	}
	return true
}

// ListResult is one page of alerts.
type ListResult struct {
	Alerts     []*Alert `json:"alerts"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"total_pages"`
}

// NewListResult fills in the page count.
func NewListResult(alerts []*Alert, total int, f ListFilter) *ListResult {
	pages := 0
	if f.Limit > 0 {
		pages = (total + f.Limit - 1) / f.Limit
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return &ListResult{Alerts: alerts, Total: total, Page: f.Page, Limit: f.Limit, TotalPages: pages}
}

// SortByUrgency orders alerts by priority rank, newest first within a rank.
func SortByUrgency(alerts []*Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Priority.Rank(), alerts[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}

// NotificationFilter selects a recipient's notifications. Dismissed notifications are never listed.
type NotificationFilter struct {
	Page       int
	Limit      int
	UnreadOnly bool
}

// Normalize applies paging defaults and rejects out-of-range values.
func (f *NotificationFilter) Normalize() error {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageSize
	}
	if f.Page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrValidation)
	}
	if f.Limit < 1 || f.Limit > MaxPageSize {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, MaxPageSize)
	}
	return nil
}

// Offset returns the row offset of the requested page.
func (f NotificationFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// NotificationListResult is one page of a recipient's inbox.
type NotificationListResult struct {
	Items  []*NotificationItem `json:"items"`
	Total  int                 `json:"total"`
	Unread int                 `json:"unread"`
	Page   int                 `json:"page"`
	Limit  int                 `json:"limit"`
}

// MarkAction is a recipient-side change to notification flags.
type MarkAction string

const (
	MarkRead      MarkAction = "read"
	MarkDismiss   MarkAction = "dismiss"
	MarkUndismiss MarkAction = "undismiss"
)

// ParseMarkAction validates a mark action name.
func ParseMarkAction(s string) (MarkAction, error) {
	switch MarkAction(strings.ToLower(strings.TrimSpace(s))) {
	case MarkRead:
		return MarkRead, nil
	case MarkDismiss:
		return MarkDismiss, nil
	case MarkUndismiss:
		return MarkUndismiss, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrValidation, s)
}

// ApplyMark updates n in place for action at the given time.
func ApplyMark(n *Notification, action MarkAction, at time.Time) {
	switch action {
	case MarkRead:
		if !n.Read {
			n.Read = true
			n.ReadAt = &at
		}
	case MarkDismiss:
		if !n.Dismissed {
			n.Dismissed = true
			n.DismissedAt = &at
		}
	case MarkUndismiss:
		n.Dismissed = false
		n.DismissedAt = nil
	}
}
