// Package memstore is an in-memory alert store with the same invariants as the Postgres store.
// It backs STORE_BACKEND=memory and the package tests of the engine.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Store keeps alerts and notifications in maps guarded by a single mutex.
type Store struct {
	mu            sync.Mutex
	alerts        map[string]*alert.Alert
	open          map[alert.DedupeKey]string
	notifications map[string]*alert.Notification
	recipients    map[string]map[string]string // alert id -> user id -> notification id
}

// New creates an empty store.
func New() *Store {
	return &Store{
		alerts:        make(map[string]*alert.Alert),
		open:          make(map[alert.DedupeKey]string),
		notifications: make(map[string]*alert.Notification),
		recipients:    make(map[string]map[string]string),
	}
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// HasOpenAlert reports whether an ACTIVE or IN_PROGRESS alert exists for the key.
func (s *Store) HasOpenAlert(ctx context.Context, key alert.DedupeKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.open[key]
	return ok, nil
}

// CreateAlert inserts the alert and its notifications as one unit.
// Returns false when an open alert with the same key exists.
func (s *Store) CreateAlert(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; exists {
		return false, fmt.Errorf("alert already exists: %s", a.ID)
	}
	key := a.DedupeKey()
	if a.Status.IsOpen() {
		if _, exists := s.open[key]; exists {
			return false, nil
		}
		s.open[key] = a.ID
	}
	s.alerts[a.ID] = a.Clone()
	s.insertNotificationsLocked(a.ID, notifs)
	return true, nil
}

// insertNotificationsLocked skips recipients that already hold a notification for the alert.
func (s *Store) insertNotificationsLocked(alertID string, notifs []*alert.Notification) []*alert.Notification {
	byUser := s.recipients[alertID]
	if byUser == nil {
		byUser = make(map[string]string)
		s.recipients[alertID] = byUser
	}
	var inserted []*alert.Notification
	for _, n := range notifs {
		if _, dup := byUser[n.UserID]; dup {
			continue
		}
		c := n.Clone()
		c.AlertID = alertID
		s.notifications[c.ID] = c
		byUser[c.UserID] = c.ID
		inserted = append(inserted, c.Clone())
	}
	return inserted
}

// GetAlert returns a copy of an alert.
func (s *Store) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	return a.Clone(), nil
}

// ListAlerts returns one page of alerts ordered by priority rank then newest.
func (s *Store) ListAlerts(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var matched []*alert.Alert
	for _, a := range s.alerts {
		if f.Matches(a) {
			matched = append(matched, a.Clone())
		}
	}
	s.mu.Unlock()

	alert.SortByUrgency(matched)
	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	return alert.NewListResult(matched[start:end], total, f), nil
}

// ListAlertsByStatus returns all alerts in any of the statuses, oldest first.
func (s *Store) ListAlertsByStatus(ctx context.Context, statuses ...alert.Status) ([]*alert.Alert, error) {
	want := make(map[alert.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.Lock()
	var out []*alert.Alert
	for _, a := range s.alerts {
		if want[a.Status] {
			out = append(out, a.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateAlertDetails applies administrative edits to an open alert.
func (s *Store) UpdateAlertDetails(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor, at time.Time) (*alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	if a.Status.IsTerminal() {
		return nil, fmt.Errorf("alert %s is %s: %w", id, a.Status, alert.ErrAlreadyResolved)
	}
	upd.Apply(a)
	a.UpdatedBy = actor
	a.UpdatedAt = at
	return a.Clone(), nil
}

// DeleteAlert removes an alert and its notifications.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	if s.open[a.DedupeKey()] == id {
		delete(s.open, a.DedupeKey())
	}
	for _, nid := range s.recipients[id] {
		delete(s.notifications, nid)
	}
	delete(s.recipients, id)
	delete(s.alerts, id)
	return nil
}

// TransitionAlert moves an alert from one status to another if it is still in the expected status.
// Returns ErrConcurrentModification when the status changed underneath the caller.
func (s *Store) TransitionAlert(ctx context.Context, id string, from alert.Status, change alert.StatusChange) (*alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	if a.Status != from {
		return nil, fmt.Errorf("alert %s expected %s, found %s: %w", id, from, a.Status, alert.ErrConcurrentModification)
	}

	a.Status = change.To
	a.UpdatedBy = change.Actor
	a.UpdatedAt = change.At
	if change.ActionTaken != nil {
		v := *change.ActionTaken
		a.ActionTaken = &v
	}
	if change.ActionResult != nil {
		v := *change.ActionResult
		a.ActionResult = &v
	}
	if change.To.IsTerminal() {
		at, actor := change.At, change.Actor
		a.ResolvedAt = &at
		a.ResolvedBy = &actor
		if s.open[a.DedupeKey()] == id {
			delete(s.open, a.DedupeKey())
		}
	}
	return a.Clone(), nil
}

// EscalateAlert raises the level of an ACTIVE alert still at fromLevel and stores the
// notifications for the next tier. Returns the notifications actually inserted, and
// false if the alert moved on.
func (s *Store) EscalateAlert(ctx context.Context, id string, fromLevel int, at time.Time, notifs []*alert.Notification) ([]*alert.Notification, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, false, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	if a.Status != alert.StatusActive || a.EscalationLevel != fromLevel {
		return nil, false, nil
	}
	a.EscalationLevel = fromLevel + 1
	a.LastEscalatedAt = &at
	a.UpdatedBy = alert.SystemActor
	a.UpdatedAt = at
	return s.insertNotificationsLocked(id, notifs), true, nil
}
