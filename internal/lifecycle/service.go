package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// maxAttempts bounds compare-and-set retries: the first try plus one re-read.
const maxAttempts = 2

// Service is the resolution handler for manual transitions.
type Service struct {
	store   Store
	planner Planner
	now     func() time.Time
	newID   func() string
}

// Option is a functional option for configuring Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService creates a Service.
func NewService(store Store, planner Planner, opts ...Option) *Service {
	s := &Service{
		store:   store,
		planner: planner,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a single alert.
func (s *Service) Get(ctx context.Context, id string) (*alert.Alert, error) {
	return s.store.GetAlert(ctx, id)
}

// Acknowledge moves an ACTIVE alert to IN_PROGRESS. Acknowledging an IN_PROGRESS
// alert returns it unchanged.
func (s *Service) Acknowledge(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
	return s.transition(ctx, id, alert.StatusChange{To: alert.StatusInProgress, Actor: actor})
}

// Resolve closes an alert as RESOLVED, recording the remediation when given.
func (s *Service) Resolve(ctx context.Context, id string, actor alert.Actor, actionTaken, actionResult *string) (*alert.Alert, error) {
	return s.transition(ctx, id, alert.StatusChange{
		To:           alert.StatusResolved,
		Actor:        actor,
		ActionTaken:  trimmed(actionTaken),
		ActionResult: trimmed(actionResult),
	})
}

// Dismiss closes an alert as DISMISSED.
func (s *Service) Dismiss(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
	return s.transition(ctx, id, alert.StatusChange{To: alert.StatusDismissed, Actor: actor})
}

// Expire closes an alert as EXPIRED.
func (s *Service) Expire(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
	return s.transition(ctx, id, alert.StatusChange{To: alert.StatusExpired, Actor: actor})
}

func (s *Service) transition(ctx context.Context, id string, change alert.StatusChange) (*alert.Alert, error) {
	if change.Actor.IsZero() {
		return nil, fmt.Errorf("%w: actor is required", alert.ErrValidation)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		current, err := s.store.GetAlert(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status.IsTerminal() {
			return nil, fmt.Errorf("alert %s is %s: %w", id, current.Status, alert.ErrAlreadyResolved)
		}
		if current.Status == change.To {
			return current, nil
		}
		if !current.Status.CanTransition(change.To) {
			return nil, fmt.Errorf("%w: cannot move alert from %s to %s", alert.ErrValidation, current.Status, change.To)
		}

		change.At = s.now()
		updated, err := s.store.TransitionAlert(ctx, id, current.Status, change)
		if errors.Is(err, alert.ErrConcurrentModification) {
			slog.Debug("Transition lost a race, re-reading",
				"alert_id", id,
				"to", change.To,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to move alert %s to %s: %w", id, change.To, err)
		}

		slog.Info("Alert status changed",
			"alert_id", id,
			"from", current.Status,
			"to", updated.Status,
			"actor", change.Actor.String(),
		)
		return updated, nil
	}
	return nil, fmt.Errorf("alert %s: %w", id, alert.ErrConcurrentModification)
}

// CreateRequest is an administratively raised alert.
type CreateRequest struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Category       alert.Category   `json:"category"`
	Priority       alert.Priority   `json:"priority"`
	Entity         *alert.EntityRef `json:"entity,omitempty"`
	SiteID         *string          `json:"site_id,omitempty"`
	OrganizationID *string          `json:"organization_id,omitempty"`
	Deadline       *time.Time       `json:"deadline,omitempty"`
	// TargetUserIDs replaces scope-based recipient resolution when set.
	TargetUserIDs []string `json:"target_user_ids,omitempty"`
}

// Create raises an alert on behalf of an administrator. Without an entity the alert
// refers to itself as a manual entity. Returns ErrConflict when an open alert already
// covers the entity.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor alert.Actor) (*alert.Alert, error) {
	if actor.IsZero() {
		return nil, fmt.Errorf("%w: actor is required", alert.ErrValidation)
	}
	now := s.now()
	a := &alert.Alert{
		ID:             s.newID(),
		Title:          strings.TrimSpace(req.Title),
		Description:    strings.TrimSpace(req.Description),
		Category:       req.Category,
		Priority:       req.Priority,
		Status:         alert.StatusActive,
		SiteID:         req.SiteID,
		OrganizationID: req.OrganizationID,
		Deadline:       req.Deadline,
		CreatedBy:      actor,
		CreatedAt:      now,
		UpdatedBy:      actor,
		UpdatedAt:      now,
	}
	if req.Entity != nil {
		a.Entity = *req.Entity
	} else {
		a.Entity = alert.EntityRef{Kind: alert.EntityManual, ID: a.ID}
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	var notifs []*alert.Notification
	if len(req.TargetUserIDs) > 0 {
		notifs = s.planner.PlanUsers(a, req.TargetUserIDs, alert.TierSiteOperator, now)
	} else {
		var err error
		notifs, err = s.planner.Plan(ctx, a, now)
		if err != nil {
			slog.Warn("Recipient resolution failed, raising alert without notifications",
				"alert_id", a.ID,
				"error", err,
			)
			notifs = nil
		}
	}

	created, err := s.store.CreateAlert(ctx, a, notifs)
	if err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%s: %w", a.DedupeKey(), alert.ErrConflict)
	}

	slog.Info("Alert created manually",
		"alert_id", a.ID,
		"category", a.Category,
		"priority", a.Priority,
		"actor", actor.String(),
		"notifications", len(notifs),
	)
	s.planner.Announce(ctx, a, notifs)
	return a, nil
}

// Update applies administrative edits to an open alert.
func (s *Service) Update(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor) (*alert.Alert, error) {
	if actor.IsZero() {
		return nil, fmt.Errorf("%w: actor is required", alert.ErrValidation)
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	return s.store.UpdateAlertDetails(ctx, id, upd, actor, s.now())
}

// Delete purges an alert and its notifications.
func (s *Service) Delete(ctx context.Context, id string, actor alert.Actor) error {
	if err := s.store.DeleteAlert(ctx, id); err != nil {
		return err
	}
	slog.Info("Alert deleted", "alert_id", id, "actor", actor.String())
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
