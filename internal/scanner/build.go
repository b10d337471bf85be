package scanner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

// candidate fills the fields every rule shares.
func candidate(cfg rules.Rule, entityID, siteID, orgID string, now time.Time) *alert.Alert {
	a := &alert.Alert{
		Category:    cfg.Category,
		Priority:    cfg.Priority,
		Entity:      alert.EntityRef{Kind: cfg.Entity, ID: entityID},
		AutoResolve: cfg.AutoResolve,
	}
	if siteID != "" {
		a.SiteID = &siteID
	}
	if orgID != "" {
		a.OrganizationID = &orgID
	}
	if cfg.DeadlineHours > 0 {
		d := now.Add(time.Duration(cfg.DeadlineHours) * time.Hour)
		a.Deadline = &d
	}
	return a
}

// deadlineAt sets the deadline to t unless the rule configures a relative one.
func deadlineAt(a *alert.Alert, cfg rules.Rule, t time.Time) {
	if cfg.DeadlineHours == 0 {
		d := t
		a.Deadline = &d
	}
}

func upstreamError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", alert.ErrUpstreamUnavailable, what, err)
}

// gone reports whether a single-entity lookup failed because the record no longer exists.
func gone(err error) bool {
	return errors.Is(err, alert.ErrNotFound)
}

func hoursBetween(from, to time.Time) int {
	return int(math.Floor(to.Sub(from).Hours()))
}

func daysUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Hours() / 24))
}
