package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

// documentExpiryRule flags approved compliance documents expiring within the window.
type documentExpiryRule struct {
	cfg rules.Rule
	gw  gateway.Gateway
}

func (r *documentExpiryRule) Config() rules.Rule { return r.cfg }

func (r *documentExpiryRule) window() time.Duration {
	return time.Duration(r.cfg.ExpiryWindowDays) * 24 * time.Hour
}

func (r *documentExpiryRule) Find(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	docs, err := r.gw.DocumentsExpiringBetween(ctx, now, now.Add(r.window()))
	if err != nil {
		return nil, upstreamError("documents expiring", err)
	}

	out := make([]*alert.Alert, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			slog.Warn("Skipping document without id", "rule", r.cfg.Kind, "site_id", d.SiteID)
			continue
		}
		daysLeft := daysUntil(now, d.ExpiresAt)
		a := candidate(r.cfg, d.ID, d.SiteID, d.OrganizationID, now)
		a.Title = fmt.Sprintf("%s document expires in %d days", d.Type, daysLeft)
		a.Description = fmt.Sprintf("Document %s (%s) expires on %s. Renew it before the expiry date.",
			d.Number, d.Type, d.ExpiresAt.Format("2006-01-02"))
		if within := r.cfg.CriticalWithinHours; within > 0 && d.ExpiresAt.Sub(now) <= time.Duration(within)*time.Hour {
			a.Priority = alert.PriorityCritical
		}
		deadlineAt(a, r.cfg, d.ExpiresAt)
		a.Payload = alert.DocumentExpiry{
			DocumentType:   d.Type,
			DocumentNumber: d.Number,
			ExpiresAt:      d.ExpiresAt,
			DaysLeft:       daysLeft,
		}
		out = append(out, a)
	}
	return out, nil
}

// Recheck treats a renewed (expiry beyond the window) or removed document as cleared.
func (r *documentExpiryRule) Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	d, err := r.gw.Document(ctx, a.Entity.ID)
	if err != nil {
		if gone(err) {
			return false, nil
		}
		return false, upstreamError("document lookup", err)
	}
	return !d.ExpiresAt.After(now.Add(r.window())), nil
}

// ingredientExpiryRule flags ingredient lots with stock that expire within the window.
type ingredientExpiryRule struct {
	cfg rules.Rule
	gw  gateway.Gateway
}

func (r *ingredientExpiryRule) Config() rules.Rule { return r.cfg }

func (r *ingredientExpiryRule) window() time.Duration {
	return time.Duration(r.cfg.ExpiryWindowDays) * 24 * time.Hour
}

func (r *ingredientExpiryRule) Find(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	lots, err := r.gw.LotsExpiringBetween(ctx, now, now.Add(r.window()))
	if err != nil {
		return nil, upstreamError("ingredient lots expiring", err)
	}

	out := make([]*alert.Alert, 0, len(lots))
	for _, l := range lots {
		if l.ID == "" {
			slog.Warn("Skipping ingredient lot without id", "rule", r.cfg.Kind, "site_id", l.SiteID)
			continue
		}
		if l.Quantity <= 0 {
			continue
		}
		hoursLeft := hoursBetween(now, l.ExpiresAt)
		a := candidate(r.cfg, l.ID, l.SiteID, l.OrganizationID, now)
		a.Title = fmt.Sprintf("%s lot %s expires in %d hours", l.IngredientName, l.LotNumber, hoursLeft)
		a.Description = fmt.Sprintf("%.2f %s of %s (lot %s) expire on %s. Use or discard the stock.",
			l.Quantity, l.Unit, l.IngredientName, l.LotNumber, l.ExpiresAt.Format("2006-01-02 15:04"))
		if within := r.cfg.CriticalWithinHours; within > 0 && l.ExpiresAt.Sub(now) <= time.Duration(within)*time.Hour {
			a.Priority = alert.PriorityCritical
		}
		deadlineAt(a, r.cfg, l.ExpiresAt)
		a.Payload = alert.IngredientExpiry{
			IngredientName: l.IngredientName,
			LotNumber:      l.LotNumber,
			Quantity:       l.Quantity,
			Unit:           l.Unit,
			ExpiresAt:      l.ExpiresAt,
			HoursLeft:      hoursLeft,
		}
		out = append(out, a)
	}
	return out, nil
}

// Recheck treats a used-up, removed or re-dated lot as cleared.
func (r *ingredientExpiryRule) Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	l, err := r.gw.Lot(ctx, a.Entity.ID)
	if err != nil {
		if gone(err) {
			return false, nil
		}
		return false, upstreamError("ingredient lot lookup", err)
	}
	if l.Quantity <= 0 {
		return false, nil
	}
	return !l.ExpiresAt.After(now.Add(r.window())), nil
}
