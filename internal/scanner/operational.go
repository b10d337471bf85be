package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

// reportingGapRule flags approved sites with no daily activity within the silence window.
type reportingGapRule struct {
	cfg rules.Rule
	gw  gateway.Gateway
}

func (r *reportingGapRule) Config() rules.Rule { return r.cfg }

func (r *reportingGapRule) silence() time.Duration {
	return time.Duration(r.cfg.SilenceHours) * time.Hour
}

func (r *reportingGapRule) Find(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	sites, err := r.gw.SitesWithoutActivitySince(ctx, now.Add(-r.silence()))
	if err != nil {
		return nil, upstreamError("sites without activity", err)
	}

	out := make([]*alert.Alert, 0, len(sites))
	for _, s := range sites {
		if s.ID == "" {
			slog.Warn("Skipping site without id", "rule", r.cfg.Kind, "site_name", s.Name)
			continue
		}
		a := candidate(r.cfg, s.ID, s.ID, s.OrganizationID, now)
		payload := alert.ReportingGap{SiteName: s.Name, ThresholdHours: r.cfg.SilenceHours}
		if s.LastActivityAt != nil {
			last := *s.LastActivityAt
			payload.LastActivityAt = &last
			payload.HoursSilent = hoursBetween(last, now)
			a.Title = fmt.Sprintf("%s has not reported for %d hours", s.Name, payload.HoursSilent)
		} else {
			a.Title = fmt.Sprintf("%s has never submitted a daily report", s.Name)
		}
		a.Description = fmt.Sprintf("No daily activity was recorded for %s in the last %d hours. Submit the daily checklist.",
			s.Name, r.cfg.SilenceHours)
		a.Payload = payload
		out = append(out, a)
	}
	return out, nil
}

// Recheck treats new activity, or a site that no longer exists, as cleared.
func (r *reportingGapRule) Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	s, err := r.gw.Site(ctx, a.Entity.ID)
	if err != nil {
		if gone(err) {
			return false, nil
		}
		return false, upstreamError("site lookup", err)
	}
	if s.LastActivityAt == nil {
		return true, nil
	}
	return !s.LastActivityAt.After(now.Add(-r.silence())), nil
}

// nutritionComplianceRule flags sites whose menus missed the nutrition standard
// on consecutive days. The entity is the site's menu stream, keyed by site id.
type nutritionComplianceRule struct {
	cfg rules.Rule
	gw  gateway.Gateway
}

func (r *nutritionComplianceRule) Config() rules.Rule { return r.cfg }

func (r *nutritionComplianceRule) Find(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	streaks, err := r.gw.NonCompliantMenuStreaks(ctx, r.cfg.ConsecutiveDays, now)
	if err != nil {
		return nil, upstreamError("menu compliance streaks", err)
	}

	out := make([]*alert.Alert, 0, len(streaks))
	for _, s := range streaks {
		if s.SiteID == "" {
			slog.Warn("Skipping menu streak without site id", "rule", r.cfg.Kind)
			continue
		}
		if s.ConsecutiveDays < r.cfg.ConsecutiveDays {
			continue
		}
		a := candidate(r.cfg, s.SiteID, s.SiteID, s.OrganizationID, now)
		a.Title = fmt.Sprintf("%s menus below nutrition standard for %d days", s.SiteName, s.ConsecutiveDays)
		a.Description = "Menus did not meet the nutrition adequacy standard on consecutive days."
		if len(s.Deficits) > 0 {
			a.Description += " Deficient: " + strings.Join(s.Deficits, ", ") + "."
		}
		a.Payload = alert.NutritionCompliance{
			ConsecutiveDays:     s.ConsecutiveDays,
			LastNonCompliantDay: s.LastNonCompliantDay,
			Deficits:            append([]string(nil), s.Deficits...),
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *nutritionComplianceRule) Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	s, err := r.gw.MenuStreak(ctx, a.Entity.ID, now)
	if err != nil {
		if gone(err) {
			return false, nil
		}
		return false, upstreamError("menu compliance lookup", err)
	}
	return s != nil && s.ConsecutiveDays >= r.cfg.ConsecutiveDays, nil
}

// storageTemperatureRule flags storage units whose latest reading is outside the allowed range.
type storageTemperatureRule struct {
	cfg rules.Rule
	gw  gateway.Gateway
}

func (r *storageTemperatureRule) Config() rules.Rule { return r.cfg }

func (r *storageTemperatureRule) limits() gateway.TemperatureLimits {
	return gateway.TemperatureLimits{
		ChilledMinC: r.cfg.ChilledMinC,
		ChilledMaxC: r.cfg.ChilledMaxC,
		FrozenMaxC:  r.cfg.FrozenMaxC,
	}
}

func (r *storageTemperatureRule) Find(ctx context.Context, now time.Time) ([]*alert.Alert, error) {
	limits := r.limits()
	readings, err := r.gw.StorageReadingsOutOfRange(ctx, limits)
	if err != nil {
		return nil, upstreamError("storage readings", err)
	}

	out := make([]*alert.Alert, 0, len(readings))
	for _, rd := range readings {
		if rd.UnitID == "" {
			slog.Warn("Skipping storage reading without unit id", "rule", r.cfg.Kind, "site_id", rd.SiteID)
			continue
		}
		if limits.InRange(rd.StorageType, rd.TemperatureC) {
			continue
		}
		payload := alert.StorageTemperature{
			UnitName:     rd.UnitName,
			StorageType:  rd.StorageType,
			TemperatureC: rd.TemperatureC,
			RecordedAt:   rd.RecordedAt,
		}
		if rd.StorageType == gateway.StorageFrozen {
			payload.MaxC = limits.FrozenMaxC
		} else {
			minC := limits.ChilledMinC
			payload.MinC = &minC
			payload.MaxC = limits.ChilledMaxC
		}
		a := candidate(r.cfg, rd.UnitID, rd.SiteID, rd.OrganizationID, now)
		a.Title = fmt.Sprintf("%s at %.1f°C is outside the safe range", rd.UnitName, rd.TemperatureC)
		a.Description = fmt.Sprintf("The %s unit %s recorded %.1f°C at %s. Move perishable stock and check the unit.",
			rd.StorageType, rd.UnitName, rd.TemperatureC, rd.RecordedAt.Format("2006-01-02 15:04"))
		a.Payload = payload
		out = append(out, a)
	}
	return out, nil
}

func (r *storageTemperatureRule) Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	rd, err := r.gw.LatestReading(ctx, a.Entity.ID)
	if err != nil {
		if gone(err) {
			return false, nil
		}
		return false, upstreamError("storage reading lookup", err)
	}
	return !r.limits().InRange(rd.StorageType, rd.TemperatureC), nil
}
