package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
)

// Gateway reads upstream operational tables. The engine never writes them; the expected
// shape is:
//
//	sites(id, name, organization_id, status)
//	site_daily_activities(site_id, recorded_at)
//	site_documents(id, site_id, document_type, document_number, expires_at, status)
//	ingredient_lots(id, site_id, ingredient_name, lot_number, quantity, unit, expires_at)
//	menu_compliance_days(site_id, menu_date, meets_standard, deficits text[])
//	storage_units(id, site_id, name, storage_type)
//	storage_readings(unit_id, temperature_c, recorded_at)
type Gateway struct {
	conn *sql.DB
}

var _ gateway.Gateway = (*Gateway)(nil)

// collectRows scans every row, skipping rows that fail to scan so one malformed
// upstream record does not hide the rest of the result.
func collectRows[T any](rows *sql.Rows, kind string, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			slog.Warn("Skipping malformed upstream row", "kind", kind, "error", err)
			continue
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", kind, err)
	}
	return out, nil
}

const siteActivitySelect = `
	SELECT s.id, COALESCE(s.name, ''), COALESCE(s.organization_id, ''), last.recorded_at
	FROM sites s
	LEFT JOIN LATERAL (
		SELECT MAX(d.recorded_at) AS recorded_at
		FROM site_daily_activities d
		WHERE d.site_id = s.id
	) last ON TRUE
	WHERE s.status = 'APPROVED'`

func scanSite(row rowScanner) (*gateway.Site, error) {
	var s gateway.Site
	var last sql.NullTime
	if err := row.Scan(&s.ID, &s.Name, &s.OrganizationID, &last); err != nil {
		return nil, err
	}
	s.LastActivityAt = fromNullTime(last)
	return &s, nil
}

// SitesWithoutActivitySince returns approved sites whose latest activity is at or before since.
func (g *Gateway) SitesWithoutActivitySince(ctx context.Context, since time.Time) ([]gateway.Site, error) {
	query := siteActivitySelect + ` AND (last.recorded_at IS NULL OR last.recorded_at <= $1) ORDER BY s.id`
	rows, err := g.conn.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query site activity: %w", err)
	}
	return collectRows(rows, "site", scanSite)
}

// Site returns an approved site with its latest activity.
func (g *Gateway) Site(ctx context.Context, id string) (*gateway.Site, error) {
	s, err := scanSite(g.conn.QueryRowContext(ctx, siteActivitySelect+` AND s.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %s: %w", id, alert.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return s, nil
}

const documentSelect = `
	SELECT d.id, d.site_id, COALESCE(s.organization_id, ''), d.document_type, COALESCE(d.document_number, ''), d.expires_at
	FROM site_documents d
	JOIN sites s ON s.id = d.site_id
	WHERE d.status = 'APPROVED'`

func scanDocument(row rowScanner) (*gateway.Document, error) {
	var d gateway.Document
	if err := row.Scan(&d.ID, &d.SiteID, &d.OrganizationID, &d.Type, &d.Number, &d.ExpiresAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// DocumentsExpiringBetween returns approved documents expiring in [from, to].
func (g *Gateway) DocumentsExpiringBetween(ctx context.Context, from, to time.Time) ([]gateway.Document, error) {
	query := documentSelect + ` AND d.expires_at BETWEEN $1 AND $2 ORDER BY d.expires_at ASC`
	rows, err := g.conn.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring documents: %w", err)
	}
	return collectRows(rows, "document", scanDocument)
}

// Document returns an approved document.
func (g *Gateway) Document(ctx context.Context, id string) (*gateway.Document, error) {
	d, err := scanDocument(g.conn.QueryRowContext(ctx, documentSelect+` AND d.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, alert.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return d, nil
}

const lotSelect = `
	SELECT l.id, l.site_id, COALESCE(s.organization_id, ''), COALESCE(l.ingredient_name, ''), COALESCE(l.lot_number, ''),
	       l.quantity, COALESCE(l.unit, ''), l.expires_at
	FROM ingredient_lots l
	JOIN sites s ON s.id = l.site_id`

func scanLot(row rowScanner) (*gateway.IngredientLot, error) {
	var l gateway.IngredientLot
	if err := row.Scan(&l.ID, &l.SiteID, &l.OrganizationID, &l.IngredientName, &l.LotNumber, &l.Quantity, &l.Unit, &l.ExpiresAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// LotsExpiringBetween returns lots with stock expiring in [from, to].
func (g *Gateway) LotsExpiringBetween(ctx context.Context, from, to time.Time) ([]gateway.IngredientLot, error) {
	query := lotSelect + ` WHERE l.quantity > 0 AND l.expires_at BETWEEN $1 AND $2 ORDER BY l.expires_at ASC`
	rows, err := g.conn.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring lots: %w", err)
	}
	return collectRows(rows, "ingredient lot", scanLot)
}

// Lot returns an ingredient lot, including used-up ones.
func (g *Gateway) Lot(ctx context.Context, id string) (*gateway.IngredientLot, error) {
	l, err := scanLot(g.conn.QueryRowContext(ctx, lotSelect+` WHERE l.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingredient lot %s: %w", id, alert.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingredient lot: %w", err)
	}
	return l, nil
}

// menuStreakQuery counts, per site, the non-compliant menu days after the most recent
// compliant day on or before $1. $2 optionally restricts to one site.
const menuStreakQuery = `
	WITH days AS (
		SELECT site_id, menu_date, meets_standard, deficits,
		       ROW_NUMBER() OVER (PARTITION BY site_id ORDER BY menu_date DESC) AS rn
		FROM menu_compliance_days
		WHERE menu_date <= $1::date AND ($2::text IS NULL OR site_id = $2)
	), last_ok AS (
		SELECT site_id, MIN(rn) AS rn FROM days WHERE meets_standard GROUP BY site_id
	)
	SELECT d.site_id, COALESCE(s.name, ''), COALESCE(s.organization_id, ''),
	       COUNT(DISTINCT d.menu_date),
	       MAX(d.menu_date),
	       COALESCE(array_remove(array_agg(DISTINCT def.name), NULL), '{}')
	FROM days d
	JOIN sites s ON s.id = d.site_id
	LEFT JOIN last_ok o ON o.site_id = d.site_id
	LEFT JOIN LATERAL unnest(d.deficits) AS def(name) ON TRUE
	WHERE NOT d.meets_standard AND (o.rn IS NULL OR d.rn < o.rn)
	GROUP BY d.site_id, s.name, s.organization_id
	HAVING COUNT(DISTINCT d.menu_date) >= $3
	ORDER BY d.site_id`

func scanStreak(row rowScanner) (*gateway.MenuStreak, error) {
	var s gateway.MenuStreak
	if err := row.Scan(&s.SiteID, &s.SiteName, &s.OrganizationID, &s.ConsecutiveDays, &s.LastNonCompliantDay, pq.Array(&s.Deficits)); err != nil {
		return nil, err
	}
	return &s, nil
}

// NonCompliantMenuStreaks returns sites with at least minDays consecutive non-compliant menu days.
func (g *Gateway) NonCompliantMenuStreaks(ctx context.Context, minDays int, asOf time.Time) ([]gateway.MenuStreak, error) {
	rows, err := g.conn.QueryContext(ctx, menuStreakQuery, asOf, nil, minDays)
	if err != nil {
		return nil, fmt.Errorf("failed to query menu compliance: %w", err)
	}
	return collectRows(rows, "menu streak", scanStreak)
}

// MenuStreak returns the current streak of one site. A compliant site has a zero-day streak.
func (g *Gateway) MenuStreak(ctx context.Context, siteID string, asOf time.Time) (*gateway.MenuStreak, error) {
	s, err := scanStreak(g.conn.QueryRowContext(ctx, menuStreakQuery, asOf, siteID, 1))
	if errors.Is(err, sql.ErrNoRows) {
		return &gateway.MenuStreak{SiteID: siteID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get menu streak: %w", err)
	}
	return s, nil
}

const latestReadingSelect = `
	SELECT * FROM (
		SELECT DISTINCT ON (r.unit_id)
		       r.unit_id, COALESCE(u.name, '') AS name, u.site_id, COALESCE(s.organization_id, '') AS organization_id,
		       u.storage_type, r.temperature_c, r.recorded_at
		FROM storage_readings r
		JOIN storage_units u ON u.id = r.unit_id
		JOIN sites s ON s.id = u.site_id
		ORDER BY r.unit_id, r.recorded_at DESC
	) latest`

func scanReading(row rowScanner) (*gateway.StorageReading, error) {
	var r gateway.StorageReading
	if err := row.Scan(&r.UnitID, &r.UnitName, &r.SiteID, &r.OrganizationID, &r.StorageType, &r.TemperatureC, &r.RecordedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// StorageReadingsOutOfRange returns units whose latest reading is outside the limits.
func (g *Gateway) StorageReadingsOutOfRange(ctx context.Context, limits gateway.TemperatureLimits) ([]gateway.StorageReading, error) {
	query := latestReadingSelect + `
		WHERE (storage_type = $1 AND (temperature_c < $2 OR temperature_c > $3))
		   OR (storage_type = $4 AND temperature_c > $5)
		ORDER BY unit_id`
	rows, err := g.conn.QueryContext(ctx, query,
		gateway.StorageChilled, limits.ChilledMinC, limits.ChilledMaxC,
		gateway.StorageFrozen, limits.FrozenMaxC,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage readings: %w", err)
	}
	return collectRows(rows, "storage reading", scanReading)
}

// LatestReading returns the latest reading of one storage unit.
func (g *Gateway) LatestReading(ctx context.Context, unitID string) (*gateway.StorageReading, error) {
	r, err := scanReading(g.conn.QueryRowContext(ctx, latestReadingSelect+` WHERE unit_id = $1`, unitID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage unit %s: %w", unitID, alert.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get storage reading: %w", err)
	}
	return r, nil
}
