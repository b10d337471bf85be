// Package seed writes a demo copy of the upstream operational tables so the engine
// can be run locally against Postgres. Rows are derived from the site index, so a
// given size always produces the same violations.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
)

// Schema creates the upstream tables the gateway and directory read.
const Schema = `
CREATE TABLE IF NOT EXISTS sites (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	organization_id TEXT,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS site_daily_activities (
	site_id TEXT NOT NULL REFERENCES sites(id),
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS site_documents (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL REFERENCES sites(id),
	document_type TEXT NOT NULL,
	document_number TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ingredient_lots (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL REFERENCES sites(id),
	ingredient_name TEXT NOT NULL,
	lot_number TEXT NOT NULL,
	quantity DOUBLE PRECISION NOT NULL,
	unit TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS menu_compliance_days (
	site_id TEXT NOT NULL REFERENCES sites(id),
	menu_date DATE NOT NULL,
	meets_standard BOOLEAN NOT NULL,
	deficits TEXT[] NOT NULL DEFAULT '{}',
	PRIMARY KEY (site_id, menu_date)
);
CREATE TABLE IF NOT EXISTS storage_units (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL REFERENCES sites(id),
	name TEXT NOT NULL,
	storage_type TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS storage_readings (
	unit_id TEXT NOT NULL REFERENCES storage_units(id),
	temperature_c DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS user_assignments (
	user_id TEXT NOT NULL,
	tier TEXT NOT NULL,
	site_id TEXT,
	organization_id TEXT,
	active BOOLEAN NOT NULL DEFAULT TRUE
);`

const truncate = `TRUNCATE storage_readings, storage_units, menu_compliance_days, ingredient_lots,
	site_documents, site_daily_activities, user_assignments, sites`

// MenuDays is how many days of menu history each site gets.
const MenuDays = 4

var ingredients = []string{"Beras", "Telur ayam", "Daging ayam", "Tahu", "Sayur bayam", "Susu UHT"}

// Assignment is one user's tier membership.
type Assignment struct {
	UserID         string
	Tier           alert.Tier
	SiteID         string
	OrganizationID string
}

// MenuDay is one day of menu compliance.
type MenuDay struct {
	SiteID        string
	Date          time.Time
	MeetsStandard bool
	Deficits      []string
}

// Unit is a storage unit with its latest reading.
type Unit struct {
	ID          string
	SiteID      string
	Name        string
	StorageType string
	Reading     float64
	RecordedAt  time.Time
}

// Dataset is everything written for one seed run.
type Dataset struct {
	Sites       []gateway.Site
	Documents   []gateway.Document
	Lots        []gateway.IngredientLot
	Menus       []MenuDay
	Units       []Unit
	Assignments []Assignment
}

// Plan derives a dataset of n sites relative to now. Site i is silent for 30 hours
// when i%4 == 1 and has never reported when i%4 == 0; every third site misses the
// menu standard on all recorded days; every fifth site has a warm chiller.
func Plan(n int, now time.Time) Dataset {
	var ds Dataset
	now = now.UTC().Truncate(time.Minute)
	regional := map[string]bool{}

	for i := 1; i <= n; i++ {
		siteID := fmt.Sprintf("site-%03d", i)
		orgID := fmt.Sprintf("org-%02d", i%3+1)

		site := gateway.Site{ID: siteID, Name: fmt.Sprintf("SPPG Dapur %d", i), OrganizationID: orgID}
		switch i % 4 {
		case 0:
		case 1:
			last := now.Add(-30 * time.Hour)
			site.LastActivityAt = &last
		default:
			last := now.Add(-2 * time.Hour)
			site.LastActivityAt = &last
		}
		ds.Sites = append(ds.Sites, site)

		ds.Documents = append(ds.Documents, gateway.Document{
			ID:        fmt.Sprintf("doc-%03d", i),
			SiteID:    siteID,
			Type:      "SLHS",
			Number:    fmt.Sprintf("%03d/SLHS/2025", i),
			ExpiresAt: now.Add(time.Duration(i%10*3+1) * 24 * time.Hour),
		})

		ds.Lots = append(ds.Lots, gateway.IngredientLot{
			ID:             fmt.Sprintf("lot-%03d", i),
			SiteID:         siteID,
			IngredientName: ingredients[i%len(ingredients)],
			LotNumber:      fmt.Sprintf("L%05d", i),
			Quantity:       float64(10 + i),
			Unit:           "kg",
			ExpiresAt:      now.Add(time.Duration(i%6*12+6) * time.Hour),
		})

		for d := MenuDays; d >= 1; d-- {
			day := MenuDay{SiteID: siteID, Date: now.AddDate(0, 0, -d).Truncate(24 * time.Hour), MeetsStandard: i%3 != 0}
			if !day.MeetsStandard {
				day.Deficits = []string{"protein", "energy"}
			}
			ds.Menus = append(ds.Menus, day)
		}

		reading := 3.0
		if i%5 == 0 {
			reading = 9.5
		}
		ds.Units = append(ds.Units, Unit{
			ID:          fmt.Sprintf("unit-%03d", i),
			SiteID:      siteID,
			Name:        fmt.Sprintf("Chiller %d", i),
			StorageType: gateway.StorageChilled,
			Reading:     reading,
			RecordedAt:  now.Add(-10 * time.Minute),
		})

		ds.Assignments = append(ds.Assignments, Assignment{
			UserID: fmt.Sprintf("op-%03d", i),
			Tier:   alert.TierSiteOperator,
			SiteID: siteID,
		})
		if !regional[orgID] {
			regional[orgID] = true
			ds.Assignments = append(ds.Assignments, Assignment{
				UserID:         "reg-" + orgID,
				Tier:           alert.TierRegionalSupervisor,
				OrganizationID: orgID,
			})
		}
	}
	if n > 0 {
		ds.Assignments = append(ds.Assignments, Assignment{UserID: "admin-001", Tier: alert.TierNationalAdmin})
	}
	return ds
}

// Load creates the schema and writes ds in one transaction. With reset, existing
// upstream rows are removed first.
func Load(ctx context.Context, conn *sql.DB, ds Dataset, reset bool) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create upstream schema: %w", err)
	}
	if reset {
		if _, err := tx.ExecContext(ctx, truncate); err != nil {
			return fmt.Errorf("failed to reset upstream tables: %w", err)
		}
	}

	exec := func(table, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return nil
	}

	for _, s := range ds.Sites {
		if err := exec("sites", `INSERT INTO sites (id, name, organization_id, status) VALUES ($1, $2, $3, 'APPROVED')`,
			s.ID, s.Name, s.OrganizationID); err != nil {
			return err
		}
		if s.LastActivityAt != nil {
			if err := exec("site_daily_activities", `INSERT INTO site_daily_activities (site_id, recorded_at) VALUES ($1, $2)`,
				s.ID, *s.LastActivityAt); err != nil {
				return err
			}
		}
	}
	for _, d := range ds.Documents {
		if err := exec("site_documents", `INSERT INTO site_documents (id, site_id, document_type, document_number, expires_at, status)
			VALUES ($1, $2, $3, $4, $5, 'APPROVED')`, d.ID, d.SiteID, d.Type, d.Number, d.ExpiresAt); err != nil {
			return err
		}
	}
	for _, l := range ds.Lots {
		if err := exec("ingredient_lots", `INSERT INTO ingredient_lots (id, site_id, ingredient_name, lot_number, quantity, unit, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`, l.ID, l.SiteID, l.IngredientName, l.LotNumber, l.Quantity, l.Unit, l.ExpiresAt); err != nil {
			return err
		}
	}
	for _, m := range ds.Menus {
		if err := exec("menu_compliance_days", `INSERT INTO menu_compliance_days (site_id, menu_date, meets_standard, deficits)
			VALUES ($1, $2, $3, $4)`, m.SiteID, m.Date, m.MeetsStandard, pq.Array(m.Deficits)); err != nil {
			return err
		}
	}
	for _, u := range ds.Units {
		if err := exec("storage_units", `INSERT INTO storage_units (id, site_id, name, storage_type) VALUES ($1, $2, $3, $4)`,
			u.ID, u.SiteID, u.Name, u.StorageType); err != nil {
			return err
		}
		if err := exec("storage_readings", `INSERT INTO storage_readings (unit_id, temperature_c, recorded_at) VALUES ($1, $2, $3)`,
			u.ID, u.Reading, u.RecordedAt); err != nil {
			return err
		}
	}
	for _, a := range ds.Assignments {
		if err := exec("user_assignments", `INSERT INTO user_assignments (user_id, tier, site_id, organization_id, active)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), TRUE)`, a.UserID, string(a.Tier), a.SiteID, a.OrganizationID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
