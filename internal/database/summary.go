package database

import (
	"context"
	"fmt"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// CountOpenByPriority counts ACTIVE and IN_PROGRESS alerts per priority, optionally
// restricted to one organization.
func (db *DB) CountOpenByPriority(ctx context.Context, orgID *string) (map[alert.Priority]int, error) {
	query := `
		SELECT priority, COUNT(*)
		FROM alerts
		WHERE ` + openStatusSQL + ` AND ($1::text IS NULL OR organization_id = $1)
		GROUP BY priority
	`
	rows, err := db.conn.QueryContext(ctx, query, nullString(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to count open alerts by priority: %w", err)
	}
	defer rows.Close()

	counts := make(map[alert.Priority]int)
	for rows.Next() {
		var p alert.Priority
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("failed to scan priority count: %w", err)
		}
		counts[p] = n
	}
	return counts, rows.Err()
}

// CountOpenByCategory counts open alerts per category.
func (db *DB) CountOpenByCategory(ctx context.Context, orgID *string) (map[alert.Category]int, error) {
	query := `
		SELECT category, COUNT(*)
		FROM alerts
		WHERE ` + openStatusSQL + ` AND ($1::text IS NULL OR organization_id = $1)
		GROUP BY category
	`
	rows, err := db.conn.QueryContext(ctx, query, nullString(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to count open alerts by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[alert.Category]int)
	for rows.Next() {
		var c alert.Category
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts[c] = n
	}
	return counts, rows.Err()
}

// RecentOpenAlerts returns up to limit open alerts ordered by priority rank then newest.
func (db *DB) RecentOpenAlerts(ctx context.Context, orgID *string, limit int) ([]*alert.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE ` + openStatusSQL + ` AND ($1::text IS NULL OR organization_id = $1)
		ORDER BY priority_rank ASC, created_at DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, nullString(orgID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent open alerts: %w", err)
	}
	return scanAlerts(rows)
}
