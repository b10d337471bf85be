package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
)

// Directory resolves recipients from user_assignments(user_id, tier, site_id, organization_id, active).
type Directory struct {
	conn *sql.DB
}

var _ gateway.Directory = (*Directory)(nil)

// Recipients matches site operators by site, supervisors and provincial managers by
// organization, and returns every active national admin.
func (d *Directory) Recipients(ctx context.Context, tier alert.Tier, scope gateway.Scope) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM user_assignments WHERE active AND tier = $1`
	args := []any{string(tier)}
	switch tier {
	case alert.TierSiteOperator:
		if scope.SiteID == "" {
			return nil, nil
		}
		query += ` AND site_id = $2`
		args = append(args, scope.SiteID)
	case alert.TierRegionalSupervisor, alert.TierProvincialManager:
		if scope.OrganizationID == "" {
			return nil, nil
		}
		query += ` AND organization_id = $2`
		args = append(args, scope.OrganizationID)
	}
	query += ` ORDER BY user_id`

	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipients: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
