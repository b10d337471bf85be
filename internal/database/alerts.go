package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

const alertColumns = `id, title, description, category, priority, status, entity_kind, entity_id,
	payload, site_id, organization_id, deadline, action_taken, action_result, auto_resolve,
	resolved_at, resolved_by, created_by, created_at, updated_by, updated_at,
	escalation_level, last_escalated_at`

// openStatusSQL matches the predicate of the alerts_open_entity_key partial index.
const openStatusSQL = `status IN ('ACTIVE', 'IN_PROGRESS')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*alert.Alert, error) {
	var (
		a                                     alert.Alert
		payload                               []byte
		siteID, orgID, actionTaken, actionRes sql.NullString
		resolvedBy                            sql.NullString
		deadline, resolvedAt, lastEscalatedAt sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&a.Category,
		&a.Priority,
		&a.Status,
		&a.Entity.Kind,
		&a.Entity.ID,
		&payload,
		&siteID,
		&orgID,
		&deadline,
		&actionTaken,
		&actionRes,
		&a.AutoResolve,
		&resolvedAt,
		&resolvedBy,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedBy,
		&a.UpdatedAt,
		&a.EscalationLevel,
		&lastEscalatedAt,
	); err != nil {
		return nil, err
	}

	p, err := alert.DecodePayload(payload)
	if err != nil {
		slog.Warn("Failed to decode alert payload", "alert_id", a.ID, "error", err)
	} else {
		a.Payload = p
	}
	a.SiteID = fromNullString(siteID)
	a.OrganizationID = fromNullString(orgID)
	a.ActionTaken = fromNullString(actionTaken)
	a.ActionResult = fromNullString(actionRes)
	a.Deadline = fromNullTime(deadline)
	a.ResolvedAt = fromNullTime(resolvedAt)
	a.LastEscalatedAt = fromNullTime(lastEscalatedAt)
	if resolvedBy.Valid {
		actor, err := alert.ParseActor(resolvedBy.String)
		if err != nil {
			return nil, fmt.Errorf("alert %s: %w", a.ID, err)
		}
		a.ResolvedBy = &actor
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]*alert.Alert, error) {
	defer rows.Close()
	var out []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// HasOpenAlert reports whether an ACTIVE or IN_PROGRESS alert exists for the key.
func (db *DB) HasOpenAlert(ctx context.Context, key alert.DedupeKey) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM alerts
			WHERE category = $1 AND entity_kind = $2 AND entity_id = $3 AND ` + openStatusSQL + `
		)
	`
	var exists bool
	if err := db.conn.QueryRowContext(ctx, query, key.Category, key.EntityKind, key.EntityID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check open alert: %w", err)
	}
	return exists, nil
}

// CreateAlert inserts the alert and its notifications in one transaction.
// Uses INSERT ... ON CONFLICT DO NOTHING RETURNING against the open-entity index;
// returns false when an open alert with the same key already exists.
func (db *DB) CreateAlert(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) (bool, error) {
	payload, err := alert.EncodePayload(a.Payload)
	if err != nil {
		return false, err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	query := `
		INSERT INTO alerts (id, title, description, category, priority, priority_rank, status,
			entity_kind, entity_id, payload, site_id, organization_id, deadline, action_taken,
			action_result, auto_resolve, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (category, entity_kind, entity_id) WHERE ` + openStatusSQL + ` DO NOTHING
		RETURNING id
	`
	var id string
	err = tx.QueryRowContext(ctx, query,
		a.ID,
		a.Title,
		a.Description,
		a.Category,
		a.Priority,
		a.Priority.Rank(),
		a.Status,
		a.Entity.Kind,
		a.Entity.ID,
		nullBytes(payload),
		nullString(a.SiteID),
		nullString(a.OrganizationID),
		nullTime(a.Deadline),
		nullString(a.ActionTaken),
		nullString(a.ActionResult),
		a.AutoResolve,
		a.CreatedBy,
		a.CreatedAt,
		a.UpdatedBy,
		a.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || isUniqueViolation(err) {
		slog.Debug("Open alert already exists, skipping",
			"category", a.Category,
			"entity", a.Entity.String(),
		)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err := insertNotifications(ctx, tx, id, notifs); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit alert: %w", err)
	}
	return true, nil
}

// GetAlert retrieves an alert by id.
func (db *DB) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns one page of alerts ordered by priority rank then newest.
func (db *DB) ListAlerts(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	where, args := listWhere(f)

	var total int
	countQuery := `SELECT COUNT(*) FROM alerts` + where
	if err := db.conn.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM alerts%s ORDER BY priority_rank ASC, created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		alertColumns, where, len(args)+1, len(args)+2)
	rows, err := db.conn.QueryContext(ctx, query, append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	alerts, err := scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	return alert.NewListResult(alerts, total, f), nil
}

// listWhere renders the filter as a WHERE clause with positional arguments.
func listWhere(f alert.ListFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Category != nil {
		add("category = $%d", *f.Category)
	}
	if f.Priority != nil {
		add("priority = $%d", *f.Priority)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	} else if !f.ShowResolved {
		conds = append(conds, openStatusSQL)
	}
	if f.SiteID != nil {
		add("site_id = $%d", *f.SiteID)
	}
	if f.OrganizationID != nil {
		add("organization_id = $%d", *f.OrganizationID)
	}
	if f.DateFrom != nil {
		add("created_at >= $%d", *f.DateFrom)
	}
	if f.DateTo != nil {
		add("created_at <= $%d", *f.DateTo)
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListAlertsByStatus returns all alerts in any of the statuses, oldest first.
func (db *DB) ListAlertsByStatus(ctx context.Context, statuses ...alert.Status) ([]*alert.Alert, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE status = ANY($1) ORDER BY created_at ASC`
	rows, err := db.conn.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts by status: %w", err)
	}
	return scanAlerts(rows)
}

// UpdateAlertDetails applies administrative edits to an open alert.
func (db *DB) UpdateAlertDetails(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor, at time.Time) (*alert.Alert, error) {
	var priority, rank any
	if upd.Priority != nil {
		priority, rank = *upd.Priority, upd.Priority.Rank()
	}
	query := `
		UPDATE alerts
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    priority = COALESCE($4, priority),
		    priority_rank = COALESCE($5, priority_rank),
		    deadline = COALESCE($6, deadline),
		    action_taken = COALESCE($7, action_taken),
		    action_result = COALESCE($8, action_result),
		    updated_by = $9,
		    updated_at = $10
		WHERE id = $1 AND ` + openStatusSQL + `
		RETURNING ` + alertColumns
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query,
		id,
		nullString(upd.Title),
		nullString(upd.Description),
		priority,
		rank,
		nullTime(upd.Deadline),
		nullString(upd.ActionTaken),
		nullString(upd.ActionResult),
		actor,
		at,
	))
	if errors.Is(err, sql.ErrNoRows) {
		// Either missing or already closed.
		status, err := db.alertStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("alert %s is %s: %w", id, status, alert.ErrAlreadyResolved)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	return a, nil
}

// DeleteAlert removes an alert; its notifications cascade.
func (db *DB) DeleteAlert(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	return nil
}

// TransitionAlert moves an alert to a new status if it is still in the expected one.
// Terminal targets stamp resolved_at and resolved_by.
func (db *DB) TransitionAlert(ctx context.Context, id string, from alert.Status, change alert.StatusChange) (*alert.Alert, error) {
	query := `
		UPDATE alerts
		SET status = $3,
		    updated_by = $4,
		    updated_at = $5,
		    action_taken = COALESCE($6, action_taken),
		    action_result = COALESCE($7, action_result),
		    resolved_at = CASE WHEN $8::boolean THEN $5 ELSE resolved_at END,
		    resolved_by = CASE WHEN $8::boolean THEN $4 ELSE resolved_by END
		WHERE id = $1 AND status = $2
		RETURNING ` + alertColumns
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query,
		id,
		from,
		change.To,
		change.Actor,
		change.At,
		nullString(change.ActionTaken),
		nullString(change.ActionResult),
		change.To.IsTerminal(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		status, err := db.alertStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("alert %s expected %s, found %s: %w", id, from, status, alert.ErrConcurrentModification)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition alert: %w", err)
	}
	return a, nil
}

// EscalateAlert raises the level of an ACTIVE alert still at fromLevel and inserts the
// next tier's notifications in the same transaction. Returns the inserted notifications
// and false if the alert moved on.
func (db *DB) EscalateAlert(ctx context.Context, id string, fromLevel int, at time.Time, notifs []*alert.Notification) ([]*alert.Notification, bool, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	query := `
		UPDATE alerts
		SET escalation_level = escalation_level + 1,
		    last_escalated_at = $3,
		    updated_by = $4,
		    updated_at = $3
		WHERE id = $1 AND status = 'ACTIVE' AND escalation_level = $2
		RETURNING id
	`
	var updatedID string
	err = tx.QueryRowContext(ctx, query, id, fromLevel, at, alert.SystemActor).Scan(&updatedID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to escalate alert: %w", err)
	}

	inserted, err := insertNotifications(ctx, tx, id, notifs)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit escalation: %w", err)
	}
	return inserted, true, nil
}

// alertStatus returns the current status, or ErrNotFound.
func (db *DB) alertStatus(ctx context.Context, id string) (alert.Status, error) {
	var status alert.Status
	err := db.conn.QueryRowContext(ctx, `SELECT status FROM alerts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read alert status: %w", err)
	}
	return status, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
