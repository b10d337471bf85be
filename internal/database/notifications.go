package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

const notificationColumns = `n.id, n.alert_id, n.user_id, n.tier, n.channels, n.read, n.read_at,
	n.dismissed, n.dismissed_at, n.dispatch_after, n.created_at`

// insertNotifications inserts one row per recipient inside tx. Recipients that already
// hold a notification for the alert are skipped. Returns the rows actually inserted.
func insertNotifications(ctx context.Context, tx *sql.Tx, alertID string, notifs []*alert.Notification) ([]*alert.Notification, error) {
	query := `
		INSERT INTO notifications (id, alert_id, user_id, tier, channels, dispatch_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (alert_id, user_id) DO NOTHING
		RETURNING id
	`
	var inserted []*alert.Notification
	for _, n := range notifs {
		var id string
		err := tx.QueryRowContext(ctx, query,
			n.ID,
			alertID,
			n.UserID,
			n.Tier,
			pq.Array(channelNames(n.Channels)),
			n.DispatchAfter,
			n.CreatedAt,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert notification for %s: %w", n.UserID, err)
		}
		c := n.Clone()
		c.AlertID = alertID
		inserted = append(inserted, c)
	}
	return inserted, nil
}

func channelNames(channels []alert.Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func scanNotification(row rowScanner, extra ...any) (*alert.Notification, error) {
	var (
		n                   alert.Notification
		channels            []string
		readAt, dismissedAt sql.NullTime
	)
	dest := []any{
		&n.ID,
		&n.AlertID,
		&n.UserID,
		&n.Tier,
		pq.Array(&channels),
		&n.Read,
		&readAt,
		&n.Dismissed,
		&dismissedAt,
		&n.DispatchAfter,
		&n.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	n.Channels = make([]alert.Channel, len(channels))
	for i, c := range channels {
		n.Channels[i] = alert.Channel(c)
	}
	n.ReadAt = fromNullTime(readAt)
	n.DismissedAt = fromNullTime(dismissedAt)
	return &n, nil
}

// NotificationsForAlert returns every notification of an alert, oldest first.
func (db *DB) NotificationsForAlert(ctx context.Context, alertID string) ([]*alert.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications n WHERE n.alert_id = $1 ORDER BY n.created_at ASC, n.user_id ASC`
	rows, err := db.conn.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert notifications: %w", err)
	}
	defer rows.Close()

	var out []*alert.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		// Distinguish an alert without recipients from a missing alert.
		if _, err := db.alertStatus(ctx, alertID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

const itemJoin = ` FROM notifications n JOIN alerts a ON a.id = n.alert_id`

func scanItems(rows *sql.Rows) ([]*alert.NotificationItem, error) {
	defer rows.Close()
	var out []*alert.NotificationItem
	for rows.Next() {
		it := &alert.NotificationItem{}
		n, err := scanNotification(rows, &it.AlertTitle, &it.AlertPriority, &it.AlertCategory, &it.AlertStatus)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		it.Notification = *n
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListNotifications returns one page of a recipient's inbox, ordered by alert priority
// then newest. Dismissed notifications are excluded.
func (db *DB) ListNotifications(ctx context.Context, userID string, f alert.NotificationFilter) (*alert.NotificationListResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}

	var total, unread int
	countQuery := `
		SELECT
			COUNT(*) FILTER (WHERE $2::boolean IS FALSE OR NOT read),
			COUNT(*) FILTER (WHERE NOT read)
		FROM notifications
		WHERE user_id = $1 AND NOT dismissed
	`
	if err := db.conn.QueryRowContext(ctx, countQuery, userID, f.UnreadOnly).Scan(&total, &unread); err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `
		SELECT ` + notificationColumns + `, a.title, a.priority, a.category, a.status` + itemJoin + `
		WHERE n.user_id = $1 AND NOT n.dismissed AND ($2::boolean IS FALSE OR NOT n.read)
		ORDER BY a.priority_rank ASC, n.created_at DESC, n.id ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := db.conn.QueryContext(ctx, query, userID, f.UnreadOnly, f.Limit, f.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*alert.NotificationItem{}
	}
	return &alert.NotificationListResult{
		Items:  items,
		Total:  total,
		Unread: unread,
		Page:   f.Page,
		Limit:  f.Limit,
	}, nil
}

// RecentNotificationItems returns a recipient's non-dismissed notifications created at or after since.
func (db *DB) RecentNotificationItems(ctx context.Context, userID string, since time.Time) ([]*alert.NotificationItem, error) {
	query := `
		SELECT ` + notificationColumns + `, a.title, a.priority, a.category, a.status` + itemJoin + `
		WHERE n.user_id = $1 AND NOT n.dismissed AND n.created_at >= $2
		ORDER BY n.created_at ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent notifications: %w", err)
	}
	return scanItems(rows)
}

// markQueries hold one UPDATE per action. Ownership is part of the match.
var markQueries = map[alert.MarkAction]string{
	alert.MarkRead: `
		UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE user_id = $1 AND id = ANY($2)`,
	alert.MarkDismiss: `
		UPDATE notifications SET dismissed = TRUE, dismissed_at = COALESCE(dismissed_at, $3)
		WHERE user_id = $1 AND id = ANY($2)`,
	alert.MarkUndismiss: `
		UPDATE notifications SET dismissed = FALSE, dismissed_at = NULL
		WHERE user_id = $1 AND id = ANY($2)`,
}

// MarkNotifications applies action to the listed notifications owned by userID.
// Returns the number of rows updated.
func (db *DB) MarkNotifications(ctx context.Context, userID string, ids []string, action alert.MarkAction, at time.Time) (int, error) {
	query, ok := markQueries[action]
	if !ok {
		return 0, fmt.Errorf("%w: unknown action %q", alert.ErrValidation, action)
	}
	args := []any{userID, pq.Array(ids)}
	if action != alert.MarkUndismiss {
		args = append(args, at)
	}
	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rowsAffected), nil
}
