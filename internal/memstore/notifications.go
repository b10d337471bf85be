package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// NotificationsForAlert returns every notification of an alert, oldest first.
func (s *Store) NotificationsForAlert(ctx context.Context, alertID string) ([]*alert.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[alertID]; !ok {
		return nil, fmt.Errorf("alert %s: %w", alertID, alert.ErrNotFound)
	}
	out := make([]*alert.Notification, 0, len(s.recipients[alertID]))
	for _, nid := range s.recipients[alertID] {
		out = append(out, s.notifications[nid].Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// ListNotifications returns one page of a recipient's inbox, ordered by alert priority
// then newest. Dismissed notifications are excluded.
func (s *Store) ListNotifications(ctx context.Context, userID string, f alert.NotificationFilter) (*alert.NotificationListResult, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var items []*alert.NotificationItem
	unread := 0
	for _, n := range s.notifications {
		if n.UserID != userID || n.Dismissed {
			continue
		}
		if !n.Read {
			unread++
		}
		if f.UnreadOnly && n.Read {
			continue
		}
		items = append(items, s.itemLocked(n))
	}
	s.mu.Unlock()

	sortItems(items)
	total := len(items)
	start := min(f.Offset(), total)
	end := min(start+f.Limit, total)
	page := items[start:end]
	if page == nil {
		page = []*alert.NotificationItem{}
	}
	return &alert.NotificationListResult{
		Items:  page,
		Total:  total,
		Unread: unread,
		Page:   f.Page,
		Limit:  f.Limit,
	}, nil
}

// RecentNotificationItems returns a recipient's non-dismissed notifications created at or after since.
func (s *Store) RecentNotificationItems(ctx context.Context, userID string, since time.Time) ([]*alert.NotificationItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []*alert.NotificationItem
	for _, n := range s.notifications {
		if n.UserID != userID || n.Dismissed || n.CreatedAt.Before(since) {
			continue
		}
		items = append(items, s.itemLocked(n))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// MarkNotifications applies action to the listed notifications owned by userID.
// Ids belonging to other users or unknown ids are ignored. Returns the number updated.
func (s *Store) MarkNotifications(ctx context.Context, userID string, ids []string, action alert.MarkAction, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		n, ok := s.notifications[id]
		if !ok || n.UserID != userID {
			continue
		}
		alert.ApplyMark(n, action, at)
		updated++
	}
	return updated, nil
}

func (s *Store) itemLocked(n *alert.Notification) *alert.NotificationItem {
	it := &alert.NotificationItem{Notification: *n.Clone()}
	if a, ok := s.alerts[n.AlertID]; ok {
		it.AlertTitle = a.Title
		it.AlertPriority = a.Priority
		it.AlertCategory = a.Category
		it.AlertStatus = a.Status
	}
	return it
}

func sortItems(items []*alert.NotificationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].AlertPriority.Rank(), items[j].AlertPriority.Rank()
		if ri != rj {
			return ri < rj
		}
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

// CountOpenByPriority counts ACTIVE and IN_PROGRESS alerts per priority, optionally
// restricted to one organization.
func (s *Store) CountOpenByPriority(ctx context.Context, orgID *string) (map[alert.Priority]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[alert.Priority]int)
	for _, a := range s.alerts {
		if a.Status.IsOpen() && inOrg(a, orgID) {
			counts[a.Priority]++
		}
	}
	return counts, nil
}

// CountOpenByCategory counts open alerts per category.
func (s *Store) CountOpenByCategory(ctx context.Context, orgID *string) (map[alert.Category]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[alert.Category]int)
	for _, a := range s.alerts {
		if a.Status.IsOpen() && inOrg(a, orgID) {
			counts[a.Category]++
		}
	}
	return counts, nil
}

// RecentOpenAlerts returns up to limit open alerts ordered by priority rank then newest.
func (s *Store) RecentOpenAlerts(ctx context.Context, orgID *string, limit int) ([]*alert.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	var out []*alert.Alert
	for _, a := range s.alerts {
		if a.Status.IsOpen() && inOrg(a, orgID) {
			out = append(out, a.Clone())
		}
	}
	s.mu.Unlock()

	alert.SortByUrgency(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func inOrg(a *alert.Alert, orgID *string) bool {
	if orgID == nil {
		return true
	}
	return a.OrganizationID != nil && *a.OrganizationID == *orgID
}
