package fanout

import (
	"sort"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// Digest is a group of one recipient's notifications created close together.
type Digest struct {
	UserID          string                    `json:"user_id"`
	WindowStart     time.Time                 `json:"window_start"`
	WindowEnd       time.Time                 `json:"window_end"`
	Count           int                       `json:"count"`
	Unread          int                       `json:"unread"`
	HighestPriority alert.Priority            `json:"highest_priority"`
	Items           []*alert.NotificationItem `json:"items"`
}

// Group buckets notifications per recipient into rolling windows. A digest opens at its
// oldest notification and accepts later ones created within window, up to maxPerGroup items.
// Digests are returned newest first. Grouping only reads rows and never delays creation.
func Group(items []*alert.NotificationItem, window time.Duration, maxPerGroup int) []Digest {
	if maxPerGroup <= 0 {
		maxPerGroup = 1
	}
	byUser := make(map[string][]*alert.NotificationItem)
	for _, it := range items {
		byUser[it.UserID] = append(byUser[it.UserID], it)
	}

	var digests []Digest
	for userID, list := range byUser {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

		var cur *Digest
		for _, it := range list {
			if cur == nil || len(cur.Items) >= maxPerGroup || it.CreatedAt.Sub(cur.WindowStart) >= window {
				if cur != nil {
					digests = append(digests, *cur)
				}
				cur = &Digest{UserID: userID, WindowStart: it.CreatedAt, HighestPriority: it.AlertPriority}
			}
			cur.Items = append(cur.Items, it)
			cur.Count++
			cur.WindowEnd = it.CreatedAt
			if !it.Read {
				cur.Unread++
			}
			if it.AlertPriority.Rank() < cur.HighestPriority.Rank() {
				cur.HighestPriority = it.AlertPriority
			}
		}
		if cur != nil {
			digests = append(digests, *cur)
		}
	}

	sort.SliceStable(digests, func(i, j int) bool {
		if !digests[i].WindowStart.Equal(digests[j].WindowStart) {
			return digests[i].WindowStart.After(digests[j].WindowStart)
		}
		return digests[i].UserID < digests[j].UserID
	})
	return digests
}

// Digests groups items with the window and cap of the routing policy.
func (f *Fanout) Digests(items []*alert.NotificationItem) []Digest {
	return Group(items, f.policy.DigestWindow, f.policy.DigestMaxPerGroup)
}
