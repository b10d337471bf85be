package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/fanout"
)

// DefaultDigestLookback bounds the digest view when no since parameter is given.
const DefaultDigestLookback = 24 * time.Hour

type markRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
}

type markResponse struct {
	Updated int `json:"updated"`
}

// ListNotifications handles GET /api/v1/notifications for the calling user.
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var f alert.NotificationFilter
	var err error
	if f.Page, err = intParam(q, "page"); err != nil {
		h.handleError(w, err, "list notifications")
		return
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		h.handleError(w, err, "list notifications")
		return
	}
	if v := q.Get("unread_only"); v != "" {
		if f.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			h.handleError(w, fmt.Errorf("%w: unread_only must be a boolean", alert.ErrValidation), "list notifications")
			return
		}
	}
	if err := f.Normalize(); err != nil {
		h.handleError(w, err, "list notifications")
		return
	}

	res, err := h.Store.ListNotifications(r.Context(), actor.ID, f)
	if err != nil {
		h.handleError(w, err, "list notifications", "user_id", actor.ID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NotificationDigests handles GET /api/v1/notifications/digests.
func (h *Handlers) NotificationDigests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	since := h.now().Add(-DefaultDigestLookback)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.handleError(w, fmt.Errorf("%w: since must be an RFC 3339 timestamp", alert.ErrValidation), "list digests")
			return
		}
		since = t
	}

	items, err := h.Store.RecentNotificationItems(r.Context(), actor.ID, since)
	if err != nil {
		h.handleError(w, err, "list digests", "user_id", actor.ID)
		return
	}
	digests := h.Digests.Digests(items)
	if digests == nil {
		digests = []fanout.Digest{}
	}
	writeJSON(w, http.StatusOK, digests)
}

// MarkNotifications handles POST /api/v1/notifications/mark. Only notifications
// owned by the caller are changed.
func (h *Handlers) MarkNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req markRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids cannot be empty", http.StatusBadRequest)
		return
	}
	action, err := alert.ParseMarkAction(req.Action)
	if err != nil {
		h.handleError(w, err, "mark notifications")
		return
	}

	n, err := h.Store.MarkNotifications(r.Context(), actor.ID, req.IDs, action, h.now())
	if err != nil {
		h.handleError(w, err, "mark notifications", "user_id", actor.ID)
		return
	}
	writeJSON(w, http.StatusOK, markResponse{Updated: n})
}
