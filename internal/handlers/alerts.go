package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/lifecycle"
)

// alertDetail is the response of GET /alerts/{id}.
type alertDetail struct {
	*alert.Alert
	Notifications []*alert.Notification `json:"notifications"`
	Errors        []string              `json:"errors,omitempty"`
}

// MarshalJSON flattens the alert fields next to the notifications, since the
// embedded alert's own MarshalJSON would otherwise drop them.
func (d alertDetail) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(d.Alert)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	if fields["notifications"], err = json.Marshal(d.Notifications); err != nil {
		return nil, err
	}
	if len(d.Errors) > 0 {
		if fields["errors"], err = json.Marshal(d.Errors); err != nil {
			return nil, err
		}
	}
	return json.Marshal(fields)
}

// resolveRequest is the optional body of POST /alerts/{id}/resolve.
type resolveRequest struct {
	ActionTaken  *string `json:"action_taken,omitempty"`
	ActionResult *string `json:"action_result,omitempty"`
}

// ListAlerts handles GET /api/v1/alerts.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r.URL.Query())
	if err != nil {
		h.handleError(w, err, "list alerts")
		return
	}

	res, err := h.Store.ListAlerts(r.Context(), f)
	if err != nil {
		h.handleError(w, err, "list alerts")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetAlert handles GET /api/v1/alerts/{id}. A failing notification lookup degrades
// to an alert without notifications plus an errors entry.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a, err := h.Lifecycle.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, err, "get alert", "alert_id", id)
		return
	}

	detail := alertDetail{Alert: a, Notifications: []*alert.Notification{}}
	notifs, err := h.Store.NotificationsForAlert(r.Context(), id)
	if err != nil {
		slog.Warn("Failed to load alert notifications", "alert_id", id, "error", err)
		detail.Errors = append(detail.Errors, "notifications unavailable")
	} else if notifs != nil {
		detail.Notifications = notifs
	}
	writeJSON(w, http.StatusOK, detail)
}

// CreateAlert handles POST /api/v1/alerts.
func (h *Handlers) CreateAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req lifecycle.CreateRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.Lifecycle.Create(r.Context(), req, actor)
	if err != nil {
		h.handleError(w, err, "create alert")
		return
	}
	h.metrics.IncrementCustom("alerts_created_manual")
	writeJSON(w, http.StatusCreated, a)
}

// UpdateAlert handles PATCH /api/v1/alerts/{id}.
func (h *Handlers) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var upd alert.DetailsUpdate
	if err := decodeBody(r, &upd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.Lifecycle.Update(r.Context(), id, upd, actor)
	if err != nil {
		h.handleError(w, err, "update alert", "alert_id", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeleteAlert handles DELETE /api/v1/alerts/{id}.
func (h *Handlers) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.Lifecycle.Delete(r.Context(), id, actor); err != nil {
		h.handleError(w, err, "delete alert", "alert_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	a, err := h.Lifecycle.Acknowledge(r.Context(), id, actor)
	if err != nil {
		h.handleError(w, err, "acknowledge alert", "alert_id", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve. The body is optional.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	a, err := h.Lifecycle.Resolve(r.Context(), id, actor, req.ActionTaken, req.ActionResult)
	if err != nil {
		h.handleError(w, err, "resolve alert", "alert_id", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DismissAlert handles POST /api/v1/alerts/{id}/dismiss.
func (h *Handlers) DismissAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	a, err := h.Lifecycle.Dismiss(r.Context(), id, actor)
	if err != nil {
		h.handleError(w, err, "dismiss alert", "alert_id", id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// parseListFilter reads the list query parameters. Malformed values are validation errors.
func parseListFilter(q url.Values) (alert.ListFilter, error) {
	var f alert.ListFilter
	var err error

	if f.Page, err = intParam(q, "page"); err != nil {
		return f, err
	}
	if f.Limit, err = intParam(q, "limit"); err != nil {
		return f, err
	}
	if v := q.Get("category"); v != "" {
		c, err := alert.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	if v := q.Get("priority"); v != "" {
		p, err := alert.ParsePriority(v)
		if err != nil {
			return f, err
		}
		f.Priority = &p
	}
	if v := q.Get("status"); v != "" {
		s, err := alert.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &s
	}
	if v := strings.TrimSpace(q.Get("site_id")); v != "" {
		f.SiteID = &v
	}
	if v := strings.TrimSpace(q.Get("organization_id")); v != "" {
		f.OrganizationID = &v
	}
	if f.DateFrom, err = timeParam(q, "date_from", false); err != nil {
		return f, err
	}
	if f.DateTo, err = timeParam(q, "date_to", true); err != nil {
		return f, err
	}
	f.Search = q.Get("search")
	if v := q.Get("show_resolved"); v != "" {
		if f.ShowResolved, err = strconv.ParseBool(v); err != nil {
			return f, fmt.Errorf("%w: show_resolved must be a boolean", alert.ErrValidation)
		}
	}

	if err := f.Normalize(); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", alert.ErrValidation, name)
	}
	return n, nil
}

// timeParam accepts RFC 3339 timestamps or plain dates. A plain date used as an
// upper bound covers the whole day.
func timeParam(q url.Values, name string, endOfDay bool) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a date or RFC 3339 timestamp", alert.ErrValidation, name)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
