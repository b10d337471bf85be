package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/escalation"
	"github.com/stargan-id/jaga-gizi-alerting/internal/lifecycle"
	"github.com/stargan-id/jaga-gizi-alerting/internal/resolver"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
	"github.com/stargan-id/jaga-gizi-alerting/internal/summary"
	"github.com/stargan-id/jaga-gizi-alerting/pkg/metrics"
)

// newRequest builds a request carrying chi URL params and an optional user header.
func newRequest(method, target, body, user string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("bad: %w", alert.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("x: %w", alert.ErrNotFound), http.StatusNotFound},
		{alert.ErrAlreadyResolved, http.StatusConflict},
		{alert.ErrConcurrentModification, http.StatusConflict},
		{alert.ErrConflict, http.StatusConflict},
		{fmt.Errorf("gw: %w", alert.ErrUpstreamUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHandlers_ListAlerts(t *testing.T) {
	h, store, _ := newTestHandlers()

	tests := []struct {
		name           string
		query          string
		setupMock      func()
		expectedStatus int
		check          func(t *testing.T, f alert.ListFilter)
	}{
		{
			name:           "defaults",
			query:          "",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f alert.ListFilter) {
				if f.Page != 1 || f.Limit != alert.DefaultPageSize {
					t.Errorf("paging = %d/%d, want 1/%d", f.Page, f.Limit, alert.DefaultPageSize)
				}
				if f.ShowResolved || f.Status != nil {
					t.Error("default filter should exclude terminal alerts")
				}
			},
		},
		{
			name:           "filters parsed",
			query:          "?page=2&limit=50&category=food_safety&priority=critical&status=in_progress&site_id=s1&date_from=2025-03-01&date_to=2025-03-09&search=suhu&show_resolved=true",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f alert.ListFilter) {
				if f.Page != 2 || f.Limit != 50 {
					t.Errorf("paging = %d/%d", f.Page, f.Limit)
				}
				if *f.Category != alert.CategoryFoodSafety || *f.Priority != alert.PriorityCritical || *f.Status != alert.StatusInProgress {
					t.Errorf("enums = %s %s %s", *f.Category, *f.Priority, *f.Status)
				}
				if *f.SiteID != "s1" || f.Search != "suhu" || !f.ShowResolved {
					t.Errorf("filter = %+v", f)
				}
				wantTo := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
				if !f.DateTo.Equal(wantTo) {
					t.Errorf("DateTo = %v, want %v", f.DateTo, wantTo)
				}
			},
		},
		{name: "limit too large", query: "?limit=101", expectedStatus: http.StatusBadRequest},
		{name: "bad page", query: "?page=abc", expectedStatus: http.StatusBadRequest},
		{name: "unknown priority", query: "?priority=urgent", expectedStatus: http.StatusBadRequest},
		{name: "bad date", query: "?date_from=yesterday", expectedStatus: http.StatusBadRequest},
		{name: "bad show_resolved", query: "?show_resolved=maybe", expectedStatus: http.StatusBadRequest},
		{
			name:  "store failure",
			query: "",
			setupMock: func() {
				store.ListAlertsFn = func(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error) {
					return nil, errors.New("connection reset")
				}
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got alert.ListFilter
			store.ListAlertsFn = func(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error) {
				got = f
				return alert.NewListResult([]*alert.Alert{testAlert("a1", alert.StatusActive)}, 1, f), nil
			}
			if tt.setupMock != nil {
				tt.setupMock()
			}

			w := httptest.NewRecorder()
			h.ListAlerts(w, newRequest(http.MethodGet, "/api/v1/alerts"+tt.query, "", "", nil))

			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestHandlers_ListAlerts_HidesInternalErrors(t *testing.T) {
	h, store, _ := newTestHandlers()
	store.ListAlertsFn = func(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error) {
		return nil, errors.New("pq: password authentication failed")
	}
	w := httptest.NewRecorder()
	h.ListAlerts(w, newRequest(http.MethodGet, "/api/v1/alerts", "", "", nil))

	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("response leaks internal error: %s", w.Body.String())
	}
}

func TestHandlers_GetAlert(t *testing.T) {
	t.Run("with notifications", func(t *testing.T) {
		h, store, _ := newTestHandlers()
		store.NotificationsForAlertFn = func(ctx context.Context, id string) ([]*alert.Notification, error) {
			return []*alert.Notification{{ID: "n1", AlertID: id, UserID: "u1"}}, nil
		}
		w := httptest.NewRecorder()
		h.GetAlert(w, newRequest(http.MethodGet, "/api/v1/alerts/a1", "", "", map[string]string{"id": "a1"}))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body struct {
			ID            string               `json:"id"`
			Notifications []alert.Notification `json:"notifications"`
			Errors        []string             `json:"errors"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ID != "a1" || len(body.Notifications) != 1 || len(body.Errors) != 0 {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("payload keeps its kind", func(t *testing.T) {
		h, store, lc := newTestHandlers()
		lc.GetFn = func(ctx context.Context, id string) (*alert.Alert, error) {
			a := testAlert(id, alert.StatusActive)
			a.Payload = alert.ReportingGap{SiteName: "SPPG Depok", HoursSilent: 30, ThresholdHours: 24}
			return a, nil
		}
		store.NotificationsForAlertFn = func(ctx context.Context, id string) ([]*alert.Notification, error) {
			return []*alert.Notification{{ID: "n1", AlertID: id, UserID: "u1"}}, nil
		}
		w := httptest.NewRecorder()
		h.GetAlert(w, newRequest(http.MethodGet, "/api/v1/alerts/a1", "", "", map[string]string{"id": "a1"}))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body struct {
			ID      string `json:"id"`
			Payload struct {
				Kind string `json:"kind"`
			} `json:"payload"`
			Notifications []alert.Notification `json:"notifications"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.ID != "a1" || body.Payload.Kind != alert.PayloadReportingGap || len(body.Notifications) != 1 {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("partial when notifications fail", func(t *testing.T) {
		h, store, _ := newTestHandlers()
		store.NotificationsForAlertFn = func(ctx context.Context, id string) ([]*alert.Notification, error) {
			return nil, errors.New("timeout")
		}
		w := httptest.NewRecorder()
		h.GetAlert(w, newRequest(http.MethodGet, "/api/v1/alerts/a1", "", "", map[string]string{"id": "a1"}))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"errors":["notifications unavailable"]`) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("not found", func(t *testing.T) {
		h, _, lc := newTestHandlers()
		lc.GetFn = func(ctx context.Context, id string) (*alert.Alert, error) {
			return nil, fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
		}
		w := httptest.NewRecorder()
		h.GetAlert(w, newRequest(http.MethodGet, "/api/v1/alerts/nope", "", "", map[string]string{"id": "nope"}))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestHandlers_Transitions(t *testing.T) {
	tests := []struct {
		name           string
		handler        func(h *Handlers) http.HandlerFunc
		body           string
		user           string
		setupMock      func(lc *mockLifecycle)
		expectedStatus int
	}{
		{
			name:           "acknowledge",
			handler:        func(h *Handlers) http.HandlerFunc { return h.AcknowledgeAlert },
			user:           "u1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "acknowledge without user",
			handler:        func(h *Handlers) http.HandlerFunc { return h.AcknowledgeAlert },
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:    "acknowledge terminal",
			handler: func(h *Handlers) http.HandlerFunc { return h.AcknowledgeAlert },
			user:    "u1",
			setupMock: func(lc *mockLifecycle) {
				lc.AcknowledgeFn = func(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
					return nil, alert.ErrAlreadyResolved
				}
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:    "resolve with notes",
			handler: func(h *Handlers) http.HandlerFunc { return h.ResolveAlert },
			body:    `{"action_taken":"renewed permit","action_result":"valid until 2026"}`,
			user:    "u1",
			setupMock: func(lc *mockLifecycle) {
				lc.ResolveFn = func(ctx context.Context, id string, actor alert.Actor, taken, result *string) (*alert.Alert, error) {
					if actor.ID != "u1" || taken == nil || *taken != "renewed permit" || result == nil {
						return nil, fmt.Errorf("%w: unexpected input", alert.ErrValidation)
					}
					return testAlert(id, alert.StatusResolved), nil
				}
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "resolve without body",
			handler:        func(h *Handlers) http.HandlerFunc { return h.ResolveAlert },
			user:           "u1",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "resolve malformed body",
			handler:        func(h *Handlers) http.HandlerFunc { return h.ResolveAlert },
			body:           `{"action_taken":`,
			user:           "u1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:    "dismiss lost race",
			handler: func(h *Handlers) http.HandlerFunc { return h.DismissAlert },
			user:    "u1",
			setupMock: func(lc *mockLifecycle) {
				lc.DismissFn = func(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
					return nil, alert.ErrConcurrentModification
				}
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, lc := newTestHandlers()
			if tt.setupMock != nil {
				tt.setupMock(lc)
			}
			w := httptest.NewRecorder()
			tt.handler(h)(w, newRequest(http.MethodPost, "/api/v1/alerts/a1/x", tt.body, tt.user, map[string]string{"id": "a1"}))
			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.expectedStatus, w.Body.String())
			}
		})
	}
}

func TestHandlers_CreateAlert(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		user           string
		setupMock      func(lc *mockLifecycle)
		expectedStatus int
	}{
		{
			name:           "created",
			body:           `{"title":"Kitchen inspection","category":"AUDIT_INSPECTION","priority":"MEDIUM","target_user_ids":["u2"]}`,
			user:           "admin-1",
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "unknown field",
			body:           `{"title":"x","colour":"red"}`,
			user:           "admin-1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing user",
			body:           `{"title":"x"}`,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name: "duplicate open alert",
			body: `{"title":"x","category":"FOOD_SAFETY","priority":"HIGH"}`,
			user: "admin-1",
			setupMock: func(lc *mockLifecycle) {
				lc.CreateFn = func(ctx context.Context, req lifecycle.CreateRequest, actor alert.Actor) (*alert.Alert, error) {
					return nil, fmt.Errorf("key: %w", alert.ErrConflict)
				}
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, lc := newTestHandlers()
			m := &countingMetrics{}
			WithMetrics(m)(h)
			if tt.setupMock != nil {
				tt.setupMock(lc)
			}
			w := httptest.NewRecorder()
			h.CreateAlert(w, newRequest(http.MethodPost, "/api/v1/alerts", tt.body, tt.user, nil))
			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedStatus == http.StatusCreated && m.custom["alerts_created_manual"] != 1 {
				t.Errorf("custom metrics = %v", m.custom)
			}
		})
	}
}

func TestHandlers_UpdateAndDelete(t *testing.T) {
	h, _, lc := newTestHandlers()

	w := httptest.NewRecorder()
	h.UpdateAlert(w, newRequest(http.MethodPatch, "/api/v1/alerts/a1", `{"priority":"CRITICAL"}`, "admin-1", map[string]string{"id": "a1"}))
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	var updated alert.Alert
	if err := json.NewDecoder(w.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Priority != alert.PriorityCritical {
		t.Errorf("priority = %s, want CRITICAL", updated.Priority)
	}

	lc.UpdateFn = func(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor) (*alert.Alert, error) {
		return nil, alert.ErrAlreadyResolved
	}
	w = httptest.NewRecorder()
	h.UpdateAlert(w, newRequest(http.MethodPatch, "/api/v1/alerts/a1", `{"title":"y"}`, "admin-1", map[string]string{"id": "a1"}))
	if w.Code != http.StatusConflict {
		t.Errorf("update terminal status = %d, want 409", w.Code)
	}

	w = httptest.NewRecorder()
	h.DeleteAlert(w, newRequest(http.MethodDelete, "/api/v1/alerts/a1", "", "admin-1", map[string]string{"id": "a1"}))
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}

	lc.DeleteFn = func(ctx context.Context, id string, actor alert.Actor) error {
		return fmt.Errorf("alert %s: %w", id, alert.ErrNotFound)
	}
	w = httptest.NewRecorder()
	h.DeleteAlert(w, newRequest(http.MethodDelete, "/api/v1/alerts/a1", "", "admin-1", map[string]string{"id": "a1"}))
	if w.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", w.Code)
	}
}

func TestHandlers_ListNotifications(t *testing.T) {
	h, store, _ := newTestHandlers()
	var gotUser string
	var gotFilter alert.NotificationFilter
	store.ListNotificationsFn = func(ctx context.Context, userID string, f alert.NotificationFilter) (*alert.NotificationListResult, error) {
		gotUser, gotFilter = userID, f
		return &alert.NotificationListResult{Items: []*alert.NotificationItem{}, Page: f.Page, Limit: f.Limit}, nil
	}

	w := httptest.NewRecorder()
	h.ListNotifications(w, newRequest(http.MethodGet, "/api/v1/notifications?unread_only=true&limit=5", "", "u7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if gotUser != "u7" || !gotFilter.UnreadOnly || gotFilter.Limit != 5 || gotFilter.Page != 1 {
		t.Errorf("got user %q filter %+v", gotUser, gotFilter)
	}

	w = httptest.NewRecorder()
	h.ListNotifications(w, newRequest(http.MethodGet, "/api/v1/notifications?limit=0&page=-1", "", "u7", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad paging status = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	h.ListNotifications(w, newRequest(http.MethodGet, "/api/v1/notifications", "", "", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}
}

func TestHandlers_NotificationDigests(t *testing.T) {
	h, store, _ := newTestHandlers()
	var gotSince time.Time
	store.RecentNotificationItemsFn = func(ctx context.Context, userID string, since time.Time) ([]*alert.NotificationItem, error) {
		gotSince = since
		return []*alert.NotificationItem{
			{Notification: alert.Notification{ID: "n1", UserID: userID, CreatedAt: fixedNow.Add(-time.Hour)}, AlertPriority: alert.PriorityHigh},
			{Notification: alert.Notification{ID: "n2", UserID: userID, CreatedAt: fixedNow.Add(-50 * time.Minute)}, AlertPriority: alert.PriorityLow},
		}, nil
	}

	w := httptest.NewRecorder()
	h.NotificationDigests(w, newRequest(http.MethodGet, "/api/v1/notifications/digests", "", "u1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if !gotSince.Equal(fixedNow.Add(-DefaultDigestLookback)) {
		t.Errorf("since = %v", gotSince)
	}
	var digests []struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&digests); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(digests) != 1 || digests[0].Count != 2 {
		t.Errorf("digests = %+v, want one group of 2", digests)
	}

	w = httptest.NewRecorder()
	h.NotificationDigests(w, newRequest(http.MethodGet, "/api/v1/notifications/digests?since=last-week", "", "u1", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", w.Code)
	}
}

func TestHandlers_MarkNotifications(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		wantAction     alert.MarkAction
	}{
		{name: "read", body: `{"ids":["n1","n2"],"action":"read"}`, expectedStatus: http.StatusOK, wantAction: alert.MarkRead},
		{name: "undismiss", body: `{"ids":["n1"],"action":"UNDISMISS"}`, expectedStatus: http.StatusOK, wantAction: alert.MarkUndismiss},
		{name: "empty ids", body: `{"ids":[],"action":"read"}`, expectedStatus: http.StatusBadRequest},
		{name: "unknown action", body: `{"ids":["n1"],"action":"archive"}`, expectedStatus: http.StatusBadRequest},
		{name: "malformed", body: `not json`, expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _ := newTestHandlers()
			var gotAction alert.MarkAction
			var gotAt time.Time
			store.MarkNotificationsFn = func(ctx context.Context, userID string, ids []string, action alert.MarkAction, at time.Time) (int, error) {
				gotAction, gotAt = action, at
				return 1, nil
			}

			w := httptest.NewRecorder()
			h.MarkNotifications(w, newRequest(http.MethodPost, "/api/v1/notifications/mark", tt.body, "u1", nil))
			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			if gotAction != tt.wantAction || !gotAt.Equal(fixedNow) {
				t.Errorf("action = %s at %v", gotAction, gotAt)
			}
			if !strings.Contains(w.Body.String(), `"updated":1`) {
				t.Errorf("body = %s", w.Body.String())
			}
		})
	}
}

func TestHandlers_Scans(t *testing.T) {
	t.Run("single rule", func(t *testing.T) {
		h, _, _ := newTestHandlers()
		var gotNow time.Time
		h.Scanner = &mockScanner{ScanFn: func(ctx context.Context, kind rules.Kind, now time.Time) (int, error) {
			gotNow = now
			return 3, nil
		}}
		w := httptest.NewRecorder()
		h.ScanRule(w, newRequest(http.MethodPost, "/api/v1/scans/document_expiry", "", "", map[string]string{"rule": "document_expiry"}))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), `"created":3`) || !gotNow.Equal(fixedNow) {
			t.Errorf("body = %s now = %v", w.Body.String(), gotNow)
		}
	})

	t.Run("unknown rule", func(t *testing.T) {
		h, _, _ := newTestHandlers()
		w := httptest.NewRecorder()
		h.ScanRule(w, newRequest(http.MethodPost, "/api/v1/scans/weather", "", "", map[string]string{"rule": "weather"}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("upstream down", func(t *testing.T) {
		h, _, _ := newTestHandlers()
		h.Scanner = &mockScanner{ScanFn: func(ctx context.Context, kind rules.Kind, now time.Time) (int, error) {
			return 0, fmt.Errorf("sites: %w", alert.ErrUpstreamUnavailable)
		}}
		w := httptest.NewRecorder()
		h.ScanRule(w, newRequest(http.MethodPost, "/api/v1/scans/reporting_gap", "", "", map[string]string{"rule": "reporting_gap"}))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})

	t.Run("all rules partial failure", func(t *testing.T) {
		h, _, _ := newTestHandlers()
		h.Scanner = &mockScanner{ScanAllFn: func(ctx context.Context, now time.Time) (map[rules.Kind]int, error) {
			return map[rules.Kind]int{rules.ReportingGap: 2},
				errors.Join(fmt.Errorf("document_expiry: %w", alert.ErrUpstreamUnavailable))
		}}
		w := httptest.NewRecorder()
		h.ScanAll(w, newRequest(http.MethodPost, "/api/v1/scans", "", "", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var body scanAllResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Created[rules.ReportingGap] != 2 || len(body.Errors) != 1 {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("all rules failed", func(t *testing.T) {
		h, _, _ := newTestHandlers()
		h.Scanner = &mockScanner{ScanAllFn: func(ctx context.Context, now time.Time) (map[rules.Kind]int, error) {
			return map[rules.Kind]int{}, errors.Join(fmt.Errorf("x: %w", alert.ErrUpstreamUnavailable))
		}}
		w := httptest.NewRecorder()
		h.ScanAll(w, newRequest(http.MethodPost, "/api/v1/scans", "", "", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

func TestHandlers_Sweeps(t *testing.T) {
	h, _, _ := newTestHandlers()
	h.Escalation = &mockSweeper{SweepFn: func(ctx context.Context, now time.Time) (escalation.Result, error) {
		return escalation.Result{Inspected: 4, Escalated: 1, Notified: 2}, nil
	}}
	h.Resolver = &mockResolver{SweepFn: func(ctx context.Context, now time.Time) (resolver.Result, error) {
		return resolver.Result{}, errors.New("failed to list open alerts: db down")
	}}

	w := httptest.NewRecorder()
	h.SweepEscalation(w, newRequest(http.MethodPost, "/api/v1/sweeps/escalation", "", "", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"escalated":1`) {
		t.Errorf("escalation = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.SweepResolution(w, newRequest(http.MethodPost, "/api/v1/sweeps/resolution", "", "", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("resolution status = %d, want 500", w.Code)
	}
}

func TestHandlers_RecheckAlert(t *testing.T) {
	h, _, _ := newTestHandlers()
	h.Resolver = &mockResolver{CheckOneFn: func(ctx context.Context, id string, now time.Time) (resolver.Outcome, *alert.Alert, error) {
		return resolver.OutcomeResolved, testAlert(id, alert.StatusResolved), nil
	}}
	w := httptest.NewRecorder()
	h.RecheckAlert(w, newRequest(http.MethodPost, "/api/v1/alerts/a1/recheck", "", "", map[string]string{"id": "a1"}))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"outcome":"resolved"`) {
		t.Errorf("recheck = %d %s", w.Code, w.Body.String())
	}
}

func TestHandlers_ListRules(t *testing.T) {
	h, _, _ := newTestHandlers()
	w := httptest.NewRecorder()
	h.ListRules(w, newRequest(http.MethodGet, "/api/v1/rules", "", "", nil))
	var got []rules.Rule
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(rules.Kinds) {
		t.Errorf("rules = %d, want %d", len(got), len(rules.Kinds))
	}
}

func TestHandlers_Summary(t *testing.T) {
	h, _, _ := newTestHandlers()
	var gotOrg *string
	h.Deps.Summary = &mockSummary{BuildFn: func(ctx context.Context, orgID *string) *summary.Summary {
		gotOrg = orgID
		return &summary.Summary{OrganizationID: orgID, TotalOpen: 3, Errors: []string{"recent alerts: timeout"}}
	}}
	w := httptest.NewRecorder()
	h.Summary(w, newRequest(http.MethodGet, "/api/v1/summary?organization_id=org-9", "", "", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if gotOrg == nil || *gotOrg != "org-9" {
		t.Errorf("org = %v", gotOrg)
	}
	if !strings.Contains(w.Body.String(), `"errors":["recent alerts: timeout"]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandlers_Metrics(t *testing.T) {
	h, _, _ := newTestHandlers()
	w := httptest.NewRecorder()
	h.Metrics(w, newRequest(http.MethodGet, "/api/v1/metrics", "", "", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want 503", w.Code)
	}

	WithMetricsReader(&mockMetricsReader{
		InstancesFn: func(ctx context.Context) ([]*metrics.Snapshot, error) {
			return []*metrics.Snapshot{{Instance: "engine-1", Processed: 10}}, nil
		},
		TotalsFn: func(ctx context.Context) (map[string]uint64, error) {
			return map[string]uint64{"processed": 10}, nil
		},
	})(h)
	w = httptest.NewRecorder()
	h.Metrics(w, newRequest(http.MethodGet, "/api/v1/metrics", "", "", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"engine-1"`) {
		t.Errorf("metrics = %d %s", w.Code, w.Body.String())
	}
}

func TestHandlers_Health(t *testing.T) {
	h, _, _ := newTestHandlers()
	WithHealthCheck("store", func(ctx context.Context) error { return nil })(h)

	w := httptest.NewRecorder()
	h.Health(w, newRequest(http.MethodGet, "/health", "", "", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("healthy = %d %s", w.Code, w.Body.String())
	}

	WithHealthCheck("redis", func(ctx context.Context) error { return errors.New("dial tcp: refused") })(h)
	w = httptest.NewRecorder()
	h.Health(w, newRequest(http.MethodGet, "/health", "", "", nil))
	if w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), `"redis":"dial tcp: refused"`) {
		t.Errorf("degraded = %d %s", w.Code, w.Body.String())
	}
}
