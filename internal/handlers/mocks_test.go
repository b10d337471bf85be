package handlers

import (
	"context"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/escalation"
	"github.com/stargan-id/jaga-gizi-alerting/internal/fanout"
	"github.com/stargan-id/jaga-gizi-alerting/internal/lifecycle"
	"github.com/stargan-id/jaga-gizi-alerting/internal/resolver"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
	"github.com/stargan-id/jaga-gizi-alerting/internal/summary"
	"github.com/stargan-id/jaga-gizi-alerting/pkg/metrics"
)

// mockStore implements Store for testing.
type mockStore struct {
	ListAlertsFn              func(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error)
	NotificationsForAlertFn   func(ctx context.Context, alertID string) ([]*alert.Notification, error)
	ListNotificationsFn       func(ctx context.Context, userID string, f alert.NotificationFilter) (*alert.NotificationListResult, error)
	RecentNotificationItemsFn func(ctx context.Context, userID string, since time.Time) ([]*alert.NotificationItem, error)
	MarkNotificationsFn       func(ctx context.Context, userID string, ids []string, action alert.MarkAction, at time.Time) (int, error)
}

func (m *mockStore) ListAlerts(ctx context.Context, f alert.ListFilter) (*alert.ListResult, error) {
	if m.ListAlertsFn != nil {
		return m.ListAlertsFn(ctx, f)
	}
	return alert.NewListResult(nil, 0, f), nil
}

func (m *mockStore) NotificationsForAlert(ctx context.Context, alertID string) ([]*alert.Notification, error) {
	if m.NotificationsForAlertFn != nil {
		return m.NotificationsForAlertFn(ctx, alertID)
	}
	return nil, nil
}

func (m *mockStore) ListNotifications(ctx context.Context, userID string, f alert.NotificationFilter) (*alert.NotificationListResult, error) {
	if m.ListNotificationsFn != nil {
		return m.ListNotificationsFn(ctx, userID, f)
	}
	return &alert.NotificationListResult{Items: []*alert.NotificationItem{}, Page: f.Page, Limit: f.Limit}, nil
}

func (m *mockStore) RecentNotificationItems(ctx context.Context, userID string, since time.Time) ([]*alert.NotificationItem, error) {
	if m.RecentNotificationItemsFn != nil {
		return m.RecentNotificationItemsFn(ctx, userID, since)
	}
	return nil, nil
}

func (m *mockStore) MarkNotifications(ctx context.Context, userID string, ids []string, action alert.MarkAction, at time.Time) (int, error) {
	if m.MarkNotificationsFn != nil {
		return m.MarkNotificationsFn(ctx, userID, ids, action, at)
	}
	return len(ids), nil
}

// mockLifecycle implements Lifecycle for testing.
type mockLifecycle struct {
	GetFn         func(ctx context.Context, id string) (*alert.Alert, error)
	AcknowledgeFn func(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error)
	ResolveFn     func(ctx context.Context, id string, actor alert.Actor, actionTaken, actionResult *string) (*alert.Alert, error)
	DismissFn     func(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error)
	CreateFn      func(ctx context.Context, req lifecycle.CreateRequest, actor alert.Actor) (*alert.Alert, error)
	UpdateFn      func(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor) (*alert.Alert, error)
	DeleteFn      func(ctx context.Context, id string, actor alert.Actor) error
}

func (m *mockLifecycle) Get(ctx context.Context, id string) (*alert.Alert, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return testAlert(id, alert.StatusActive), nil
}

func (m *mockLifecycle) Acknowledge(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
	if m.AcknowledgeFn != nil {
		return m.AcknowledgeFn(ctx, id, actor)
	}
	return testAlert(id, alert.StatusInProgress), nil
}

func (m *mockLifecycle) Resolve(ctx context.Context, id string, actor alert.Actor, actionTaken, actionResult *string) (*alert.Alert, error) {
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, id, actor, actionTaken, actionResult)
	}
	return testAlert(id, alert.StatusResolved), nil
}

func (m *mockLifecycle) Dismiss(ctx context.Context, id string, actor alert.Actor) (*alert.Alert, error) {
	if m.DismissFn != nil {
		return m.DismissFn(ctx, id, actor)
	}
	return testAlert(id, alert.StatusDismissed), nil
}

func (m *mockLifecycle) Create(ctx context.Context, req lifecycle.CreateRequest, actor alert.Actor) (*alert.Alert, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, req, actor)
	}
	a := testAlert("alert-new", alert.StatusActive)
	a.Title = req.Title
	return a, nil
}

func (m *mockLifecycle) Update(ctx context.Context, id string, upd alert.DetailsUpdate, actor alert.Actor) (*alert.Alert, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(ctx, id, upd, actor)
	}
	a := testAlert(id, alert.StatusActive)
	upd.Apply(a)
	return a, nil
}

func (m *mockLifecycle) Delete(ctx context.Context, id string, actor alert.Actor) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, id, actor)
	}
	return nil
}

// mockScanner implements Scanner for testing.
type mockScanner struct {
	ScanFn    func(ctx context.Context, kind rules.Kind, now time.Time) (int, error)
	ScanAllFn func(ctx context.Context, now time.Time) (map[rules.Kind]int, error)
}

func (m *mockScanner) Scan(ctx context.Context, kind rules.Kind, now time.Time) (int, error) {
	if m.ScanFn != nil {
		return m.ScanFn(ctx, kind, now)
	}
	return 0, nil
}

func (m *mockScanner) ScanAll(ctx context.Context, now time.Time) (map[rules.Kind]int, error) {
	if m.ScanAllFn != nil {
		return m.ScanAllFn(ctx, now)
	}
	return map[rules.Kind]int{}, nil
}

func (m *mockScanner) Rules() []rules.Rule {
	return rules.Defaults().List()
}

// mockSweeper implements EscalationSweeper for testing.
type mockSweeper struct {
	SweepFn func(ctx context.Context, now time.Time) (escalation.Result, error)
}

func (m *mockSweeper) Sweep(ctx context.Context, now time.Time) (escalation.Result, error) {
	if m.SweepFn != nil {
		return m.SweepFn(ctx, now)
	}
	return escalation.Result{}, nil
}

// mockResolver implements AutoResolver for testing.
type mockResolver struct {
	SweepFn    func(ctx context.Context, now time.Time) (resolver.Result, error)
	CheckOneFn func(ctx context.Context, id string, now time.Time) (resolver.Outcome, *alert.Alert, error)
}

func (m *mockResolver) Sweep(ctx context.Context, now time.Time) (resolver.Result, error) {
	if m.SweepFn != nil {
		return m.SweepFn(ctx, now)
	}
	return resolver.Result{}, nil
}

func (m *mockResolver) CheckOne(ctx context.Context, id string, now time.Time) (resolver.Outcome, *alert.Alert, error) {
	if m.CheckOneFn != nil {
		return m.CheckOneFn(ctx, id, now)
	}
	return resolver.OutcomeUnchanged, testAlert(id, alert.StatusActive), nil
}

// mockSummary implements SummaryBuilder for testing.
type mockSummary struct {
	BuildFn func(ctx context.Context, orgID *string) *summary.Summary
}

func (m *mockSummary) Build(ctx context.Context, orgID *string) *summary.Summary {
	if m.BuildFn != nil {
		return m.BuildFn(ctx, orgID)
	}
	return &summary.Summary{OrganizationID: orgID}
}

// mockDigests implements DigestGrouper for testing.
type mockDigests struct {
	DigestsFn func(items []*alert.NotificationItem) []fanout.Digest
}

func (m *mockDigests) Digests(items []*alert.NotificationItem) []fanout.Digest {
	if m.DigestsFn != nil {
		return m.DigestsFn(items)
	}
	return fanout.Group(items, 30*time.Minute, 10)
}

// mockMetricsReader implements MetricsReader for testing.
type mockMetricsReader struct {
	InstancesFn func(ctx context.Context) ([]*metrics.Snapshot, error)
	TotalsFn    func(ctx context.Context) (map[string]uint64, error)
}

func (m *mockMetricsReader) Instances(ctx context.Context) ([]*metrics.Snapshot, error) {
	if m.InstancesFn != nil {
		return m.InstancesFn(ctx)
	}
	return nil, nil
}

func (m *mockMetricsReader) Totals(ctx context.Context) (map[string]uint64, error) {
	if m.TotalsFn != nil {
		return m.TotalsFn(ctx)
	}
	return map[string]uint64{}, nil
}

// countingMetrics records how often each method was called.
type countingMetrics struct {
	errors int
	custom map[string]int
}

func (c *countingMetrics) RecordError() { c.errors++ }

func (c *countingMetrics) IncrementCustom(name string) {
	if c.custom == nil {
		c.custom = make(map[string]int)
	}
	c.custom[name]++
}

var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func testAlert(id string, status alert.Status) *alert.Alert {
	site := "site-1"
	return &alert.Alert{
		ID:        id,
		Title:     "Dapur Sehat has not reported for 30 hours",
		Category:  alert.CategoryOperationalCompliance,
		Priority:  alert.PriorityHigh,
		Status:    status,
		Entity:    alert.EntityRef{Kind: alert.EntitySite, ID: site},
		SiteID:    &site,
		CreatedBy: alert.SystemActor,
		UpdatedBy: alert.SystemActor,
		CreatedAt: fixedNow.Add(-time.Hour),
		UpdatedAt: fixedNow.Add(-time.Hour),
	}
}

func newTestHandlers() (*Handlers, *mockStore, *mockLifecycle) {
	store := &mockStore{}
	lc := &mockLifecycle{}
	h := NewHandlers(Deps{
		Store:      store,
		Lifecycle:  lc,
		Scanner:    &mockScanner{},
		Escalation: &mockSweeper{},
		Resolver:   &mockResolver{},
		Summary:    &mockSummary{},
		Digests:    &mockDigests{},
	}, WithClock(func() time.Time { return fixedNow }))
	return h, store, lc
}
