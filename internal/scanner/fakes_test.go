package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
)

// FakePublisher records published dispatch requests.
type FakePublisher struct {
	mu        sync.Mutex
	Published []*events.NotificationReady
}

func (f *FakePublisher) Publish(ctx context.Context, ready *events.NotificationReady) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Published = append(f.Published, ready)
	return nil
}

// FakeStore is a test fake for Store.
type FakeStore struct {
	HasOpenFunc func(key alert.DedupeKey) (bool, error)
	CreateFunc  func(a *alert.Alert, notifs []*alert.Notification) (bool, error)
	Created     []*alert.Alert
}

func (f *FakeStore) HasOpenAlert(ctx context.Context, key alert.DedupeKey) (bool, error) {
	if f.HasOpenFunc != nil {
		return f.HasOpenFunc(key)
	}
	return false, nil
}

func (f *FakeStore) CreateAlert(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) (bool, error) {
	if f.CreateFunc != nil {
		ok, err := f.CreateFunc(a, notifs)
		if ok && err == nil {
			f.Created = append(f.Created, a)
		}
		return ok, err
	}
	f.Created = append(f.Created, a)
	return true, nil
}

// FakePlanner is a test fake for Planner.
type FakePlanner struct {
	Notifs    []*alert.Notification
	Err       error
	Announced int
}

func (f *FakePlanner) Plan(ctx context.Context, a *alert.Alert, now time.Time) ([]*alert.Notification, error) {
	return f.Notifs, f.Err
}

func (f *FakePlanner) Announce(ctx context.Context, a *alert.Alert, notifs []*alert.Notification) int {
	f.Announced += len(notifs)
	return len(notifs)
}

// FakeMetrics counts recorder calls.
type FakeMetrics struct {
	Processed int
	Errors    int
	Custom    map[string]uint64
}

func (f *FakeMetrics) RecordProcessed(_ time.Duration) { f.Processed++ }
func (f *FakeMetrics) RecordError()                    { f.Errors++ }
func (f *FakeMetrics) AddCustom(name string, value uint64) {
	if f.Custom == nil {
		f.Custom = make(map[string]uint64)
	}
	f.Custom[name] += value
}
