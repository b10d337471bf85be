package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*events.NotificationReady
}

func (f *fakePublisher) Publish(ctx context.Context, ready *events.NotificationReady) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, ready)
	return nil
}

func (f *fakePublisher) all() []*events.NotificationReady {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.NotificationReady(nil), f.published...)
}

type fakeMetrics struct {
	mu        sync.Mutex
	processed int
	errors    int
}

func (f *fakeMetrics) RecordProcessed(_ time.Duration) {
	f.mu.Lock()
	f.processed++
	f.mu.Unlock()
}

func (f *fakeMetrics) RecordError() {
	f.mu.Lock()
	f.errors++
	f.mu.Unlock()
}

func (f *fakeMetrics) AddCustom(_ string, _ uint64) {}
