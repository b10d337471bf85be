package fanout

import (
	"context"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
)

// FakeDirectory is a test fake for gateway.Directory.
type FakeDirectory struct {
	Users map[alert.Tier][]string
	Err   error
	Calls []gateway.Scope
}

func (f *FakeDirectory) Recipients(ctx context.Context, tier alert.Tier, scope gateway.Scope) ([]string, error) {
	f.Calls = append(f.Calls, scope)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Users[tier], nil
}

// FakePublisher is a test fake for Publisher.
type FakePublisher struct {
	Published   []*events.NotificationReady
	PublishFunc func(ready *events.NotificationReady) error
}

func (f *FakePublisher) Publish(ctx context.Context, ready *events.NotificationReady) error {
	if f.PublishFunc != nil {
		if err := f.PublishFunc(ready); err != nil {
			return err
		}
	}
	f.Published = append(f.Published, ready)
	return nil
}
