package lifecycle

import (
	"context"

	"github.com/stargan-id/jaga-gizi-alerting/internal/events"
)

type recordingPublisher struct {
	published []*events.NotificationReady
}

func (p *recordingPublisher) Publish(ctx context.Context, ready *events.NotificationReady) error {
	p.published = append(p.published, ready)
	return nil
}
