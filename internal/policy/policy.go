// Package policy holds the routing tables that map alert priority to channels,
// dispatch delays and escalation thresholds.
package policy

import (
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

const (
	// DefaultDigestWindow is the rolling window used to group a recipient's notifications.
	DefaultDigestWindow = 30 * time.Minute
	// DefaultDigestMaxPerGroup caps the number of notifications in one digest.
	DefaultDigestMaxPerGroup = 10
)

// Policy is the notification and escalation configuration of the engine.
type Policy struct {
	Channels   map[alert.Priority][]alert.Channel
	Delays     map[alert.Priority]time.Duration
	Escalation map[alert.Priority]time.Duration // zero means the priority never escalates
	// Hierarchy is ordered from the first responder upwards. The first InitialTiers entries
	// are notified on creation (level 0); escalation level N notifies Hierarchy[InitialTiers-1+N].
	Hierarchy         []alert.Tier
	InitialTiers      int
	DigestWindow      time.Duration
	DigestMaxPerGroup int
}

// Default returns the production routing tables.
func Default() Policy {
	return Policy{
		Channels: map[alert.Priority][]alert.Channel{
			alert.PriorityCritical: {alert.ChannelEmail, alert.ChannelSMS, alert.ChannelInApp, alert.ChannelWebhook},
			alert.PriorityHigh:     {alert.ChannelEmail, alert.ChannelInApp, alert.ChannelWebhook},
			alert.PriorityMedium:   {alert.ChannelEmail, alert.ChannelInApp},
			alert.PriorityLow:      {alert.ChannelInApp},
			alert.PriorityInfo:     {alert.ChannelInApp},
		},
		Delays: map[alert.Priority]time.Duration{
			alert.PriorityCritical: 0,
			alert.PriorityHigh:     15 * time.Minute,
			alert.PriorityMedium:   60 * time.Minute,
			alert.PriorityLow:      240 * time.Minute,
			alert.PriorityInfo:     480 * time.Minute,
		},
		Escalation: map[alert.Priority]time.Duration{
			alert.PriorityCritical: 1 * time.Hour,
			alert.PriorityHigh:     4 * time.Hour,
			alert.PriorityMedium:   24 * time.Hour,
			alert.PriorityLow:      72 * time.Hour,
		},
		Hierarchy: []alert.Tier{
			alert.TierSiteOperator,
			alert.TierRegionalSupervisor,
			alert.TierProvincialManager,
			alert.TierNationalAdmin,
		},
		InitialTiers:      2,
		DigestWindow:      DefaultDigestWindow,
		DigestMaxPerGroup: DefaultDigestMaxPerGroup,
	}
}

// ChannelsFor returns a copy of the channel set for a priority.
func (p Policy) ChannelsFor(pr alert.Priority) []alert.Channel {
	return append([]alert.Channel(nil), p.Channels[pr]...)
}

// DelayFor returns the advisory dispatch delay for a priority.
func (p Policy) DelayFor(pr alert.Priority) time.Duration {
	return p.Delays[pr]
}

// EscalationThreshold returns the base threshold for a priority and whether it escalates at all.
func (p Policy) EscalationThreshold(pr alert.Priority) (time.Duration, bool) {
	d := p.Escalation[pr]
	return d, d > 0
}

// initialCount clamps InitialTiers to the hierarchy.
func (p Policy) initialCount() int {
	return max(1, min(p.InitialTiers, len(p.Hierarchy)))
}

// CreationTiers returns the tiers notified when an alert is created.
func (p Policy) CreationTiers() []alert.Tier {
	if len(p.Hierarchy) == 0 {
		return nil
	}
	return append([]alert.Tier(nil), p.Hierarchy[:p.initialCount()]...)
}

// MaxEscalationLevel is the highest level an alert can reach.
func (p Policy) MaxEscalationLevel() int {
	if len(p.Hierarchy) == 0 {
		return 0
	}
	return len(p.Hierarchy) - p.initialCount()
}

// TierAt returns the recipient tier first notified at an escalation level.
// Level 0 reports the highest creation tier.
func (p Policy) TierAt(level int) (alert.Tier, bool) {
	if len(p.Hierarchy) == 0 || level < 0 || level > p.MaxEscalationLevel() {
		return "", false
	}
	return p.Hierarchy[p.initialCount()-1+level], true
}

// EscalationDue reports whether an unacknowledged alert should move up one level.
// An alert at level L is due once its age exceeds base*(L+1).
func (p Policy) EscalationDue(a *alert.Alert, now time.Time) bool {
	if a.Status != alert.StatusActive {
		return false
	}
	base, ok := p.EscalationThreshold(a.Priority)
	if !ok {
		return false
	}
	if a.EscalationLevel >= p.MaxEscalationLevel() {
		return false
	}
	return now.Sub(a.CreatedAt) > base*time.Duration(a.EscalationLevel+1)
}
