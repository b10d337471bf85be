package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
)

var (
	_ gateway.Gateway   = (*Gateway)(nil)
	_ gateway.Directory = (*Directory)(nil)
)

// Gateway serves upstream records from memory. Setting Err makes every query fail.
type Gateway struct {
	mu        sync.RWMutex
	sites     map[string]gateway.Site
	documents map[string]gateway.Document
	lots      map[string]gateway.IngredientLot
	streaks   map[string]gateway.MenuStreak
	readings  map[string]gateway.StorageReading
	err       error
}

// NewGateway creates an empty gateway.
func NewGateway() *Gateway {
	return &Gateway{
		sites:     make(map[string]gateway.Site),
		documents: make(map[string]gateway.Document),
		lots:      make(map[string]gateway.IngredientLot),
		streaks:   make(map[string]gateway.MenuStreak),
		readings:  make(map[string]gateway.StorageReading),
	}
}

// SetError makes subsequent queries fail with err. Pass nil to recover.
func (g *Gateway) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

func (g *Gateway) PutSite(s gateway.Site) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sites[s.ID] = s
}

func (g *Gateway) PutDocument(d gateway.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.documents[d.ID] = d
}

func (g *Gateway) PutLot(l gateway.IngredientLot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lots[l.ID] = l
}

// PutMenuStreak records the current non-compliant streak of a site. A zero-day streak clears it.
func (g *Gateway) PutMenuStreak(s gateway.MenuStreak) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s.ConsecutiveDays <= 0 {
		delete(g.streaks, s.SiteID)
		return
	}
	g.streaks[s.SiteID] = s
}

// PutReading replaces the latest reading of a storage unit.
func (g *Gateway) PutReading(r gateway.StorageReading) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.readings[r.UnitID] = r
}

// Remove deletes any record with the id, simulating upstream deletion.
func (g *Gateway) Remove(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.sites, id)
	delete(g.documents, id)
	delete(g.lots, id)
	delete(g.streaks, id)
	delete(g.readings, id)
}

func (g *Gateway) SitesWithoutActivitySince(ctx context.Context, since time.Time) ([]gateway.Site, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []gateway.Site
	for _, s := range g.sites {
		if s.LastActivityAt == nil || !s.LastActivityAt.After(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Gateway) Site(ctx context.Context, id string) (*gateway.Site, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	s, ok := g.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %s: %w", id, alert.ErrNotFound)
	}
	return &s, nil
}

func (g *Gateway) DocumentsExpiringBetween(ctx context.Context, from, to time.Time) ([]gateway.Document, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []gateway.Document
	for _, d := range g.documents {
		if !d.ExpiresAt.Before(from) && !d.ExpiresAt.After(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (g *Gateway) Document(ctx context.Context, id string) (*gateway.Document, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	d, ok := g.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, alert.ErrNotFound)
	}
	return &d, nil
}

func (g *Gateway) LotsExpiringBetween(ctx context.Context, from, to time.Time) ([]gateway.IngredientLot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []gateway.IngredientLot
	for _, l := range g.lots {
		if !l.ExpiresAt.Before(from) && !l.ExpiresAt.After(to) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (g *Gateway) Lot(ctx context.Context, id string) (*gateway.IngredientLot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	l, ok := g.lots[id]
	if !ok {
		return nil, fmt.Errorf("ingredient lot %s: %w", id, alert.ErrNotFound)
	}
	return &l, nil
}

func (g *Gateway) NonCompliantMenuStreaks(ctx context.Context, minDays int, asOf time.Time) ([]gateway.MenuStreak, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []gateway.MenuStreak
	for _, s := range g.streaks {
		if s.ConsecutiveDays >= minDays && !s.LastNonCompliantDay.After(asOf) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

// MenuStreak returns the current streak of a site. A compliant site has a zero-day streak.
func (g *Gateway) MenuStreak(ctx context.Context, siteID string, asOf time.Time) (*gateway.MenuStreak, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	s, ok := g.streaks[siteID]
	if !ok {
		return &gateway.MenuStreak{SiteID: siteID}, nil
	}
	return &s, nil
}

func (g *Gateway) StorageReadingsOutOfRange(ctx context.Context, limits gateway.TemperatureLimits) ([]gateway.StorageReading, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	var out []gateway.StorageReading
	for _, r := range g.readings {
		if !limits.InRange(r.StorageType, r.TemperatureC) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func (g *Gateway) LatestReading(ctx context.Context, unitID string) (*gateway.StorageReading, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.err != nil {
		return nil, g.err
	}
	r, ok := g.readings[unitID]
	if !ok {
		return nil, fmt.Errorf("storage unit %s: %w", unitID, alert.ErrNotFound)
	}
	return &r, nil
}

// Member is one user in the in-memory directory. Site and organization are the
// scopes the user is responsible for; national admins need neither.
type Member struct {
	UserID         string
	Tier           alert.Tier
	SiteID         string
	OrganizationID string
}

// Directory resolves recipients from a static member list.
type Directory struct {
	mu      sync.RWMutex
	members []Member
	err     error
}

// NewDirectory creates a directory with the given members.
func NewDirectory(members ...Member) *Directory {
	return &Directory{members: append([]Member(nil), members...)}
}

// Add appends members.
func (d *Directory) Add(members ...Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members = append(d.members, members...)
}

// SetError makes subsequent lookups fail with err.
func (d *Directory) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Recipients matches site operators by site, supervisors and provincial managers by
// organization, and returns every national admin.
func (d *Directory) Recipients(ctx context.Context, tier alert.Tier, scope gateway.Scope) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []string
	for _, m := range d.members {
		if m.Tier != tier {
			continue
		}
		switch tier {
		case alert.TierSiteOperator:
			if scope.SiteID == "" || m.SiteID != scope.SiteID {
				continue
			}
		case alert.TierRegionalSupervisor, alert.TierProvincialManager:
			if scope.OrganizationID == "" || m.OrganizationID != scope.OrganizationID {
				continue
			}
		}
		out = append(out, m.UserID)
	}
	return out, nil
}
