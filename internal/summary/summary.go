// Package summary builds the dashboard view of open alerts.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

const (
	DefaultRecentLimit  = 10
	DefaultQueryTimeout = 2 * time.Second
)

// Store is the read side the aggregator queries.
type Store interface {
	CountOpenByPriority(ctx context.Context, orgID *string) (map[alert.Priority]int, error)
	CountOpenByCategory(ctx context.Context, orgID *string) (map[alert.Category]int, error)
	RecentOpenAlerts(ctx context.Context, orgID *string, limit int) ([]*alert.Alert, error)
}

// Summary is the dashboard view. Errors lists the queries that failed; the matching
// sections are left empty.
type Summary struct {
	OrganizationID *string                `json:"organization_id,omitempty"`
	TotalOpen      int                    `json:"total_open"`
	ByPriority     map[alert.Priority]int `json:"by_priority"`
	ByCategory     map[alert.Category]int `json:"by_category"`
	Recent         []*alert.Alert         `json:"recent"`
	Errors         []string               `json:"errors,omitempty"`
}

// Partial reports whether any query failed.
func (s *Summary) Partial() bool {
	return len(s.Errors) > 0
}

// Aggregator runs the summary queries concurrently.
type Aggregator struct {
	store        Store
	recentLimit  int
	queryTimeout time.Duration
}

// Option is a functional option for configuring Aggregator.
type Option func(*Aggregator)

// WithRecentLimit sets how many recent alerts the summary lists.
func WithRecentLimit(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.recentLimit = n
		}
	}
}

// WithQueryTimeout bounds each query.
func WithQueryTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.queryTimeout = d
		}
	}
}

// NewAggregator creates an Aggregator.
func NewAggregator(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:        store,
		recentLimit:  DefaultRecentLimit,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build never fails as a whole: each failing query adds an entry to Errors.
func (a *Aggregator) Build(ctx context.Context, orgID *string) *Summary {
	s := &Summary{
		OrganizationID: orgID,
		ByPriority:     make(map[alert.Priority]int, len(alert.Priorities)),
		ByCategory:     make(map[alert.Category]int),
		Recent:         []*alert.Alert{},
	}
	for _, p := range alert.Priorities {
		s.ByPriority[p] = 0
	}

	var mu sync.Mutex
	fail := func(query string, err error) {
		mu.Lock()
		defer mu.Unlock()
		s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", query, err))
		slog.Warn("Summary query failed", "query", query, "error", err)
	}

	// Queries report failures through fail and always return nil so one failure
	// does not cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
		counts, err := a.store.CountOpenByPriority(qctx, orgID)
		if err != nil {
			fail("by_priority", err)
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		for p, n := range counts {
			s.ByPriority[p] = n
			s.TotalOpen += n
		}
		return nil
	})
	g.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
		counts, err := a.store.CountOpenByCategory(qctx, orgID)
		if err != nil {
			fail("by_category", err)
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		for c, n := range counts {
			s.ByCategory[c] = n
		}
		return nil
	})
	g.Go(func() error {
		qctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
		defer cancel()
		recent, err := a.store.RecentOpenAlerts(qctx, orgID, a.recentLimit)
		if err != nil {
			fail("recent", err)
			return nil
		}
		if recent != nil {
			mu.Lock()
			s.Recent = recent
			mu.Unlock()
		}
		return nil
	})
	_ = g.Wait()

	return s
}
