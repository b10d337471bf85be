package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/gateway"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

// Scanner runs monitoring rules. It keeps no state between runs: every decision is made
// from the clock, the store and the gateway, so any number of scans may run concurrently.
type Scanner struct {
	store   Store
	planner Planner
	rules   map[rules.Kind]Rule
	metrics MetricsRecorder
	newID   func() string
}

// Option is a functional option for configuring Scanner.
type Option func(*Scanner)

// WithMetrics sets a custom metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Scanner) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scanner) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithRule registers or replaces a rule implementation.
func WithRule(r Rule) Option {
	return func(s *Scanner) {
		s.rules[r.Config().Kind] = r
	}
}

// NewScanner builds the rule registry from the configuration set.
func NewScanner(store Store, planner Planner, gw gateway.Gateway, set rules.Set, opts ...Option) (*Scanner, error) {
	s := &Scanner{
		store:   store,
		planner: planner,
		rules:   make(map[rules.Kind]Rule, len(set)),
		metrics: NoOpMetrics{},
		newID:   uuid.NewString,
	}
	for _, cfg := range set.List() {
		r, err := newRule(cfg, gw)
		if err != nil {
			return nil, err
		}
		s.rules[cfg.Kind] = r
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newRule(cfg rules.Rule, gw gateway.Gateway) (Rule, error) {
	switch cfg.Kind {
	case rules.ReportingGap:
		return &reportingGapRule{cfg: cfg, gw: gw}, nil
	case rules.DocumentExpiry:
		return &documentExpiryRule{cfg: cfg, gw: gw}, nil
	case rules.IngredientExpiry:
		return &ingredientExpiryRule{cfg: cfg, gw: gw}, nil
	case rules.NutritionCompliance:
		return &nutritionComplianceRule{cfg: cfg, gw: gw}, nil
	case rules.StorageTemperature:
		return &storageTemperatureRule{cfg: cfg, gw: gw}, nil
	default:
		return nil, fmt.Errorf("no scanner for rule kind %q", cfg.Kind)
	}
}

// Rules returns the configuration of every registered rule.
func (s *Scanner) Rules() []rules.Rule {
	set := make(rules.Set, len(s.rules))
	for k, r := range s.rules {
		set[k] = r.Config()
	}
	return set.List()
}

// Scan runs one pass of a rule and returns how many alerts it created.
// Entities that already have an open alert are skipped. Per-entity failures are logged
// and skipped; a failing upstream query fails the whole pass with ErrUpstreamUnavailable.
func (s *Scanner) Scan(ctx context.Context, kind rules.Kind, now time.Time) (int, error) {
	r, ok := s.rules[kind]
	if !ok {
		return 0, fmt.Errorf("%w: unknown rule %q", alert.ErrValidation, kind)
	}
	if !r.Config().Enabled {
		return 0, fmt.Errorf("%w: rule %q is disabled", alert.ErrValidation, kind)
	}

	start := time.Now()
	candidates, err := r.Find(ctx, now)
	if err != nil {
		s.metrics.RecordError()
		slog.Error("Scan failed", "rule", kind, "error", err)
		return 0, err
	}

	created, skipped, failed := 0, 0, 0
	for _, c := range candidates {
		ok, err := s.create(ctx, c, now)
		switch {
		case err != nil:
			failed++
			s.metrics.RecordError()
			slog.Warn("Failed to raise alert",
				"rule", kind,
				"entity", c.Entity.String(),
				"error", err,
			)
		case ok:
			created++
		default:
			skipped++
		}
	}

	s.metrics.AddCustom("alerts_created", uint64(created))
	s.metrics.AddCustom("scan_"+string(kind), 1)
	s.metrics.RecordProcessed(time.Since(start))

	slog.Info("Scan completed",
		"rule", kind,
		"candidates", len(candidates),
		"created", created,
		"already_open", skipped,
		"failed", failed,
		"duration", time.Since(start),
	)
	return created, nil
}

// ScanAll runs every enabled rule once. A failing rule does not stop the others;
// its error is joined into the returned error.
func (s *Scanner) ScanAll(ctx context.Context, now time.Time) (map[rules.Kind]int, error) {
	counts := make(map[rules.Kind]int)
	var errs []error
	for _, cfg := range s.Rules() {
		if !cfg.Enabled {
			continue
		}
		n, err := s.Scan(ctx, cfg.Kind, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Kind, err))
			continue
		}
		counts[cfg.Kind] = n
	}
	return counts, errors.Join(errs...)
}

// Recheck re-runs the single-entity check of the rule that owns the alert's category.
func (s *Scanner) Recheck(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	for _, r := range s.rules {
		cfg := r.Config()
		if cfg.Category == a.Category && cfg.Entity == a.Entity.Kind {
			return r.Recheck(ctx, a, now)
		}
	}
	return false, fmt.Errorf("%w: no rule re-checks %s alerts on %s", alert.ErrValidation, a.Category, a.Entity.Kind)
}

// create raises a single candidate. Returns false when an open alert already covers the entity.
func (s *Scanner) create(ctx context.Context, a *alert.Alert, now time.Time) (bool, error) {
	a.Status = alert.StatusActive
	a.CreatedBy = alert.SystemActor
	a.UpdatedBy = alert.SystemActor
	a.CreatedAt = now
	a.UpdatedAt = now
	if err := a.Validate(); err != nil {
		return false, err
	}

	key := a.DedupeKey()
	exists, err := s.store.HasOpenAlert(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check open alert %s: %w", key, err)
	}
	if exists {
		slog.Debug("Open alert exists, skipping", "dedupe_key", key.String())
		return false, nil
	}

	a.ID = s.newID()
	notifs, err := s.planner.Plan(ctx, a, now)
	if err != nil {
		slog.Warn("Recipient resolution failed, raising alert without notifications",
			"alert_id", a.ID,
			"dedupe_key", key.String(),
			"error", err,
		)
		notifs = nil
	}

	created, err := s.store.CreateAlert(ctx, a, notifs)
	if err != nil {
		return false, err
	}
	if !created {
		// Another scan committed the same key between the check and the insert.
		slog.Debug("Open alert created concurrently, skipping", "dedupe_key", key.String())
		return false, nil
	}

	slog.Info("Alert raised",
		"alert_id", a.ID,
		"category", a.Category,
		"priority", a.Priority,
		"entity", a.Entity.String(),
		"notifications", len(notifs),
	)
	s.planner.Announce(ctx, a, notifs)
	return true, nil
}
