// Package schedule runs the monitoring rules and sweeps on their cron cadence
// inside the engine process.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stargan-id/jaga-gizi-alerting/internal/escalation"
	"github.com/stargan-id/jaga-gizi-alerting/internal/resolver"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

// DefaultJobTimeout bounds a single scheduled run.
const DefaultJobTimeout = 5 * time.Minute

// Scanner runs one pass of a rule.
type Scanner interface {
	Scan(ctx context.Context, kind rules.Kind, now time.Time) (int, error)
	Rules() []rules.Rule
}

// EscalationSweeper runs one escalation sweep.
type EscalationSweeper interface {
	Sweep(ctx context.Context, now time.Time) (escalation.Result, error)
}

// ResolutionSweeper runs one resolution sweep.
type ResolutionSweeper interface {
	Sweep(ctx context.Context, now time.Time) (resolver.Result, error)
}

// Scheduler owns a cron runner with one job per enabled rule plus the two sweeps.
// Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron       *cron.Cron
	scanner    Scanner
	escalation EscalationSweeper
	resolution ResolutionSweeper

	escalationSpec string
	resolutionSpec string
	timeout        time.Duration
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Option is a functional option for configuring Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time passed to scans and sweeps.
func WithClock(fn func() time.Time) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithJobTimeout overrides DefaultJobTimeout.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Scheduler. Schedules use the standard five-field cron syntax.
func New(sc Scanner, esc EscalationSweeper, res ResolutionSweeper, escalationSpec, resolutionSpec string, opts ...Option) *Scheduler {
	logger := cronLogger{}
	s := &Scheduler{
		cron:           cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		scanner:        sc,
		escalation:     esc,
		resolution:     res,
		escalationSpec: escalationSpec,
		resolutionSpec: resolutionSpec,
		timeout:        DefaultJobTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers every job and starts the cron runner. Jobs stop receiving new
// work once ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, r := range s.scanner.Rules() {
		if !r.Enabled {
			continue
		}
		kind := r.Kind
		if _, err := s.cron.AddFunc(r.Schedule, func() { s.RunScan(kind) }); err != nil {
			return fmt.Errorf("failed to schedule rule %s: %w", kind, err)
		}
	}
	if _, err := s.cron.AddFunc(s.escalationSpec, s.RunEscalation); err != nil {
		return fmt.Errorf("failed to schedule escalation sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.resolutionSpec, s.RunResolution); err != nil {
		return fmt.Errorf("failed to schedule resolution sweep: %w", err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	parent := s.ctx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.timeout)
}

// RunScan runs one scheduled pass of a rule.
func (s *Scheduler) RunScan(kind rules.Kind) {
	ctx, cancel := s.jobContext()
	defer cancel()
	if _, err := s.scanner.Scan(ctx, kind, s.now()); err != nil {
		slog.Error("Scheduled scan failed", "rule", kind, "error", err)
	}
}

// RunEscalation runs one scheduled escalation sweep.
func (s *Scheduler) RunEscalation() {
	ctx, cancel := s.jobContext()
	defer cancel()
	res, err := s.escalation.Sweep(ctx, s.now())
	if err != nil {
		slog.Error("Scheduled escalation sweep failed", "error", err)
		return
	}
	slog.Debug("Scheduled escalation sweep done", "escalated", res.Escalated, "failed", res.Failed)
}

// RunResolution runs one scheduled resolution sweep.
func (s *Scheduler) RunResolution() {
	ctx, cancel := s.jobContext()
	defer cancel()
	res, err := s.resolution.Sweep(ctx, s.now())
	if err != nil {
		slog.Error("Scheduled resolution sweep failed", "error", err)
		return
	}
	slog.Debug("Scheduled resolution sweep done", "resolved", res.Resolved, "expired", res.Expired, "failed", res.Failed)
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
