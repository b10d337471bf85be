// Package metrics collects engine counters in memory and reports them to Redis,
// where any instance (or an operator) can read them back.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix prefixes the per-instance snapshot keys.
	KeyPrefix = "jaga-gizi:metrics:"
	// TotalsKey is a hash of counters accumulated across all instances.
	TotalsKey = "jaga-gizi:metrics-totals"
	// SnapshotTTL is how long a snapshot stays readable if its instance stops reporting.
	SnapshotTTL = 2 * time.Minute
	// DefaultReportInterval is the default interval between writes to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the state of one engine instance at a point in time.
type Snapshot struct {
	Instance    string    `json:"instance"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "stale"

	RequestsReceived uint64 `json:"requests_received"`
	Processed        uint64 `json:"processed"`
	Published        uint64 `json:"published"`
	Errors           uint64 `json:"errors"`

	AvgLatencyMs float64           `json:"avg_latency_ms"`
	Counters     map[string]uint64 `json:"counters,omitempty"`
}

// Collector counts HTTP requests, scan and sweep runs, dispatch publishes and errors.
type Collector struct {
	instance       string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	received  atomic.Uint64
	processed atomic.Uint64
	published atomic.Uint64
	errors    atomic.Uint64

	latencyNs    atomic.Uint64
	latencyCount atomic.Uint64

	mu       sync.RWMutex
	counters map[string]*atomic.Uint64

	// flushMu guards reported, the counter values already added to TotalsKey.
	flushMu  sync.Mutex
	reported map[string]uint64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector for one engine instance. A nil client keeps
// counters in memory only.
func NewCollector(instance string, client *redis.Client) *Collector {
	return &Collector{
		instance:       instance,
		redis:          client,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		counters:       make(map[string]*atomic.Uint64),
		reported:       make(map[string]uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval between writes to Redis. Call before Start.
func (c *Collector) SetReportInterval(interval time.Duration) {
	if interval > 0 {
		c.reportInterval = interval
	}
}

// Start reports periodically until ctx is cancelled or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.flush(context.Background())
				return
			case <-c.stopCh:
				c.flush(context.Background())
				return
			case <-ticker.C:
				c.flush(ctx)
			}
		}
	}()
}

// Stop writes a final report and waits for the reporting goroutine.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordReceived counts an incoming request.
func (c *Collector) RecordReceived() {
	c.received.Add(1)
}

// RecordProcessed counts a completed unit of work and its latency.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.processed.Add(1)
	c.latencyNs.Add(uint64(latency.Nanoseconds()))
	c.latencyCount.Add(1)
}

// RecordPublished counts a dispatch request handed to the broker.
func (c *Collector) RecordPublished() {
	c.published.Add(1)
}

// RecordError counts a failure.
func (c *Collector) RecordError() {
	c.errors.Add(1)
}

// IncrementCustom adds one to a named counter.
func (c *Collector) IncrementCustom(name string) {
	c.AddCustom(name, 1)
}

// AddCustom adds value to a named counter.
func (c *Collector) AddCustom(name string, value uint64) {
	if value == 0 {
		return
	}
	c.mu.RLock()
	counter, ok := c.counters[name]
	c.mu.RUnlock()
	if !ok {
		c.mu.Lock()
		if counter, ok = c.counters[name]; !ok {
			counter = &atomic.Uint64{}
			c.counters[name] = counter
		}
		c.mu.Unlock()
	}
	counter.Add(value)
}

// Snapshot returns the current values without touching Redis.
func (c *Collector) Snapshot() *Snapshot {
	var avgMs float64
	if n := c.latencyCount.Load(); n > 0 {
		avgMs = float64(c.latencyNs.Load()) / float64(n) / float64(time.Millisecond)
	}

	c.mu.RLock()
	counters := make(map[string]uint64, len(c.counters))
	for name, v := range c.counters {
		counters[name] = v.Load()
	}
	c.mu.RUnlock()

	return &Snapshot{
		Instance:         c.instance,
		StartedAt:        c.startedAt,
		LastUpdated:      time.Now().UTC(),
		Status:           "healthy",
		RequestsReceived: c.received.Load(),
		Processed:        c.processed.Load(),
		Published:        c.published.Load(),
		Errors:           c.errors.Load(),
		AvgLatencyMs:     avgMs,
		Counters:         counters,
	}
}

// deltas returns how much each counter grew since the last successful flush.
func (c *Collector) deltas(snap *Snapshot) map[string]uint64 {
	out := make(map[string]uint64)
	for name, v := range snap.Counters {
		if d := v - c.reported[name]; d > 0 {
			out[name] = d
		}
	}
	return out
}

// flush writes the snapshot and adds the counter growth to the shared totals in one pipeline.
func (c *Collector) flush(ctx context.Context) {
	if c.redis == nil {
		return
	}
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	snap := c.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "instance", c.instance, "error", err)
		return
	}
	deltas := c.deltas(snap)

	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, KeyPrefix+c.instance, data, SnapshotTTL)
		for name, d := range deltas {
			pipe.HIncrBy(ctx, TotalsKey, name, int64(d))
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to write metrics to Redis", "instance", c.instance, "error", err)
		return
	}
	for name, d := range deltas {
		c.reported[name] += d
	}
	slog.Debug("Metrics written to Redis", "instance", c.instance, "counters", len(deltas))
}

// ErrNoSnapshot is returned when an instance has not reported within SnapshotTTL.
var ErrNoSnapshot = errors.New("no metrics snapshot")

// Reader reads snapshots and totals back from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a metrics reader.
func NewReader(client *redis.Client) *Reader {
	return &Reader{redis: client}
}

// Instance returns the latest snapshot of one instance.
func (r *Reader) Instance(ctx context.Context, instance string) (*Snapshot, error) {
	data, err := r.redis.Get(ctx, KeyPrefix+instance).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w for %s", ErrNoSnapshot, instance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if time.Since(snap.LastUpdated) > SnapshotTTL {
		snap.Status = "stale"
	}
	return &snap, nil
}

// Instances returns the snapshots of every reporting instance, ordered by name.
func (r *Reader) Instances(ctx context.Context) ([]*Snapshot, error) {
	var names []string
	iter := r.redis.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, iter.Val()[len(KeyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan metrics keys: %w", err)
	}
	sort.Strings(names)

	out := make([]*Snapshot, 0, len(names))
	for _, name := range names {
		snap, err := r.Instance(ctx, name)
		if err != nil {
			// Expired between SCAN and GET.
			slog.Warn("Failed to read metrics for instance", "instance", name, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Totals returns the counters accumulated across all instances.
func (r *Reader) Totals(ctx context.Context) (map[string]uint64, error) {
	raw, err := r.redis.HGetAll(ctx, TotalsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metric totals: %w", err)
	}
	out := make(map[string]uint64, len(raw))
	for name, v := range raw {
		var n uint64
		if _, err := fmt.Sscan(v, &n); err != nil {
			slog.Warn("Skipping malformed metric total", "counter", name, "value", v)
			continue
		}
		out[name] = n
	}
	return out, nil
}
