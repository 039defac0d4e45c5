// Package aggregator collects per-request-type execution statistics for the
// pipeline: counts, latency extremes, global latency percentiles, and a
// bounded history of slow requests.
package aggregator

import (
	"math"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Defaults.
const (
	DefaultLatencyPoolSize = 10000
	DefaultSlowBufferSize  = 1000
)

// Config configures an Aggregator.
type Config struct {
	// LatencyPoolSize bounds the number of recent latencies kept for
	// percentile queries.
	LatencyPoolSize int

	// SlowBufferSize bounds the slow-request history.
	SlowBufferSize int
}

// SlowRequest records one execution that exceeded its threshold.
type SlowRequest struct {
	RequestType string        `json:"requestType"`
	Duration    time.Duration `json:"-"`
	UserID      string        `json:"userId,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// TypeSnapshot is a point-in-time copy of the statistics for one request type.
type TypeSnapshot struct {
	RequestType string
	Total       int64
	Succeeded   int64
	Failed      int64
	AvgLatency  time.Duration
	MinLatency  time.Duration
	MaxLatency  time.Duration
	SlowCount   int64
}

type typeStats struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	slow      atomic.Int64
	sumNanos  atomic.Int64
	minNanos  atomic.Int64
	maxNanos  atomic.Int64
}

func newTypeStats() *typeStats {
	s := &typeStats{}
	s.minNanos.Store(math.MaxInt64)
	return s
}

func (s *typeStats) observe(d time.Duration, succeeded bool) {
	n := d.Nanoseconds()

	s.total.Add(1)
	if succeeded {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
	}
	s.sumNanos.Add(n)

	for {
		cur := s.minNanos.Load()
		if n >= cur || s.minNanos.CompareAndSwap(cur, n) {
			break
		}
	}
	for {
		cur := s.maxNanos.Load()
		if n <= cur || s.maxNanos.CompareAndSwap(cur, n) {
			break
		}
	}
}

func (s *typeStats) snapshot(requestType string) TypeSnapshot {
	snap := TypeSnapshot{
		RequestType: requestType,
		Total:       s.total.Load(),
		Succeeded:   s.succeeded.Load(),
		Failed:      s.failed.Load(),
		MaxLatency:  time.Duration(s.maxNanos.Load()),
		SlowCount:   s.slow.Load(),
	}
	if snap.Total > 0 {
		snap.AvgLatency = time.Duration(s.sumNanos.Load() / snap.Total)
	}
	if minNanos := s.minNanos.Load(); minNanos != math.MaxInt64 {
		snap.MinLatency = time.Duration(minNanos)
	}
	return snap
}

// Aggregator is safe for concurrent use. Statistics are never reset.
type Aggregator struct {
	types   *xsync.MapOf[string, *typeStats]
	latency *ring[time.Duration]
	slow    *ring[SlowRequest]
	prom    *promMetrics
}

// New creates an Aggregator.
func New(cfg Config) *Aggregator {
	if cfg.LatencyPoolSize <= 0 {
		cfg.LatencyPoolSize = DefaultLatencyPoolSize
	}
	if cfg.SlowBufferSize <= 0 {
		cfg.SlowBufferSize = DefaultSlowBufferSize
	}
	return &Aggregator{
		types:   xsync.NewMapOf[string, *typeStats](),
		latency: newRing[time.Duration](cfg.LatencyPoolSize),
		slow:    newRing[SlowRequest](cfg.SlowBufferSize),
		prom:    newPromMetrics(),
	}
}

func (a *Aggregator) stats(requestType string) *typeStats {
	s, _ := a.types.LoadOrCompute(requestType, newTypeStats)
	return s
}

// Record adds one completed execution of requestType.
func (a *Aggregator) Record(requestType string, d time.Duration, succeeded bool) {
	if d < 0 {
		d = 0
	}
	a.stats(requestType).observe(d, succeeded)
	a.latency.push(d)
	a.prom.observe(requestType, d, succeeded)
}

// RecordSlow appends r to the slow-request history, evicting the oldest
// record when full, and bumps the slow count of its request type.
func (a *Aggregator) RecordSlow(r SlowRequest) {
	a.stats(r.RequestType).slow.Add(1)
	a.slow.push(r)
	a.prom.slowRequests.WithLabelValues(r.RequestType).Inc()
}

// Snapshot returns the statistics for requestType.
func (a *Aggregator) Snapshot(requestType string) (TypeSnapshot, bool) {
	s, ok := a.types.Load(requestType)
	if !ok {
		return TypeSnapshot{RequestType: requestType}, false
	}
	return s.snapshot(requestType), true
}

// Snapshots returns the statistics of every request type, sorted by name.
func (a *Aggregator) Snapshots() []TypeSnapshot {
	out := make([]TypeSnapshot, 0, a.types.Size())
	a.types.Range(func(name string, s *typeStats) bool {
		out = append(out, s.snapshot(name))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].RequestType < out[j].RequestType })
	return out
}

// Percentile returns the p-th percentile (0 < p ≤ 1) of the recorded
// latencies. It returns 0 when nothing has been recorded.
func (a *Aggregator) Percentile(p float64) time.Duration {
	return a.Percentiles(p)[0]
}

// Percentiles computes several percentiles over a single sorted copy of
// the latency pool.
func (a *Aggregator) Percentiles(ps ...float64) []time.Duration {
	sorted := a.latency.items()
	slices.Sort(sorted)

	out := make([]time.Duration, len(ps))
	for i, p := range ps {
		out[i] = percentileOf(sorted, p)
	}
	return out
}

// percentileOf picks index ceil(n*p)-1 of sorted, clamped to [0, n-1].
func percentileOf(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(n)*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

// SlowRequests returns the slow-request history, oldest first.
func (a *Aggregator) SlowRequests() []SlowRequest {
	return a.slow.items()
}

// LatencySamples returns the number of latencies currently retained.
func (a *Aggregator) LatencySamples() int {
	return a.latency.len()
}
