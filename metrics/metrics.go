// Package metrics implements the lock-free counters/gauges and the
// admin/scrape HTTP surface an optional exporter goroutine serves. The
// registry covers a single zone process, not a multi-service deployment.
package metrics

import (
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing lock-free counter.
type Counter struct {
	v atomic.Int64
}

// Inc adds delta (which may be negative only for correcting bugs, never in
// normal use) to the counter.
func (c *Counter) Inc(delta int64) { c.v.Add(delta) }

// Value returns the current count.
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge is a point-in-time value that can move in either direction.
type Gauge struct {
	v atomic.Int64
}

// Set overwrites the gauge's value.
func (g *Gauge) Set(val int64) { g.v.Store(val) }

// Value returns the gauge's current value.
func (g *Gauge) Value() int64 { return g.v.Load() }

// Histogram tracks a bounded window of recent samples for percentile
// reporting (tick time, RTT). It takes a mutex rather than being lock-free,
// matching the allowance that only the hot-path counters need to be
// atomics — tick-time recording happens once per tick, not per packet.
type Histogram struct {
	mu      sync.Mutex
	samples []float64
	cap     int
	next    int
	filled  bool
}

// NewHistogram constructs a ring-buffered histogram retaining the most
// recent capacity samples.
func NewHistogram(capacity int) *Histogram {
	return &Histogram{samples: make([]float64, capacity), cap: capacity}
}

// Observe records one sample.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.next] = v
	h.next = (h.next + 1) % h.cap
	if h.next == 0 {
		h.filled = true
	}
}

// Snapshot returns (count, mean, p95, max) over the retained window.
func (h *Histogram) Snapshot() (count int, mean, p95, max float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := h.next
	if h.filled {
		n = h.cap
	}
	if n == 0 {
		return 0, 0, 0, 0
	}
	sorted := make([]float64, n)
	copy(sorted, h.samples[:n])
	sum := 0.0
	for _, v := range sorted {
		sum += v
		if v > max {
			max = v
		}
	}
	mean = sum / float64(n)
	insertionSort(sorted)
	idx := int(float64(n) * 0.95)
	if idx >= n {
		idx = n - 1
	}
	p95 = sorted[idx]
	return n, mean, p95, max
}

func insertionSort(v []float64) {
	for i := 1; i < len(v); i++ {
		key := v[i]
		j := i - 1
		for j >= 0 && v[j] > key {
			v[j+1] = v[j]
			j--
		}
		v[j+1] = key
	}
}

// Registry holds the zone process's named metrics. An optional exporter
// goroutine serves HTTP scrapes from it, reading the atomic counters and
// gauges plus the mutex-guarded tick-duration histogram.
type Registry struct {
	TicksProcessed      Counter
	TickOverBudget      Counter
	PacketsReceived     Counter
	PacketsDropped      Counter
	AttacksProcessed    Counter
	ViolationsFlagged   Counter
	MigrationsStarted   Counter
	MigrationsCompleted Counter
	MigrationsFailed    Counter

	ConnectedPlayers   Gauge
	EntityCount        Gauge
	AvgEntitiesPerCell Gauge

	TickDuration *Histogram
}

// NewRegistry constructs a Registry with its histograms sized for roughly
// one minute of samples at 60Hz.
func NewRegistry() *Registry {
	return &Registry{TickDuration: NewHistogram(3600)}
}
