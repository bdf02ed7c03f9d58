// Package latency tracks per-stage pipeline latencies over rolling windows
// and decides when the service should enter degraded mode.
package latency

import (
	"sort"
	"sync"
	"time"
)

// Stage identifies a pipeline stage being timed.
type Stage string

const (
	StageEmbedding Stage = "embedding"
	StageRetrieval Stage = "retrieval"
	StageReranking Stage = "reranking"
	StageTotal     Stage = "total"
)

// Stages lists all tracked stages in reporting order.
var Stages = []Stage{StageEmbedding, StageRetrieval, StageReranking, StageTotal}

// ring is a fixed-capacity rolling window of duration samples.
type ring struct {
	samples []time.Duration
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]time.Duration, capacity)}
}

func (r *ring) add(d time.Duration) {
	r.samples[r.next] = d
	r.next++
	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// snapshot returns a copy of the recorded samples, oldest data included.
func (r *ring) snapshot() []time.Duration {
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	out := make([]time.Duration, n)
	copy(out, r.samples[:n])
	return out
}

func (r *ring) count() int {
	if r.full {
		return len(r.samples)
	}
	return r.next
}

// Monitor records stage latencies and reports percentiles. All methods are
// safe for concurrent use; Record never blocks on anything but the mutex.
type Monitor struct {
	mu      sync.Mutex
	windows map[Stage]*ring
	budget  time.Duration
}

// NewMonitor creates a monitor with a rolling window of windowSize samples
// per stage and the given total-latency budget for degraded-mode decisions.
func NewMonitor(windowSize int, budget time.Duration) *Monitor {
	if windowSize < 1 {
		windowSize = 1
	}
	windows := make(map[Stage]*ring, len(Stages))
	for _, stage := range Stages {
		windows[stage] = newRing(windowSize)
	}
	return &Monitor{
		windows: windows,
		budget:  budget,
	}
}

// Record adds a sample for the given stage. Unknown stages are ignored.
func (m *Monitor) Record(stage Stage, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.windows[stage]
	if !ok {
		return
	}
	r.add(d)
}

// Percentile returns the p-th percentile (0 < p <= 100) of the stage's
// rolling window, or zero when no samples exist.
func (m *Monitor) Percentile(stage Stage, p float64) time.Duration {
	m.mu.Lock()
	r, ok := m.windows[stage]
	if !ok {
		m.mu.Unlock()
		return 0
	}
	samples := r.snapshot()
	m.mu.Unlock()

	return percentile(samples, p)
}

// IsDegraded reports whether the P95 of total pipeline latency exceeds the
// budget. An empty window is healthy.
func (m *Monitor) IsDegraded() bool {
	p95 := m.Percentile(StageTotal, 95)
	return p95 > m.budget
}

// StageStats summarizes one stage's rolling window.
type StageStats struct {
	Count int     `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Report is the latency summary served over HTTP.
type Report struct {
	Stages   map[Stage]StageStats `json:"stages"`
	BudgetMs int64                `json:"budget_ms"`
	Healthy  bool                 `json:"healthy"`
}

// Report returns stats for every stage plus the overall health verdict.
func (m *Monitor) Report() Report {
	report := Report{
		Stages:   make(map[Stage]StageStats, len(Stages)),
		BudgetMs: m.budget.Milliseconds(),
	}

	for _, stage := range Stages {
		m.mu.Lock()
		samples := m.windows[stage].snapshot()
		m.mu.Unlock()

		stats := StageStats{Count: len(samples)}
		if len(samples) > 0 {
			var sum time.Duration
			for _, s := range samples {
				sum += s
			}
			stats.AvgMs = float64(sum.Microseconds()) / float64(len(samples)) / 1000
			stats.P95Ms = float64(percentile(samples, 95).Microseconds()) / 1000
		}
		report.Stages[stage] = stats
	}

	report.Healthy = !m.IsDegraded()
	return report
}

// percentile computes the p-th percentile using the nearest-rank method.
func percentile(samples []time.Duration, p float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rank := int(float64(len(sorted)) * p / 100)
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
