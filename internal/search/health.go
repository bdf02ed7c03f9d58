package search

import (
	"context"
	"sync"
	"time"
)

// Prober is a collaborator that can report its own reachability.
type Prober interface {
	HealthCheck(ctx context.Context) error
}

// DegradedReader reports whether the pipeline is over its latency budget.
type DegradedReader interface {
	IsDegraded() bool
}

// HealthChecker probes the pipeline's upstream dependencies.
type HealthChecker struct {
	store     Prober
	embedding Prober
	degraded  DegradedReader
	timeout   time.Duration
}

// NewHealthChecker creates a health checker over the vector store and the
// embedding provider. Either prober may be nil.
func NewHealthChecker(store, embedding Prober, degraded DegradedReader) *HealthChecker {
	return &HealthChecker{
		store:     store,
		embedding: embedding,
		degraded:  degraded,
		timeout:   3 * time.Second,
	}
}

// ComponentHealth is the probe result for one dependency.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Health is the overall health report.
type Health struct {
	Status     string                     `json:"status"`
	Degraded   bool                       `json:"degraded"`
	Components map[string]ComponentHealth `json:"components"`
}

// Check probes all dependencies concurrently and aggregates the result.
// Status is "ok" when every dependency answers, "degraded" when the latency
// monitor is over budget, and "unhealthy" when a dependency is unreachable.
func (h *HealthChecker) Check(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	components := map[string]Prober{
		"vector_store": h.store,
		"embedding":    h.embedding,
	}

	var mu sync.Mutex
	results := make(map[string]ComponentHealth, len(components))

	var wg sync.WaitGroup
	for name, prober := range components {
		if prober == nil {
			continue
		}
		wg.Add(1)
		go func(name string, p Prober) {
			defer wg.Done()
			ch := ComponentHealth{Healthy: true}
			if err := p.HealthCheck(ctx); err != nil {
				ch = ComponentHealth{Healthy: false, Error: err.Error()}
			}
			mu.Lock()
			results[name] = ch
			mu.Unlock()
		}(name, prober)
	}
	wg.Wait()

	health := Health{
		Status:     "ok",
		Components: results,
	}

	for _, ch := range results {
		if !ch.Healthy {
			health.Status = "unhealthy"
		}
	}

	if h.degraded != nil && h.degraded.IsDegraded() {
		health.Degraded = true
		if health.Status == "ok" {
			health.Status = "degraded"
		}
	}

	return health
}
