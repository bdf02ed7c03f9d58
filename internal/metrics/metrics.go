package metrics

import (
	"runtime"
	"time"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Search pipeline metrics
	SearchRequests      *Counter
	SearchLatency       *Histogram
	SearchResults       *Histogram
	SearchErrors        *CounterVec   // labels: error_type
	SearchStageDuration *HistogramVec // labels: stage
	DegradedResults     *Counter
	ResultCacheServed   *Counter

	// Embedding metrics
	EmbedRequests *Counter
	EmbedLatency  *Histogram

	// Cache metrics
	CacheHits   *CounterVec // labels: type (embed, result)
	CacheMisses *CounterVec // labels: type (embed, result)
	CacheSize   *GaugeVec   // labels: type (embed, result)

	// Bus metrics
	BusEventsPublished *CounterVec // labels: topic
	BusErrors          *CounterVec // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes

	startTime time.Time
}

// New creates a metrics instance with all instruments initialized.
func New() *Metrics {
	m := &Metrics{
		SearchRequests: NewCounter(
			"medic_search_requests_total",
			"Total number of search requests",
			nil,
		),
		SearchLatency: NewHistogram(
			"medic_search_latency_ms",
			"Search request latency in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 800, 1000, 2500},
		),
		SearchResults: NewHistogram(
			"medic_search_results",
			"Number of results per search",
			[]float64{1, 3, 5, 8, 10, 20, 50},
		),
		SearchErrors: NewCounterVec(
			"medic_search_errors_total",
			"Total number of search errors",
			[]string{"error_type"},
		),
		SearchStageDuration: NewHistogramVec(
			"medic_search_stage_duration_ms",
			"Search stage duration in milliseconds",
			[]string{"stage"},
			[]float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		),
		DegradedResults: NewCounter(
			"medic_degraded_results_total",
			"Total number of results served under degraded thresholds",
			nil,
		),
		ResultCacheServed: NewCounter(
			"medic_result_cache_served_total",
			"Total number of searches answered from the result cache",
			nil,
		),

		EmbedRequests: NewCounter(
			"medic_embed_requests_total",
			"Total number of embedding resolutions",
			nil,
		),
		EmbedLatency: NewHistogram(
			"medic_embed_latency_ms",
			"Embedding call latency in milliseconds",
			[]float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		),

		CacheHits: NewCounterVec(
			"medic_cache_hits_total",
			"Total number of cache hits",
			[]string{"type"},
		),
		CacheMisses: NewCounterVec(
			"medic_cache_misses_total",
			"Total number of cache misses",
			[]string{"type"},
		),
		CacheSize: NewGaugeVec(
			"medic_cache_size",
			"Current cache entry count",
			[]string{"type"},
		),

		BusEventsPublished: NewCounterVec(
			"medic_bus_events_published_total",
			"Total number of events published to the bus",
			[]string{"topic"},
		),
		BusErrors: NewCounterVec(
			"medic_bus_errors_total",
			"Total number of event bus errors",
			[]string{"topic"},
		),

		HTTPRequests: NewCounterVec(
			"medic_http_requests_total",
			"Total number of HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"medic_http_request_duration_seconds",
			"HTTP request duration in seconds",
			[]string{"method", "path"},
			[]float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		),
		HTTPRequestsInFlight: NewGauge(
			"medic_http_requests_in_flight",
			"Number of HTTP requests currently being processed",
			nil,
		),

		GoroutineCount: NewGauge(
			"medic_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"medic_memory_bytes",
			"Memory usage in bytes",
			nil,
		),

		startTime: time.Now(),
	}

	return m
}

// StartSystemCollector begins periodic collection of runtime metrics. It
// returns a stop function.
func (m *Metrics) StartSystemCollector() func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
				var memStats runtime.MemStats
				runtime.ReadMemStats(&memStats)
				m.MemoryUsage.Set(float64(memStats.Alloc))
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// RecordSearch records the outcome of one search request.
func (m *Metrics) RecordSearch(latencyMs int64, resultCount int, degraded, fromCache bool, err error) {
	m.SearchRequests.Inc()
	m.SearchLatency.Observe(float64(latencyMs))
	m.SearchResults.Observe(float64(resultCount))

	if degraded {
		m.DegradedResults.Inc()
	}
	if fromCache {
		m.ResultCacheServed.Inc()
	}
	if err != nil {
		m.SearchErrors.WithLabels(errorType(err)).Inc()
	}
}

// RecordSearchStage records the duration of a pipeline stage.
// stage should be one of: "embedding", "retrieval", "reranking".
func (m *Metrics) RecordSearchStage(stage string, latencyMs int64) {
	m.SearchStageDuration.WithLabels(stage).Observe(float64(latencyMs))
}

// RecordEmbed records one embedding provider call.
func (m *Metrics) RecordEmbed(latencyMs int64) {
	m.EmbedRequests.Inc()
	m.EmbedLatency.Observe(float64(latencyMs))
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabels(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabels(cacheType).Inc()
}

// UpdateCacheSize updates the cache size gauge.
func (m *Metrics) UpdateCacheSize(cacheType string, size int) {
	m.CacheSize.WithLabels(cacheType).Set(float64(size))
}

// RecordBusPublish records an event bus publish attempt.
func (m *Metrics) RecordBusPublish(topic string, err error) {
	m.BusEventsPublished.WithLabels(topic).Inc()
	if err != nil {
		m.BusErrors.WithLabels(topic).Inc()
	}
}

// RecordHTTP records HTTP request metrics. Called by the HTTP middleware.
func (m *Metrics) RecordHTTP(method, path string, status int, durationSeconds float64) {
	m.HTTPRequests.WithLabels(method, path, statusCode(status)).Inc()
	m.HTTPDuration.WithLabels(method, path).Observe(durationSeconds)
}

// errorType maps an error to a low-cardinality label value.
func errorType(err error) string {
	if err == nil {
		return "none"
	}
	type coder interface{ HTTPStatus() int }
	if c, ok := err.(coder); ok {
		switch c.HTTPStatus() {
		case 400:
			return "invalid_input"
		case 502, 504:
			return "upstream"
		case 429:
			return "rate_limited"
		}
	}
	return "internal"
}

func statusCode(status int) string {
	switch {
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
