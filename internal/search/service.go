// Package search orchestrates the protocol retrieval pipeline: query
// normalization, threshold selection, embedding resolution, vector
// retrieval, re-ranking, and result caching.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medicsearch/medic-search/internal/bus"
	"github.com/medicsearch/medic-search/internal/domain"
	"github.com/medicsearch/medic-search/internal/embedding"
	"github.com/medicsearch/medic-search/internal/latency"
	"github.com/medicsearch/medic-search/internal/metrics"
	"github.com/medicsearch/medic-search/internal/normalize"
	"github.com/medicsearch/medic-search/internal/pkg/hash"
	"github.com/medicsearch/medic-search/internal/pkg/logger"
	"github.com/medicsearch/medic-search/internal/rerank"
	"github.com/medicsearch/medic-search/internal/resultcache"
	"github.com/medicsearch/medic-search/internal/router"
	"github.com/medicsearch/medic-search/internal/threshold"
	"github.com/medicsearch/medic-search/internal/vectorstore"

	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
)

// Request is a search request after HTTP decoding.
type Request struct {
	// Query is the raw query text.
	Query string

	// Limit caps the number of returned chunks. Zero means the default.
	Limit int

	// Filters scope retrieval to a jurisdiction and/or source state.
	Filters domain.Filters

	// CallerTier is the caller's entitlement tier.
	CallerTier domain.CallerTier
}

// Response is the search result plus per-request routing advice. The model
// tier is recomputed on every request, cache hits included, because it
// depends on the caller's entitlement.
type Response struct {
	domain.RankedResult

	// ModelTier is the recommended generative tier for answer synthesis.
	ModelTier domain.ModelTier `json:"model_tier"`
}

// Config holds search pipeline settings.
type Config struct {
	DefaultLimit int
	MaxLimit     int
	MaxQueryLen  int
	ResultTTL    time.Duration
	DegradedTTL  time.Duration
}

// DefaultConfig returns sensible pipeline defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 10,
		MaxLimit:     50,
		MaxQueryLen:  500,
		ResultTTL:    5 * time.Minute,
		DegradedTTL:  75 * time.Second,
	}
}

// Service runs the retrieval pipeline.
type Service struct {
	cfg      Config
	resolver *embedding.Resolver
	store    vectorstore.Store
	cache    resultcache.Cache
	monitor  *latency.Monitor
	metrics  *metrics.Metrics
	bus      bus.Bus
	log      *logger.Logger
}

// NewService creates the pipeline service. The metrics and bus collaborators
// may be nil; the monitor may be nil, which disables degraded mode.
func NewService(cfg Config, resolver *embedding.Resolver, store vectorstore.Store, cache resultcache.Cache, monitor *latency.Monitor, m *metrics.Metrics, b bus.Bus, log *logger.Logger) *Service {
	if cfg.DefaultLimit == 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		cfg:      cfg,
		resolver: resolver,
		store:    store,
		cache:    cache,
		monitor:  monitor,
		metrics:  m,
		bus:      b,
		log:      log.WithComponent("search"),
	}
}

// Search runs the full pipeline for one query.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	limit, err := s.validate(&req)
	if err != nil {
		s.recordOutcome(0, 0, false, false, err)
		return nil, err
	}

	nq := normalize.Normalize(req.Query)
	tier := router.SelectTier(nq, req.CallerTier)

	// Result cache probe. Served results keep their original Degraded flag
	// so callers always see how the result was computed. The cache key
	// ignores the limit, so a hit may hold more chunks than this request
	// asked for; the copy-on-read backends make truncation safe.
	key := hash.ResultKey(nq.NormalizedText, req.Filters.Canonical())
	if cached := s.probeCache(ctx, key); cached != nil {
		cached.FromCache = true
		if len(cached.Chunks) > limit {
			cached.Chunks = cached.Chunks[:limit]
		}
		s.recordOutcome(time.Since(start).Milliseconds(), len(cached.Chunks), cached.Degraded, true, nil)
		s.publishCompleted(nq, cached, tier)
		return &Response{RankedResult: *cached, ModelTier: tier}, nil
	}

	var health threshold.HealthReader
	if s.monitor != nil {
		health = s.monitor
	}
	sel := threshold.Select(nq, health)

	embedStart := time.Now()
	vector, err := s.resolver.Resolve(ctx, nq.NormalizedText)
	embedElapsed := time.Since(embedStart)
	s.recordStage(latency.StageEmbedding, embedElapsed)
	if s.metrics != nil {
		s.metrics.RecordEmbed(embedElapsed.Milliseconds())
	}
	if err != nil {
		elapsed := time.Since(start)
		s.recordStage(latency.StageTotal, elapsed)
		s.recordOutcome(elapsed.Milliseconds(), 0, sel.Degraded, false, err)
		return nil, err
	}

	retrieveStart := time.Now()
	candidates, err := s.store.Retrieve(ctx, vectorstore.RetrieveRequest{
		Vector:      vector,
		Threshold:   sel.Threshold,
		TargetCount: sel.TargetCount,
		Filters:     req.Filters,
		ProtocolID:  nq.ProtocolID,
	})
	s.recordStage(latency.StageRetrieval, time.Since(retrieveStart))
	if err != nil {
		elapsed := time.Since(start)
		s.recordStage(latency.StageTotal, elapsed)
		s.recordOutcome(elapsed.Milliseconds(), 0, sel.Degraded, false, err)
		return nil, err
	}

	target := sel.TargetCount
	if limit < target {
		target = limit
	}

	rerankStart := time.Now()
	chunks := rerank.Rerank(candidates, nq, target)
	s.recordStage(latency.StageReranking, time.Since(rerankStart))

	elapsed := time.Since(start)
	result := &domain.RankedResult{
		Chunks:         chunks,
		TotalFound:     len(candidates),
		NormalizedText: nq.NormalizedText,
		Intent:         nq.Intent,
		LatencyMs:      elapsed.Milliseconds(),
		Degraded:       sel.Degraded,
		Threshold:      sel.Threshold,
		CreatedAt:      time.Now(),
	}

	s.fillCache(ctx, key, result)
	s.recordStage(latency.StageTotal, elapsed)
	s.recordOutcome(result.LatencyMs, len(chunks), sel.Degraded, false, nil)
	s.publishCompleted(nq, result, tier)

	return &Response{RankedResult: *result, ModelTier: tier}, nil
}

// validate checks the request and returns the effective limit. Validation
// failures are reported before any I/O happens.
func (s *Service) validate(req *Request) (int, error) {
	if strings.TrimSpace(req.Query) == "" {
		return 0, apperrors.InvalidQueryError("query must not be empty")
	}
	if len(req.Query) > s.cfg.MaxQueryLen {
		return 0, apperrors.InvalidQueryError(
			fmt.Sprintf("query exceeds maximum length of %d characters", s.cfg.MaxQueryLen))
	}

	limit := req.Limit
	switch {
	case limit < 0:
		return 0, apperrors.InvalidQueryError("limit must not be negative")
	case limit == 0:
		limit = s.cfg.DefaultLimit
	case limit > s.cfg.MaxLimit:
		limit = s.cfg.MaxLimit
	}
	return limit, nil
}

// probeCache looks up a cached result. Cache failures degrade to a miss.
func (s *Service) probeCache(ctx context.Context, key string) *domain.RankedResult {
	if s.cache == nil {
		return nil
	}

	cached, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("result cache read failed", "error", err)
		return nil
	}

	if s.metrics != nil {
		if found {
			s.metrics.RecordCacheHit("result")
		} else {
			s.metrics.RecordCacheMiss("result")
		}
	}
	if !found {
		return nil
	}
	return cached
}

// fillCache stores a computed result. Degraded results get the shorter TTL
// so a recovered pipeline replaces them quickly.
func (s *Service) fillCache(ctx context.Context, key string, result *domain.RankedResult) {
	if s.cache == nil {
		return
	}

	ttl := s.cfg.ResultTTL
	if result.Degraded {
		ttl = s.cfg.DegradedTTL
	}

	if err := s.cache.Put(ctx, key, result, ttl); err != nil {
		s.log.Warn("result cache write failed", "error", err)
	}
}

func (s *Service) recordStage(stage latency.Stage, d time.Duration) {
	if s.monitor != nil {
		s.monitor.Record(stage, d)
	}
	if s.metrics != nil && stage != latency.StageTotal {
		s.metrics.RecordSearchStage(string(stage), d.Milliseconds())
	}
}

func (s *Service) recordOutcome(latencyMs int64, resultCount int, degraded, fromCache bool, err error) {
	if s.metrics != nil {
		s.metrics.RecordSearch(latencyMs, resultCount, degraded, fromCache, err)
	}
}

// publishCompleted emits an analytics event. Publish failures are logged,
// never surfaced to the caller.
func (s *Service) publishCompleted(nq domain.NormalizedQuery, result *domain.RankedResult, tier domain.ModelTier) {
	if s.bus == nil {
		return
	}

	event := bus.NewEvent(bus.TopicSearchCompleted, map[string]any{
		"intent":      string(nq.Intent),
		"is_complex":  nq.IsComplex,
		"protocol_id": nq.ProtocolID,
		"results":     len(result.Chunks),
		"latency_ms":  result.LatencyMs,
		"degraded":    result.Degraded,
		"from_cache":  result.FromCache,
		"model_tier":  string(tier),
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := s.bus.Publish(ctx, bus.TopicSearchCompleted, event)
		if s.metrics != nil {
			s.metrics.RecordBusPublish(bus.TopicSearchCompleted, err)
		}
		if err != nil {
			s.log.Warn("analytics publish failed", "error", err)
		}
	}()
}
