// Package server provides the HTTP server that wires the retrieval pipeline
// together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/medicsearch/medic-search/internal/bus"
	"github.com/medicsearch/medic-search/internal/config"
	"github.com/medicsearch/medic-search/internal/embedding"
	"github.com/medicsearch/medic-search/internal/latency"
	"github.com/medicsearch/medic-search/internal/metrics"
	"github.com/medicsearch/medic-search/internal/pkg/logger"
	"github.com/medicsearch/medic-search/internal/pkg/middleware"
	"github.com/medicsearch/medic-search/internal/resultcache"
	"github.com/medicsearch/medic-search/internal/search"
	"github.com/medicsearch/medic-search/internal/vectorstore"
)

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg     *config.Config
	version string
	log     *logger.Logger

	httpServer *http.Server

	// Services
	store    vectorstore.Store
	provider *embedding.OpenAIProvider
	resolver *embedding.Resolver
	cache    resultcache.Cache
	monitor  *latency.Monitor
	metrics  *metrics.Metrics
	bus      bus.Bus
	search   *search.Service

	handler     *search.Handler
	stopMetrics func()

	mu      sync.RWMutex
	started bool
}

// New creates a server with all dependencies wired.
func New(cfg *config.Config, version string, log *logger.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		version: version,
		log:     log.WithComponent("server"),
	}

	// Vector store
	host, port, err := vectorstore.ParseHostPort(cfg.Qdrant.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}
	storeCfg := vectorstore.DefaultClientConfig()
	storeCfg.Host = host
	storeCfg.Port = port
	storeCfg.APIKey = cfg.Qdrant.APIKey
	storeCfg.Collection = cfg.Qdrant.Collection
	storeCfg.Timeout = cfg.QdrantTimeout()

	store, err := vectorstore.NewClient(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("creating vector store client: %w", err)
	}
	s.store = store

	// Metrics
	s.metrics = metrics.New()
	s.stopMetrics = s.metrics.StartSystemCollector()

	// Embedding resolver with vector cache
	s.provider = embedding.NewOpenAIProvider(cfg.Embedding, log)
	vectorCache := embedding.NewCache(cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTL)*time.Second)
	vectorCache.SetMetrics(s.metrics)
	s.resolver = embedding.NewResolver(s.provider, vectorCache, cfg.EmbeddingTimeout(), log)

	// Result cache
	s.cache, err = resultcache.New(cfg.ResultCache)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}

	// Latency monitor
	s.monitor = latency.NewMonitor(cfg.Latency.WindowSize, time.Duration(cfg.Latency.BudgetMs)*time.Millisecond)

	// Event bus
	s.bus, err = bus.New(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	// Search pipeline
	searchCfg := search.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		MaxQueryLen:  cfg.Search.MaxQueryLen,
		ResultTTL:    time.Duration(cfg.ResultCache.TTL) * time.Second,
		DegradedTTL:  time.Duration(cfg.ResultCache.DegradedTTL) * time.Second,
	}
	s.search = search.NewService(searchCfg, s.resolver, s.store, s.cache, s.monitor, s.metrics, s.bus, log)

	healthChecker := search.NewHealthChecker(s.store, s.provider, s.monitor)
	s.handler = search.NewHandler(s.search, healthChecker, s.monitor, version)

	return s, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.log.Info("starting HTTP server", "addr", s.cfg.Address(), "version", s.version)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the server and closes all services.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
	}

	if s.stopMetrics != nil {
		s.stopMetrics()
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}

	s.started = false
	s.log.Info("server stopped")

	return nil
}

// routes configures the HTTP routes and middleware chain.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	s.handler.RegisterRoutes(mux)

	if s.cfg.Observability.MetricsEnabled {
		mux.Handle("GET "+s.cfg.Observability.MetricsPath, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = middleware.APIKeyAuth(s.cfg.Security.APIKey)(handler)

	if s.cfg.Security.RateLimit > 0 {
		rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.cfg.Security.RateLimit),
			Burst:             s.cfg.Security.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		handler = rl.Middleware(handler)
	}

	handler = middleware.Metrics(s.metrics)(handler)
	handler = s.logRequests(handler)

	return handler
}

// logRequests wraps a handler with debug request logging.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
