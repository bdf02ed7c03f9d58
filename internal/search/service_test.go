package search

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/medicsearch/medic-search/internal/bus"
	"github.com/medicsearch/medic-search/internal/domain"
	"github.com/medicsearch/medic-search/internal/embedding"
	"github.com/medicsearch/medic-search/internal/latency"
	"github.com/medicsearch/medic-search/internal/pkg/logger"
	"github.com/medicsearch/medic-search/internal/resultcache"
	"github.com/medicsearch/medic-search/internal/vectorstore"

	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
)

// fakeProvider returns a fixed vector and counts calls.
type fakeProvider struct {
	calls   int64
	failErr error
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.failErr != nil {
		return nil, p.failErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// fakeStore serves canned chunks and counts calls.
type fakeStore struct {
	calls   int64
	chunks  []domain.CandidateChunk
	failErr error
}

func (s *fakeStore) Retrieve(ctx context.Context, req vectorstore.RetrieveRequest) ([]domain.CandidateChunk, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.failErr != nil {
		return nil, s.failErr
	}

	out := make([]domain.CandidateChunk, 0, len(s.chunks))
	for _, ch := range s.chunks {
		if req.ProtocolID != "" && ch.ProtocolNumber == req.ProtocolID {
			exact := ch
			exact.ExactMatch = true
			out = append([]domain.CandidateChunk{exact}, out...)
			continue
		}
		if ch.RawScore >= req.Threshold {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (s *fakeStore) HealthCheck(ctx context.Context) error { return s.failErr }
func (s *fakeStore) Close() error                          { return nil }

func newTestService(provider *fakeProvider, store *fakeStore) *Service {
	log := logger.New("error", "text")
	resolver := embedding.NewResolver(provider, embedding.NewCache(100, time.Hour), time.Second, log)
	return NewService(DefaultConfig(), resolver, store, resultcache.NewMemoryCache(),
		latency.NewMonitor(100, 800*time.Millisecond), nil, bus.NewMemoryBus(), log)
}

func dosingChunks() []domain.CandidateChunk {
	return []domain.CandidateChunk{
		{ID: "c1", Title: "Anaphylaxis - Adult", Section: "dosing", RawScore: 0.90, ProtocolNumber: "301"},
		{ID: "c2", Title: "Anaphylaxis - Pediatric", Section: "dosing", RawScore: 0.85, ProtocolNumber: "302"},
		{ID: "c3", Title: "Allergic Reaction", Section: "indications", RawScore: 0.74, ProtocolNumber: "303"},
		{ID: "c4", Title: "Chest Pain", Section: "assessment", RawScore: 0.40, ProtocolNumber: "502"},
	}
}

func TestSearchDosingQuery(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)

	resp, err := svc.Search(context.Background(), Request{Query: "epi dose anaphylaxis", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if resp.Intent != domain.IntentMedicationDosing {
		t.Fatalf("intent = %q, want medication_dosing", resp.Intent)
	}
	if resp.NormalizedText != "epinephrine dose anaphylaxis" {
		t.Fatalf("normalized = %q", resp.NormalizedText)
	}
	if len(resp.Chunks) == 0 {
		t.Fatal("expected non-empty result")
	}
	if resp.Degraded {
		t.Fatal("healthy pipeline should not flag degraded")
	}
	// Medication-tier threshold holds for every returned chunk.
	for _, ch := range resp.Chunks {
		if ch.AdjustedScore < resp.Threshold {
			t.Fatalf("chunk %q adjusted score %v below threshold %v", ch.ID, ch.AdjustedScore, resp.Threshold)
		}
	}
	if resp.ModelTier != domain.TierAccuracy {
		t.Fatalf("model tier = %q, want accuracy for dosing", resp.ModelTier)
	}
}

func TestSearchSecondCallFromCache(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)
	ctx := context.Background()

	first, err := svc.Search(ctx, Request{Query: "epi dose anaphylaxis"})
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if first.FromCache {
		t.Fatal("first call must not be served from cache")
	}

	second, err := svc.Search(ctx, Request{Query: "epi dose anaphylaxis"})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second call should be served from cache")
	}
	if !reflect.DeepEqual(first.Chunks, second.Chunks) {
		t.Fatal("cached chunks differ from original")
	}
	if got := atomic.LoadInt64(&store.calls); got != 1 {
		t.Fatalf("store called %d times, want 1", got)
	}
}

func TestSearchProtocolIdentifierFirst(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)

	resp, err := svc.Search(context.Background(), Request{Query: "502"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Chunks) == 0 {
		t.Fatal("expected results")
	}
	if resp.Chunks[0].ProtocolNumber != "502" {
		t.Fatalf("first chunk protocol = %q, want 502 despite raw score 0.40", resp.Chunks[0].ProtocolNumber)
	}
	if !resp.Chunks[0].ExactMatch {
		t.Fatal("first chunk should be the exact identifier hit")
	}
}

func TestSearchEmbeddingFailure(t *testing.T) {
	provider := &fakeProvider{failErr: errors.New("connection refused")}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)

	_, err := svc.Search(context.Background(), Request{Query: "cardiac arrest"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsEmbeddingUnavailable(err) {
		t.Fatalf("error = %v, want EMBEDDING_UNAVAILABLE", err)
	}
	if got := atomic.LoadInt64(&store.calls); got != 0 {
		t.Fatalf("store must not be called after embedding failure, got %d calls", got)
	}
}

func TestSearchWhitespaceQuery(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)

	_, err := svc.Search(context.Background(), Request{Query: "   \t  "})
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsInvalidQuery(err) {
		t.Fatalf("error = %v, want INVALID_QUERY", err)
	}
	if atomic.LoadInt64(&provider.calls) != 0 || atomic.LoadInt64(&store.calls) != 0 {
		t.Fatal("validation failure must happen before any I/O")
	}
}

func TestSearchRetrievalFailure(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{failErr: apperrors.RetrievalUnavailableError(errors.New("unreachable"))}
	svc := newTestService(provider, store)

	_, err := svc.Search(context.Background(), Request{Query: "stroke assessment"})
	if !apperrors.IsRetrievalUnavailable(err) {
		t.Fatalf("error = %v, want RETRIEVAL_UNAVAILABLE", err)
	}
}

func TestSearchQueryTooLong(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{}
	svc := newTestService(provider, store)

	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}

	_, err := svc.Search(context.Background(), Request{Query: string(long)})
	if !apperrors.IsInvalidQuery(err) {
		t.Fatalf("error = %v, want INVALID_QUERY", err)
	}
}

func TestSearchNegativeLimit(t *testing.T) {
	svc := newTestService(&fakeProvider{}, &fakeStore{})
	_, err := svc.Search(context.Background(), Request{Query: "seizure", Limit: -1})
	if !apperrors.IsInvalidQuery(err) {
		t.Fatalf("error = %v, want INVALID_QUERY", err)
	}
}

func TestSearchLimitCapsResults(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)

	resp, err := svc.Search(context.Background(), Request{Query: "epi dose anaphylaxis", Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Chunks) > 2 {
		t.Fatalf("returned %d chunks, want at most 2", len(resp.Chunks))
	}
	if resp.TotalFound < len(resp.Chunks) {
		t.Fatalf("total found %d less than returned %d", resp.TotalFound, len(resp.Chunks))
	}
}

// The cache key ignores the limit, so a hit can hold more chunks than the
// current request asked for. The size bound must still hold.
func TestSearchCachedResultRespectsLimit(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)
	ctx := context.Background()

	first, err := svc.Search(ctx, Request{Query: "epi dose anaphylaxis", Limit: 10})
	if err != nil {
		t.Fatalf("first Search: %v", err)
	}
	if len(first.Chunks) < 2 {
		t.Fatalf("need at least 2 cached chunks, got %d", len(first.Chunks))
	}

	second, err := svc.Search(ctx, Request{Query: "epi dose anaphylaxis", Limit: 1})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second call should be served from cache")
	}
	if len(second.Chunks) != 1 {
		t.Fatalf("limit 1 returned %d chunks", len(second.Chunks))
	}
	if second.Chunks[0].ID != first.Chunks[0].ID {
		t.Fatalf("truncation must keep the best chunk, got %q", second.Chunks[0].ID)
	}

	// The stored entry is untouched; a wider limit sees the full set again.
	third, err := svc.Search(ctx, Request{Query: "epi dose anaphylaxis", Limit: 10})
	if err != nil {
		t.Fatalf("third Search: %v", err)
	}
	if !reflect.DeepEqual(third.Chunks, first.Chunks) {
		t.Fatal("cached entry should be unchanged by a narrower read")
	}
}

func TestSearchDistinctFiltersDistinctCache(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}
	svc := newTestService(provider, store)
	ctx := context.Background()

	if _, err := svc.Search(ctx, Request{Query: "epi dose anaphylaxis"}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	resp, err := svc.Search(ctx, Request{
		Query:   "epi dose anaphylaxis",
		Filters: domain.Filters{JurisdictionID: "king-county"},
	})
	if err != nil {
		t.Fatalf("filtered Search: %v", err)
	}
	if resp.FromCache {
		t.Fatal("different filters must not share a cache entry")
	}
	if got := atomic.LoadInt64(&store.calls); got != 2 {
		t.Fatalf("store called %d times, want 2", got)
	}
}

func TestSearchDegradedMode(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}

	log := logger.New("error", "text")
	resolver := embedding.NewResolver(provider, embedding.NewCache(100, time.Hour), time.Second, log)
	monitor := latency.NewMonitor(10, 800*time.Millisecond)
	svc := NewService(DefaultConfig(), resolver, store, resultcache.NewMemoryCache(), monitor, nil, nil, log)

	// Push the total-latency window over budget.
	for i := 0; i < 10; i++ {
		monitor.Record(latency.StageTotal, 2*time.Second)
	}

	resp, err := svc.Search(context.Background(), Request{Query: "epi dose anaphylaxis"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !resp.Degraded {
		t.Fatal("over-budget pipeline should flag degraded results")
	}
	if resp.Threshold >= 0.72 {
		t.Fatalf("degraded threshold %v should be below the normal dosing tier", resp.Threshold)
	}
}

// Failed calls must still feed the total-latency window: a burst of slow
// upstream timeouts is exactly the condition degraded mode watches for.
func TestSearchFailuresFeedLatencyWindow(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{failErr: apperrors.RetrievalUnavailableError(errors.New("qdrant down"))}

	log := logger.New("error", "text")
	resolver := embedding.NewResolver(provider, embedding.NewCache(100, time.Hour), time.Second, log)
	monitor := latency.NewMonitor(10, 800*time.Millisecond)
	svc := NewService(DefaultConfig(), resolver, store, resultcache.NewMemoryCache(), monitor, nil, nil, log)

	if _, err := svc.Search(context.Background(), Request{Query: "stroke assessment"}); err == nil {
		t.Fatal("expected retrieval failure")
	}

	report := monitor.Report()
	if got := report.Stages[latency.StageTotal].Count; got != 1 {
		t.Fatalf("total-stage samples = %d, want 1 after a failed call", got)
	}

	failing := &fakeProvider{failErr: errors.New("provider down")}
	resolver = embedding.NewResolver(failing, embedding.NewCache(100, time.Hour), time.Second, log)
	svc = NewService(DefaultConfig(), resolver, store, resultcache.NewMemoryCache(), monitor, nil, nil, log)

	if _, err := svc.Search(context.Background(), Request{Query: "stroke assessment"}); err == nil {
		t.Fatal("expected embedding failure")
	}
	if got := monitor.Report().Stages[latency.StageTotal].Count; got != 2 {
		t.Fatalf("total-stage samples = %d, want 2 after both failure kinds", got)
	}
}

func TestSearchPublishesAnalytics(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: dosingChunks()}

	log := logger.New("error", "text")
	resolver := embedding.NewResolver(provider, embedding.NewCache(100, time.Hour), time.Second, log)
	memBus := bus.NewMemoryBus()
	svc := NewService(DefaultConfig(), resolver, store, resultcache.NewMemoryCache(),
		latency.NewMonitor(100, 800*time.Millisecond), nil, memBus, log)

	if _, err := svc.Search(context.Background(), Request{Query: "epi dose anaphylaxis"}); err != nil {
		t.Fatalf("Search: %v", err)
	}

	// The publish is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(memBus.Events(bus.TopicSearchCompleted)) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no analytics event published")
}

func TestSearchRouterTiers(t *testing.T) {
	provider := &fakeProvider{}
	store := &fakeStore{chunks: []domain.CandidateChunk{
		{ID: "g1", Title: "General Guidelines", RawScore: 0.60},
	}}
	svc := newTestService(provider, store)
	ctx := context.Background()

	free, err := svc.Search(ctx, Request{Query: "scene safety overview", CallerTier: domain.CallerFree})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if free.ModelTier != domain.TierFast {
		t.Fatalf("free general tier = %q, want fast", free.ModelTier)
	}

	paid, err := svc.Search(ctx, Request{Query: "scene safety overview", CallerTier: domain.CallerPaid})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if paid.ModelTier != domain.TierBalanced {
		t.Fatalf("paid general tier = %q, want balanced", paid.ModelTier)
	}
	// Cache hit on the second call must still recompute the tier.
	if !paid.FromCache {
		t.Fatal("identical query should hit the result cache")
	}
}
