package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
	"github.com/medicsearch/medic-search/internal/pkg/logger"
)

// countingProvider records how many Embed calls were made.
type countingProvider struct {
	calls   int64
	delay   time.Duration
	failErr error
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.failErr != nil {
		return nil, p.failErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func newTestResolver(p Provider) *Resolver {
	return NewResolver(p, NewCache(100, time.Hour), time.Second, logger.Default())
}

func TestResolveCachesVector(t *testing.T) {
	p := &countingProvider{}
	r := newTestResolver(p)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "epinephrine dose anaphylaxis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := r.Resolve(ctx, "epinephrine dose anaphylaxis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt64(&p.calls); got != 1 {
		t.Errorf("expected exactly 1 provider call, got %d", got)
	}

	if len(first) != len(second) {
		t.Fatalf("vector lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("vector mismatch at %d: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestResolveCoalescesConcurrentCalls(t *testing.T) {
	p := &countingProvider{delay: 50 * time.Millisecond}
	r := newTestResolver(p)
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Resolve(ctx, "same query text")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	if got := atomic.LoadInt64(&p.calls); got != 1 {
		t.Errorf("expected 1 coalesced provider call, got %d", got)
	}
}

// gatedProvider blocks in Embed until released, then fails if its context
// was cancelled while it waited.
type gatedProvider struct {
	started chan struct{}
	release chan struct{}
}

func (p *gatedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	close(p.started)
	<-p.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float32{0.5}, nil
}

// The in-flight provider call must outlive any single requester: a caller
// disconnecting mid-flight must not fail the coalesced result.
func TestResolveSurvivesRequesterCancellation(t *testing.T) {
	p := &gatedProvider{started: make(chan struct{}), release: make(chan struct{})}
	r := newTestResolver(p)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		vec []float32
		err error
	}
	done := make(chan result, 1)
	go func() {
		vec, err := r.Resolve(ctx, "epinephrine dose anaphylaxis")
		done <- result{vec, err}
	}()

	<-p.started
	cancel()
	close(p.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("Resolve failed after requester cancellation: %v", res.err)
	}
	if len(res.vec) == 0 {
		t.Fatal("expected a vector")
	}
}

func TestResolveProviderFailure(t *testing.T) {
	p := &countingProvider{failErr: errors.New("connection refused")}
	r := newTestResolver(p)

	_, err := r.Resolve(context.Background(), "any query")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsEmbeddingUnavailable(err) {
		t.Errorf("expected EMBEDDING_UNAVAILABLE, got %v", err)
	}
}

func TestResolveDistinctTextsDistinctCalls(t *testing.T) {
	p := &countingProvider{}
	r := newTestResolver(p)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "first query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := r.Resolve(ctx, "second query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := atomic.LoadInt64(&p.calls); got != 2 {
		t.Errorf("expected 2 provider calls, got %d", got)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(10, time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Set("k", []float32{1, 2})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL expiry")
	}
	if c.Size() != 0 {
		t.Errorf("expired entry should be evicted, size=%d", c.Size())
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(2, time.Hour)

	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Set("c", []float32{3})

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should be present")
	}
	if c.Size() != 2 {
		t.Errorf("size should be capped at 2, got %d", c.Size())
	}
}

func TestCacheReturnsCopy(t *testing.T) {
	c := NewCache(10, time.Hour)
	c.Set("k", []float32{1, 2, 3})

	vec, _ := c.Get("k")
	vec[0] = 99

	again, _ := c.Get("k")
	if again[0] != 1 {
		t.Error("cache entry was mutated through returned slice")
	}
}
