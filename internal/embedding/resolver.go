// Package embedding resolves query text into embedding vectors, caching
// results and coalescing concurrent identical requests into one provider
// call.
package embedding

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
	"github.com/medicsearch/medic-search/internal/pkg/hash"
	"github.com/medicsearch/medic-search/internal/pkg/logger"
)

// Resolver obtains a vector for normalized query text. Cache hits cost no
// network call; concurrent misses for the same text share one in-flight
// provider request.
type Resolver struct {
	provider Provider
	cache    *Cache
	group    singleflight.Group
	timeout  time.Duration
	log      *logger.Logger
}

// NewResolver creates a resolver around a provider and a bounded cache.
func NewResolver(provider Provider, cache *Cache, timeout time.Duration, log *logger.Logger) *Resolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
		log:      log,
	}
}

// Resolve returns the embedding vector for normalizedText. On provider
// error or timeout the call fails with EMBEDDING_UNAVAILABLE; no stale or
// empty vector is ever substituted.
func (r *Resolver) Resolve(ctx context.Context, normalizedText string) ([]float32, error) {
	key := hash.VectorKey(normalizedText)

	if vec, ok := r.cache.Get(key); ok {
		return vec, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, apperrors.EmbeddingUnavailableError(err)
	}

	// singleflight keyed on the cache key: N concurrent misses for the
	// same text produce exactly one provider call. The in-flight call gets
	// its own context so one requester disconnecting cannot fail the
	// waiters sharing the result; the resolver timeout still bounds it.
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		vec, err := r.provider.Embed(callCtx, normalizedText)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, apperrors.New(apperrors.CodeEmbeddingUnavailable, "provider returned empty vector")
		}

		r.cache.Set(key, vec)
		return vec, nil
	})
	if err != nil {
		r.log.Warn("embedding resolution failed", "error", err)
		return nil, apperrors.EmbeddingUnavailableError(err)
	}

	if shared {
		r.log.Debug("coalesced embedding request", "key", key[:12])
	}

	vec := v.([]float32)
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}
