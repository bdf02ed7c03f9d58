package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medicsearch/medic-search/internal/domain"
	apperrors "github.com/medicsearch/medic-search/internal/pkg/errors"
)

// Retrieve runs a threshold-bounded similarity search, and when the request
// carries a protocol identifier, a concurrent exact lookup. The exact hit is
// merged to the front of the candidate list: an identifier match is a
// stronger signal than embedding similarity and must not be out-ranked by it.
func (c *Client) Retrieve(ctx context.Context, req RetrieveRequest) ([]domain.CandidateChunk, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, apperrors.RetrievalUnavailableError(fmt.Errorf("client is closed"))
	}
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var (
		similar []domain.CandidateChunk
		exact   *domain.CandidateChunk
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chunks, err := c.similaritySearch(gctx, req)
		if err != nil {
			return err
		}
		similar = chunks
		return nil
	})

	if req.ProtocolID != "" {
		g.Go(func() error {
			hit, err := c.exactLookup(gctx, req.ProtocolID, req.Filters)
			if err != nil {
				return err
			}
			exact = hit
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, classifyStoreError(err)
	}

	return mergeExactHit(exact, similar), nil
}

// mergeExactHit places the exact-identifier hit ahead of vector-ranked
// candidates, dropping its duplicate from the similarity results.
func mergeExactHit(exact *domain.CandidateChunk, similar []domain.CandidateChunk) []domain.CandidateChunk {
	if exact == nil {
		return similar
	}

	merged := make([]domain.CandidateChunk, 0, len(similar)+1)
	merged = append(merged, *exact)
	for _, ch := range similar {
		if ch.ID != exact.ID {
			merged = append(merged, ch)
		}
	}
	return merged
}

// similaritySearch issues the dense vector query, nearest first.
func (c *Client) similaritySearch(ctx context.Context, req RetrieveRequest) ([]domain.CandidateChunk, error) {
	limit := uint64(req.TargetCount * prefetchMultiplier)
	if limit == 0 {
		limit = 20
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: c.config.Collection,
		Query:          qdrant.NewQueryDense(req.Vector),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
		ScoreThreshold: qdrant.PtrOf(req.Threshold),
	}

	if f := buildFilter(req.Filters); f != nil {
		queryPoints.Filter = f
	}

	points, err := c.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	chunks := make([]domain.CandidateChunk, 0, len(points))
	for _, p := range points {
		chunks = append(chunks, scoredPointToChunk(p))
	}
	return chunks, nil
}

// exactLookup finds the chunk whose protocol number matches the identifier
// exactly. Returns nil without error when nothing matches.
func (c *Client) exactLookup(ctx context.Context, protocolID string, filters domain.Filters) (*domain.CandidateChunk, error) {
	filter := buildFilter(filters)
	if filter == nil {
		filter = &qdrant.Filter{}
	}
	filter.Must = append(filter.Must, &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: "protocol_number",
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{
						Keyword: protocolID,
					},
				},
			},
		},
	})

	points, err := c.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.config.Collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(1)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("exact lookup failed: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}

	chunk := retrievedPointToChunk(points[0])
	chunk.ExactMatch = true
	return &chunk, nil
}

// HealthCheck verifies the Qdrant server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	reply, err := c.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if reply.GetTitle() == "" {
		return fmt.Errorf("unexpected health check response")
	}

	return nil
}

// buildFilter converts domain filters into exact-match Qdrant conditions.
func buildFilter(f domain.Filters) *qdrant.Filter {
	var conditions []*qdrant.Condition

	if f.JurisdictionID != "" {
		conditions = append(conditions, keywordCondition("jurisdiction_id", f.JurisdictionID))
	}
	if f.SourceState != "" {
		conditions = append(conditions, keywordCondition("source_state", f.SourceState))
	}

	if len(conditions) == 0 {
		return nil
	}

	return &qdrant.Filter{
		Must: conditions,
	}
}

func keywordCondition(key, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key: key,
				Match: &qdrant.Match{
					MatchValue: &qdrant.Match_Keyword{
						Keyword: value,
					},
				},
			},
		},
	}
}

// classifyStoreError maps transport errors onto the retrieval failure kind,
// tagging deadline expiry so callers can tell timeouts from outages.
func classifyStoreError(err error) error {
	appErr := apperrors.RetrievalUnavailableError(err)
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return appErr.WithDetail("reason", "timeout")
	case codes.Unavailable:
		return appErr.WithDetail("reason", "unreachable")
	default:
		return appErr
	}
}

// scoredPointToChunk converts a Qdrant scored point into a candidate chunk.
func scoredPointToChunk(p *qdrant.ScoredPoint) domain.CandidateChunk {
	chunk := payloadToChunk(p.Payload)
	chunk.ID = pointIDString(p.Id)
	chunk.RawScore = p.Score
	return chunk
}

// retrievedPointToChunk converts a scrolled point (no score) into a chunk.
func retrievedPointToChunk(p *qdrant.RetrievedPoint) domain.CandidateChunk {
	chunk := payloadToChunk(p.Payload)
	chunk.ID = pointIDString(p.Id)
	return chunk
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

// payloadToChunk extracts the protocol chunk fields from a Qdrant payload.
func payloadToChunk(payload map[string]*qdrant.Value) domain.CandidateChunk {
	return domain.CandidateChunk{
		Title:          getStringValue(payload, "title"),
		Section:        getStringValue(payload, "section"),
		Content:        getStringValue(payload, "content"),
		ProtocolNumber: getStringValue(payload, "protocol_number"),
		SourceID:       getStringValue(payload, "source_id"),
	}
}

func getStringValue(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
			return sv.StringValue
		}
	}
	return ""
}
