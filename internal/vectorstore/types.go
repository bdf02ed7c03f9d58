// Package vectorstore wraps the Qdrant Go client with the retrieval
// operations the protocol pipeline needs: threshold-bounded similarity
// search and exact protocol-identifier lookup, optionally combined as a
// hybrid query.
package vectorstore

import (
	"context"
	"time"

	"github.com/medicsearch/medic-search/internal/domain"
)

const (
	// DefaultHost is the default Qdrant host.
	DefaultHost = "localhost"

	// DefaultPort is the default Qdrant gRPC port.
	DefaultPort = 6334

	// DefaultTimeout is the default operation timeout.
	DefaultTimeout = 5 * time.Second

	// prefetchMultiplier controls how many candidates beyond the target
	// count the similarity search fetches, giving the re-ranker headroom.
	prefetchMultiplier = 2
)

// ClientConfig holds configuration for the Qdrant client.
type ClientConfig struct {
	// Host is the Qdrant server host.
	Host string

	// Port is the Qdrant gRPC port.
	Port int

	// APIKey for authentication (optional).
	APIKey string

	// UseTLS enables TLS connection.
	UseTLS bool

	// Collection is the protocol chunk collection name.
	Collection string

	// Timeout for operations.
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults for local development.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:       DefaultHost,
		Port:       DefaultPort,
		Collection: "protocols",
		Timeout:    DefaultTimeout,
	}
}

// RetrieveRequest defines one retrieval call.
type RetrieveRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// Threshold filters out candidates scoring below it.
	Threshold float32

	// TargetCount is how many results the caller ultimately wants.
	TargetCount int

	// Filters are exact-match scoping constraints.
	Filters domain.Filters

	// ProtocolID, when non-empty, triggers a concurrent exact-identifier
	// lookup whose hit is merged ahead of vector-ranked candidates.
	ProtocolID string
}

// Store is the retrieval interface the pipeline depends on.
type Store interface {
	// Retrieve runs the (possibly hybrid) search. A store error or timeout
	// fails the whole call; partial results are never returned as complete.
	Retrieve(ctx context.Context, req RetrieveRequest) ([]domain.CandidateChunk, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
