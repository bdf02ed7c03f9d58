// Package bus publishes search analytics events to an event bus.
package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medicsearch/medic-search/internal/config"
)

// Topics for analytics events.
const (
	// TopicSearchCompleted carries one event per completed search.
	TopicSearchCompleted = "search.completed"
)

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "search.completed").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(eventType string, payload any) Event {
	now := time.Now()
	return Event{
		ID:        fmt.Sprintf("%s-%d", eventType, now.UnixNano()),
		Type:      eventType,
		Source:    "medic-search",
		Timestamp: now.UnixMilli(),
		Payload:   payload,
	}
}

// Bus defines the interface for event publishers.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Close closes the bus and releases resources.
	Close() error
}

// New creates a Bus instance based on the configuration.
func New(cfg config.BusConfig) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		return NewMemoryBus(), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers not configured")
		}
		return NewKafkaBus(KafkaConfig{Brokers: brokers})

	default:
		return nil, fmt.Errorf("unknown bus type: %s", cfg.Type)
	}
}

// ParseKafkaBrokers parses a comma-separated string of Kafka brokers.
func ParseKafkaBrokers(brokersStr string) []string {
	if brokersStr == "" {
		return nil
	}
	brokers := strings.Split(brokersStr, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}
	return brokers
}
