package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/harborhealth/platform/internal/shared/config"
	"github.com/harborhealth/platform/internal/shared/types"
	"github.com/rs/zerolog"
)

// Event represents a domain event
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// Actor information
	ActorID   types.ID `json:"actor_id"`
	ActorType string   `json:"actor_type"` // clinician, office, patient, system

	// Event data
	Data any `json:"data"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType, source string, data any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WithActor sets the actor information on the event
func (e Event) WithActor(actorID types.ID, actorType string) Event {
	e.ActorID = actorID
	e.ActorType = actorType
	return e
}

// WithCorrelation sets the correlation ID for request tracing
func (e Event) WithCorrelation(correlationID string) Event {
	e.CorrelationID = correlationID
	return e
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, event Event) error

// EventBus defines the interface for event publishing and subscription
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error
	Close()
	Health() error
}

// Bus provides event publishing and subscription backed by EventStoreDB
type Bus struct {
	client *esdb.Client
	prefix string
	log    zerolog.Logger
}

var _ EventBus = (*Bus)(nil)

// NewBus creates a new event bus connected to EventStoreDB
func NewBus(ctx context.Context, cfg config.EventStoreConfig, log zerolog.Logger) (*Bus, error) {
	settings, err := esdb.ParseConnectionString(buildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create EventStoreDB client: %w", err)
	}

	return &Bus{
		client: client,
		prefix: "hh",
		log:    log,
	}, nil
}

// buildConnectionString creates the esdb:// connection string
func buildConnectionString(cfg config.EventStoreConfig) string {
	var auth string
	if cfg.Username != "" && cfg.Password != "" {
		auth = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}

	params := ""
	if cfg.Insecure {
		params = "?tls=false&tlsVerifyCert=false"
		params += "&keepAliveInterval=10000&keepAliveTimeout=10000&discoveryInterval=100&maxDiscoverAttempts=3&gossipTimeout=5"
	}

	return fmt.Sprintf("esdb://%s%s:%d%s", auth, cfg.Host, cfg.Port, params)
}

// Publish publishes an event to the bus
func (b *Bus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Stream name from event type: hh.note.signed -> hh-note-signed
	stream := fmt.Sprintf("%s-%s", b.prefix, strings.ReplaceAll(event.Type, ".", "-"))

	eventID, err := uuid.Parse(event.ID)
	if err != nil {
		eventID = uuid.New()
	}

	esdbEvent := esdb.EventData{
		EventType:   event.Type,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		EventID:     eventID,
	}

	_, err = b.client.AppendToStream(ctx, stream, esdb.AppendToStreamOptions{
		ExpectedRevision: esdb.Any{},
	}, esdbEvent)

	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe creates a catch-up subscription to events matching a wildcard
// pattern like "referral.*". Matching is done server-side with a regex
// filter on event type.
func (b *Bus) Subscribe(ctx context.Context, pattern string, consumerName string, handler Handler) error {
	sub, err := b.client.SubscribeToAll(ctx, esdb.SubscribeToAllOptions{
		From: esdb.End{},
		Filter: &esdb.SubscriptionFilter{
			Type:  esdb.EventFilterType,
			Regex: patternToRegex(pattern),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern %s: %w", pattern, err)
	}

	go b.consume(ctx, sub, pattern, consumerName, handler)
	return nil
}

// patternToRegex converts a simple wildcard pattern to regex
func patternToRegex(pattern string) string {
	result := make([]byte, 0, len(pattern)*2)
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '.':
			result = append(result, '\\', '.')
		case '*':
			result = append(result, '.', '*')
		default:
			result = append(result, pattern[i])
		}
	}
	return string(result)
}

// consume processes events from a catch-up subscription
func (b *Bus) consume(ctx context.Context, sub *esdb.Subscription, pattern, consumerName string, handler Handler) {
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			subEvent := sub.Recv()
			if subEvent.EventAppeared == nil {
				if subEvent.SubscriptionDropped != nil {
					b.log.Warn().
						Str("consumer", consumerName).
						Err(subEvent.SubscriptionDropped.Error).
						Msg("subscription dropped")
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}

			recorded := subEvent.EventAppeared.Event
			if recorded == nil {
				continue
			}

			// Skip system events
			if len(recorded.EventType) > 0 && recorded.EventType[0] == '$' {
				continue
			}

			if !matchesPattern(recorded.EventType, pattern) {
				continue
			}

			event, err := b.recordedEventToEvent(recorded)
			if err != nil {
				b.log.Error().Err(err).Str("consumer", consumerName).Msg("failed to convert event")
				continue
			}

			if err := handler(ctx, event); err != nil {
				b.log.Error().
					Err(err).
					Str("consumer", consumerName).
					Str("event_id", event.ID).
					Str("event_type", event.Type).
					Msg("event handler error")
			}
		}
	}
}

// matchesPattern checks if an event type matches a wildcard pattern
func matchesPattern(eventType, pattern string) bool {
	if pattern == "*" || pattern == ">" {
		return true
	}

	patternParts := strings.Split(pattern, ".")
	typeParts := strings.Split(eventType, ".")

	for i, pp := range patternParts {
		if pp == "*" {
			return true
		}
		if i >= len(typeParts) {
			return false
		}
		if pp != typeParts[i] {
			return false
		}
	}

	return len(patternParts) == len(typeParts)
}

// recordedEventToEvent converts an EventStoreDB event to our Event type
func (b *Bus) recordedEventToEvent(recorded *esdb.RecordedEvent) (Event, error) {
	var event Event
	if err := json.Unmarshal(recorded.Data, &event); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ID == "" {
		event.ID = recorded.EventID.String()
	}

	return event, nil
}

// Client returns the underlying EventStoreDB client
func (b *Bus) Client() *esdb.Client {
	return b.client
}

// Close closes the event bus connection
func (b *Bus) Close() {
	if b.client != nil {
		b.client.Close()
	}
}

// Health checks the EventStoreDB connection
func (b *Bus) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := b.client.ReadStream(ctx, "$streams", esdb.ReadStreamOptions{
		From:      esdb.Start{},
		Direction: esdb.Forwards,
	}, 1)

	if err != nil {
		return fmt.Errorf("eventstore health check failed: %w", err)
	}
	defer stream.Close()

	return nil
}
