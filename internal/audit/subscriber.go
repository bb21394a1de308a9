package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/metrics"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Subscriber folds domain events into the audit chain
type Subscriber struct {
	store Store
	bus   events.EventBus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(store Store, bus events.EventBus) *Subscriber {
	return &Subscriber{store: store, bus: bus}
}

// Start subscribes to every audited event family
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []struct {
		pattern      string
		consumerName string
	}{
		{"patient.*", "audit-patient-subscriber"},
		{"note.*", "audit-note-subscriber"},
		{"referral.*", "audit-referral-subscriber"},
		{"prescription.*", "audit-prescription-subscriber"},
		{"claim.*", "audit-claim-subscriber"},
		{"appeal.*", "audit-appeal-subscriber"},
		{"document.*", "audit-document-subscriber"},
		{"recycle.*", "audit-recycle-subscriber"},
		{"auth.*", "audit-auth-subscriber"},
		{"ai.*", "audit-ai-subscriber"},
	}

	for _, p := range patterns {
		if err := s.bus.Subscribe(ctx, p.pattern, p.consumerName, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", p.pattern, err)
		}
	}

	return nil
}

// handleEvent converts and appends one domain event
func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := s.eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	metrics.RecordAuditEntry()

	return nil
}

// eventToEntry converts a domain event to an audit entry
func (s *Subscriber) eventToEntry(event events.Event) *Entry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}

	resourceType := parts[0]
	action := event.Type

	var resourceID *types.ID
	if data, ok := event.Data.(map[string]any); ok {
		idFields := []string{
			resourceType + "_id",
			"id",
		}
		for _, field := range idFields {
			if idVal, ok := data[field]; ok {
				if idStr, ok := idVal.(string); ok {
					id := types.ID(idStr)
					resourceID = &id
					break
				}
				if id, ok := idVal.(types.ID); ok {
					resourceID = &id
					break
				}
			}
		}
	}

	actorType := ActorTypeOffice
	switch event.ActorType {
	case "clinician":
		actorType = ActorTypeClinician
	case "patient":
		actorType = ActorTypePatient
	case "system":
		actorType = ActorTypeSystem
	}

	// Microsecond truncation keeps hash verification deterministic after
	// a serialization round trip.
	entry := &Entry{
		ID:           types.NewID(),
		Timestamp:    event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorType:    actorType,
		ActorID:      event.ActorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}

	if event.CorrelationID != "" {
		correlationID := types.ID(event.CorrelationID)
		entry.CorrelationID = &correlationID
	}

	if data, ok := event.Data.(map[string]any); ok {
		entry.Changes = data
	}

	return entry
}
