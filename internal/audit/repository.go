package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

const (
	// auditStream holds every audit entry in append order
	auditStream = "hh-audit"
	// checkpointStream holds periodic chain anchors
	checkpointStream = "hh-audit-checkpoints"

	entryEventType      = "AuditEntry"
	checkpointEventType = "AuditCheckpoint"
)

// Repository provides append-only audit log storage on EventStoreDB.
// The store itself cannot rewrite history, and the hash chain makes any
// out-of-band tampering detectable.
type Repository struct {
	client   *esdb.Client
	mu       sync.Mutex
	lastHash string
	sequence int64
}

// NewRepository creates a new EventStoreDB audit repository
func NewRepository(client *esdb.Client) *Repository {
	return &Repository{client: client}
}

// Initialize loads the last hash and sequence from the stream
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	stream, err := r.client.ReadStream(ctx, auditStream, opts, 1)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				r.lastHash = ""
				r.sequence = 0
				return nil
			}
		}
		return errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		r.lastHash = ""
		r.sequence = 0
		return nil
	}

	if event.Event != nil && event.Event.EventType == entryEventType {
		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
			r.lastHash = entry.Hash
			r.sequence = entry.Sequence
		}
	}

	return nil
}

// Append appends a new audit entry. The mutex serializes writers so the
// sequence and prev_hash linkage stay consistent.
func (r *Repository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	entry.Sequence = r.sequence
	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit entry")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   entryEventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata: []byte(fmt.Sprintf(`{"sequence":%d,"hash":"%s"}`,
			entry.Sequence, entry.Hash)),
	}

	_, err = r.client.AppendToStream(ctx, auditStream, esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash

	return nil
}

// FindByID finds an audit entry by ID. Linear scan; acceptable at this
// stream size, a projection would replace it at scale.
func (r *Repository) FindByID(ctx context.Context, id types.ID) (*Entry, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Forwards,
		From:      esdb.Start{},
	}

	stream, err := r.client.ReadStream(ctx, auditStream, opts, 10000)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}

		if event.Event != nil && event.Event.EventType == entryEventType {
			var entry Entry
			if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
				if entry.ID == id {
					return &entry, nil
				}
			}
		}
	}

	return nil, errors.NotFound("audit entry", string(id))
}

// List lists audit entries newest first with filters
func (r *Repository) List(ctx context.Context, filter ListEntriesFilter) ([]*Entry, int, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	maxEvents := uint64(1000)
	if filter.Limit > 0 {
		maxEvents = uint64(filter.Limit + filter.Offset + 100)
	}

	stream, err := r.client.ReadStream(ctx, auditStream, opts, maxEvents)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return []*Entry{}, 0, nil
			}
		}
		return nil, 0, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	var entries []*Entry
	total := 0

	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}

		if event.Event == nil || event.Event.EventType != entryEventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
			continue
		}

		if filter.ActorID != nil && entry.ActorID != *filter.ActorID {
			continue
		}
		if filter.ActorType != nil && entry.ActorType != *filter.ActorType {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
			continue
		}
		if filter.ResourceID != nil && (entry.ResourceID == nil || *entry.ResourceID != *filter.ResourceID) {
			continue
		}
		if filter.StartTime != nil && entry.Timestamp.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && entry.Timestamp.After(*filter.EndTime) {
			continue
		}

		total++

		if filter.Offset > 0 && total <= filter.Offset {
			continue
		}
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			continue
		}

		entries = append(entries, &entry)
	}

	return entries, total, nil
}

// GetByResource gets audit entries for a specific resource
func (r *Repository) GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*Entry, error) {
	filter := ListEntriesFilter{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Limit:        limit,
	}
	entries, _, err := r.List(ctx, filter)
	return entries, err
}

// VerifyChain verifies the integrity of the audit chain. Two checks per
// entry: the content hash, and the prev_hash linkage to its predecessor.
func (r *Repository) VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	stream, err := r.client.ReadStream(ctx, auditStream, opts, uint64(limit))
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return &VerifyResult{Valid: true, Checked: 0}, nil
			}
		}
		return nil, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	var entries []*Entry
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}

		if event.Event != nil && event.Event.EventType == entryEventType {
			var entry Entry
			if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
				entries = append(entries, &entry)
			}
		}
	}

	return verifyEntries(entries, includeDetails), nil
}

// hashExcerpt shortens a hash for violation messages. A tampered entry
// may carry a hash of any length, including empty.
func hashExcerpt(h string) string {
	if h == "" {
		return "<empty>"
	}
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

// verifyEntries checks a reverse-ordered entry slice
func verifyEntries(entries []*Entry, includeDetails bool) *VerifyResult {
	result := &VerifyResult{
		Valid:   true,
		Checked: len(entries),
	}

	for i, entry := range entries {
		computedHash := entry.ComputeHash()
		contentValid := computedHash == entry.Hash

		if contentValid {
			result.ContentValid++
		} else {
			result.Valid = false
			result.ContentInvalid++
			result.Violations = append(result.Violations,
				fmt.Sprintf("CONTENT TAMPERED: entry %d hash mismatch (stored: %s, computed: %s)",
					entry.Sequence, hashExcerpt(entry.Hash), hashExcerpt(computedHash)))
		}

		linkageValid := true
		if i < len(entries)-1 {
			prevEntry := entries[i+1]
			if entry.PrevHash != prevEntry.Hash {
				linkageValid = false
				result.Valid = false
				result.LinkageInvalid++
				result.Violations = append(result.Violations,
					fmt.Sprintf("CHAIN BROKEN: entry %d prev_hash does not match entry %d hash",
						entry.Sequence, prevEntry.Sequence))
			} else {
				result.LinkageValid++
			}
		} else {
			result.LinkageValid++
		}

		if includeDetails {
			result.Entries = append(result.Entries, VerifyEntryResult{
				ID:           entry.ID,
				Sequence:     entry.Sequence,
				Hash:         entry.Hash,
				ComputedHash: computedHash,
				PrevHash:     entry.PrevHash,
				Valid:        contentValid && linkageValid,
				ContentValid: contentValid,
				LinkageValid: linkageValid,
				Action:       entry.Action,
			})
		}
	}

	return result
}

// GetLastHash returns the last hash in the chain
func (r *Repository) GetLastHash() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHash
}

// GetSequence returns the current sequence number
func (r *Repository) GetSequence() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sequence
}

// Count returns the total number of audit entries
func (r *Repository) Count(ctx context.Context) (int, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Forwards,
		From:      esdb.Start{},
	}

	stream, err := r.client.ReadStream(ctx, auditStream, opts, 100000)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return 0, nil
			}
		}
		return 0, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	count := 0
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event != nil && event.Event.EventType == entryEventType {
			count++
		}
	}

	return count, nil
}

// SaveCheckpoint appends a checkpoint to the checkpoint stream
func (r *Repository) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return errors.Wrap(err, "failed to marshal checkpoint")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   checkpointEventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
	}

	_, err = r.client.AppendToStream(ctx, checkpointStream, esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		return errors.Wrap(err, "failed to save checkpoint")
	}

	return nil
}

// GetLatestCheckpoint returns the most recent checkpoint, or nil
func (r *Repository) GetLatestCheckpoint(ctx context.Context) (*Checkpoint, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	stream, err := r.client.ReadStream(ctx, checkpointStream, opts, 1)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return nil, nil
			}
		}
		return nil, errors.Wrap(err, "failed to read checkpoint stream")
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		return nil, nil
	}

	if event.Event != nil && event.Event.EventType == checkpointEventType {
		var checkpoint Checkpoint
		if err := json.Unmarshal(event.Event.Data, &checkpoint); err == nil {
			return &checkpoint, nil
		}
	}

	return nil, nil
}

// ListCheckpoints returns checkpoints newest first
func (r *Repository) ListCheckpoints(ctx context.Context, limit int) ([]Checkpoint, error) {
	opts := esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}

	stream, err := r.client.ReadStream(ctx, checkpointStream, opts, uint64(limit))
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok {
			if esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
				return []Checkpoint{}, nil
			}
		}
		return nil, errors.Wrap(err, "failed to read checkpoint stream")
	}
	defer stream.Close()

	var checkpoints []Checkpoint
	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}

		if event.Event != nil && event.Event.EventType == checkpointEventType {
			var checkpoint Checkpoint
			if err := json.Unmarshal(event.Event.Data, &checkpoint); err == nil {
				checkpoints = append(checkpoints, checkpoint)
			}
		}
	}

	return checkpoints, nil
}
