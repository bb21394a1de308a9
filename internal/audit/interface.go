package audit

import (
	"context"

	"github.com/harborhealth/platform/internal/shared/types"
)

// Store defines append-only audit storage. The production implementation
// is backed by EventStoreDB; tests use an in-memory store.
type Store interface {
	Initialize(ctx context.Context) error
	Append(ctx context.Context, entry *Entry) error
	FindByID(ctx context.Context, id types.ID) (*Entry, error)
	List(ctx context.Context, filter ListEntriesFilter) ([]*Entry, int, error)
	GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*Entry, error)
	VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error)
	GetLastHash() string
	GetSequence() int64
	Count(ctx context.Context) (int, error)

	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error
	GetLatestCheckpoint(ctx context.Context) (*Checkpoint, error)
	ListCheckpoints(ctx context.Context, limit int) ([]Checkpoint, error)
}

var _ Store = (*Repository)(nil)
