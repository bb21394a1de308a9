package recycle

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Restorer undeletes an entity in its home table. Each domain module
// registers one for the entity types it owns.
type Restorer func(ctx context.Context, entityID types.ID) error

// Service coordinates stashing, restoration and retention purging.
type Service struct {
	repo      *Repository
	retention time.Duration
	log       zerolog.Logger

	mu        sync.RWMutex
	restorers map[EntityType]Restorer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a recycle bin service with the given retention window
func NewService(repo *Repository, retention time.Duration, log zerolog.Logger) *Service {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		retention: retention,
		log:       log,
		restorers: make(map[EntityType]Restorer),
		stopCh:    make(chan struct{}),
	}
}

// Register installs the restorer for an entity type. Later registrations
// for the same type replace earlier ones.
func (s *Service) Register(entityType EntityType, restorer Restorer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restorers[entityType] = restorer
}

// Stash serializes a deleted entity into the recycle bin
func (s *Service) Stash(ctx context.Context, entityType EntityType, entityID types.ID, label string, payload any, deletedBy types.ID) (*Item, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize deleted entity")
	}

	now := time.Now()
	item := &Item{
		ID:         types.NewID(),
		EntityType: entityType,
		EntityID:   entityID,
		Label:      label,
		Payload:    raw,
		DeletedBy:  deletedBy,
		DeletedAt:  now,
		ExpiresAt:  now.Add(s.retention),
	}

	if err := s.repo.Stash(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

// Discard removes a stashed item without restoring it. Callers use it
// to compensate when the delete that produced the stash does not land.
func (s *Service) Discard(ctx context.Context, itemID types.ID) error {
	return s.repo.Delete(ctx, itemID)
}

// Restore undeletes the entity behind a recycle bin item
func (s *Service) Restore(ctx context.Context, itemID types.ID, restoredBy types.ID) (*Item, error) {
	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if item.RestoredAt != nil {
		return nil, errors.Conflict("item has already been restored")
	}
	if item.Expired(time.Now()) {
		return nil, errors.Conflict("item retention window has lapsed")
	}

	s.mu.RLock()
	restorer, ok := s.restorers[item.EntityType]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Internal("no restorer registered for entity type " + string(item.EntityType))
	}

	if err := restorer(ctx, item.EntityID); err != nil {
		return nil, errors.Wrap(err, "failed to restore entity")
	}

	if err := s.repo.MarkRestored(ctx, itemID, restoredBy); err != nil {
		return nil, err
	}

	return s.repo.Get(ctx, itemID)
}

// StartPurgeLoop runs retention purging in the background until Stop
func (s *Service) StartPurgeLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				purged, err := s.repo.PurgeExpired(ctx)
				cancel()

				if err != nil {
					s.log.Error().Err(err).Msg("recycle purge failed")
					continue
				}
				if purged > 0 {
					s.log.Info().Int64("purged", purged).Msg("recycle bin purged expired items")
				}
			}
		}
	}()
}

// Stop halts the purge loop
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
