package recycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for the recycle bin
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new recycle repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Stash records a soft-deleted entity in the recycle bin
func (r *Repository) Stash(ctx context.Context, item *Item) error {
	query := `
		INSERT INTO recycle.items (
			id, entity_type, entity_id, label, payload,
			deleted_by, deleted_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		item.ID, item.EntityType, item.EntityID, item.Label, item.Payload,
		item.DeletedBy, item.DeletedAt, item.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to stash recycled item")
	}

	return nil
}

// Get retrieves a recycle bin item by ID
func (r *Repository) Get(ctx context.Context, id types.ID) (*Item, error) {
	query := `
		SELECT id, entity_type, entity_id, label, payload,
		       deleted_by, deleted_at, expires_at, restored_at, restored_by
		FROM recycle.items
		WHERE id = $1`

	item := &Item{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&item.ID, &item.EntityType, &item.EntityID, &item.Label, &item.Payload,
		&item.DeletedBy, &item.DeletedAt, &item.ExpiresAt, &item.RestoredAt, &item.RestoredBy,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("recycled item", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recycled item")
	}

	return item, nil
}

// List retrieves recycle bin items that have not been restored
func (r *Repository) List(ctx context.Context, filter ListItemsFilter) ([]*Item, int, error) {
	conditions := []string{"restored_at IS NULL", "expires_at > NOW()"}
	args := []interface{}{}
	argNum := 1

	if filter.EntityType != nil {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", argNum))
		args = append(args, *filter.EntityType)
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := "SELECT COUNT(*) FROM recycle.items " + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count recycled items")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, entity_type, entity_id, label, payload,
		       deleted_by, deleted_at, expires_at, restored_at, restored_by
		FROM recycle.items
		%s
		ORDER BY deleted_at DESC
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list recycled items")
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item := &Item{}
		err := rows.Scan(
			&item.ID, &item.EntityType, &item.EntityID, &item.Label, &item.Payload,
			&item.DeletedBy, &item.DeletedAt, &item.ExpiresAt, &item.RestoredAt, &item.RestoredBy,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan recycled item")
		}
		items = append(items, item)
	}

	return items, total, rows.Err()
}

// MarkRestored records a successful restoration
func (r *Repository) MarkRestored(ctx context.Context, id types.ID, restoredBy types.ID) error {
	query := `UPDATE recycle.items SET restored_at = NOW(), restored_by = $2
		WHERE id = $1 AND restored_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, restoredBy)
	if err != nil {
		return errors.Wrap(err, "failed to mark item restored")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("recycled item", id.String())
	}

	return nil
}

// Delete removes an item outright, bypassing retention. Used to back
// out a stash when the owning module's delete fails afterwards.
func (r *Repository) Delete(ctx context.Context, id types.ID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM recycle.items WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to discard recycled item")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("recycled item", id.String())
	}

	return nil
}

// PurgeExpired removes items past their retention window and returns
// how many were deleted
func (r *Repository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM recycle.items WHERE expires_at <= NOW() AND restored_at IS NULL`)
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge expired items")
	}

	return tag.RowsAffected(), nil
}
