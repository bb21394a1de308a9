package document

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for documents and their versions
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new document repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const documentColumns = `id, document_number, patient_id, referral_id, type, title,
		description, uploaded_by, current_version, processing_status, extracted_data,
		created_at, updated_at`

// Create creates a new document record
func (r *Repository) Create(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO documents.documents (
			id, document_number, patient_id, referral_id, type, title,
			description, uploaded_by, current_version, processing_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.DocumentNumber, d.PatientID, d.ReferralID, d.Type, d.Title,
		d.Description, d.UploadedBy, d.CurrentVersion, d.ProcessingStatus,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create document")
	}

	return nil
}

// GetByID retrieves a document with its version history
func (r *Repository) GetByID(ctx context.Context, id types.ID) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents.documents WHERE id = $1`

	d, err := scanDocument(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("document", id.String())
		}
		return nil, errors.Wrap(err, "failed to get document")
	}

	versions, err := r.listVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	d.Versions = versions

	return d, nil
}

// UpdateMetadata updates the document title and description
func (r *Repository) UpdateMetadata(ctx context.Context, d *Document) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents.documents
		SET title = $2, description = $3, updated_at = NOW()
		WHERE id = $1`, d.ID, d.Title, d.Description)
	if err != nil {
		return errors.Wrap(err, "failed to update document")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("document", d.ID.String())
	}

	return nil
}

// AddVersion stores a new version row and bumps the document's current
// version in one transaction. Adding content resets extraction state.
func (r *Repository) AddVersion(ctx context.Context, d *Document, v *DocumentVersion) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO documents.document_versions (
			id, document_id, version, file_path, file_hash, file_size, mime_type, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.DocumentID, v.Version, v.FilePath, v.FileHash, v.FileSize, v.MimeType, v.CreatedBy)
	if err != nil {
		return errors.Wrap(err, "failed to create document version")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE documents.documents
		SET current_version = $2, processing_status = 'pending', extracted_data = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND current_version = $2 - 1`, d.ID, v.Version)
	if err != nil {
		return errors.Wrap(err, "failed to update document version")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("document version is out of date")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit document version")
	}

	return nil
}

// SetProcessing moves the extraction status with the expected current status
// in the WHERE clause
func (r *Repository) SetProcessing(ctx context.Context, id types.ID, from, to ProcessingStatus, extracted []byte) error {
	query := `
		UPDATE documents.documents
		SET processing_status = $3,
		    extracted_data = COALESCE($4, extracted_data),
		    updated_at = NOW()
		WHERE id = $1 AND processing_status = $2`

	tag, err := r.pool.Exec(ctx, query, id, from, to, extracted)
	if err != nil {
		return errors.Wrap(err, "failed to update processing status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict(fmt.Sprintf("document is no longer in processing status %s", from))
	}

	return nil
}

// List lists documents matching the filter with a total count
func (r *Repository) List(ctx context.Context, filter ListDocumentsFilter) ([]*Document, int, error) {
	where := ""
	args := []any{}
	argNum := 1

	addCond := func(cond string, val any) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, argNum)
		args = append(args, val)
		argNum++
	}

	if filter.Type != nil {
		addCond("type = $%d", *filter.Type)
	}
	if filter.Processing != nil {
		addCond("processing_status = $%d", *filter.Processing)
	}
	if filter.PatientID != nil {
		addCond("patient_id = $%d", *filter.PatientID)
	}
	if filter.ReferralID != nil {
		addCond("referral_id = $%d", *filter.ReferralID)
	}
	if filter.Search != "" {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf("(title ILIKE $%d OR document_number = $%d)", argNum, argNum+1)
		args = append(args, "%"+filter.Search+"%", filter.Search)
		argNum += 2
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM documents.documents` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count documents")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + documentColumns + ` FROM documents.documents` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	documents := []*Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan document")
		}
		documents = append(documents, d)
	}

	return documents, total, nil
}

func (r *Repository) listVersions(ctx context.Context, documentID types.ID) ([]DocumentVersion, error) {
	query := `
		SELECT id, document_id, version, file_path, file_hash, file_size, mime_type,
		       created_by, created_at
		FROM documents.document_versions
		WHERE document_id = $1
		ORDER BY version`

	rows, err := r.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list document versions")
	}
	defer rows.Close()

	versions := []DocumentVersion{}
	for rows.Next() {
		v := DocumentVersion{}
		err := rows.Scan(
			&v.ID, &v.DocumentID, &v.Version, &v.FilePath, &v.FileHash,
			&v.FileSize, &v.MimeType, &v.CreatedBy, &v.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document version")
		}
		versions = append(versions, v)
	}

	return versions, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	d := &Document{}
	err := row.Scan(
		&d.ID, &d.DocumentNumber, &d.PatientID, &d.ReferralID, &d.Type, &d.Title,
		&d.Description, &d.UploadedBy, &d.CurrentVersion, &d.ProcessingStatus,
		&d.ExtractedData, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
