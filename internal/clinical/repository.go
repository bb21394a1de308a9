package clinical

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for clinical documentation
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new clinical repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextNoteNumber allocates the next note number
func (r *Repository) NextNoteNumber(ctx context.Context) (string, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('clinical.note_number_seq')`).Scan(&seq); err != nil {
		return "", errors.Wrap(err, "failed to allocate note number")
	}
	return fmt.Sprintf("SN-%d-%06d", time.Now().Year(), seq), nil
}

// CreateNote creates a new SOAP note
func (r *Repository) CreateNote(ctx context.Context, note *SOAPNote) error {
	vitalsJSON, err := json.Marshal(note.Vitals)
	if err != nil {
		return errors.Wrap(err, "failed to marshal vitals")
	}
	codesJSON, err := json.Marshal(note.ICD10Codes)
	if err != nil {
		return errors.Wrap(err, "failed to marshal ICD-10 codes")
	}

	query := `
		INSERT INTO clinical.soap_notes (
			id, note_number, patient_id, author_id, visit_type, visit_date, status,
			subjective, objective, assessment, plan, vitals, icd10_codes
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)`

	_, err = r.pool.Exec(ctx, query,
		note.ID, note.NoteNumber, note.PatientID, note.AuthorID, note.VisitType, note.VisitDate, note.Status,
		note.Subjective, note.Objective, note.Assessment, note.Plan, vitalsJSON, codesJSON,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("note with this number already exists")
		}
		return errors.Wrap(err, "failed to create note")
	}

	return nil
}

const noteColumns = `id, note_number, patient_id, author_id, visit_type, visit_date, status,
		subjective, objective, assessment, plan, vitals, icd10_codes,
		signed_by, signed_at, created_at, updated_at`

// GetNote retrieves a note by ID, including its addenda
func (r *Repository) GetNote(ctx context.Context, id types.ID) (*SOAPNote, error) {
	query := fmt.Sprintf(`SELECT %s FROM clinical.soap_notes WHERE id = $1`, noteColumns)

	note, err := r.scanNote(r.pool.QueryRow(ctx, query, id), id.String())
	if err != nil {
		return nil, err
	}

	addenda, err := r.listAddenda(ctx, id)
	if err != nil {
		return nil, err
	}
	note.Addenda = addenda

	return note, nil
}

func (r *Repository) scanNote(row pgx.Row, ref string) (*SOAPNote, error) {
	note := &SOAPNote{}
	var vitalsJSON, codesJSON []byte

	err := row.Scan(
		&note.ID, &note.NoteNumber, &note.PatientID, &note.AuthorID, &note.VisitType, &note.VisitDate, &note.Status,
		&note.Subjective, &note.Objective, &note.Assessment, &note.Plan, &vitalsJSON, &codesJSON,
		&note.SignedBy, &note.SignedAt, &note.CreatedAt, &note.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("note", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get note")
	}

	if err := json.Unmarshal(vitalsJSON, &note.Vitals); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal vitals")
	}
	if len(codesJSON) > 0 {
		if err := json.Unmarshal(codesJSON, &note.ICD10Codes); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal ICD-10 codes")
		}
	}

	return note, nil
}

// UpdateNote updates an unsigned note's content
func (r *Repository) UpdateNote(ctx context.Context, note *SOAPNote) error {
	vitalsJSON, err := json.Marshal(note.Vitals)
	if err != nil {
		return errors.Wrap(err, "failed to marshal vitals")
	}
	codesJSON, err := json.Marshal(note.ICD10Codes)
	if err != nil {
		return errors.Wrap(err, "failed to marshal ICD-10 codes")
	}

	// The status guard keeps signed rows untouchable even on racing writes
	query := `
		UPDATE clinical.soap_notes SET
			subjective = $2, objective = $3, assessment = $4, plan = $5,
			vitals = $6, icd10_codes = $7, status = $8, updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'pending_review')`

	tag, err := r.pool.Exec(ctx, query,
		note.ID, note.Subjective, note.Objective, note.Assessment, note.Plan,
		vitalsJSON, codesJSON, note.Status,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update note")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("note is signed and cannot be edited")
	}

	return nil
}

// SignNote marks a note signed and locks its content
func (r *Repository) SignNote(ctx context.Context, id, signedBy types.ID) error {
	query := `
		UPDATE clinical.soap_notes SET
			status = 'signed', signed_by = $2, signed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('draft', 'pending_review')`

	tag, err := r.pool.Exec(ctx, query, id, signedBy)
	if err != nil {
		return errors.Wrap(err, "failed to sign note")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("note is already signed or does not exist")
	}

	return nil
}

// CreateAddendum appends a correction to a signed note and flips the
// note status to amended
func (r *Repository) CreateAddendum(ctx context.Context, addendum *Addendum) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO clinical.soap_addenda (id, note_id, author_id, section, content, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = tx.Exec(ctx, query,
		addendum.ID, addendum.NoteID, addendum.AuthorID, addendum.Section, addendum.Content, addendum.Reason,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create addendum")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE clinical.soap_notes SET status = 'amended', updated_at = NOW()
		 WHERE id = $1 AND status IN ('signed', 'amended')`,
		addendum.NoteID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark note amended")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("only signed notes can be amended")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit addendum")
	}

	return nil
}

func (r *Repository) listAddenda(ctx context.Context, noteID types.ID) ([]Addendum, error) {
	query := `
		SELECT id, note_id, author_id, section, content, reason, created_at
		FROM clinical.soap_addenda
		WHERE note_id = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, noteID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list addenda")
	}
	defer rows.Close()

	var addenda []Addendum
	for rows.Next() {
		var a Addendum
		if err := rows.Scan(&a.ID, &a.NoteID, &a.AuthorID, &a.Section, &a.Content, &a.Reason, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan addendum")
		}
		addenda = append(addenda, a)
	}

	return addenda, rows.Err()
}

// ListNotes retrieves notes matching the filter
func (r *Repository) ListNotes(ctx context.Context, filter ListNotesFilter) ([]*SOAPNote, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if filter.PatientID != nil {
		conditions = append(conditions, fmt.Sprintf("patient_id = $%d", argNum))
		args = append(args, *filter.PatientID)
		argNum++
	}
	if filter.AuthorID != nil {
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", argNum))
		args = append(args, *filter.AuthorID)
		argNum++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.VisitType != nil {
		conditions = append(conditions, fmt.Sprintf("visit_type = $%d", argNum))
		args = append(args, *filter.VisitType)
		argNum++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := "SELECT COUNT(*) FROM clinical.soap_notes " + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count notes")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM clinical.soap_notes %s
		ORDER BY visit_date DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, noteColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list notes")
	}
	defer rows.Close()

	var notes []*SOAPNote
	for rows.Next() {
		note := &SOAPNote{}
		var vitalsJSON, codesJSON []byte

		err := rows.Scan(
			&note.ID, &note.NoteNumber, &note.PatientID, &note.AuthorID, &note.VisitType, &note.VisitDate, &note.Status,
			&note.Subjective, &note.Objective, &note.Assessment, &note.Plan, &vitalsJSON, &codesJSON,
			&note.SignedBy, &note.SignedAt, &note.CreatedAt, &note.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan note")
		}

		if err := json.Unmarshal(vitalsJSON, &note.Vitals); err != nil {
			return nil, 0, errors.Wrap(err, "failed to unmarshal vitals")
		}
		if len(codesJSON) > 0 {
			if err := json.Unmarshal(codesJSON, &note.ICD10Codes); err != nil {
				return nil, 0, errors.Wrap(err, "failed to unmarshal ICD-10 codes")
			}
		}

		notes = append(notes, note)
	}

	return notes, total, rows.Err()
}
