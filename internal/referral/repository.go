package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for referrals and eligibility checks
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new referral repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextReferralNumber allocates a human-readable referral number
func (r *Repository) NextReferralNumber(ctx context.Context) (string, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('intake.referral_number_seq')`).Scan(&seq)
	if err != nil {
		return "", errors.Wrap(err, "failed to allocate referral number")
	}
	return fmt.Sprintf("RF-%d-%06d", time.Now().Year(), seq), nil
}

const referralColumns = `id, referral_number, patient_id, source, source_contact,
		urgency, status, requested_services, diagnosis_code, face_to_face_date,
		decline_reason, ai_recommendation, received_at, decided_at, created_at, updated_at`

// Create creates a new referral in the received status
func (r *Repository) Create(ctx context.Context, ref *Referral) error {
	servicesJSON, err := json.Marshal(ref.RequestedServices)
	if err != nil {
		return errors.Wrap(err, "failed to marshal requested services")
	}

	query := `
		INSERT INTO intake.referrals (
			id, referral_number, patient_id, source, source_contact,
			urgency, status, requested_services, diagnosis_code, face_to_face_date,
			received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.pool.Exec(ctx, query,
		ref.ID, ref.ReferralNumber, ref.PatientID, ref.Source, ref.SourceContact,
		ref.Urgency, ref.Status, servicesJSON, ref.DiagnosisCode, ref.FaceToFaceDate,
		ref.ReceivedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create referral")
	}

	return nil
}

// GetByID retrieves a referral by ID
func (r *Repository) GetByID(ctx context.Context, id types.ID) (*Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM intake.referrals WHERE id = $1`

	ref, err := scanReferral(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("referral", id.String())
		}
		return nil, errors.Wrap(err, "failed to get referral")
	}

	return ref, nil
}

// Update updates the mutable details of a referral
func (r *Repository) Update(ctx context.Context, ref *Referral) error {
	servicesJSON, err := json.Marshal(ref.RequestedServices)
	if err != nil {
		return errors.Wrap(err, "failed to marshal requested services")
	}

	query := `
		UPDATE intake.referrals
		SET source_contact = $2, urgency = $3, requested_services = $4,
		    diagnosis_code = $5, face_to_face_date = $6, ai_recommendation = $7,
		    updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		ref.ID, ref.SourceContact, ref.Urgency, servicesJSON,
		ref.DiagnosisCode, ref.FaceToFaceDate, ref.AIRecommendation,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update referral")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("referral", ref.ID.String())
	}

	return nil
}

// UpdateStatus moves a referral between statuses. The expected current status
// is part of the WHERE clause so concurrent transitions cannot clobber each
// other.
func (r *Repository) UpdateStatus(ctx context.Context, id types.ID, from, to ReferralStatus, declineReason string) error {
	query := `
		UPDATE intake.referrals
		SET status = $3,
		    decline_reason = CASE WHEN $4 <> '' THEN $4 ELSE decline_reason END,
		    decided_at = CASE WHEN $3 IN ('accepted', 'declined') THEN NOW() ELSE decided_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, id, from, to, declineReason)
	if err != nil {
		return errors.Wrap(err, "failed to update referral status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict(fmt.Sprintf("referral is no longer in status %s", from))
	}

	return nil
}

// List lists referrals matching the filter with a total count
func (r *Repository) List(ctx context.Context, filter ListReferralsFilter) ([]*Referral, int, error) {
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

	if filter.Status != nil {
		addCond("status = $%d", *filter.Status)
	}
	if filter.Urgency != nil {
		addCond("urgency = $%d", *filter.Urgency)
	}
	if filter.PatientID != nil {
		addCond("patient_id = $%d", *filter.PatientID)
	}
	if filter.Source != "" {
		addCond("source ILIKE $%d", "%"+filter.Source+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM intake.referrals` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count referrals")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + referralColumns + ` FROM intake.referrals` + where +
		fmt.Sprintf(` ORDER BY received_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list referrals")
	}
	defer rows.Close()

	referrals := []*Referral{}
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan referral")
		}
		referrals = append(referrals, ref)
	}

	return referrals, total, nil
}

// RecordEligibility stores a completed eligibility check
func (r *Repository) RecordEligibility(ctx context.Context, check *EligibilityCheck) error {
	raw := check.RawResponse
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO intake.eligibility_checks (
			id, referral_id, payer, result, coverage_start, coverage_end,
			copay_cents, raw_response, checked_by, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		check.ID, check.ReferralID, check.Payer, check.Result,
		check.CoverageStart, check.CoverageEnd, check.CopayCents,
		raw, check.CheckedBy, check.CheckedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to record eligibility check")
	}

	return nil
}

// LatestEligibility returns the most recent eligibility check for a referral,
// or nil when none has been recorded
func (r *Repository) LatestEligibility(ctx context.Context, referralID types.ID) (*EligibilityCheck, error) {
	query := `
		SELECT id, referral_id, payer, result, coverage_start, coverage_end,
		       copay_cents, raw_response, checked_by, checked_at
		FROM intake.eligibility_checks
		WHERE referral_id = $1
		ORDER BY checked_at DESC
		LIMIT 1`

	check := &EligibilityCheck{}
	err := r.pool.QueryRow(ctx, query, referralID).Scan(
		&check.ID, &check.ReferralID, &check.Payer, &check.Result,
		&check.CoverageStart, &check.CoverageEnd, &check.CopayCents,
		&check.RawResponse, &check.CheckedBy, &check.CheckedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get latest eligibility check")
	}

	return check, nil
}

// ListEligibility lists all eligibility checks for a referral, newest first
func (r *Repository) ListEligibility(ctx context.Context, referralID types.ID) ([]*EligibilityCheck, error) {
	query := `
		SELECT id, referral_id, payer, result, coverage_start, coverage_end,
		       copay_cents, raw_response, checked_by, checked_at
		FROM intake.eligibility_checks
		WHERE referral_id = $1
		ORDER BY checked_at DESC`

	rows, err := r.pool.Query(ctx, query, referralID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list eligibility checks")
	}
	defer rows.Close()

	checks := []*EligibilityCheck{}
	for rows.Next() {
		check := &EligibilityCheck{}
		err := rows.Scan(
			&check.ID, &check.ReferralID, &check.Payer, &check.Result,
			&check.CoverageStart, &check.CoverageEnd, &check.CopayCents,
			&check.RawResponse, &check.CheckedBy, &check.CheckedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan eligibility check")
		}
		checks = append(checks, check)
	}

	return checks, nil
}

func scanReferral(row pgx.Row) (*Referral, error) {
	ref := &Referral{}
	var servicesJSON []byte

	err := row.Scan(
		&ref.ID, &ref.ReferralNumber, &ref.PatientID, &ref.Source, &ref.SourceContact,
		&ref.Urgency, &ref.Status, &servicesJSON, &ref.DiagnosisCode, &ref.FaceToFaceDate,
		&ref.DeclineReason, &ref.AIRecommendation, &ref.ReceivedAt, &ref.DecidedAt,
		&ref.CreatedAt, &ref.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(servicesJSON) > 0 {
		if err := json.Unmarshal(servicesJSON, &ref.RequestedServices); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal requested services")
		}
	}

	return ref, nil
}
