package claims

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

// Repository provides database operations for claims, denials and appeals
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new claims repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextClaimNumber allocates a human-readable claim number
func (r *Repository) NextClaimNumber(ctx context.Context) (string, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('billing.claim_number_seq')`).Scan(&seq)
	if err != nil {
		return "", errors.Wrap(err, "failed to allocate claim number")
	}
	return fmt.Sprintf("CL-%d-%06d", time.Now().Year(), seq), nil
}

const claimColumns = `id, claim_number, patient_id, referral_id, payer,
		service_start, service_end, amount_cents, line_items, status,
		submitted_at, resolved_at, created_at, updated_at`

// CreateClaim creates a new draft claim
func (r *Repository) CreateClaim(ctx context.Context, c *Claim) error {
	itemsJSON, err := json.Marshal(c.LineItems)
	if err != nil {
		return errors.Wrap(err, "failed to marshal line items")
	}

	query := `
		INSERT INTO billing.claims (
			id, claim_number, patient_id, referral_id, payer,
			service_start, service_end, amount_cents, line_items, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.pool.Exec(ctx, query,
		c.ID, c.ClaimNumber, c.PatientID, c.ReferralID, c.Payer,
		c.ServiceStart, c.ServiceEnd, c.AmountCents, itemsJSON, c.Status,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create claim")
	}

	return nil
}

// GetClaim retrieves a claim by ID
func (r *Repository) GetClaim(ctx context.Context, id types.ID) (*Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM billing.claims WHERE id = $1`

	c, err := scanClaim(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("claim", id.String())
		}
		return nil, errors.Wrap(err, "failed to get claim")
	}

	return c, nil
}

// UpdateClaim replaces the billable content of a claim while it is a draft
func (r *Repository) UpdateClaim(ctx context.Context, c *Claim) error {
	itemsJSON, err := json.Marshal(c.LineItems)
	if err != nil {
		return errors.Wrap(err, "failed to marshal line items")
	}

	query := `
		UPDATE billing.claims
		SET payer = $2, service_start = $3, service_end = $4,
		    amount_cents = $5, line_items = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Payer, c.ServiceStart, c.ServiceEnd, c.AmountCents, itemsJSON)
	if err != nil {
		return errors.Wrap(err, "failed to update claim")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("only draft claims can be edited")
	}

	return nil
}

// UpdateStatus moves a claim between statuses with the expected current
// status in the WHERE clause
func (r *Repository) UpdateStatus(ctx context.Context, id types.ID, from, to ClaimStatus) error {
	query := `
		UPDATE billing.claims
		SET status = $3,
		    submitted_at = CASE WHEN $3 = 'submitted' THEN NOW() ELSE submitted_at END,
		    resolved_at = CASE WHEN $3 IN ('paid', 'denied') THEN NOW() ELSE resolved_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := r.pool.Exec(ctx, query, id, from, to)
	if err != nil {
		return errors.Wrap(err, "failed to update claim status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict(fmt.Sprintf("claim is no longer in status %s", from))
	}

	return nil
}

// ListClaims lists claims matching the filter with a total count
func (r *Repository) ListClaims(ctx context.Context, filter ListClaimsFilter) ([]*Claim, int, error) {
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

	if filter.PatientID != nil {
		addCond("patient_id = $%d", *filter.PatientID)
	}
	if filter.Status != nil {
		addCond("status = $%d", *filter.Status)
	}
	if filter.Payer != "" {
		addCond("payer ILIKE $%d", "%"+filter.Payer+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM billing.claims` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count claims")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + claimColumns + ` FROM billing.claims` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list claims")
	}
	defer rows.Close()

	claims := []*Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan claim")
		}
		claims = append(claims, c)
	}

	return claims, total, nil
}

// CreateDenial records a denial and moves the claim to denied in one
// transaction
func (r *Repository) CreateDenial(ctx context.Context, d *Denial) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO billing.denials (id, claim_id, reason_code, reason_text, amount_cents, denied_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.ClaimID, d.ReasonCode, d.ReasonText, d.AmountCents, d.DeniedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create denial")
	}

	tag, err := tx.Exec(ctx, `
		UPDATE billing.claims
		SET status = 'denied', resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'submitted'`, d.ClaimID)
	if err != nil {
		return errors.Wrap(err, "failed to update claim status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("only submitted claims can be denied")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit denial")
	}

	return nil
}

// GetDenial retrieves a denial by ID
func (r *Repository) GetDenial(ctx context.Context, id types.ID) (*Denial, error) {
	query := `
		SELECT id, claim_id, reason_code, reason_text, amount_cents, denied_at, created_at
		FROM billing.denials WHERE id = $1`

	d := &Denial{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.ClaimID, &d.ReasonCode, &d.ReasonText,
		&d.AmountCents, &d.DeniedAt, &d.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("denial", id.String())
		}
		return nil, errors.Wrap(err, "failed to get denial")
	}

	return d, nil
}

// ListDenials lists denials for a claim, newest first
func (r *Repository) ListDenials(ctx context.Context, claimID types.ID) ([]*Denial, error) {
	query := `
		SELECT id, claim_id, reason_code, reason_text, amount_cents, denied_at, created_at
		FROM billing.denials WHERE claim_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, claimID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list denials")
	}
	defer rows.Close()

	denials := []*Denial{}
	for rows.Next() {
		d := &Denial{}
		err := rows.Scan(
			&d.ID, &d.ClaimID, &d.ReasonCode, &d.ReasonText,
			&d.AmountCents, &d.DeniedAt, &d.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan denial")
		}
		denials = append(denials, d)
	}

	return denials, nil
}

// CreateAppeal files an appeal against a denial
func (r *Repository) CreateAppeal(ctx context.Context, a *Appeal) error {
	query := `
		INSERT INTO billing.appeals (id, denial_id, level, narrative, deadline, status, filed_by, filed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.DenialID, a.Level, a.Narrative, a.Deadline, a.Status, a.FiledBy, a.FiledAt)
	if err != nil {
		return errors.Wrap(err, "failed to create appeal")
	}

	return nil
}

// GetAppeal retrieves an appeal by ID
func (r *Repository) GetAppeal(ctx context.Context, id types.ID) (*Appeal, error) {
	query := `
		SELECT id, denial_id, level, narrative, deadline, status, outcome,
		       filed_by, filed_at, decided_at, created_at
		FROM billing.appeals WHERE id = $1`

	a := &Appeal{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.DenialID, &a.Level, &a.Narrative, &a.Deadline, &a.Status,
		&a.Outcome, &a.FiledBy, &a.FiledAt, &a.DecidedAt, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("appeal", id.String())
		}
		return nil, errors.Wrap(err, "failed to get appeal")
	}

	return a, nil
}

// ListAppeals lists appeals filed against a denial
func (r *Repository) ListAppeals(ctx context.Context, denialID types.ID) ([]*Appeal, error) {
	query := `
		SELECT id, denial_id, level, narrative, deadline, status, outcome,
		       filed_by, filed_at, decided_at, created_at
		FROM billing.appeals WHERE denial_id = $1 ORDER BY level, filed_at`

	rows, err := r.pool.Query(ctx, query, denialID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list appeals")
	}
	defer rows.Close()

	appeals := []*Appeal{}
	for rows.Next() {
		a := &Appeal{}
		err := rows.Scan(
			&a.ID, &a.DenialID, &a.Level, &a.Narrative, &a.Deadline, &a.Status,
			&a.Outcome, &a.FiledBy, &a.FiledAt, &a.DecidedAt, &a.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan appeal")
		}
		appeals = append(appeals, a)
	}

	return appeals, nil
}

// DecideAppeal records an appeal outcome. An overturned appeal moves the
// underlying claim to paid in the same transaction.
func (r *Repository) DecideAppeal(ctx context.Context, appealID types.ID, outcome string) (*Appeal, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE billing.appeals
		SET status = 'decided', outcome = $2, decided_at = NOW()
		WHERE id = $1 AND status = 'open'
		RETURNING id, denial_id, level, narrative, deadline, status, outcome,
		          filed_by, filed_at, decided_at, created_at`

	a := &Appeal{}
	err = tx.QueryRow(ctx, query, appealID, outcome).Scan(
		&a.ID, &a.DenialID, &a.Level, &a.Narrative, &a.Deadline, &a.Status,
		&a.Outcome, &a.FiledBy, &a.FiledAt, &a.DecidedAt, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.Conflict("appeal has already been decided")
		}
		return nil, errors.Wrap(err, "failed to decide appeal")
	}

	if outcome == OutcomeOverturned {
		_, err = tx.Exec(ctx, `
			UPDATE billing.claims
			SET status = 'paid', resolved_at = NOW(), updated_at = NOW()
			WHERE id = (SELECT claim_id FROM billing.denials WHERE id = $1)
			  AND status = 'denied'`, a.DenialID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to update claim after appeal")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to commit appeal decision")
	}

	return a, nil
}

func scanClaim(row pgx.Row) (*Claim, error) {
	c := &Claim{}
	var itemsJSON []byte

	err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.PatientID, &c.ReferralID, &c.Payer,
		&c.ServiceStart, &c.ServiceEnd, &c.AmountCents, &itemsJSON, &c.Status,
		&c.SubmittedAt, &c.ResolvedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &c.LineItems); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal line items")
		}
	}

	return c, nil
}
