package prescription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for pharmacies and prescriptions
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new prescription repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NextRxNumber allocates a human-readable prescription number
func (r *Repository) NextRxNumber(ctx context.Context) (string, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT nextval('pharmacy.rx_number_seq')`).Scan(&seq)
	if err != nil {
		return "", errors.Wrap(err, "failed to allocate rx number")
	}
	return fmt.Sprintf("RX-%d-%06d", time.Now().Year(), seq), nil
}

// --- Pharmacies ---

const pharmacyColumns = `id, ncpdp_id, name, phone, fax, street, city, state, postal_code,
		active, created_at, updated_at`

// CreatePharmacy registers a new pharmacy
func (r *Repository) CreatePharmacy(ctx context.Context, p *Pharmacy) error {
	query := `
		INSERT INTO pharmacy.pharmacies (
			id, ncpdp_id, name, phone, fax, street, city, state, postal_code, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.NCPDPID, p.Name, p.Phone, p.Fax,
		p.Street, p.City, p.State, p.PostalCode, p.Active,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("pharmacy with this NCPDP ID already exists")
		}
		return errors.Wrap(err, "failed to create pharmacy")
	}

	return nil
}

// GetPharmacy retrieves a pharmacy by ID
func (r *Repository) GetPharmacy(ctx context.Context, id types.ID) (*Pharmacy, error) {
	query := `SELECT ` + pharmacyColumns + ` FROM pharmacy.pharmacies WHERE id = $1`

	p := &Pharmacy{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.NCPDPID, &p.Name, &p.Phone, &p.Fax,
		&p.Street, &p.City, &p.State, &p.PostalCode,
		&p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("pharmacy", id.String())
		}
		return nil, errors.Wrap(err, "failed to get pharmacy")
	}

	return p, nil
}

// ListPharmacies lists registered pharmacies, optionally only active ones
func (r *Repository) ListPharmacies(ctx context.Context, activeOnly bool) ([]*Pharmacy, error) {
	query := `SELECT ` + pharmacyColumns + ` FROM pharmacy.pharmacies`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pharmacies")
	}
	defer rows.Close()

	pharmacies := []*Pharmacy{}
	for rows.Next() {
		p := &Pharmacy{}
		err := rows.Scan(
			&p.ID, &p.NCPDPID, &p.Name, &p.Phone, &p.Fax,
			&p.Street, &p.City, &p.State, &p.PostalCode,
			&p.Active, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan pharmacy")
		}
		pharmacies = append(pharmacies, p)
	}

	return pharmacies, nil
}

// SetPharmacyActive toggles a pharmacy's active flag
func (r *Repository) SetPharmacyActive(ctx context.Context, id types.ID, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pharmacy.pharmacies SET active = $2, updated_at = NOW() WHERE id = $1`,
		id, active)
	if err != nil {
		return errors.Wrap(err, "failed to update pharmacy")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("pharmacy", id.String())
	}
	return nil
}

// --- Prescriptions ---

const prescriptionColumns = `id, rx_number, patient_id, prescriber_id, pharmacy_id,
		medication, ndc_code, sig, quantity, refills_allowed, refills_remaining,
		status, discontinue_reason, written_at, expires_at, created_at, updated_at`

// CreatePrescription creates a new active prescription
func (r *Repository) CreatePrescription(ctx context.Context, p *Prescription) error {
	query := `
		INSERT INTO pharmacy.prescriptions (
			id, rx_number, patient_id, prescriber_id, pharmacy_id,
			medication, ndc_code, sig, quantity, refills_allowed, refills_remaining,
			status, written_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.RxNumber, p.PatientID, p.PrescriberID, p.PharmacyID,
		p.Medication, p.NDCCode, p.Sig, p.Quantity, p.RefillsAllowed, p.RefillsRemaining,
		p.Status, p.WrittenAt, p.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create prescription")
	}

	return nil
}

// GetPrescription retrieves a prescription by ID
func (r *Repository) GetPrescription(ctx context.Context, id types.ID) (*Prescription, error) {
	query := `SELECT ` + prescriptionColumns + ` FROM pharmacy.prescriptions WHERE id = $1`

	p, err := scanPrescription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("prescription", id.String())
		}
		return nil, errors.Wrap(err, "failed to get prescription")
	}

	return p, nil
}

// ListPrescriptions lists prescriptions matching the filter with a total count
func (r *Repository) ListPrescriptions(ctx context.Context, filter ListPrescriptionsFilter) ([]*Prescription, int, error) {
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
	if filter.Prescriber != nil {
		addCond("prescriber_id = $%d", *filter.Prescriber)
	}
	if filter.Status != nil {
		addCond("status = $%d", *filter.Status)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM pharmacy.prescriptions` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count prescriptions")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + prescriptionColumns + ` FROM pharmacy.prescriptions` + where +
		fmt.Sprintf(` ORDER BY written_at DESC LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list prescriptions")
	}
	defer rows.Close()

	prescriptions := []*Prescription{}
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan prescription")
		}
		prescriptions = append(prescriptions, p)
	}

	return prescriptions, total, nil
}

// UseRefill decrements the refill counter of an active prescription. The
// decrement happens in SQL so two refill requests cannot both consume the
// last refill.
func (r *Repository) UseRefill(ctx context.Context, id types.ID) (*Prescription, error) {
	query := `
		UPDATE pharmacy.prescriptions
		SET refills_remaining = refills_remaining - 1, updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND refills_remaining > 0
		RETURNING ` + prescriptionColumns

	p, err := scanPrescription(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.Conflict("prescription has no refills remaining or is not active")
		}
		return nil, errors.Wrap(err, "failed to use refill")
	}

	return p, nil
}

// UpdateStatus changes a prescription's status. Discontinuing records the
// reason; the expected current statuses guard against racing updates.
func (r *Repository) UpdateStatus(ctx context.Context, id types.ID, from []PrescriptionStatus, to PrescriptionStatus, reason string) error {
	placeholders := make([]string, len(from))
	args := []any{id, to, reason}
	for i, s := range from {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, s)
	}

	query := fmt.Sprintf(`
		UPDATE pharmacy.prescriptions
		SET status = $2,
		    discontinue_reason = CASE WHEN $3 <> '' THEN $3 ELSE discontinue_reason END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN (%s)`, strings.Join(placeholders, ", "))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update prescription status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict(fmt.Sprintf("prescription cannot move to %s from its current status", to))
	}

	return nil
}

// --- Transmissions ---

// CreateTransmission records an outbound delivery attempt
func (r *Repository) CreateTransmission(ctx context.Context, t *Transmission) error {
	query := `
		INSERT INTO pharmacy.transmissions (
			id, prescription_id, pharmacy_id, method, status, provider_ref, error_message, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.PrescriptionID, t.PharmacyID, t.Method, t.Status,
		t.ProviderRef, t.ErrorMessage, t.SentAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create transmission")
	}

	return nil
}

// ListTransmissions lists delivery attempts for a prescription, newest first
func (r *Repository) ListTransmissions(ctx context.Context, prescriptionID types.ID) ([]*Transmission, error) {
	query := `
		SELECT id, prescription_id, pharmacy_id, method, status, provider_ref,
		       error_message, sent_at, created_at
		FROM pharmacy.transmissions
		WHERE prescription_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, prescriptionID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transmissions")
	}
	defer rows.Close()

	transmissions := []*Transmission{}
	for rows.Next() {
		t := &Transmission{}
		err := rows.Scan(
			&t.ID, &t.PrescriptionID, &t.PharmacyID, &t.Method, &t.Status,
			&t.ProviderRef, &t.ErrorMessage, &t.SentAt, &t.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan transmission")
		}
		transmissions = append(transmissions, t)
	}

	return transmissions, nil
}

func scanPrescription(row pgx.Row) (*Prescription, error) {
	p := &Prescription{}
	err := row.Scan(
		&p.ID, &p.RxNumber, &p.PatientID, &p.PrescriberID, &p.PharmacyID,
		&p.Medication, &p.NDCCode, &p.Sig, &p.Quantity, &p.RefillsAllowed, &p.RefillsRemaining,
		&p.Status, &p.DiscontinueReason, &p.WrittenAt, &p.ExpiresAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}
