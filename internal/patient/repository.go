package patient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for patient records
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const patientColumns = `id, mrn, first_name, last_name, middle_name, date_of_birth, gender,
		ssn_last4,
		address_street, address_city, address_state, address_postal_code, address_country,
		contact_email, contact_phone, contact_mobile,
		payer, medicare_id, medicaid_id,
		primary_diagnosis, secondary_diagnoses, homebound_status,
		assigned_clinician, status, created_at, updated_at`

// Create creates a new patient record
func (r *Repository) Create(ctx context.Context, p *Patient) error {
	diagnosesJSON, err := json.Marshal(p.SecondaryDiagnoses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal secondary diagnoses")
	}

	query := `
		INSERT INTO patients.patients (
			id, mrn, first_name, last_name, middle_name, date_of_birth, gender,
			ssn_last4,
			address_street, address_city, address_state, address_postal_code, address_country,
			contact_email, contact_phone, contact_mobile,
			payer, medicare_id, medicaid_id,
			primary_diagnosis, secondary_diagnoses, homebound_status,
			assigned_clinician, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8,
			$9, $10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21, $22,
			$23, $24
		)`

	_, err = r.pool.Exec(ctx, query,
		p.ID, p.MRN.String(), p.FirstName, p.LastName, p.MiddleName, p.DateOfBirth, p.Gender,
		p.SSNLast4,
		p.Address.Street, p.Address.City, p.Address.State, p.Address.PostalCode, p.Address.Country,
		p.Contact.Email, p.Contact.Phone, p.Contact.Mobile,
		p.Payer, p.MedicareID, p.MedicaidID,
		p.PrimaryDiagnosis, diagnosesJSON, p.HomeboundStatus,
		p.AssignedClinician, p.Status,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("patient with this MRN already exists")
		}
		return errors.Wrap(err, "failed to create patient")
	}

	return nil
}

// GetByID retrieves a patient by ID
func (r *Repository) GetByID(ctx context.Context, id types.ID) (*Patient, error) {
	query := fmt.Sprintf(`SELECT %s FROM patients.patients WHERE id = $1 AND deleted_at IS NULL`, patientColumns)
	return r.scanPatient(r.pool.QueryRow(ctx, query, id), id.String())
}

// GetByMRN retrieves a patient by medical record number
func (r *Repository) GetByMRN(ctx context.Context, mrn types.MRN) (*Patient, error) {
	query := fmt.Sprintf(`SELECT %s FROM patients.patients WHERE mrn = $1 AND deleted_at IS NULL`, patientColumns)
	return r.scanPatient(r.pool.QueryRow(ctx, query, mrn.String()), mrn.Masked())
}

func (r *Repository) scanPatient(row pgx.Row, ref string) (*Patient, error) {
	p := &Patient{}
	var mrn string
	var diagnosesJSON []byte

	err := row.Scan(
		&p.ID, &mrn, &p.FirstName, &p.LastName, &p.MiddleName, &p.DateOfBirth, &p.Gender,
		&p.SSNLast4,
		&p.Address.Street, &p.Address.City, &p.Address.State, &p.Address.PostalCode, &p.Address.Country,
		&p.Contact.Email, &p.Contact.Phone, &p.Contact.Mobile,
		&p.Payer, &p.MedicareID, &p.MedicaidID,
		&p.PrimaryDiagnosis, &diagnosesJSON, &p.HomeboundStatus,
		&p.AssignedClinician, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient")
	}

	p.MRN = types.MRN(mrn)
	if len(diagnosesJSON) > 0 {
		if err := json.Unmarshal(diagnosesJSON, &p.SecondaryDiagnoses); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal secondary diagnoses")
		}
	}

	return p, nil
}

// Update updates a patient record
func (r *Repository) Update(ctx context.Context, p *Patient) error {
	diagnosesJSON, err := json.Marshal(p.SecondaryDiagnoses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal secondary diagnoses")
	}

	query := `
		UPDATE patients.patients SET
			first_name = $2, last_name = $3, middle_name = $4,
			address_street = $5, address_city = $6, address_state = $7,
			address_postal_code = $8, address_country = $9,
			contact_email = $10, contact_phone = $11, contact_mobile = $12,
			payer = $13, medicare_id = $14, medicaid_id = $15,
			primary_diagnosis = $16, secondary_diagnoses = $17, homebound_status = $18,
			assigned_clinician = $19, status = $20, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.FirstName, p.LastName, p.MiddleName,
		p.Address.Street, p.Address.City, p.Address.State,
		p.Address.PostalCode, p.Address.Country,
		p.Contact.Email, p.Contact.Phone, p.Contact.Mobile,
		p.Payer, p.MedicareID, p.MedicaidID,
		p.PrimaryDiagnosis, diagnosesJSON, p.HomeboundStatus,
		p.AssignedClinician, p.Status,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID.String())
	}

	return nil
}

// SoftDelete flags a patient record as deleted without removing the row
func (r *Repository) SoftDelete(ctx context.Context, id types.ID) error {
	query := `UPDATE patients.patients SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete patient")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", id.String())
	}

	return nil
}

// Restore clears the deleted flag on a soft-deleted patient
func (r *Repository) Restore(ctx context.Context, id types.ID) error {
	query := `UPDATE patients.patients SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return errors.Wrap(err, "failed to restore patient")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", id.String())
	}

	return nil
}

// List retrieves patients matching the filter with a total count
func (r *Repository) List(ctx context.Context, filter ListPatientsFilter) ([]*Patient, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}
	if filter.AssignedClinician != nil {
		conditions = append(conditions, fmt.Sprintf("assigned_clinician = $%d", argNum))
		args = append(args, *filter.AssignedClinician)
		argNum++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR mrn = $%d)", argNum, argNum, argNum+1))
		args = append(args, "%"+filter.Search+"%", filter.Search)
		argNum += 2
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := "SELECT COUNT(*) FROM patients.patients " + whereClause
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count patients")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`SELECT %s FROM patients.patients %s
		ORDER BY last_name, first_name
		LIMIT $%d OFFSET $%d`, patientColumns, whereClause, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p := &Patient{}
		var mrn string
		var diagnosesJSON []byte

		err := rows.Scan(
			&p.ID, &mrn, &p.FirstName, &p.LastName, &p.MiddleName, &p.DateOfBirth, &p.Gender,
			&p.SSNLast4,
			&p.Address.Street, &p.Address.City, &p.Address.State, &p.Address.PostalCode, &p.Address.Country,
			&p.Contact.Email, &p.Contact.Phone, &p.Contact.Mobile,
			&p.Payer, &p.MedicareID, &p.MedicaidID,
			&p.PrimaryDiagnosis, &diagnosesJSON, &p.HomeboundStatus,
			&p.AssignedClinician, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan patient")
		}

		p.MRN = types.MRN(mrn)
		if len(diagnosesJSON) > 0 {
			if err := json.Unmarshal(diagnosesJSON, &p.SecondaryDiagnoses); err != nil {
				return nil, 0, errors.Wrap(err, "failed to unmarshal secondary diagnoses")
			}
		}

		patients = append(patients, p)
	}

	return patients, total, rows.Err()
}

// UpdateHomeboundStatus records the latest homebound determination
func (r *Repository) UpdateHomeboundStatus(ctx context.Context, id types.ID, status HomeboundStatus) error {
	query := `UPDATE patients.patients SET homebound_status = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return errors.Wrap(err, "failed to update homebound status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patient", id.String())
	}

	return nil
}
