package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Repository provides database operations for platform users
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new user repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, first_name, last_name, role, npi, credentials, phone,
		status, last_login_at, created_at, updated_at`

// Create creates a new user with a pre-hashed password
func (r *Repository) Create(ctx context.Context, u *User, passwordHash string) error {
	query := `
		INSERT INTO identity.users (
			id, email, first_name, last_name, role, npi, credentials, phone,
			status, password_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		u.ID, u.Email, u.FirstName, u.LastName, u.Role, u.NPI, u.Credentials, u.Phone,
		u.Status, passwordHash,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("user with this email already exists")
		}
		return errors.Wrap(err, "failed to create user")
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *Repository) GetByID(ctx context.Context, id types.ID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM identity.users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("user", id.String())
		}
		return nil, errors.Wrap(err, "failed to get user")
	}

	return u, nil
}

// GetByEmail retrieves a user with their password hash for authentication
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + `, COALESCE(password_hash, '')
		FROM identity.users WHERE email = $1`

	u := &User{}
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.NPI, &u.Credentials,
		&u.Phone, &u.Status, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
		&u.passwordHash,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errors.NotFound("user", email)
		}
		return nil, errors.Wrap(err, "failed to get user")
	}

	return u, nil
}

// Update updates a user's profile and role
func (r *Repository) Update(ctx context.Context, u *User) error {
	query := `
		UPDATE identity.users
		SET first_name = $2, last_name = $3, role = $4, npi = $5,
		    credentials = $6, phone = $7, status = $8, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		u.ID, u.FirstName, u.LastName, u.Role, u.NPI, u.Credentials, u.Phone, u.Status)
	if err != nil {
		return errors.Wrap(err, "failed to update user")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("user", u.ID.String())
	}

	return nil
}

// SetPassword replaces the stored password hash
func (r *Repository) SetPassword(ctx context.Context, id types.ID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE identity.users SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)
	if err != nil {
		return errors.Wrap(err, "failed to set password")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("user", id.String())
	}
	return nil
}

// RecordLogin stamps the last login time
func (r *Repository) RecordLogin(ctx context.Context, id types.ID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE identity.users SET last_login_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to record login")
	}
	return nil
}

// List lists users matching the filter with a total count
func (r *Repository) List(ctx context.Context, filter ListUsersFilter) ([]*User, int, error) {
	where := ""
	args := []any{}
	argNum := 1

	addCond := func(cond string, vals ...any) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		nums := make([]any, len(vals))
		for i := range vals {
			nums[i] = argNum
			args = append(args, vals[i])
			argNum++
		}
		where += fmt.Sprintf(cond, nums...)
	}

	if filter.Role != "" {
		addCond("role = $%d", filter.Role)
	}
	if filter.Status != nil {
		addCond("status = $%d", *filter.Status)
	}
	if filter.Search != "" {
		addCond("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)",
			"%"+filter.Search+"%", "%"+filter.Search+"%", "%"+filter.Search+"%")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM identity.users` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count users")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `SELECT ` + userColumns + ` FROM identity.users` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, argNum, argNum+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, u)
	}

	return users, total, nil
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.NPI, &u.Credentials,
		&u.Phone, &u.Status, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
