package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldgate/fieldgate/internal/platform/db"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	List(ctx context.Context) ([]Role, error)
	ListSignup(ctx context.Context) ([]Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	// Delete removes the role only when no user and no required field still
	// references it; the reference re-check and the delete share one
	// transaction.
	Delete(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, description, registration_allowed, registration_by_roles, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.RegistrationAllowed,
		&role.RegistrationByRoles, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.Fail(shared.ErrNotFound, "role not found")
	}
	return role, err
}

// Get fetches a role by id.
func (r *Repository) Get(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetByName fetches a role by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

// List returns all roles ordered by id.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
}

// ListSignup returns the roles open for public self-signup.
func (r *Repository) ListSignup(ctx context.Context) ([]Role, error) {
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE registration_allowed ORDER BY id`)
}

func (r *Repository) queryRoles(ctx context.Context, query string, args ...any) ([]Role, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.RegistrationAllowed,
			&role.RegistrationByRoles, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Create inserts a new role. The roles_no_self_delegation constraint checks
// the delegation list against the assigned id inside the insert, so a list
// that guesses the next serial id still cannot reference the new role itself.
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, registration_allowed, registration_by_roles)
		VALUES ($1, $2, $3, $4)
		RETURNING `+roleColumns,
		role.Name, role.Description, role.RegistrationAllowed, role.RegistrationByRoles)
	created, err := scanRole(row)
	if db.IsUniqueViolation(err, "") {
		return Role{}, shared.Failf(shared.ErrConflict, "role %q already exists", role.Name)
	}
	if db.IsCheckViolation(err, "roles_no_self_delegation") {
		return Role{}, shared.Fail(shared.ErrInvalidInput, "a role cannot delegate its own registration to itself")
	}
	return created, err
}

// Update rewrites a role's mutable attributes.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, registration_allowed = $4,
		    registration_by_roles = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.RegistrationAllowed, role.RegistrationByRoles)
	updated, err := scanRole(row)
	if db.IsUniqueViolation(err, "") {
		return Role{}, shared.Failf(shared.ErrConflict, "role %q already exists", role.Name)
	}
	if db.IsCheckViolation(err, "roles_no_self_delegation") {
		return Role{}, shared.Fail(shared.ErrInvalidInput, "a role cannot delegate its own registration to itself")
	}
	return updated, err
}

// Delete removes a role after re-verifying, inside the same transaction,
// that no user and no required field still references it.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var userCount, fieldCount int64
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM users WHERE role_id = $1`, id).Scan(&userCount); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM required_fields_for_users WHERE role_id = $1`, id).Scan(&fieldCount); err != nil {
			return err
		}
		if userCount > 0 || fieldCount > 0 {
			return shared.Fail(shared.ErrConflict, "role is still referenced by users or required fields")
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.Fail(shared.ErrNotFound, "role not found")
		}
		return nil
	})
}

var _ RepositoryPort = (*Repository)(nil)
