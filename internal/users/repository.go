package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldgate/fieldgate/internal/platform/db"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (User, error)
	GetWithRole(ctx context.Context, id uuid.UUID) (WithRole, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	ListByRole(ctx context.Context, roleID int64) ([]User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetProfilePicture(ctx context.Context, id uuid.UUID, key *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, full_name, email, password_hash, role_id, profile_picture, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.RoleID,
		&user.ProfilePicture, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.Fail(shared.ErrNotFound, "user not found")
	}
	return user, err
}

// Get fetches a user by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetWithRole fetches a user joined with the role name.
func (r *Repository) GetWithRole(ctx context.Context, id uuid.UUID) (WithRole, error) {
	var (
		out      WithRole
		roleName string
	)
	row := r.pool.QueryRow(ctx, `
		SELECT u.id, u.full_name, u.email, u.password_hash, u.role_id, u.profile_picture,
		       u.is_active, u.created_at, u.updated_at, r.name
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE u.id = $1`, id)
	err := row.Scan(&out.ID, &out.FullName, &out.Email, &out.PasswordHash, &out.RoleID,
		&out.ProfilePicture, &out.IsActive, &out.CreatedAt, &out.UpdatedAt, &roleName)
	if errors.Is(err, pgx.ErrNoRows) {
		return WithRole{}, shared.Fail(shared.ErrNotFound, "user not found")
	}
	out.RoleName = roleName
	return out, err
}

// GetByEmail fetches a user by the unique email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// ListByRole returns all users holding a role, newest last.
func (r *Repository) ListByRole(ctx context.Context, roleID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role_id = $1 ORDER BY created_at`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.RoleID,
			&user.ProfilePicture, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, role_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		user.ID, user.FullName, user.Email, user.PasswordHash, user.RoleID, user.IsActive)
	created, err := scanUser(row)
	if db.IsUniqueViolation(err, "") {
		return User{}, shared.Failf(shared.ErrConflict, "email %q is already registered", user.Email)
	}
	return created, err
}

// Update rewrites a user's profile attributes.
func (r *Repository) Update(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET full_name = $2, email = $3, role_id = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.FullName, user.Email, user.RoleID)
	updated, err := scanUser(row)
	if db.IsUniqueViolation(err, "") {
		return User{}, shared.Failf(shared.ErrConflict, "email %q is already registered", user.Email)
	}
	return updated, err
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

// SetActive flips the soft deactivation flag.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return r.exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

// SetProfilePicture stores or clears the profile picture key.
func (r *Repository) SetProfilePicture(ctx context.Context, id uuid.UUID, key *string) error {
	return r.exec(ctx, `UPDATE users SET profile_picture = $2, updated_at = now() WHERE id = $1`, id, key)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Fail(shared.ErrNotFound, "user not found")
	}
	return nil
}

// Delete hard-deletes a user together with stored field values and sessions.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM users_field_data WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM otps WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.Fail(shared.ErrNotFound, "user not found")
		}
		return nil
	})
}

var _ RepositoryPort = (*Repository)(nil)
