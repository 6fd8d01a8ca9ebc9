package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldgate/fieldgate/internal/platform/db"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RepositoryPort defines data access methods for the permission matrix.
type RepositoryPort interface {
	CreatePermission(ctx context.Context, perm Permission) (Permission, error)
	GetPermission(ctx context.Context, id int64) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	HasPermission(ctx context.Context, roleID int64, table, method string) (bool, error)
	Assign(ctx context.Context, roleID, permissionID int64) error
	Revoke(ctx context.Context, roleID, permissionID int64) error
	ListForRole(ctx context.Context, roleID int64) ([]Permission, error)
	RoleExists(ctx context.Context, roleID int64) (bool, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const permColumns = `id, table_name, method, description, created_at, updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.TableName, &p.Method, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, shared.Fail(shared.ErrNotFound, "permission not found")
	}
	return p, err
}

// CreatePermission inserts a new permission.
func (r *Repository) CreatePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (table_name, method, description)
		VALUES ($1, $2, $3)
		RETURNING `+permColumns,
		perm.TableName, perm.Method, perm.Description)
	created, err := scanPermission(row)
	if db.IsUniqueViolation(err, "") {
		return Permission{}, shared.Failf(shared.ErrConflict, "permission %s.%s already exists", perm.TableName, perm.Method)
	}
	return created, err
}

// GetPermission fetches a permission by id.
func (r *Repository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permColumns+` FROM permissions WHERE id = $1`, id))
}

// ListPermissions returns all permissions ordered by table and method.
func (r *Repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.queryPermissions(ctx, `SELECT `+permColumns+` FROM permissions ORDER BY table_name, method`)
}

// HasPermission reports whether a role_permissions row joins the role to a
// permission matching table and method, case-insensitively.
func (r *Repository) HasPermission(ctx context.Context, roleID int64, table, method string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM role_permissions rp
			JOIN permissions p ON p.id = rp.permission_id
			WHERE rp.role_id = $1
			  AND lower(p.table_name) = lower($2)
			  AND lower(p.method) = lower($3)
		)`, roleID, table, method).Scan(&exists)
	return exists, err
}

// Assign creates a role-permission mapping.
func (r *Repository) Assign(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		VALUES ($1, $2)
		ON CONFLICT (role_id, permission_id) DO NOTHING`,
		roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Fail(shared.ErrConflict, "permission already assigned to role")
	}
	return nil
}

// Revoke removes a role-permission mapping.
func (r *Repository) Revoke(ctx context.Context, roleID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Fail(shared.ErrNotFound, "role-permission mapping not found")
	}
	return nil
}

// ListForRole returns the resolved Permission rows assigned to a role.
func (r *Repository) ListForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return r.queryPermissions(ctx, `
		SELECT p.id, p.table_name, p.method, p.description, p.created_at, p.updated_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.table_name, p.method`, roleID)
}

// RoleExists reports whether a role id resolves.
func (r *Repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID).Scan(&exists)
	return exists, err
}

func (r *Repository) queryPermissions(ctx context.Context, query string, args ...any) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.TableName, &p.Method, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
