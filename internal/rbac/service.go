package rbac

import (
	"context"
	"strings"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// Service orchestrates the {table}.{method} permission matrix. It is
// orthogonal to the role hierarchy policy: any component may consult it
// before a generic CRUD operation.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreatePermission registers a new authorizable action. TableName and
// Method are lowercased on the way in so lookups stay case-insensitive.
func (s *Service) CreatePermission(ctx context.Context, table, method, description string) (Permission, error) {
	table = strings.ToLower(strings.TrimSpace(table))
	method = strings.ToLower(strings.TrimSpace(method))
	if table == "" || method == "" {
		return Permission{}, shared.Fail(shared.ErrInvalidInput, "table name and method are required")
	}
	return s.repo.CreatePermission(ctx, Permission{
		TableName:   table,
		Method:      method,
		Description: strings.TrimSpace(description),
	})
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// HasPermission reports whether the role is granted {table}.{method}.
func (s *Service) HasPermission(ctx context.Context, roleID int64, table, method string) (bool, error) {
	return s.repo.HasPermission(ctx, roleID, table, method)
}

// Assign grants a permission to a role. Fails with Conflict when the pair
// already exists and NotFound when either id does not resolve.
func (s *Service) Assign(ctx context.Context, roleID, permissionID int64) error {
	ok, err := s.repo.RoleExists(ctx, roleID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Failf(shared.ErrNotFound, "role %d not found", roleID)
	}
	if _, err := s.repo.GetPermission(ctx, permissionID); err != nil {
		return err
	}
	return s.repo.Assign(ctx, roleID, permissionID)
}

// Revoke removes a permission from a role. Fails with NotFound when the
// mapping is absent.
func (s *Service) Revoke(ctx context.Context, roleID, permissionID int64) error {
	return s.repo.Revoke(ctx, roleID, permissionID)
}

// PermissionsForRole returns the resolved Permission rows assigned to the role.
func (s *Service) PermissionsForRole(ctx context.Context, roleID int64) ([]Permission, error) {
	return s.repo.ListForRole(ctx, roleID)
}
