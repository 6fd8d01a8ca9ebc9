package roles

import (
	"context"
	"strings"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// Service handles role management business rules.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateRoleInput carries the attributes for a new role.
type CreateRoleInput struct {
	Name                string
	Description         string
	RegistrationAllowed bool
	RegistrationByRoles []int64
}

// Create inserts a new role.
func (s *Service) Create(ctx context.Context, in CreateRoleInput) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, shared.Fail(shared.ErrInvalidInput, "role name cannot be empty")
	}
	return s.repo.Create(ctx, Role{
		Name:                name,
		Description:         strings.TrimSpace(in.Description),
		RegistrationAllowed: in.RegistrationAllowed,
		RegistrationByRoles: in.RegistrationByRoles,
	})
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.Get(ctx, id)
}

// GetByName fetches a role by its unique name.
func (s *Service) GetByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetByName(ctx, name)
}

// List returns all roles.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// SignupRoles returns the roles open for public self-signup.
func (s *Service) SignupRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListSignup(ctx)
}

// UpdateRoleInput carries a partial role update; nil fields are left as-is.
type UpdateRoleInput struct {
	Name                *string
	Description         *string
	RegistrationAllowed *bool
	RegistrationByRoles []int64
}

// Update applies a partial update to an existing role. A role may never list
// its own id in RegistrationByRoles: self-creation through the delegated
// path is disallowed.
func (s *Service) Update(ctx context.Context, id int64, in UpdateRoleInput) (Role, error) {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Role{}, shared.Fail(shared.ErrInvalidInput, "role name cannot be empty")
		}
		role.Name = name
	}
	if in.Description != nil {
		role.Description = strings.TrimSpace(*in.Description)
	}
	if in.RegistrationAllowed != nil {
		role.RegistrationAllowed = *in.RegistrationAllowed
	}
	if in.RegistrationByRoles != nil {
		for _, rid := range in.RegistrationByRoles {
			if rid == id {
				return Role{}, shared.Fail(shared.ErrInvalidInput, "a role cannot delegate its own registration to itself")
			}
		}
		role.RegistrationByRoles = in.RegistrationByRoles
	}
	return s.repo.Update(ctx, role)
}

// Delete removes a role by id. The repository re-verifies reference counts
// within the delete transaction.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
