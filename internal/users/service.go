package users

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RoleSource resolves roles during account creation. Satisfied by the roles
// repository.
type RoleSource interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// HierarchyPort decides delegated creation and listing. Satisfied by the
// role hierarchy policy.
type HierarchyPort interface {
	CanCreateUserWithRole(ctx context.Context, actorRoleID, targetRoleID int64) error
	CanListUsersOfRole(ctx context.Context, actorRoleID, targetRoleID int64) error
}

// Notifier sends account lifecycle mail. A nil Notifier disables mail.
type Notifier interface {
	Welcome(ctx context.Context, email, fullName string) error
}

// Service owns account lifecycle and profile management.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	roles     RoleSource
	hierarchy HierarchyPort
	notifier  Notifier
	validate  *validator.Validate
}

// NewService constructs the user service.
func NewService(logger *slog.Logger, repo RepositoryPort, roleSource RoleSource, hierarchy HierarchyPort, notifier Notifier) *Service {
	return &Service{
		logger:    logger,
		repo:      repo,
		roles:     roleSource,
		hierarchy: hierarchy,
		notifier:  notifier,
		validate:  validator.New(),
	}
}

// CreateUserInput carries the attributes of a new account.
type CreateUserInput struct {
	FullName string
	Email    string
	Password string
	RoleID   int64
}

// UpdateUserInput carries partial profile updates.
type UpdateUserInput struct {
	FullName *string
	Email    *string
}

// Signup creates an account through the public self-signup path. Only roles
// with registration enabled are reachable here.
func (s *Service) Signup(ctx context.Context, in CreateUserInput) (User, error) {
	role, err := s.roles.Get(ctx, in.RoleID)
	if err != nil {
		return User{}, err
	}
	if !role.RegistrationAllowed {
		return User{}, shared.Failf(shared.ErrForbidden, "role %q is not open for signup", role.Name)
	}
	return s.create(ctx, in)
}

// Create creates an account on behalf of another user, subject to the role
// hierarchy policy.
func (s *Service) Create(ctx context.Context, actor roles.Actor, in CreateUserInput) (User, error) {
	if err := s.hierarchy.CanCreateUserWithRole(ctx, actor.RoleID, in.RoleID); err != nil {
		return User{}, err
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in CreateUserInput) (User, error) {
	fullName := norm.NFC.String(strings.TrimSpace(in.FullName))
	if fullName == "" {
		return User{}, shared.Fail(shared.ErrInvalidInput, "full name must not be empty")
	}
	email, err := s.normalizeEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	if err := CheckPasswordPolicy(in.Password); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user, err := s.repo.Create(ctx, User{
		ID:           uuid.New(),
		FullName:     fullName,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       in.RoleID,
		IsActive:     true,
	})
	if err != nil {
		return User{}, err
	}
	if s.notifier != nil {
		if err := s.notifier.Welcome(ctx, user.Email, user.FullName); err != nil {
			s.logger.Warn("enqueue welcome mail", slog.String("email", user.Email), slog.Any("error", err))
		}
	}
	return user, nil
}

func (s *Service) normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", shared.Fail(shared.ErrInvalidInput, "invalid email address")
	}
	return email, nil
}

// CheckPasswordPolicy enforces the account password format: at least eight
// characters with an upper, a lower, a digit and a special character.
func CheckPasswordPolicy(password string) error {
	if len(password) < 8 {
		return shared.Fail(shared.ErrInvalidInput, "password must be at least 8 characters")
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return shared.Fail(shared.ErrInvalidInput, "password needs an upper, a lower, a digit and a special character")
	}
	return nil
}

// Get returns a user visible to the actor: themselves, or anyone the role
// hierarchy lets them view.
func (s *Service) Get(ctx context.Context, actor roles.Actor, id uuid.UUID) (WithRole, error) {
	user, err := s.repo.GetWithRole(ctx, id)
	if err != nil {
		return WithRole{}, err
	}
	if actor.UserID == id || actor.Tier().Elevated() {
		return user, nil
	}
	if err := s.hierarchy.CanListUsersOfRole(ctx, actor.RoleID, user.RoleID); err != nil {
		return WithRole{}, err
	}
	return user, nil
}

// ListByRole returns the users of one role, subject to the hierarchy policy.
func (s *Service) ListByRole(ctx context.Context, actor roles.Actor, roleID int64) ([]User, error) {
	if err := s.hierarchy.CanListUsersOfRole(ctx, actor.RoleID, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListByRole(ctx, roleID)
}

// Update rewrites profile attributes. Users edit themselves; elevated roles
// edit anyone.
func (s *Service) Update(ctx context.Context, actor roles.Actor, id uuid.UUID, in UpdateUserInput) (User, error) {
	if actor.UserID != id && !actor.Tier().Elevated() {
		return User{}, shared.Fail(shared.ErrForbidden, "not allowed to edit this account")
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	if in.FullName != nil {
		fullName := norm.NFC.String(strings.TrimSpace(*in.FullName))
		if fullName == "" {
			return User{}, shared.Fail(shared.ErrInvalidInput, "full name must not be empty")
		}
		user.FullName = fullName
	}
	if in.Email != nil {
		email, err := s.normalizeEmail(*in.Email)
		if err != nil {
			return User{}, err
		}
		user.Email = email
	}
	return s.repo.Update(ctx, user)
}

// ChangePassword replaces the account password. The owner must present the
// current password; elevated roles may reset without it.
func (s *Service) ChangePassword(ctx context.Context, actor roles.Actor, id uuid.UUID, current, next string) error {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case actor.UserID == id:
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
			return shared.Fail(shared.ErrInvalidCredentials, "current password does not match")
		}
	case actor.Tier().Elevated():
	default:
		return shared.Fail(shared.ErrForbidden, "not allowed to change this account's password")
	}
	if err := CheckPasswordPolicy(next); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.repo.UpdatePassword(ctx, id, string(hash))
}

// SetActive soft-deactivates or restores an account.
func (s *Service) SetActive(ctx context.Context, actor roles.Actor, id uuid.UUID, active bool) error {
	if !actor.Tier().Elevated() {
		return shared.Fail(shared.ErrForbidden, "only elevated roles may change account status")
	}
	return s.repo.SetActive(ctx, id, active)
}

// Delete hard-deletes an account and its dependent rows.
func (s *Service) Delete(ctx context.Context, actor roles.Actor, id uuid.UUID) error {
	if !actor.Tier().Elevated() {
		return shared.Fail(shared.ErrForbidden, "only elevated roles may delete accounts")
	}
	return s.repo.Delete(ctx, id)
}

// SetProfilePicture stores a new picture key and returns the replaced one.
func (s *Service) SetProfilePicture(ctx context.Context, actor roles.Actor, id uuid.UUID, key *string) (*string, error) {
	if actor.UserID != id && !actor.Tier().Elevated() {
		return nil, shared.Fail(shared.ErrForbidden, "not allowed to edit this account")
	}
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetProfilePicture(ctx, id, key); err != nil {
		return nil, err
	}
	return user.ProfilePicture, nil
}
