package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldgate/fieldgate/internal/shared"
	"github.com/fieldgate/fieldgate/internal/users"
)

const otpTTL = 10 * time.Minute

// UserStore is the slice of the user repository the auth flows need.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (users.User, error)
	GetWithRole(ctx context.Context, id uuid.UUID) (users.WithRole, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

// ResetNotifier delivers password reset codes. A nil notifier disables the
// reset flow's mail leg but codes are still recorded.
type ResetNotifier interface {
	PasswordResetCode(ctx context.Context, email, code string) error
}

// Service wraps authentication business rules.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	users    UserStore
	notifier ResetNotifier
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, repo Repository, userStore UserStore, notifier ResetNotifier) *Service {
	return &Service{logger: logger, repo: repo, users: userStore, notifier: notifier}
}

// Authenticate validates email/password credentials. Inactive accounts and
// unknown emails are indistinguishable from a wrong password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (users.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return users.User{}, shared.Fail(shared.ErrInvalidCredentials, "invalid email or password")
	}
	if !user.IsActive {
		return users.User{}, shared.Fail(shared.ErrInvalidCredentials, "invalid email or password")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return users.User{}, shared.Fail(shared.ErrInvalidCredentials, "invalid email or password")
	}
	return user, nil
}

// CurrentUser loads the account behind an authenticated session.
func (s *Service) CurrentUser(ctx context.Context, id uuid.UUID) (users.WithRole, error) {
	return s.users.GetWithRole(ctx, id)
}

// RegisterSession persists session metadata for auditing.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session audit row.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// RequestPasswordReset issues a one-time code for the account. Unknown
// emails succeed silently so the endpoint does not leak which addresses
// exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	code, err := generateOTP()
	if err != nil {
		return err
	}
	if err := s.repo.CreateOTP(ctx, user.ID, code, time.Now().Add(otpTTL)); err != nil {
		return err
	}
	if s.notifier != nil {
		if err := s.notifier.PasswordResetCode(ctx, user.Email, code); err != nil {
			s.logger.Warn("enqueue reset mail", slog.String("email", user.Email), slog.Any("error", err))
		}
	}
	return nil
}

// ResetPassword burns the one-time code and installs a new password.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return shared.Fail(shared.ErrInvalidCredentials, "reset code is invalid or expired")
	}
	if err := users.CheckPasswordPolicy(newPassword); err != nil {
		return err
	}
	if err := s.repo.ConsumeOTP(ctx, user.ID, code); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, user.ID, string(hash))
}

// generateOTP returns a uniformly random six digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
