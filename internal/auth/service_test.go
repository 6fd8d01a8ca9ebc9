package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldgate/fieldgate/internal/shared"
	"github.com/fieldgate/fieldgate/internal/users"
)

type otpRecord struct {
	code      string
	expiresAt time.Time
	used      bool
}

type memoryAuthRepo struct {
	mu       sync.Mutex
	sessions map[string]uuid.UUID
	otps     map[uuid.UUID][]*otpRecord
}

func newMemoryAuthRepo() *memoryAuthRepo {
	return &memoryAuthRepo{sessions: map[string]uuid.UUID{}, otps: map[uuid.UUID][]*otpRecord{}}
}

func (m *memoryAuthRepo) CreateSession(_ context.Context, id string, userID uuid.UUID, _ time.Time, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = userID
	return nil
}

func (m *memoryAuthRepo) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryAuthRepo) CreateOTP(_ context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.otps[userID] {
		rec.used = true
	}
	m.otps[userID] = append(m.otps[userID], &otpRecord{code: code, expiresAt: expiresAt})
	return nil
}

func (m *memoryAuthRepo) ConsumeOTP(_ context.Context, userID uuid.UUID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.otps[userID]
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.code == code && !rec.used && rec.expiresAt.After(time.Now()) {
			rec.used = true
			return nil
		}
	}
	return shared.Fail(shared.ErrInvalidCredentials, "reset code is invalid or expired")
}

func (m *memoryAuthRepo) latestOTP(userID uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.otps[userID]
	if len(records) == 0 {
		return ""
	}
	return records[len(records)-1].code
}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]users.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: map[uuid.UUID]users.User{}}
}

func (m *memoryUserStore) add(email, password string, active bool) users.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user := users.User{
		ID:           uuid.New(),
		FullName:     "Test User",
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       4,
		IsActive:     active,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return user
}

func (m *memoryUserStore) GetByEmail(_ context.Context, email string) (users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return users.User{}, shared.Fail(shared.ErrNotFound, "user not found")
}

func (m *memoryUserStore) GetWithRole(_ context.Context, id uuid.UUID) (users.WithRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return users.WithRole{}, shared.Fail(shared.ErrNotFound, "user not found")
	}
	return users.WithRole{User: user, RoleName: "Student"}, nil
}

func (m *memoryUserStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return shared.Fail(shared.ErrNotFound, "user not found")
	}
	user.PasswordHash = hash
	m.users[id] = user
	return nil
}

type captureResetNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureResetNotifier) PasswordResetCode(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[email] = code
	return nil
}

func newAuthService() (*Service, *memoryAuthRepo, *memoryUserStore, *captureResetNotifier) {
	repo := newMemoryAuthRepo()
	store := newMemoryUserStore()
	notifier := &captureResetNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, store, notifier), repo, store, notifier
}

func TestAuthenticate(t *testing.T) {
	svc, _, store, _ := newAuthService()
	ctx := context.Background()
	user := store.add("ada@example.com", "Passw0rd!", true)

	got, err := svc.Authenticate(ctx, "Ada@Example.com ", "Passw0rd!")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "Passw0rd!")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateInactiveAccount(t *testing.T) {
	svc, _, store, _ := newAuthService()
	store.add("gone@example.com", "Passw0rd!", false)

	_, err := svc.Authenticate(context.Background(), "gone@example.com", "Passw0rd!")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, repo, store, notifier := newAuthService()
	ctx := context.Background()
	user := store.add("ada@example.com", "Passw0rd!", true)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ada@example.com"))
	code := repo.latestOTP(user.ID)
	require.Len(t, code, 6)
	require.Equal(t, code, notifier.codes["ada@example.com"])

	// Wrong code does not burn the stored one.
	err := svc.ResetPassword(ctx, "ada@example.com", "000000", "N3wPass!x")
	if code == "000000" {
		t.Skip("generated code collided with the probe value")
	}
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.ResetPassword(ctx, "ada@example.com", code, "N3wPass!x"))

	_, err = svc.Authenticate(ctx, "ada@example.com", "N3wPass!x")
	require.NoError(t, err)

	// The code is single use.
	err = svc.ResetPassword(ctx, "ada@example.com", code, "An0ther!x")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestPasswordResetUnknownEmailSilent(t *testing.T) {
	svc, _, _, notifier := newAuthService()
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	require.Empty(t, notifier.codes)
}

func TestPasswordResetEnforcesPolicy(t *testing.T) {
	svc, repo, store, _ := newAuthService()
	ctx := context.Background()
	user := store.add("ada@example.com", "Passw0rd!", true)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ada@example.com"))
	code := repo.latestOTP(user.ID)

	err := svc.ResetPassword(ctx, "ada@example.com", code, "weak")
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	// A rejected password leaves the code usable.
	require.NoError(t, svc.ResetPassword(ctx, "ada@example.com", code, "N3wPass!x"))
}
