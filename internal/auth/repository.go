package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// Repository defines persistence for session audit rows and password reset
// codes.
type Repository interface {
	CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
	CreateOTP(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error
	// ConsumeOTP marks the newest matching unexpired code as used. A missing,
	// expired or already used code yields InvalidCredentials.
	ConsumeOTP(ctx context.Context, userID uuid.UUID, code string) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateSession records a login session for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at, ip, ua)
		VALUES ($1, $2, now(), $3, NULLIF($4, ''), NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE SET user_id = $2, expires_at = $3`,
		id, userID, expiresAt.UTC(), ip, ua)
	return err
}

// DeleteSession removes a session audit row.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// CreateOTP stores a fresh reset code, superseding earlier unused codes.
func (r *PGRepository) CreateOTP(ctx context.Context, userID uuid.UUID, code string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		WITH retired AS (
			UPDATE otps SET used = TRUE WHERE user_id = $1 AND NOT used
		)
		INSERT INTO otps (user_id, code, expires_at)
		VALUES ($1, $2, $3)`,
		userID, code, expiresAt.UTC())
	return err
}

// ConsumeOTP validates and burns a reset code in one statement.
func (r *PGRepository) ConsumeOTP(ctx context.Context, userID uuid.UUID, code string) error {
	var id int64
	err := r.pool.QueryRow(ctx, `
		UPDATE otps SET used = TRUE
		WHERE id = (
			SELECT id FROM otps
			WHERE user_id = $1 AND code = $2 AND NOT used AND expires_at > now()
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id`, userID, code).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Fail(shared.ErrInvalidCredentials, "reset code is invalid or expired")
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
