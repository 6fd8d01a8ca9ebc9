package values

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldgate/fieldgate/internal/platform/db"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RepositoryPort defines data access for stored field values. Insert and
// Update are split so the service can resolve first-fill races explicitly.
type RepositoryPort interface {
	Get(ctx context.Context, userID uuid.UUID, fieldID int64) (Value, error)
	Insert(ctx context.Context, value Value) (Value, error)
	Update(ctx context.Context, value Value) (Value, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Value, error)
	Delete(ctx context.Context, userID uuid.UUID, fieldID int64) error
}

// Repository provides PostgreSQL backed persistence. The unique index on
// (user_id, required_field_id) is the arbiter for concurrent first fills.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const valueColumns = `id, user_id, required_field_id, value, created_at, updated_at`

// envelope is the at-rest wrapper around a normalized value.
type envelope struct {
	Data any `json:"data"`
}

func wrapValue(data any) ([]byte, error) {
	return json.Marshal(envelope{Data: data})
}

func unwrapValue(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func scanValue(row pgx.Row) (Value, error) {
	var (
		value Value
		raw   []byte
	)
	err := row.Scan(&value.ID, &value.UserID, &value.RequiredFieldID, &raw,
		&value.CreatedAt, &value.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Value{}, shared.Fail(shared.ErrNotFound, "field value not found")
	}
	if err != nil {
		return Value{}, err
	}
	value.Data, err = unwrapValue(raw)
	return value, err
}

// Get fetches the stored value for one (user, field) pair.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID, fieldID int64) (Value, error) {
	return scanValue(r.pool.QueryRow(ctx, `
		SELECT `+valueColumns+` FROM users_field_data
		WHERE user_id = $1 AND required_field_id = $2`, userID, fieldID))
}

// Insert records a first fill. A concurrent first fill that lost the race
// surfaces as Conflict.
func (r *Repository) Insert(ctx context.Context, value Value) (Value, error) {
	raw, err := wrapValue(value.Data)
	if err != nil {
		return Value{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users_field_data (user_id, required_field_id, value)
		VALUES ($1, $2, $3)
		RETURNING `+valueColumns,
		value.UserID, value.RequiredFieldID, raw)
	inserted, err := scanValue(row)
	if db.IsUniqueViolation(err, "") {
		return Value{}, shared.Fail(shared.ErrConflict, "field value already recorded")
	}
	return inserted, err
}

// Update replaces the stored value in place; the pair must already be filled.
func (r *Repository) Update(ctx context.Context, value Value) (Value, error) {
	raw, err := wrapValue(value.Data)
	if err != nil {
		return Value{}, err
	}
	return scanValue(r.pool.QueryRow(ctx, `
		UPDATE users_field_data
		SET value = $3, updated_at = now()
		WHERE user_id = $1 AND required_field_id = $2
		RETURNING `+valueColumns,
		value.UserID, value.RequiredFieldID, raw))
}

// ListForUser returns every stored value belonging to a user.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Value, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+valueColumns+` FROM users_field_data
		WHERE user_id = $1 ORDER BY required_field_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Value
	for rows.Next() {
		var (
			value Value
			raw   []byte
		)
		if err := rows.Scan(&value.ID, &value.UserID, &value.RequiredFieldID, &raw,
			&value.CreatedAt, &value.UpdatedAt); err != nil {
			return nil, err
		}
		if value.Data, err = unwrapValue(raw); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

// Delete clears the stored value, returning the pair to the unfilled state.
func (r *Repository) Delete(ctx context.Context, userID uuid.UUID, fieldID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM users_field_data
		WHERE user_id = $1 AND required_field_id = $2`, userID, fieldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Fail(shared.ErrNotFound, "field value not found")
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
