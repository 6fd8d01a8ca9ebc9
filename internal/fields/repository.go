package fields

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldgate/fieldgate/internal/platform/db"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RepositoryPort defines data access methods for field definitions.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Field, error)
	ListForRole(ctx context.Context, roleID int64, activeOnly bool) ([]Field, error)
	Create(ctx context.Context, field Field) (Field, error)
	Update(ctx context.Context, field Field) (Field, error)
	SetActive(ctx context.Context, id int64, active bool) (Field, error)
	Delete(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence for field definitions.
// Options and validation constraints live in jsonb columns.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fieldColumns = `id, role_id, field_name, field_type, is_required, filled_by_role_id,
	editable_by_role_id, options, validation, display_order, is_active, created_at, updated_at`

func scanField(row pgx.Row) (Field, error) {
	var (
		field          Field
		rawOptions     []byte
		rawConstraints []byte
	)
	err := row.Scan(&field.ID, &field.RoleID, &field.FieldName, &field.FieldType, &field.IsRequired,
		&field.FilledByRoleID, &field.EditableByRoleID, &rawOptions, &rawConstraints,
		&field.DisplayOrder, &field.IsActive, &field.CreatedAt, &field.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Field{}, shared.Fail(shared.ErrNotFound, "field not found")
	}
	if err != nil {
		return Field{}, err
	}
	return hydrateField(field, rawOptions, rawConstraints)
}

func hydrateField(field Field, rawOptions, rawConstraints []byte) (Field, error) {
	if len(rawOptions) > 0 {
		if err := json.Unmarshal(rawOptions, &field.Options); err != nil {
			return Field{}, err
		}
	}
	constraints, err := DecodeConstraints(field.FieldType, rawConstraints)
	if err != nil {
		return Field{}, err
	}
	field.Validation = constraints
	return field, nil
}

func marshalFieldJSON(field Field) (options, validation []byte, err error) {
	opts := field.Options
	if opts == nil {
		opts = []Option{}
	}
	options, err = json.Marshal(opts)
	if err != nil {
		return nil, nil, err
	}
	validation, err = EncodeConstraints(field.Validation)
	if err != nil {
		return nil, nil, err
	}
	return options, validation, nil
}

// Get fetches a field definition by id.
func (r *Repository) Get(ctx context.Context, id int64) (Field, error) {
	return scanField(r.pool.QueryRow(ctx,
		`SELECT `+fieldColumns+` FROM required_fields_for_users WHERE id = $1`, id))
}

// ListForRole returns the field definitions attached to a role, ordered by
// display order with unordered rows last.
func (r *Repository) ListForRole(ctx context.Context, roleID int64, activeOnly bool) ([]Field, error) {
	query := `SELECT ` + fieldColumns + ` FROM required_fields_for_users WHERE role_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY display_order NULLS LAST, id`
	rows, err := r.pool.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Field
	for rows.Next() {
		var (
			field          Field
			rawOptions     []byte
			rawConstraints []byte
		)
		if err := rows.Scan(&field.ID, &field.RoleID, &field.FieldName, &field.FieldType, &field.IsRequired,
			&field.FilledByRoleID, &field.EditableByRoleID, &rawOptions, &rawConstraints,
			&field.DisplayOrder, &field.IsActive, &field.CreatedAt, &field.UpdatedAt); err != nil {
			return nil, err
		}
		hydrated, err := hydrateField(field, rawOptions, rawConstraints)
		if err != nil {
			return nil, err
		}
		out = append(out, hydrated)
	}
	return out, rows.Err()
}

// Create inserts a new field definition.
func (r *Repository) Create(ctx context.Context, field Field) (Field, error) {
	options, validation, err := marshalFieldJSON(field)
	if err != nil {
		return Field{}, err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO required_fields_for_users
			(role_id, field_name, field_type, is_required, filled_by_role_id,
			 editable_by_role_id, options, validation, display_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+fieldColumns,
		field.RoleID, field.FieldName, field.FieldType, field.IsRequired, field.FilledByRoleID,
		field.EditableByRoleID, options, validation, field.DisplayOrder, field.IsActive)
	created, err := scanField(row)
	if db.IsUniqueViolation(err, "") {
		return Field{}, shared.Failf(shared.ErrConflict, "field %q already exists for this role", field.FieldName)
	}
	return created, err
}

// Update rewrites a field definition's mutable attributes.
func (r *Repository) Update(ctx context.Context, field Field) (Field, error) {
	options, validation, err := marshalFieldJSON(field)
	if err != nil {
		return Field{}, err
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE required_fields_for_users
		SET field_name = $2, field_type = $3, is_required = $4, filled_by_role_id = $5,
		    editable_by_role_id = $6, options = $7, validation = $8, display_order = $9,
		    is_active = $10, updated_at = now()
		WHERE id = $1
		RETURNING `+fieldColumns,
		field.ID, field.FieldName, field.FieldType, field.IsRequired, field.FilledByRoleID,
		field.EditableByRoleID, options, validation, field.DisplayOrder, field.IsActive)
	updated, err := scanField(row)
	if db.IsUniqueViolation(err, "") {
		return Field{}, shared.Failf(shared.ErrConflict, "field %q already exists for this role", field.FieldName)
	}
	return updated, err
}

// SetActive flips the soft activation flag without touching anything else.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) (Field, error) {
	return scanField(r.pool.QueryRow(ctx, `
		UPDATE required_fields_for_users
		SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+fieldColumns, id, active))
}

// Delete removes a field definition together with every value recorded
// against it, in one transaction.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM users_field_data WHERE required_field_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM required_fields_for_users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.Fail(shared.ErrNotFound, "field not found")
		}
		return nil
	})
}

var _ RepositoryPort = (*Repository)(nil)
