package fields

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// RoleDirectory resolves role ids while defining fields. Satisfied by the
// roles repository.
type RoleDirectory interface {
	Get(ctx context.Context, id int64) (roles.Role, error)
}

// Service owns field definition lifecycle and constraint validation.
type Service struct {
	repo  RepositoryPort
	roles RoleDirectory
}

// NewService constructs the field definition service.
func NewService(repo RepositoryPort, roleDir RoleDirectory) *Service {
	return &Service{repo: repo, roles: roleDir}
}

// CreateFieldInput carries the attributes of a new field definition.
// FilledByRoleID and EditableByRoleID default to the field's own role when
// absent; EditableByNobody makes an existing value editable by Super Users
// only.
type CreateFieldInput struct {
	RoleID           int64
	FieldName        string
	FieldType        FieldType
	IsRequired       bool
	FilledByRoleID   *int64
	EditableByRoleID *int64
	EditableByNobody bool
	Options          []Option
	Validation       json.RawMessage
	DisplayOrder     *int
}

// UpdateFieldInput carries partial updates; nil pointers leave the current
// attribute untouched. Field type and options change together so the
// constraint bag can be re-checked against the new type.
type UpdateFieldInput struct {
	FieldName        *string
	FieldType        *FieldType
	IsRequired       *bool
	FilledByRoleID   *int64
	EditableByRoleID *int64
	EditableByNobody bool
	Options          []Option
	OptionsSet       bool
	Validation       json.RawMessage
	ValidationSet    bool
	DisplayOrder     *int
	IsActive         *bool
}

// Create validates and stores a new field definition for a role.
func (s *Service) Create(ctx context.Context, in CreateFieldInput) (Field, error) {
	name := strings.TrimSpace(in.FieldName)
	if name == "" {
		return Field{}, shared.Fail(shared.ErrInvalidInput, "field name must not be empty")
	}
	if !in.FieldType.Valid() {
		return Field{}, shared.Failf(shared.ErrInvalidInput, "unknown field type %q", in.FieldType)
	}
	if err := checkOptions(in.FieldType, in.Options); err != nil {
		return Field{}, err
	}
	constraints, err := DecodeConstraints(in.FieldType, in.Validation)
	if err != nil {
		return Field{}, err
	}
	if _, err := s.roles.Get(ctx, in.RoleID); err != nil {
		return Field{}, err
	}

	filledBy := in.RoleID
	if in.FilledByRoleID != nil {
		filledBy = *in.FilledByRoleID
	}
	editableBy, err := s.resolveEditableBy(ctx, in.RoleID, in.EditableByRoleID, in.EditableByNobody)
	if err != nil {
		return Field{}, err
	}
	if filledBy != in.RoleID {
		if _, err := s.roles.Get(ctx, filledBy); err != nil {
			return Field{}, err
		}
	}

	return s.repo.Create(ctx, Field{
		RoleID:           in.RoleID,
		FieldName:        name,
		FieldType:        in.FieldType,
		IsRequired:       in.IsRequired,
		FilledByRoleID:   filledBy,
		EditableByRoleID: editableBy,
		Options:          in.Options,
		Validation:       constraints,
		DisplayOrder:     in.DisplayOrder,
		IsActive:         true,
	})
}

func (s *Service) resolveEditableBy(ctx context.Context, roleID int64, explicit *int64, nobody bool) (*int64, error) {
	if nobody {
		return nil, nil
	}
	if explicit != nil {
		if *explicit != roleID {
			if _, err := s.roles.Get(ctx, *explicit); err != nil {
				return nil, err
			}
		}
		return explicit, nil
	}
	id := roleID
	return &id, nil
}

func checkOptions(t FieldType, options []Option) error {
	if t.Choice() {
		if len(options) == 0 {
			return shared.Failf(shared.ErrInvalidInput, "%s fields require at least one option", t)
		}
		for _, opt := range options {
			if strings.TrimSpace(opt.Label) == "" {
				return shared.Fail(shared.ErrInvalidInput, "option labels must not be empty")
			}
		}
		return nil
	}
	if len(options) > 0 {
		return shared.Failf(shared.ErrInvalidInput, "%s fields must not carry options", t)
	}
	return nil
}

// Get returns one field definition.
func (s *Service) Get(ctx context.Context, id int64) (Field, error) {
	return s.repo.Get(ctx, id)
}

// ListForRole returns the field definitions attached to a role.
func (s *Service) ListForRole(ctx context.Context, roleID int64, activeOnly bool) ([]Field, error) {
	if _, err := s.roles.Get(ctx, roleID); err != nil {
		return nil, err
	}
	return s.repo.ListForRole(ctx, roleID, activeOnly)
}

// Update applies a partial update to a field definition, re-validating the
// options and constraint bag against the (possibly changed) field type.
func (s *Service) Update(ctx context.Context, id int64, in UpdateFieldInput) (Field, error) {
	field, err := s.repo.Get(ctx, id)
	if err != nil {
		return Field{}, err
	}
	if in.FieldName != nil {
		name := strings.TrimSpace(*in.FieldName)
		if name == "" {
			return Field{}, shared.Fail(shared.ErrInvalidInput, "field name must not be empty")
		}
		field.FieldName = name
	}
	if in.FieldType != nil {
		if !in.FieldType.Valid() {
			return Field{}, shared.Failf(shared.ErrInvalidInput, "unknown field type %q", *in.FieldType)
		}
		field.FieldType = *in.FieldType
	}
	if in.OptionsSet {
		field.Options = in.Options
	}
	if err := checkOptions(field.FieldType, field.Options); err != nil {
		return Field{}, err
	}
	if in.ValidationSet || in.FieldType != nil {
		raw := in.Validation
		if !in.ValidationSet {
			// Type changed without a new constraint bag; the old bag no
			// longer applies.
			raw = nil
		}
		constraints, err := DecodeConstraints(field.FieldType, raw)
		if err != nil {
			return Field{}, err
		}
		field.Validation = constraints
	}
	if in.IsRequired != nil {
		field.IsRequired = *in.IsRequired
	}
	if in.FilledByRoleID != nil {
		if *in.FilledByRoleID != field.RoleID {
			if _, err := s.roles.Get(ctx, *in.FilledByRoleID); err != nil {
				return Field{}, err
			}
		}
		field.FilledByRoleID = *in.FilledByRoleID
	}
	if in.EditableByNobody {
		field.EditableByRoleID = nil
	} else if in.EditableByRoleID != nil {
		if *in.EditableByRoleID != field.RoleID {
			if _, err := s.roles.Get(ctx, *in.EditableByRoleID); err != nil {
				return Field{}, err
			}
		}
		field.EditableByRoleID = in.EditableByRoleID
	}
	if in.DisplayOrder != nil {
		field.DisplayOrder = in.DisplayOrder
	}
	if in.IsActive != nil {
		field.IsActive = *in.IsActive
	}
	return s.repo.Update(ctx, field)
}

// SetActive toggles a field definition without deleting recorded values.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (Field, error) {
	return s.repo.SetActive(ctx, id, active)
}

// Delete removes a field definition and every value stored against it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
