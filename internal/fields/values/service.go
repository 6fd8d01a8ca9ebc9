package values

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fieldgate/fieldgate/internal/fields"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

// FieldSource resolves field definitions. Satisfied by the fields repository.
type FieldSource interface {
	Get(ctx context.Context, id int64) (fields.Field, error)
	ListForRole(ctx context.Context, roleID int64, activeOnly bool) ([]fields.Field, error)
}

// UserRef is the slice of a user the state machine needs.
type UserRef struct {
	ID     uuid.UUID
	RoleID int64
}

// UserDirectory resolves target users. Satisfied by the users repository.
type UserDirectory interface {
	Find(ctx context.Context, id uuid.UUID) (UserRef, error)
}

// ListGate decides whether an actor may view another user's profile data.
// Satisfied by the role hierarchy policy.
type ListGate interface {
	CanListUsersOfRole(ctx context.Context, actorRoleID, targetRoleID int64) error
}

// Service drives the fill/edit state machine for per-user field values.
type Service struct {
	repo   RepositoryPort
	fields FieldSource
	users  UserDirectory
	gate   ListGate
}

// NewService constructs the field value service.
func NewService(repo RepositoryPort, fieldSource FieldSource, users UserDirectory, gate ListGate) *Service {
	return &Service{repo: repo, fields: fieldSource, users: users, gate: gate}
}

// SetValue writes a value for the target user's field, enforcing the
// first-fill and edit authorization rules before validating and persisting.
func (s *Service) SetValue(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID, fieldID int64, raw any) (Value, error) {
	value, _, err := s.write(ctx, actor, targetUserID, fieldID, raw)
	return value, err
}

// SetDocument writes an uploaded document reference. It returns the previous
// document, if any, so the caller can release the superseded blob.
func (s *Service) SetDocument(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID, fieldID int64, doc fields.DocumentValue) (Value, *fields.DocumentValue, error) {
	field, err := s.fields.Get(ctx, fieldID)
	if err != nil {
		return Value{}, nil, err
	}
	if field.FieldType != fields.TypeDocument {
		return Value{}, nil, shared.Failf(shared.ErrInvalidInput, "field %q does not take document uploads", field.FieldName)
	}
	value, previous, err := s.write(ctx, actor, targetUserID, fieldID, doc)
	if err != nil {
		return Value{}, nil, err
	}
	var oldDoc *fields.DocumentValue
	if previous != nil {
		if d, derr := fields.DocumentFromValue(previous.Data); derr == nil && d.Key != "" {
			oldDoc = &d
		}
	}
	return value, oldDoc, nil
}

// write runs the full decision sequence and returns the stored value plus
// the value it replaced, when the pair was already filled.
func (s *Service) write(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID, fieldID int64, raw any) (Value, *Value, error) {
	field, err := s.fields.Get(ctx, fieldID)
	if err != nil {
		return Value{}, nil, err
	}
	if _, err := s.users.Find(ctx, targetUserID); err != nil {
		return Value{}, nil, err
	}

	isSelf := actor.UserID == targetUserID
	elevated := actor.Tier().Elevated()
	if !isSelf && !elevated {
		return Value{}, nil, shared.Fail(shared.ErrForbidden, "only the profile owner or an elevated role may write this value")
	}

	existing, err := s.repo.Get(ctx, targetUserID, fieldID)
	filled := err == nil
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Value{}, nil, err
	}

	if filled {
		if err := authorizeEdit(actor, field); err != nil {
			return Value{}, nil, err
		}
	} else if err := authorizeFill(actor, field); err != nil {
		return Value{}, nil, err
	}

	normalized, err := fields.Normalize(field.FieldType, field.Validation, field.Options, raw)
	if err != nil {
		return Value{}, nil, err
	}

	value := Value{UserID: targetUserID, RequiredFieldID: fieldID, Data: normalized}
	if filled {
		updated, err := s.repo.Update(ctx, value)
		if err != nil {
			return Value{}, nil, err
		}
		return updated, &existing, nil
	}

	inserted, err := s.repo.Insert(ctx, value)
	if errors.Is(err, shared.ErrConflict) {
		// Lost a concurrent first-fill race. Retry once as an edit; an actor
		// not authorized to edit sees the conflict.
		if editErr := authorizeEdit(actor, field); editErr != nil {
			return Value{}, nil, shared.Fail(shared.ErrConflict, "value was filled concurrently")
		}
		winner, err := s.repo.Get(ctx, targetUserID, fieldID)
		if err != nil {
			return Value{}, nil, err
		}
		updated, err := s.repo.Update(ctx, value)
		if err != nil {
			return Value{}, nil, err
		}
		return updated, &winner, nil
	}
	if err != nil {
		return Value{}, nil, err
	}
	return inserted, nil, nil
}

func authorizeFill(actor roles.Actor, field fields.Field) error {
	if actor.Tier().Elevated() || actor.RoleID == field.FilledByRoleID {
		return nil
	}
	return shared.Failf(shared.ErrForbidden, "role %q may not perform the first fill of %q", actor.RoleName, field.FieldName)
}

func authorizeEdit(actor roles.Actor, field fields.Field) error {
	if actor.Tier().Elevated() {
		return nil
	}
	if field.EditableByRoleID == nil {
		return shared.Failf(shared.ErrForbidden, "%q is locked after the first fill", field.FieldName)
	}
	if actor.RoleID == *field.EditableByRoleID {
		return nil
	}
	return shared.Failf(shared.ErrForbidden, "role %q may not edit %q", actor.RoleName, field.FieldName)
}

// documentAccess is the download/delete rule. It keys on the filling and
// editing roles rather than on profile ownership.
func documentAccess(actor roles.Actor, field fields.Field) error {
	if actor.Tier().Elevated() || actor.RoleID == field.FilledByRoleID {
		return nil
	}
	if field.EditableByRoleID != nil && actor.RoleID == *field.EditableByRoleID {
		return nil
	}
	return shared.Failf(shared.ErrForbidden, "role %q may not access this stored file", actor.RoleName)
}

// GetValue reads one stored value. Readable by the profile owner, elevated
// roles, and the roles designated to fill or edit the field.
func (s *Service) GetValue(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID, fieldID int64) (Value, error) {
	field, err := s.fields.Get(ctx, fieldID)
	if err != nil {
		return Value{}, err
	}
	if _, err := s.users.Find(ctx, targetUserID); err != nil {
		return Value{}, err
	}
	if err := s.authorizeRead(actor, targetUserID, field); err != nil {
		return Value{}, err
	}
	return s.repo.Get(ctx, targetUserID, fieldID)
}

func (s *Service) authorizeRead(actor roles.Actor, targetUserID uuid.UUID, field fields.Field) error {
	if actor.UserID == targetUserID || actor.Tier().Elevated() {
		return nil
	}
	if actor.RoleID == field.FilledByRoleID {
		return nil
	}
	if field.EditableByRoleID != nil && actor.RoleID == *field.EditableByRoleID {
		return nil
	}
	return shared.Fail(shared.ErrForbidden, "not allowed to view this value")
}

// ListForUser joins the target user's active field definitions with their
// stored values. Viewing another user's profile goes through the role
// hierarchy policy.
func (s *Service) ListForUser(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID) ([]FieldState, error) {
	user, err := s.users.Find(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	if actor.UserID != targetUserID && !actor.Tier().Elevated() {
		if err := s.gate.CanListUsersOfRole(ctx, actor.RoleID, user.RoleID); err != nil {
			return nil, err
		}
	}

	defs, err := s.fields.ListForRole(ctx, user.RoleID, true)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.ListForUser(ctx, targetUserID)
	if err != nil {
		return nil, err
	}
	byField := make(map[int64]Value, len(stored))
	for _, value := range stored {
		byField[value.RequiredFieldID] = value
	}

	out := make([]FieldState, len(defs))
	for i, def := range defs {
		state := FieldState{Field: def}
		if value, ok := byField[def.ID]; ok {
			state.Filled = true
			state.Value = &value
		}
		out[i] = state
	}
	return out, nil
}

// Delete clears a stored value, returning the pair to the unfilled state.
// The removed value is returned so document blobs can be released.
func (s *Service) Delete(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID, fieldID int64) (Value, error) {
	field, err := s.fields.Get(ctx, fieldID)
	if err != nil {
		return Value{}, err
	}
	if _, err := s.users.Find(ctx, targetUserID); err != nil {
		return Value{}, err
	}
	if err := documentAccess(actor, field); err != nil {
		return Value{}, err
	}
	removed, err := s.repo.Get(ctx, targetUserID, fieldID)
	if err != nil {
		return Value{}, err
	}
	if err := s.repo.Delete(ctx, targetUserID, fieldID); err != nil {
		return Value{}, err
	}
	return removed, nil
}

// DocumentForDownload authorizes access to a stored document and returns its
// reference.
func (s *Service) DocumentForDownload(ctx context.Context, actor roles.Actor, targetUserID uuid.UUID, fieldID int64) (fields.DocumentValue, error) {
	field, err := s.fields.Get(ctx, fieldID)
	if err != nil {
		return fields.DocumentValue{}, err
	}
	if field.FieldType != fields.TypeDocument {
		return fields.DocumentValue{}, shared.Failf(shared.ErrInvalidInput, "field %q is not a document field", field.FieldName)
	}
	if _, err := s.users.Find(ctx, targetUserID); err != nil {
		return fields.DocumentValue{}, err
	}
	if err := documentAccess(actor, field); err != nil {
		return fields.DocumentValue{}, err
	}
	value, err := s.repo.Get(ctx, targetUserID, fieldID)
	if err != nil {
		return fields.DocumentValue{}, err
	}
	doc, err := fields.DocumentFromValue(value.Data)
	if err != nil {
		return fields.DocumentValue{}, shared.Fail(shared.ErrNotFound, "no stored file for this field")
	}
	return doc, nil
}
