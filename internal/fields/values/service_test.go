package values

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/fieldgate/fieldgate/internal/fields"
	"github.com/fieldgate/fieldgate/internal/roles"
	"github.com/fieldgate/fieldgate/internal/shared"
)

type pairKey struct {
	user  uuid.UUID
	field int64
}

type memoryValueRepo struct {
	mu     sync.Mutex
	nextID int64
	values map[pairKey]Value
}

func newMemoryValueRepo() *memoryValueRepo {
	return &memoryValueRepo{nextID: 1, values: map[pairKey]Value{}}
}

func (m *memoryValueRepo) Get(_ context.Context, userID uuid.UUID, fieldID int64) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[pairKey{userID, fieldID}]
	if !ok {
		return Value{}, shared.Fail(shared.ErrNotFound, "field value not found")
	}
	return value, nil
}

func (m *memoryValueRepo) Insert(_ context.Context, value Value) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{value.UserID, value.RequiredFieldID}
	if _, ok := m.values[key]; ok {
		return Value{}, shared.Fail(shared.ErrConflict, "field value already recorded")
	}
	value.ID = m.nextID
	m.nextID++
	m.values[key] = value
	return value, nil
}

func (m *memoryValueRepo) Update(_ context.Context, value Value) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{value.UserID, value.RequiredFieldID}
	existing, ok := m.values[key]
	if !ok {
		return Value{}, shared.Fail(shared.ErrNotFound, "field value not found")
	}
	existing.Data = value.Data
	m.values[key] = existing
	return existing, nil
}

func (m *memoryValueRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Value
	for key, value := range m.values {
		if key.user == userID {
			out = append(out, value)
		}
	}
	return out, nil
}

func (m *memoryValueRepo) Delete(_ context.Context, userID uuid.UUID, fieldID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{userID, fieldID}
	if _, ok := m.values[key]; !ok {
		return shared.Fail(shared.ErrNotFound, "field value not found")
	}
	delete(m.values, key)
	return nil
}

func (m *memoryValueRepo) count(userID uuid.UUID, fieldID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[pairKey{userID, fieldID}]; ok {
		return 1
	}
	return 0
}

type staticFieldSource struct {
	known map[int64]fields.Field
}

func (s staticFieldSource) Get(_ context.Context, id int64) (fields.Field, error) {
	field, ok := s.known[id]
	if !ok {
		return fields.Field{}, shared.Fail(shared.ErrNotFound, "field not found")
	}
	return field, nil
}

func (s staticFieldSource) ListForRole(_ context.Context, roleID int64, activeOnly bool) ([]fields.Field, error) {
	var out []fields.Field
	for _, field := range s.known {
		if field.RoleID != roleID {
			continue
		}
		if activeOnly && !field.IsActive {
			continue
		}
		out = append(out, field)
	}
	return out, nil
}

type staticUserDirectory struct {
	known map[uuid.UUID]UserRef
}

func (d staticUserDirectory) Find(_ context.Context, id uuid.UUID) (UserRef, error) {
	ref, ok := d.known[id]
	if !ok {
		return UserRef{}, shared.Fail(shared.ErrNotFound, "user not found")
	}
	return ref, nil
}

type allowAllGate struct{}

func (allowAllGate) CanListUsersOfRole(context.Context, int64, int64) error { return nil }

type denyAllGate struct{}

func (denyAllGate) CanListUsersOfRole(context.Context, int64, int64) error {
	return shared.Fail(shared.ErrForbidden, "not delegated")
}

const (
	roleSuper   int64 = 1
	roleTeacher int64 = 3
	roleStudent int64 = 4
)

var (
	studentA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	studentB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	teacher  = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	superID  = uuid.MustParse("44444444-4444-4444-4444-444444444444")
)

func actorOf(userID uuid.UUID, roleID int64) roles.Actor {
	names := map[int64]string{roleSuper: roles.NameSuperUser, roleTeacher: "Teacher", roleStudent: "Student"}
	return roles.Actor{UserID: userID, RoleID: roleID, RoleName: names[roleID]}
}

func newValueService(gate ListGate, defs ...fields.Field) (*Service, *memoryValueRepo) {
	repo := newMemoryValueRepo()
	source := staticFieldSource{known: map[int64]fields.Field{}}
	for _, def := range defs {
		source.known[def.ID] = def
	}
	users := staticUserDirectory{known: map[uuid.UUID]UserRef{
		studentA: {ID: studentA, RoleID: roleStudent},
		studentB: {ID: studentB, RoleID: roleStudent},
		teacher:  {ID: teacher, RoleID: roleTeacher},
		superID:  {ID: superID, RoleID: roleSuper},
	}}
	return NewService(repo, source, users, gate), repo
}

func ageField() fields.Field {
	min, max := 0.0, 120.0
	editable := roleStudent
	return fields.Field{
		ID: 10, RoleID: roleStudent, FieldName: "age", FieldType: fields.TypeNumber,
		FilledByRoleID: roleStudent, EditableByRoleID: &editable,
		Validation: fields.NumberConstraints{MinValue: &min, MaxValue: &max},
		IsActive:   true,
	}
}

func transcriptField() fields.Field {
	return fields.Field{
		ID: 11, RoleID: roleStudent, FieldName: "transcript", FieldType: fields.TypeDocument,
		FilledByRoleID: roleStudent, EditableByRoleID: nil,
		IsActive: true,
	}
}

func TestFirstFillAndEdit(t *testing.T) {
	svc, repo := newValueService(allowAllGate{}, ageField())
	ctx := context.Background()
	student := actorOf(studentA, roleStudent)

	value, err := svc.SetValue(ctx, student, studentA, 10, 17.0)
	require.NoError(t, err)
	require.Equal(t, 17.0, value.Data)

	// Out-of-range edit is rejected after authorization.
	_, err = svc.SetValue(ctx, student, studentA, 10, 200.0)
	require.ErrorIs(t, err, shared.ErrInvalidValue)

	// Edit replaces in place; the pair still holds one row.
	value, err = svc.SetValue(ctx, student, studentA, 10, 18.0)
	require.NoError(t, err)
	require.Equal(t, 18.0, value.Data)
	require.Equal(t, 1, repo.count(studentA, 10))

	got, err := svc.GetValue(ctx, student, studentA, 10)
	require.NoError(t, err)
	require.Equal(t, 18.0, got.Data)
}

func TestFirstFillRoleMismatch(t *testing.T) {
	svc, _ := newValueService(allowAllGate{}, ageField())
	ctx := context.Background()

	// A teacher writing another user's unfilled student field is rejected at
	// the self/elevated gate already.
	_, err := svc.SetValue(ctx, actorOf(teacher, roleTeacher), studentA, 10, 17.0)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// A super-tier actor may fill regardless of FilledByRoleID.
	_, err = svc.SetValue(ctx, actorOf(superID, roleSuper), studentA, 10, 17.0)
	require.NoError(t, err)

	// And may edit afterwards as well.
	value, err := svc.SetValue(ctx, actorOf(superID, roleSuper), studentA, 10, 18.0)
	require.NoError(t, err)
	require.Equal(t, 18.0, value.Data)
}

func TestFirstFillRequiresFillingRoleEvenForSelf(t *testing.T) {
	filledByTeacher := ageField()
	filledByTeacher.FilledByRoleID = roleTeacher
	svc, _ := newValueService(allowAllGate{}, filledByTeacher)

	_, err := svc.SetValue(context.Background(), actorOf(studentA, roleStudent), studentA, 10, 17.0)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestLockedAfterFirstFill(t *testing.T) {
	svc, _ := newValueService(allowAllGate{}, transcriptField())
	ctx := context.Background()
	student := actorOf(studentA, roleStudent)
	doc := map[string]any{"name": "transcript.pdf", "size_mb": 1.0}

	_, err := svc.SetValue(ctx, student, studentA, 11, doc)
	require.NoError(t, err)

	// EditableByRoleID is null, so even the original filler cannot edit.
	_, err = svc.SetValue(ctx, student, studentA, 11, doc)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.SetValue(ctx, actorOf(superID, roleSuper), studentA, 11, doc)
	require.NoError(t, err)
}

func TestSetValueNotFoundOrdering(t *testing.T) {
	svc, _ := newValueService(allowAllGate{}, ageField())
	ctx := context.Background()
	student := actorOf(studentA, roleStudent)

	_, err := svc.SetValue(ctx, student, studentA, 999, 17.0)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.SetValue(ctx, actorOf(superID, roleSuper), uuid.New(), 10, 17.0)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentFirstFillSingleRow(t *testing.T) {
	svc, repo := newValueService(allowAllGate{}, ageField())
	actor := actorOf(studentA, roleStudent)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		v := float64(20 + i)
		g.Go(func() error {
			_, err := svc.SetValue(context.Background(), actor, studentA, 10, v)
			return err
		})
	}
	// The editing role matches, so race losers retry as edits and succeed.
	require.NoError(t, g.Wait())
	require.Equal(t, 1, repo.count(studentA, 10))
}

func TestConcurrentFirstFillLockedField(t *testing.T) {
	svc, repo := newValueService(allowAllGate{}, transcriptField())
	actor := actorOf(studentA, roleStudent)
	doc := map[string]any{"name": "transcript.pdf", "size_mb": 1.0}

	var g errgroup.Group
	var mu sync.Mutex
	var conflicts int
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := svc.SetValue(context.Background(), actor, studentA, 11, doc)
			if err != nil {
				// Losers cannot edit the locked field, so they surface the
				// concurrent-fill conflict rather than a privilege error.
				if !errors.Is(err, shared.ErrConflict) {
					return err
				}
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, 7, conflicts)
	require.Equal(t, 1, repo.count(studentA, 11))
}

func TestListForUserJoinsFieldsAndValues(t *testing.T) {
	svc, _ := newValueService(allowAllGate{}, ageField(), transcriptField())
	ctx := context.Background()
	student := actorOf(studentA, roleStudent)

	_, err := svc.SetValue(ctx, student, studentA, 10, 17.0)
	require.NoError(t, err)

	states, err := svc.ListForUser(ctx, student, studentA)
	require.NoError(t, err)
	require.Len(t, states, 2)

	byName := map[string]FieldState{}
	for _, state := range states {
		byName[state.Field.FieldName] = state
	}
	require.True(t, byName["age"].Filled)
	require.Equal(t, 17.0, byName["age"].Value.Data)
	require.False(t, byName["transcript"].Filled)
	require.Nil(t, byName["transcript"].Value)
}

func TestListForUserDelegationGate(t *testing.T) {
	svc, _ := newValueService(denyAllGate{}, ageField())
	ctx := context.Background()

	_, err := svc.ListForUser(ctx, actorOf(teacher, roleTeacher), studentA)
	require.ErrorIs(t, err, shared.ErrForbidden)

	// Elevated actors bypass the delegation gate.
	_, err = svc.ListForUser(ctx, actorOf(superID, roleSuper), studentA)
	require.NoError(t, err)
}

func TestDeleteReturnsPairToUnfilled(t *testing.T) {
	svc, repo := newValueService(allowAllGate{}, ageField())
	ctx := context.Background()
	student := actorOf(studentA, roleStudent)

	_, err := svc.SetValue(ctx, student, studentA, 10, 17.0)
	require.NoError(t, err)

	removed, err := svc.Delete(ctx, student, studentA, 10)
	require.NoError(t, err)
	require.Equal(t, 17.0, removed.Data)
	require.Equal(t, 0, repo.count(studentA, 10))

	// The pair is unfilled again, so a first fill works.
	_, err = svc.SetValue(ctx, student, studentA, 10, 19.0)
	require.NoError(t, err)
}

func TestDocumentAccessRule(t *testing.T) {
	editable := roleTeacher
	report := fields.Field{
		ID: 12, RoleID: roleStudent, FieldName: "report", FieldType: fields.TypeDocument,
		FilledByRoleID: roleStudent, EditableByRoleID: &editable,
		IsActive: true,
	}
	svc, _ := newValueService(allowAllGate{}, report)
	ctx := context.Background()

	doc := fields.DocumentValue{Name: "report.pdf", SizeMB: 0.5, Key: "blob-1"}
	_, _, err := svc.SetDocument(ctx, actorOf(studentA, roleStudent), studentA, 12, doc)
	require.NoError(t, err)

	// Filling role, editing role and super may download; no isSelf needed.
	for _, actor := range []roles.Actor{
		actorOf(studentB, roleStudent),
		actorOf(teacher, roleTeacher),
		actorOf(superID, roleSuper),
	} {
		got, err := svc.DocumentForDownload(ctx, actor, studentA, 12)
		require.NoError(t, err)
		require.Equal(t, "blob-1", got.Key)
		require.Equal(t, "report.pdf", got.Name)
	}
}

func TestSetDocumentReportsReplacedBlob(t *testing.T) {
	editable := roleStudent
	report := fields.Field{
		ID: 12, RoleID: roleStudent, FieldName: "report", FieldType: fields.TypeDocument,
		FilledByRoleID: roleStudent, EditableByRoleID: &editable,
		IsActive: true,
	}
	svc, _ := newValueService(allowAllGate{}, report)
	ctx := context.Background()
	student := actorOf(studentA, roleStudent)

	_, old, err := svc.SetDocument(ctx, student, studentA, 12,
		fields.DocumentValue{Name: "v1.pdf", SizeMB: 0.5, Key: "blob-1"})
	require.NoError(t, err)
	require.Nil(t, old)

	_, old, err = svc.SetDocument(ctx, student, studentA, 12,
		fields.DocumentValue{Name: "v2.pdf", SizeMB: 0.6, Key: "blob-2"})
	require.NoError(t, err)
	require.NotNil(t, old)
	require.Equal(t, "blob-1", old.Key)
}

func TestSetDocumentRejectsNonDocumentField(t *testing.T) {
	svc, _ := newValueService(allowAllGate{}, ageField())

	_, _, err := svc.SetDocument(context.Background(), actorOf(studentA, roleStudent), studentA, 10,
		fields.DocumentValue{Name: "x.pdf", SizeMB: 0.1, Key: "blob"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
