package roles

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldgate/fieldgate/internal/shared"
)

type memoryRoleRepo struct {
	mu     sync.Mutex
	roles  map[int64]Role
	nextID int64
	// referenced marks role ids that still have users or required fields.
	referenced map[int64]bool
}

func newMemoryRoleRepo() *memoryRoleRepo {
	return &memoryRoleRepo{roles: make(map[int64]Role), referenced: make(map[int64]bool)}
}

func (r *memoryRoleRepo) Get(ctx context.Context, id int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.Fail(shared.ErrNotFound, "role not found")
	}
	return role, nil
}

func (r *memoryRoleRepo) GetByName(ctx context.Context, name string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, shared.Fail(shared.ErrNotFound, "role not found")
}

func (r *memoryRoleRepo) List(ctx context.Context) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Role, 0, len(r.roles))
	for id := int64(1); id <= r.nextID; id++ {
		if role, ok := r.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) ListSignup(ctx context.Context) ([]Role, error) {
	all, _ := r.List(ctx)
	out := make([]Role, 0)
	for _, role := range all {
		if role.RegistrationAllowed {
			out = append(out, role)
		}
	}
	return out, nil
}

func (r *memoryRoleRepo) Create(ctx context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return Role{}, shared.Failf(shared.ErrConflict, "role %q already exists", role.Name)
		}
	}
	r.nextID++
	role.ID = r.nextID
	// Mirrors the roles_no_self_delegation check: the list is verified
	// against the id assigned by the insert itself.
	for _, rid := range role.RegistrationByRoles {
		if rid == role.ID {
			r.nextID--
			return Role{}, shared.Fail(shared.ErrInvalidInput, "a role cannot delegate its own registration to itself")
		}
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) Update(ctx context.Context, role Role) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, shared.Fail(shared.ErrNotFound, "role not found")
	}
	for id, existing := range r.roles {
		if id != role.ID && existing.Name == role.Name {
			return Role{}, shared.Failf(shared.ErrConflict, "role %q already exists", role.Name)
		}
	}
	for _, rid := range role.RegistrationByRoles {
		if rid == role.ID {
			return Role{}, shared.Fail(shared.ErrInvalidInput, "a role cannot delegate its own registration to itself")
		}
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRoleRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return shared.Fail(shared.ErrNotFound, "role not found")
	}
	if r.referenced[id] {
		return shared.Fail(shared.ErrConflict, "role is still referenced by users or required fields")
	}
	delete(r.roles, id)
	return nil
}

var _ RepositoryPort = (*memoryRoleRepo)(nil)

// seedHierarchy creates the standard role set used by the policy tests:
// Super User (1), Admin (2), Teacher (3), Student (4, delegated to Teacher),
// Guest (5, open signup).
func seedHierarchy(t *testing.T) *memoryRoleRepo {
	t.Helper()
	repo := newMemoryRoleRepo()
	ctx := context.Background()
	mustCreate := func(role Role) Role {
		created, err := repo.Create(ctx, role)
		require.NoError(t, err)
		return created
	}
	mustCreate(Role{Name: NameSuperUser})
	mustCreate(Role{Name: NameAdmin})
	mustCreate(Role{Name: "Teacher"})
	mustCreate(Role{Name: "Student", RegistrationByRoles: []int64{3}})
	mustCreate(Role{Name: "Guest", RegistrationAllowed: true, RegistrationByRoles: []int64{3}})
	return repo
}

func roleIDs(roles []Role) []int64 {
	ids := make([]int64, len(roles))
	for i, r := range roles {
		ids[i] = r.ID
	}
	return ids
}

func TestCreatableBySuperUser(t *testing.T) {
	h := NewHierarchy(seedHierarchy(t))
	list, err := h.CreatableBy(context.Background(), 1)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, roleIDs(list))
}

func TestCreatableByAdminExcludesSuperAndSelf(t *testing.T) {
	h := NewHierarchy(seedHierarchy(t))
	list, err := h.CreatableBy(context.Background(), 2)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{3, 4, 5}, roleIDs(list))
}

func TestCreatableByNormalRoleFollowsAllowList(t *testing.T) {
	h := NewHierarchy(seedHierarchy(t))

	list, err := h.CreatableBy(context.Background(), 3)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{4, 5}, roleIDs(list))

	// Student delegates to nobody.
	list, err = h.CreatableBy(context.Background(), 4)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestCreatableByUnknownRole(t *testing.T) {
	h := NewHierarchy(seedHierarchy(t))
	_, err := h.CreatableBy(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCanCreateUserWithRole(t *testing.T) {
	h := NewHierarchy(seedHierarchy(t))
	ctx := context.Background()

	cases := []struct {
		name        string
		actorRole   int64
		targetRole  int64
		wantKind    error
		mustUseSign bool
	}{
		{name: "super creates super", actorRole: 1, targetRole: 1},
		{name: "super creates admin", actorRole: 1, targetRole: 2},
		{name: "super creates open-signup role", actorRole: 1, targetRole: 5},
		{name: "admin creates student", actorRole: 2, targetRole: 4},
		{name: "admin cannot create super", actorRole: 2, targetRole: 1, wantKind: shared.ErrForbidden},
		{name: "admin cannot create peer admin", actorRole: 2, targetRole: 2, wantKind: shared.ErrForbidden},
		{name: "teacher creates delegated student", actorRole: 3, targetRole: 4},
		{name: "teacher cannot create admin", actorRole: 3, targetRole: 2, wantKind: shared.ErrForbidden},
		{name: "teacher cannot create teacher", actorRole: 3, targetRole: 3, wantKind: shared.ErrForbidden},
		{name: "student not in allow list", actorRole: 4, targetRole: 3, wantKind: shared.ErrForbidden},
		{name: "delegated but open signup", actorRole: 3, targetRole: 5, wantKind: shared.ErrForbidden, mustUseSign: true},
		{name: "unknown target role", actorRole: 3, targetRole: 99, wantKind: shared.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.CanCreateUserWithRole(ctx, tc.actorRole, tc.targetRole)
			if tc.wantKind == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantKind)
			if tc.mustUseSign {
				require.ErrorIs(t, err, ErrMustUseSignup)
			} else {
				require.False(t, errors.Is(err, ErrMustUseSignup))
			}
		})
	}
}

func TestCanListUsersOfRoleMatchesCreatePolicy(t *testing.T) {
	h := NewHierarchy(seedHierarchy(t))
	ctx := context.Background()

	require.NoError(t, h.CanListUsersOfRole(ctx, 1, 2))
	require.NoError(t, h.CanListUsersOfRole(ctx, 3, 4))
	require.ErrorIs(t, h.CanListUsersOfRole(ctx, 2, 1), shared.ErrForbidden)
	require.ErrorIs(t, h.CanListUsersOfRole(ctx, 3, 5), ErrMustUseSignup)
}
