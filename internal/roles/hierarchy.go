package roles

import (
	"context"

	"github.com/fieldgate/fieldgate/internal/shared"
)

// ErrMustUseSignup is returned when a delegated creation targets a role that
// is open for public self-signup. Such roles are populated through the
// signup flow only, never through privileged creation.
var ErrMustUseSignup = shared.Fail(shared.ErrForbidden, "target role allows public signup; use the signup flow")

// Hierarchy implements the role-creation policy: who may create or list
// users of which role.
type Hierarchy struct {
	repo RepositoryPort
}

// NewHierarchy builds a Hierarchy instance.
func NewHierarchy(repo RepositoryPort) *Hierarchy {
	return &Hierarchy{repo: repo}
}

// CreatableBy returns every role the actor may create users of.
//
// Super User sees the full role list with no exclusion. Admin sees every
// role except Super User and its own. A normal role sees exactly the roles
// whose RegistrationByRoles allow-list contains it, minus Admin and minus
// itself. Ids in an allow-list that no longer resolve to a role are ignored.
func (h *Hierarchy) CreatableBy(ctx context.Context, actorRoleID int64) ([]Role, error) {
	actor, err := h.repo.Get(ctx, actorRoleID)
	if err != nil {
		return nil, err
	}
	all, err := h.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	switch actor.Tier() {
	case TierSuper:
		return all, nil
	case TierAdmin:
		out := make([]Role, 0, len(all))
		for _, role := range all {
			if role.Tier() == TierSuper || role.ID == actor.ID {
				continue
			}
			out = append(out, role)
		}
		return out, nil
	default:
		out := make([]Role, 0)
		for _, role := range all {
			if role.Tier() == TierAdmin || role.ID == actor.ID {
				continue
			}
			if role.AllowsDelegationBy(actor.ID) {
				out = append(out, role)
			}
		}
		return out, nil
	}
}

// CanCreateUserWithRole decides whether the actor's role may create a user
// holding the target role. A nil return means allowed; otherwise the error
// distinguishes role-not-found, insufficient privilege and must-use-signup.
func (h *Hierarchy) CanCreateUserWithRole(ctx context.Context, actorRoleID, targetRoleID int64) error {
	actor, err := h.repo.Get(ctx, actorRoleID)
	if err != nil {
		return err
	}
	target, err := h.repo.Get(ctx, targetRoleID)
	if err != nil {
		return err
	}
	return h.decide(actor, target)
}

// CanListUsersOfRole mirrors CanCreateUserWithRole: viewing users of a role
// follows the same policy as creating them.
func (h *Hierarchy) CanListUsersOfRole(ctx context.Context, actorRoleID, targetRoleID int64) error {
	return h.CanCreateUserWithRole(ctx, actorRoleID, targetRoleID)
}

func (h *Hierarchy) decide(actor, target Role) error {
	switch actor.Tier() {
	case TierSuper:
		return nil
	case TierAdmin:
		if target.Tier() == TierSuper {
			return shared.Fail(shared.ErrForbidden, "admins cannot create Super User accounts")
		}
		if target.ID == actor.ID {
			return shared.Fail(shared.ErrForbidden, "admins cannot create peer admin accounts")
		}
		return nil
	default:
		if target.Tier() == TierAdmin {
			return shared.Failf(shared.ErrForbidden, "role %q cannot create %q accounts", actor.Name, target.Name)
		}
		if target.ID == actor.ID {
			return shared.Failf(shared.ErrForbidden, "role %q cannot create accounts of its own role", actor.Name)
		}
		if !target.AllowsDelegationBy(actor.ID) {
			return shared.Failf(shared.ErrForbidden, "role %q is not delegated to create %q accounts", actor.Name, target.Name)
		}
		if target.RegistrationAllowed {
			return ErrMustUseSignup
		}
		return nil
	}
}
