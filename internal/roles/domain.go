package roles

import (
	"time"

	"github.com/google/uuid"
)

// Reserved role names carrying elevated privileges.
const (
	NameSuperUser = "Super User"
	NameAdmin     = "Admin"
)

// Role represents one entry of the flat role list.
type Role struct {
	ID                  int64
	Name                string
	Description         string
	RegistrationAllowed bool
	// RegistrationByRoles holds the ids of roles whose members may create
	// users of this role through the delegated creation path. A role's own
	// id never appears here.
	RegistrationByRoles []int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PrivilegeTier classifies a role by its reserved name, resolved once so the
// services never compare role-name strings directly.
type PrivilegeTier int

const (
	TierNormal PrivilegeTier = iota
	TierAdmin
	TierSuper
)

// TierOf resolves the privilege tier for a role name.
func TierOf(roleName string) PrivilegeTier {
	switch roleName {
	case NameSuperUser:
		return TierSuper
	case NameAdmin:
		return TierAdmin
	default:
		return TierNormal
	}
}

// Elevated reports whether the tier is Super User or Admin. The field
// authorization rules treat both the same.
func (t PrivilegeTier) Elevated() bool {
	return t == TierSuper || t == TierAdmin
}

// Tier returns the role's privilege tier.
func (r Role) Tier() PrivilegeTier {
	return TierOf(r.Name)
}

// AllowsDelegationBy reports whether roleID appears in the role's
// RegistrationByRoles allow-list.
func (r Role) AllowsDelegationBy(roleID int64) bool {
	for _, id := range r.RegistrationByRoles {
		if id == roleID {
			return true
		}
	}
	return false
}

// Actor identifies the authenticated principal for authorization decisions.
type Actor struct {
	UserID   uuid.UUID
	RoleID   int64
	RoleName string
}

// Tier returns the actor's privilege tier.
func (a Actor) Tier() PrivilegeTier {
	return TierOf(a.RoleName)
}
