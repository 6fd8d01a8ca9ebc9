package users

import (
	"time"

	"github.com/google/uuid"
)

// User is one account. PasswordHash is a bcrypt hash and never leaves the
// service layer; ProfilePicture holds an opaque blob-store key.
type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	PasswordHash   string
	RoleID         int64
	ProfilePicture *string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WithRole carries a user together with the resolved role name.
type WithRole struct {
	User
	RoleName string
}
