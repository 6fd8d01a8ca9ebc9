package rbac

import "time"

// Permission represents one authorizable {table}.{method} action.
// TableName and Method are stored lowercased; lookups are case-insensitive.
type Permission struct {
	ID          int64
	TableName   string
	Method      string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assignment ties a permission to a role.
type Assignment struct {
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}
