package rbac

import "time"

// Role is a named grouping of permissions. ParentID points at the role whose
// grants this role inherits.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *int64    `json:"parent_role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission represents an atomic capability. Only Name takes part in checks.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Assignment ties a permission directly to a role.
type Assignment struct {
	RoleID       int64
	PermissionID int64
}

// UserRole links a user to a role.
type UserRole struct {
	UserID int64
	RoleID int64
}

// Cache kinds.
const (
	KindDirect    = "direct"
	KindInherited = "inherited"
)
