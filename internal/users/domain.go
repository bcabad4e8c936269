package users

import (
	"strings"
	"time"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
)

// Profile is a user row joined with its role and the role's parent.
type Profile struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	RoleID         *int64    `json:"role_id,omitempty"`
	RoleName       string    `json:"role"`
	ParentRoleName string    `json:"parent_role,omitempty"`
	IsRoleManager  bool      `json:"is_role_manager"`
	IsModuleLeader bool      `json:"is_module_leader"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// FullName joins first and last name, falling back to the username.
func (p Profile) FullName() string {
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full == "" {
		return p.Username
	}
	return full
}

// Ref returns the role in the shape the user record stores: an object when
// the role has a parent, a bare name otherwise.
func (p Profile) Ref() roles.Ref {
	name := strings.TrimSpace(p.RoleName)
	if name == "" {
		return roles.Ref{}
	}
	if parent := strings.TrimSpace(p.ParentRoleName); parent != "" {
		pr := roles.Hierarchical(parent, nil)
		return roles.Hierarchical(name, &pr)
	}
	return roles.Simple(name)
}

// SchemaVersion is the current user record layout.
const SchemaVersion = 1

// Record is the per-session snapshot of who the user is and what their role
// grants directly. Permissions is nil until a sync has stored a list; an
// empty non-nil list means the role has no direct grants.
type Record struct {
	SchemaVersion  int       `json:"schema_version"`
	ID             int64     `json:"id"`
	Role           roles.Ref `json:"role"`
	RoleID         *int64    `json:"role_id"`
	Username       string    `json:"username"`
	FullName       string    `json:"fullName"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Email          string    `json:"email"`
	IsRoleManager  bool      `json:"isRoleManager"`
	IsModuleLeader bool      `json:"isModuleLeader"`
	Permissions    []string  `json:"permissions"`
}

// RecordFromProfile builds a record without a role id or permissions.
func RecordFromProfile(p Profile) Record {
	return Record{
		SchemaVersion:  SchemaVersion,
		ID:             p.ID,
		Role:           p.Ref(),
		Username:       p.Username,
		FullName:       p.FullName(),
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		IsRoleManager:  p.IsRoleManager,
		IsModuleLeader: p.IsModuleLeader,
	}
}

// SyncState describes how far a session has got towards a usable record.
type SyncState int

const (
	// Unauthenticated means no record is stored.
	Unauthenticated SyncState = iota
	// Authenticating means a login is in flight.
	Authenticating
	// AuthenticatedNoPermissions means the record exists but no permission
	// list has been stored yet.
	AuthenticatedNoPermissions
	// AuthenticatedSynced means the record carries a permission list.
	AuthenticatedSynced
)

func (s SyncState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case AuthenticatedNoPermissions:
		return "authenticated_no_permissions"
	case AuthenticatedSynced:
		return "authenticated_synced"
	default:
		return "unauthenticated"
	}
}
