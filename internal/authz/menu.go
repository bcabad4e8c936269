package authz

import (
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// MenuItem is one navigation entry. An item shows when the user's effective
// role is listed (or Roles is empty) and the user holds Permission (or it is
// empty).
type MenuItem struct {
	Label      string   `json:"label"`
	Path       string   `json:"path"`
	Roles      []string `json:"-"`
	Permission string   `json:"-"`
}

// DefaultMenu is the LMS navigation.
func DefaultMenu() []MenuItem {
	return []MenuItem{
		{Label: "Dashboard", Path: "/admin/dashboard", Roles: []string{roles.Admin, roles.RoleManager}},
		{Label: "Dashboard", Path: "/superadmin/dashboard", Roles: []string{roles.SuperAdmin}},
		{Label: "Dashboard", Path: "/teacher/dashboard", Roles: []string{roles.Teacher}},
		{Label: "Dashboard", Path: "/moduleleader/dashboard", Roles: []string{roles.ModuleLeader}},
		{Label: "Dashboard", Path: "/student/dashboard", Roles: []string{roles.Student}},
		{Label: "Dashboard", Path: "/parent/dashboard", Roles: []string{roles.Parent}},
		{Label: "Users", Path: "/users", Permission: shared.PermViewUsers},
		{Label: "Roles", Path: "/rbac/roles", Permission: shared.PermViewRoles},
		{Label: "Permissions", Path: "/rbac/permissions", Permission: shared.PermViewPermissions},
		{Label: "Classes", Path: "/classes", Permission: shared.PermViewClasses},
		{Label: "Subjects", Path: "/teacher/subjects", Roles: []string{roles.Teacher, roles.ModuleLeader}, Permission: shared.PermAccessTeacherSubjects},
		{Label: "Modules", Path: "/modules", Permission: shared.PermManageModules},
		{Label: "Grades", Path: "/grades", Permission: shared.PermViewGrades},
		{Label: "Children", Path: "/parent/children", Roles: []string{roles.Parent}, Permission: shared.PermViewChildren},
	}
}

// FilterMenu keeps the items visible to rec. It reads only the record.
func (a *Authorizer) FilterMenu(rec *users.Record, items []MenuItem) []MenuItem {
	out := make([]MenuItem, 0, len(items))
	if rec == nil {
		return out
	}
	effective := roles.EffectiveName(rec.Role)
	for _, item := range items {
		if len(item.Roles) > 0 && !matchesAny(effective, item.Roles) {
			continue
		}
		if item.Permission != "" && !recordGrants(rec, item.Permission) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchesAny(name string, candidates []string) bool {
	for _, c := range candidates {
		if roles.Equal(name, c) {
			return true
		}
	}
	return false
}
