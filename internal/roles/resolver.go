package roles

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Known role names.
const (
	Admin        = "Admin"
	SuperAdmin   = "SuperAdmin"
	Teacher      = "Teacher"
	ModuleLeader = "ModuleLeader"
	Student      = "Student"
	Parent       = "Parent"
	RoleManager  = "RoleManager"

	// Unknown is reported for role objects without a usable name.
	Unknown = "Unknown"
)

const fallbackDashboard = "/student/dashboard"

var known = map[string]struct{}{
	"admin":        {},
	"superadmin":   {},
	"teacher":      {},
	"moduleleader": {},
	"student":      {},
	"parent":       {},
	"rolemanager":  {},
}

// Known lists the recognised role names.
func Known() []string {
	return []string{Admin, SuperAdmin, Teacher, ModuleLeader, Student, Parent, RoleManager}
}

// Name returns the role's own name. Role objects without a name report Unknown.
func Name(r Ref) string {
	switch r.kind {
	case KindSimple:
		return r.name
	case KindHierarchical:
		if r.name == "" {
			return Unknown
		}
		return r.name
	default:
		return ""
	}
}

// ParentName returns the name of the parent role when r is a role object
// whose parent carries a name.
func ParentName(r Ref) (string, bool) {
	if r.kind != KindHierarchical || r.parent == nil {
		return "", false
	}
	if r.parent.kind == KindNone || r.parent.name == "" {
		return "", false
	}
	return r.parent.name, true
}

// EffectiveName is the name a user acts under: the parent role when one is
// set, the role itself otherwise. Delegating roles such as RoleManager and
// ModuleLeader take the dashboard and menus of their parent this way.
func EffectiveName(r Ref) string {
	if parent, ok := ParentName(r); ok {
		return parent
	}
	return Name(r)
}

// Equal compares role names ignoring case.
func Equal(a, b string) bool {
	return fold(a) == fold(b)
}

// Is reports whether r's own or effective name matches name.
func Is(r Ref, name string) bool {
	return Equal(Name(r), name) || Equal(EffectiveName(r), name)
}

// IsSuperAdmin reports whether r grants unrestricted access.
func IsSuperAdmin(r Ref) bool {
	return Is(r, SuperAdmin)
}

// IsKnown reports whether name is one of the recognised roles.
func IsKnown(name string) bool {
	_, ok := known[fold(name)]
	return ok
}

// DashboardRoute returns the landing path for r. It never fails: malformed
// roles resolve to the student dashboard.
func DashboardRoute(r Ref) (path string) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Default().Warn("roles: dashboard route recovered", slog.String("panic", fmt.Sprint(rec)))
			path = fallbackDashboard
		}
	}()

	if r.kind == KindHierarchical {
		if parent, ok := ParentName(r); ok {
			if Equal(parent, Admin) {
				return dashboardPath("admin")
			}
			// Lands on the dashboard of EffectiveName(r).
			if Equal(r.name, RoleManager) || Equal(r.name, ModuleLeader) {
				return dashboardPath(lower(parent))
			}
		}
	}

	name := lower(Name(r))
	if _, ok := known[name]; !ok {
		if name != "" {
			slog.Default().Warn("roles: unrecognised role, using student dashboard", slog.String("role", Name(r)))
		}
		name = "student"
	}
	if name == "rolemanager" {
		// TODO: confirm with product whether a role manager without a parent
		// belongs on the admin dashboard.
		return dashboardPath("admin")
	}
	return dashboardPath(name)
}

// DashboardFor returns the dashboard path for a bare role name.
func DashboardFor(name string) string {
	return DashboardRoute(Simple(name))
}

func dashboardPath(name string) string {
	name = strings.Trim(name, "/ ")
	if name == "" {
		return fallbackDashboard
	}
	return "/" + name + "/dashboard"
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func lower(s string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(s))
}
