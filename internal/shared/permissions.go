package shared

// Permission names checked by the LMS surfaces. Role grants live in the
// role_permissions table; these are only the names handlers ask for.
const (
	PermManageClasses         = "manage_classes"
	PermViewClasses           = "view_classes"
	PermAccessTeacherSubjects = "access_teacher_subjects"
	PermManageModules         = "manage_modules"
	PermViewGrades            = "view_grades"
	PermManageGrades          = "manage_grades"
	PermViewChildren          = "view_children"

	PermManageUsers = "manage_users"
	PermViewUsers   = "view_users"

	PermManageRoles     = "manage_roles"
	PermViewRoles       = "view_roles"
	PermViewPermissions = "view_permissions"
)

// CoreScopes lists the permissions guarding role and user administration.
func CoreScopes() []string {
	return []string{
		PermManageUsers,
		PermViewUsers,
		PermManageRoles,
		PermViewRoles,
		PermViewPermissions,
	}
}

// TeachingScopes lists the permissions of the teaching surfaces.
func TeachingScopes() []string {
	return []string{
		PermManageClasses,
		PermViewClasses,
		PermAccessTeacherSubjects,
		PermManageModules,
		PermViewGrades,
		PermManageGrades,
		PermViewChildren,
	}
}
