package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/platform/db"
)

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Source is what the permission store reads from.
type Source interface {
	DirectPermissionNames(ctx context.Context, roleID int64) ([]string, error)
	RoleParent(ctx context.Context, roleID int64) (*int64, error)
}

// Repository defines persistence operations for roles and grants.
type Repository interface {
	Source
	WithTx(ctx context.Context, fn func(Repository) error) error
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RoleIDForUser(ctx context.Context, userID int64) (int64, error)
	RoleIDByName(ctx context.Context, name string) (int64, error)
	CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error)
	UpdateRoleParent(ctx context.Context, roleID int64, parentID *int64) error
	DeleteRole(ctx context.Context, id int64) error
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	AttachPermission(ctx context.Context, a Assignment) error
	DetachPermission(ctx context.Context, a Assignment) error
	UpsertPermission(ctx context.Context, perm Permission) (Permission, error)
	AssignUserRole(ctx context.Context, ur UserRole) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	q    DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, q: pool}
}

// WithTx runs fn against a transaction bound copy of the repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&PGRepository{q: tx})
	})
}

// DirectPermissionNames lists the permission names granted to the role itself.
func (r *PGRepository) DirectPermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RoleParent returns the parent role id, nil for a root role.
func (r *PGRepository) RoleParent(ctx context.Context, roleID int64) (*int64, error) {
	var parent *int64
	err := r.q.QueryRow(ctx, `SELECT parent_role FROM roles WHERE id = $1`, roleID).Scan(&parent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return parent, nil
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, COALESCE(description, ''), parent_role, created_at, updated_at
		FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), parent_role, created_at, updated_at
		FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// ListPermissions returns all permissions ordered by category and name.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, COALESCE(description, ''), COALESCE(category, '')
		FROM permissions ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Category); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// RoleIDForUser reads the user-role mapping.
func (r *PGRepository) RoleIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id LIMIT 1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// RoleIDByName finds a role by case-insensitive name.
func (r *PGRepository) RoleIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `SELECT id FROM roles WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`, strings.TrimSpace(name)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO roles (name, description, parent_role, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, name, COALESCE(description, ''), parent_role, created_at, updated_at`, name, description, parentID)
	return scanRole(row)
}

// UpdateRoleParent re-points a role at a new parent.
func (r *PGRepository) UpdateRoleParent(ctx context.Context, roleID int64, parentID *int64) error {
	tag, err := r.q.Exec(ctx, `UPDATE roles SET parent_role = $2, updated_at = NOW() WHERE id = $1`, roleID, parentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRole removes a role by ID. Returns ErrNotFound if nothing was deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RolePermissionIDs lists the permission ids directly attached to the role.
func (r *PGRepository) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AttachPermission grants a permission to a role.
func (r *PGRepository) AttachPermission(ctx context.Context, a Assignment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, a.RoleID, a.PermissionID)
	return err
}

// DetachPermission revokes a permission from a role.
func (r *PGRepository) DetachPermission(ctx context.Context, a Assignment) error {
	_, err := r.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, a.RoleID, a.PermissionID)
	return err
}

// UpsertPermission inserts or refreshes a permission by name.
func (r *PGRepository) UpsertPermission(ctx context.Context, perm Permission) (Permission, error) {
	var out Permission
	err := r.q.QueryRow(ctx, `
		INSERT INTO permissions (name, description, category) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, category = EXCLUDED.category
		RETURNING id, name, COALESCE(description, ''), COALESCE(category, '')`,
		perm.Name, perm.Description, perm.Category).Scan(&out.ID, &out.Name, &out.Description, &out.Category)
	if err != nil {
		return Permission{}, err
	}
	return out, nil
}

// AssignUserRole records the user's role in both the mapping table and the
// denormalised users.role_id column.
func (r *PGRepository) AssignUserRole(ctx context.Context, ur UserRole) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, ur.UserID); err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, ur.UserID, ur.RoleID); err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `UPDATE users SET role_id = $2 WHERE id = $1`, ur.UserID, ur.RoleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: assign role: user %d: %w", ur.UserID, ErrNotFound)
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.ParentID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	return role, nil
}

var _ Repository = (*PGRepository)(nil)
