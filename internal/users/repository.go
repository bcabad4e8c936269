package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	q DBTX
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

const profileColumns = `
	u.id, u.email, COALESCE(u.username, ''), COALESCE(u.first_name, ''), COALESCE(u.last_name, ''),
	u.role_id, COALESCE(r.name, ''), COALESCE(p.name, ''),
	u.is_role_manager, u.is_module_leader, u.is_active, u.created_at, u.updated_at`

const profileJoins = `
	FROM users u
	LEFT JOIN roles r ON r.id = u.role_id
	LEFT JOIN roles p ON p.id = r.parent_role`

// Profile fetches a user together with its role and parent role names.
func (r *Repository) Profile(ctx context.Context, userID int64) (Profile, error) {
	row := r.q.QueryRow(ctx, `SELECT `+profileColumns+profileJoins+` WHERE u.id = $1`, userID)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	return profile, nil
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]Profile, error) {
	rows, err := r.q.Query(ctx, `SELECT `+profileColumns+profileJoins+` ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.Username, &p.FirstName, &p.LastName,
		&p.RoleID, &p.RoleName, &p.ParentRoleName,
		&p.IsRoleManager, &p.IsModuleLeader, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

var _ Directory = (*Repository)(nil)
