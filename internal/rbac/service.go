package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrCycle is returned when a parent assignment would loop the hierarchy.
	ErrCycle = errors.New("rbac: role hierarchy cycle")
	// ErrInvalidRole flags an empty or otherwise unusable role name.
	ErrInvalidRole = errors.New("rbac: role name required")
)

// Warmer schedules a background refill of the permission caches.
type Warmer interface {
	EnqueueWarmPermissions(ctx context.Context) error
}

// Auditor records role administration changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates role administration and role id resolution. Every
// successful write clears the permission caches.
type Service struct {
	repo   Repository
	store  *Store
	logger *slog.Logger
	warmer Warmer
	audit  Auditor
}

// NewService constructs a Service.
func NewService(repo Repository, store *Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, logger: logger}
}

// WithWarmer attaches a cache warmer that runs after each invalidation.
func (s *Service) WithWarmer(w Warmer) *Service {
	s.warmer = w
	return s
}

// WithAuditor attaches an audit trail for administration changes.
func (s *Service) WithAuditor(a Auditor) *Service {
	s.audit = a
	return s
}

// Store exposes the permission store backing the service.
func (s *Service) Store() *Store {
	return s.store
}

// ResolveRoleID finds the role id for a user: the user_roles mapping first,
// then the roles table by case-insensitive name.
func (s *Service) ResolveRoleID(ctx context.Context, userID int64, roleName string) (int64, error) {
	if userID != 0 {
		id, err := s.repo.RoleIDForUser(ctx, userID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("rbac: resolve role for user %d: %w", userID, err)
		}
	}
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return 0, ErrNotFound
	}
	id, err := s.repo.RoleIDByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("rbac: resolve role %q: %w", roleName, err)
	}
	return id, nil
}

// DirectPermissions is a convenience over the store.
func (s *Service) DirectPermissions(ctx context.Context, roleID int64) ([]string, error) {
	return s.store.DirectPermissions(ctx, roleID, true)
}

// InheritedPermissions is a convenience over the store.
func (s *Service) InheritedPermissions(ctx context.Context, roleID int64) ([]string, error) {
	return s.store.InheritedPermissions(ctx, roleID, true)
}

// ClearCache drops every cached permission list.
func (s *Service) ClearCache(ctx context.Context) {
	s.store.ClearCache(ctx)
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// CreateRole inserts a new role, optionally under a parent.
func (s *Service) CreateRole(ctx context.Context, name, description string, parentID *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrInvalidRole
	}
	if parentID != nil {
		if _, err := s.repo.GetRole(ctx, *parentID); err != nil {
			return Role{}, err
		}
	}
	role, err := s.repo.CreateRole(ctx, name, strings.TrimSpace(description), parentID)
	if err != nil {
		return Role{}, err
	}
	s.changed(ctx, "create_role", "role", role.ID, map[string]any{"name": role.Name, "parent_role": parentID})
	return role, nil
}

// SetParent re-parents a role. A nil parent makes it a root role.
func (s *Service) SetParent(ctx context.Context, roleID int64, parentID *int64) error {
	if parentID != nil {
		if err := s.checkAcyclic(ctx, roleID, *parentID); err != nil {
			return err
		}
	}
	if err := s.repo.UpdateRoleParent(ctx, roleID, parentID); err != nil {
		return err
	}
	s.changed(ctx, "set_parent", "role", roleID, map[string]any{"parent_role": parentID})
	return nil
}

// checkAcyclic walks up from the proposed parent and fails if it reaches roleID.
func (s *Service) checkAcyclic(ctx context.Context, roleID, parentID int64) error {
	current := parentID
	for depth := 0; depth < maxInheritanceDepth; depth++ {
		if current == roleID {
			return ErrCycle
		}
		next, err := s.repo.RoleParent(ctx, current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		current = *next
	}
	return ErrCycle
}

// DeleteRole removes a role by ID. Returns ErrNotFound if nothing was deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.changed(ctx, "delete_role", "role", id, nil)
	return nil
}

// EnsurePermission upserts a permission by name.
func (s *Service) EnsurePermission(ctx context.Context, name, description, category string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, errors.New("rbac: permission name required")
	}
	perm, err := s.repo.UpsertPermission(ctx, Permission{
		Name:        name,
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
	})
	if err != nil {
		return Permission{}, err
	}
	s.changed(ctx, "ensure_permission", "permission", perm.ID, map[string]any{"name": perm.Name})
	return perm, nil
}

// SetRolePermissions replaces the direct permissions of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		if _, err := repo.GetRole(ctx, roleID); err != nil {
			return err
		}
		current, err := repo.RolePermissionIDs(ctx, roleID)
		if err != nil {
			return err
		}
		existing := make(map[int64]struct{}, len(current))
		for _, id := range current {
			existing[id] = struct{}{}
		}
		keep := make(map[int64]struct{}, len(permissionIDs))
		for _, id := range permissionIDs {
			keep[id] = struct{}{}
			if _, ok := existing[id]; !ok {
				if err := repo.AttachPermission(ctx, Assignment{RoleID: roleID, PermissionID: id}); err != nil {
					return err
				}
			}
		}
		for id := range existing {
			if _, ok := keep[id]; !ok {
				if err := repo.DetachPermission(ctx, Assignment{RoleID: roleID, PermissionID: id}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(ctx, "set_role_permissions", "role", roleID, map[string]any{"permission_ids": permissionIDs})
	return nil
}

// AssignRole points a user at a role.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	err := s.repo.WithTx(ctx, func(repo Repository) error {
		if _, err := repo.GetRole(ctx, roleID); err != nil {
			return err
		}
		return repo.AssignUserRole(ctx, UserRole{UserID: userID, RoleID: roleID})
	})
	if err != nil {
		return err
	}
	s.changed(ctx, "assign_role", "user", userID, map[string]any{"role_id": roleID})
	return nil
}

// changed clears the caches after a successful write and records it.
func (s *Service) changed(ctx context.Context, op, entity string, id int64, meta map[string]any) {
	s.invalidate(ctx, op)
	if s.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  shared.ActorID(ctx),
		Action:   op,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit log", slog.String("op", op), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context, op string) {
	s.store.ClearCache(ctx)
	s.logger.Info("permission caches cleared", slog.String("op", op))
	if s.warmer == nil {
		return
	}
	if err := s.warmer.EnqueueWarmPermissions(ctx); err != nil {
		s.logger.Warn("enqueue permission warmup", slog.String("op", op), slog.Any("error", err))
	}
}
