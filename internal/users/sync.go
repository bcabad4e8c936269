package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
)

// Directory loads user profiles.
type Directory interface {
	Profile(ctx context.Context, userID int64) (Profile, error)
}

// RoleResolver maps a user to a role id.
type RoleResolver interface {
	ResolveRoleID(ctx context.Context, userID int64, roleName string) (int64, error)
}

// PermissionSource returns the direct permissions of a role.
type PermissionSource interface {
	DirectPermissions(ctx context.Context, roleID int64) ([]string, error)
	ClearCache(ctx context.Context)
}

// Sync keeps the stored user record in step with the database. Concurrent
// syncs for one session are not serialised; they all converge on the same
// role's direct permissions.
type Sync struct {
	directory Directory
	resolver  RoleResolver
	perms     PermissionSource
	logger    *slog.Logger
}

// NewSync constructs a Sync.
func NewSync(directory Directory, resolver RoleResolver, perms PermissionSource, logger *slog.Logger) *Sync {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sync{directory: directory, resolver: resolver, perms: perms, logger: logger}
}

// Begin marks a login as in flight.
func (s *Sync) Begin(st Storage) {
	st.Set(pendingKey, "1")
}

// Login loads the user and establishes the stored record.
func (s *Sync) Login(ctx context.Context, st Storage, userID int64) (Record, error) {
	s.Begin(st)
	profile, err := s.directory.Profile(ctx, userID)
	if err != nil {
		ClearRecord(st)
		return Record{}, fmt.Errorf("users: login profile: %w", err)
	}
	return s.Establish(ctx, st, profile)
}

// Establish writes the record for profile and then syncs direct permissions.
// The record is stored before the sync because the sync reads the role id
// back from storage.
func (s *Sync) Establish(ctx context.Context, st Storage, profile Profile) (Record, error) {
	rec := RecordFromProfile(profile)
	if roleID, err := s.resolver.ResolveRoleID(ctx, profile.ID, profile.RoleName); err == nil {
		rec.RoleID = &roleID
	} else {
		s.logger.Warn("role id unresolved at login",
			slog.Int64("user_id", profile.ID), slog.String("role", profile.RoleName), slog.Any("error", err))
		if profile.RoleID != nil {
			id := *profile.RoleID
			rec.RoleID = &id
		}
	}
	if err := SaveRecord(st, rec); err != nil {
		ClearRecord(st)
		return Record{}, err
	}
	return s.syncStored(ctx, st)
}

// syncStored fetches direct permissions for the role id found in storage and
// rewrites the record when any were returned.
func (s *Sync) syncStored(ctx context.Context, st Storage) (Record, error) {
	rec, err := LoadRecord(st)
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, shared.ErrUnauthenticated
	}
	if rec.RoleID == nil {
		return *rec, nil
	}
	perms, err := s.perms.DirectPermissions(ctx, *rec.RoleID)
	if err != nil {
		s.logger.Warn("permission sync failed",
			slog.Int64("user_id", rec.ID), slog.Int64("role_id", *rec.RoleID), slog.Any("error", err))
		return *rec, nil
	}
	if len(perms) == 0 {
		return *rec, nil
	}
	rec.Permissions = perms
	if err := SaveRecord(st, *rec); err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Refresh reloads the stored user from the database. Any failure clears the
// record and reports shared.ErrSessionExpired.
func (s *Sync) Refresh(ctx context.Context, st Storage) (Record, error) {
	rec, err := LoadRecord(st)
	if err != nil || rec == nil {
		ClearRecord(st)
		return Record{}, shared.ErrSessionExpired
	}
	profile, err := s.directory.Profile(ctx, rec.ID)
	if err != nil {
		s.logger.Warn("session refresh failed", slog.Int64("user_id", rec.ID), slog.Any("error", err))
		ClearRecord(st)
		return Record{}, fmt.Errorf("%w: %v", shared.ErrSessionExpired, err)
	}
	if !profile.IsActive {
		ClearRecord(st)
		return Record{}, shared.ErrSessionExpired
	}
	return s.Establish(ctx, st, profile)
}

// SyncUserPermissions clears the permission caches, re-resolves the role id
// and overwrites the stored permissions with the role's direct grants.
func (s *Sync) SyncUserPermissions(ctx context.Context, st Storage) ([]string, error) {
	s.perms.ClearCache(ctx)
	rec, err := LoadRecord(st)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, shared.ErrUnauthenticated
	}
	roleID, err := s.resolver.ResolveRoleID(ctx, rec.ID, roles.Name(rec.Role))
	if err != nil {
		return nil, fmt.Errorf("users: resolve role: %w", err)
	}
	perms, err := s.perms.DirectPermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("users: sync permissions: %w", err)
	}
	if perms == nil {
		perms = []string{}
	}
	rec.RoleID = &roleID
	rec.Permissions = perms
	if err := SaveRecord(st, *rec); err != nil {
		return nil, err
	}
	return perms, nil
}

// Logout forgets the stored user.
func (s *Sync) Logout(st Storage) {
	ClearRecord(st)
}

// IsExpired reports whether err means the session must be re-established.
func IsExpired(err error) bool {
	return errors.Is(err, shared.ErrSessionExpired)
}
