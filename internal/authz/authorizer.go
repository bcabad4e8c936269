// Package authz decides access. Every surface in it (permission checks,
// route guards, request middleware, conditional handlers and menus) goes
// through one Authorizer and fails closed.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/roles"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// PermissionStore resolves role ids to permission names.
type PermissionStore interface {
	DirectPermissions(ctx context.Context, roleID int64, useCache bool) ([]string, error)
	InheritedPermissions(ctx context.Context, roleID int64, useCache bool) ([]string, error)
}

// RoleIDResolver finds the role id for a user.
type RoleIDResolver interface {
	ResolveRoleID(ctx context.Context, userID int64, roleName string) (int64, error)
}

// Recorder observes access decisions.
type Recorder interface {
	ObserveDecision(gate, result string)
}

// Gate names reported to the Recorder.
const (
	GateLocal      = "local"
	GateStored     = "stored"
	GateAny        = "any"
	GateAll        = "all"
	GateInherited  = "inherited"
	GateRoute      = "route"
	GateMiddleware = "middleware"
	GateRender     = "render"
)

const defaultTimeout = 5 * time.Second

var errNoRecord = errors.New("authz: no user record")

// Authorizer answers permission questions about the user stored in a session.
type Authorizer struct {
	store    PermissionStore
	resolver RoleIDResolver
	logger   *slog.Logger
	recorder Recorder
	timeout  time.Duration
}

// Option customises an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithRecorder reports decisions, typically to metrics.
func WithRecorder(r Recorder) Option {
	return func(a *Authorizer) { a.recorder = r }
}

// WithTimeout bounds each check. A check that runs out of time is denied.
func WithTimeout(d time.Duration) Option {
	return func(a *Authorizer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// New constructs an Authorizer.
func New(store PermissionStore, resolver RoleIDResolver, opts ...Option) *Authorizer {
	a := &Authorizer{
		store:    store,
		resolver: resolver,
		logger:   slog.Default(),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Can is the synchronous check. It only reads the stored record and never
// touches the database.
func (a *Authorizer) Can(st users.Storage, perm string) (allowed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("authz: local check panicked", slog.String("permission", perm), slog.Any("panic", rec))
			allowed = false
		}
		a.record(GateLocal, allowed)
	}()
	rec, err := users.LoadRecord(st)
	if err != nil {
		a.logger.Error("authz: load user record", slog.Any("error", err))
		return false
	}
	return recordGrants(rec, perm)
}

// recordGrants answers from the record alone.
func recordGrants(rec *users.Record, perm string) bool {
	if rec == nil {
		return false
	}
	if roles.IsSuperAdmin(rec.Role) {
		return true
	}
	if rec.Permissions != nil {
		return slices.Contains(rec.Permissions, perm)
	}
	return slices.Contains(rec.Role.Permissions(), perm)
}

// Check is the authoritative check against the user's direct permissions.
// It uses the permissions stored on the record when present, otherwise it
// fetches them and writes them back.
func (a *Authorizer) Check(ctx context.Context, st users.Storage, perm string) bool {
	return a.decide(ctx, GateStored, perm, func(ctx context.Context) (bool, error) {
		return a.check(ctx, st, perm)
	})
}

// CheckAny passes when at least one permission passes Check. An empty list
// never passes.
func (a *Authorizer) CheckAny(ctx context.Context, st users.Storage, perms ...string) bool {
	return a.decide(ctx, GateAny, fmt.Sprint(perms), func(ctx context.Context) (bool, error) {
		for _, perm := range perms {
			ok, err := a.check(ctx, st, perm)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}

// CheckAll passes when every permission passes Check. An empty list passes.
func (a *Authorizer) CheckAll(ctx context.Context, st users.Storage, perms ...string) bool {
	return a.decide(ctx, GateAll, fmt.Sprint(perms), func(ctx context.Context) (bool, error) {
		return a.checkAll(ctx, st, perms)
	})
}

func (a *Authorizer) checkAll(ctx context.Context, st users.Storage, perms []string) (bool, error) {
	for _, perm := range perms {
		ok, err := a.check(ctx, st, perm)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// CheckInherited tests perm against the role's inherited permission set,
// read from the permission store rather than the record.
func (a *Authorizer) CheckInherited(ctx context.Context, st users.Storage, perm string) bool {
	return a.decide(ctx, GateInherited, perm, func(ctx context.Context) (bool, error) {
		granted, super, err := a.inherited(ctx, st)
		if err != nil {
			return false, err
		}
		return super || slices.Contains(granted, perm), nil
	})
}

func (a *Authorizer) check(ctx context.Context, st users.Storage, perm string) (bool, error) {
	rec, err := users.LoadRecord(st)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, errNoRecord
	}
	if roles.IsSuperAdmin(rec.Role) {
		return true, nil
	}
	roleID, err := a.ensureRoleID(ctx, st, rec)
	if err != nil {
		return false, err
	}
	if rec.Permissions == nil {
		perms, err := a.store.DirectPermissions(ctx, roleID, true)
		if err != nil {
			return false, err
		}
		rec.Permissions = perms
		if err := users.SaveRecord(st, *rec); err != nil {
			return false, err
		}
	}
	return slices.Contains(rec.Permissions, perm), nil
}

// inherited returns the inherited permission set for the stored user and
// whether the user is a super admin.
func (a *Authorizer) inherited(ctx context.Context, st users.Storage) ([]string, bool, error) {
	rec, err := users.LoadRecord(st)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, errNoRecord
	}
	if roles.IsSuperAdmin(rec.Role) {
		return nil, true, nil
	}
	roleID, err := a.ensureRoleID(ctx, st, rec)
	if err != nil {
		return nil, false, err
	}
	perms, err := a.store.InheritedPermissions(ctx, roleID, true)
	if err != nil {
		return nil, false, err
	}
	return perms, false, nil
}

func (a *Authorizer) ensureRoleID(ctx context.Context, st users.Storage, rec *users.Record) (int64, error) {
	if rec.RoleID != nil {
		return *rec.RoleID, nil
	}
	id, err := a.resolver.ResolveRoleID(ctx, rec.ID, roles.Name(rec.Role))
	if err != nil {
		return 0, fmt.Errorf("authz: resolve role id: %w", err)
	}
	rec.RoleID = &id
	if err := users.SaveRecord(st, *rec); err != nil {
		return 0, err
	}
	return id, nil
}

// decide runs fn under the check timeout and turns every failure, panic
// included, into a denial.
func (a *Authorizer) decide(ctx context.Context, gate, subject string, fn func(context.Context) (bool, error)) (allowed bool) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("authz: check panicked", slog.String("gate", gate), slog.String("permission", subject), slog.Any("panic", rec))
			allowed = false
		}
		a.record(gate, allowed)
	}()

	ok, err := fn(ctx)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, errNoRecord) {
			a.logger.Debug("authz: denied without user record", slog.String("gate", gate), slog.String("permission", subject))
		} else {
			a.logger.Error("authz: check failed, denying", slog.String("gate", gate), slog.String("permission", subject), slog.Any("error", err))
		}
		return false
	}
	return ok
}

func (a *Authorizer) record(gate string, allowed bool) {
	if a.recorder == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	a.recorder.ObserveDecision(gate, result)
}
