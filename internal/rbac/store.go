package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const maxInheritanceDepth = 64

// CacheObserver receives cache hit/miss notifications per cache kind.
type CacheObserver interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

// Notifier announces a cache clear to other processes.
type Notifier interface {
	Publish(ctx context.Context) error
}

// Store resolves role ids into permission name lists. Direct lookups and
// inherited (ancestor closure) lookups are cached independently.
type Store struct {
	source    Source
	direct    Cache
	inherited Cache
	logger    *slog.Logger
	observer  CacheObserver
	notifier  Notifier

	group      singleflight.Group
	generation atomic.Uint64
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithCaches replaces the default in-memory caches.
func WithCaches(direct, inherited Cache) StoreOption {
	return func(s *Store) {
		if direct != nil {
			s.direct = direct
		}
		if inherited != nil {
			s.inherited = inherited
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver reports cache hits and misses.
func WithObserver(observer CacheObserver) StoreOption {
	return func(s *Store) { s.observer = observer }
}

// WithNotifier publishes ClearCache calls to sibling processes.
func WithNotifier(notifier Notifier) StoreOption {
	return func(s *Store) { s.notifier = notifier }
}

// NewStore builds a Store reading from source.
func NewStore(source Source, opts ...StoreOption) *Store {
	s := &Store{
		source:    source,
		direct:    NewMemoryCache(),
		inherited: NewMemoryCache(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DirectPermissions returns the permissions assigned to the role itself.
func (s *Store) DirectPermissions(ctx context.Context, roleID int64, useCache bool) ([]string, error) {
	if useCache {
		if perms, ok := s.direct.Get(ctx, roleID); ok {
			s.hit(KindDirect)
			return perms, nil
		}
		s.miss(KindDirect)
	}
	return s.load(ctx, KindDirect, roleID, useCache, s.direct, func(ctx context.Context) ([]string, error) {
		names, err := s.source.DirectPermissionNames(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("rbac: direct permissions for role %d: %w", roleID, err)
		}
		return dedupe(names), nil
	})
}

// InheritedPermissions returns the role's direct permissions followed by
// those of every ancestor, each name once. A missing or failing ancestor
// ends the walk with whatever was collected so far.
func (s *Store) InheritedPermissions(ctx context.Context, roleID int64, useCache bool) ([]string, error) {
	if useCache {
		if perms, ok := s.inherited.Get(ctx, roleID); ok {
			s.hit(KindInherited)
			return perms, nil
		}
		s.miss(KindInherited)
	}
	return s.load(ctx, KindInherited, roleID, useCache, s.inherited, func(ctx context.Context) ([]string, error) {
		return s.walk(ctx, roleID, useCache)
	})
}

func (s *Store) walk(ctx context.Context, roleID int64, useCache bool) ([]string, error) {
	visited := make(map[int64]struct{})
	seen := make(map[string]struct{})
	out := []string{}

	current := roleID
	for depth := 0; ; depth++ {
		if _, ok := visited[current]; ok {
			s.logger.Warn("role hierarchy cycle detected",
				slog.Int64("role_id", roleID), slog.Int64("repeated_role_id", current))
			break
		}
		if depth >= maxInheritanceDepth {
			s.logger.Warn("role hierarchy too deep", slog.Int64("role_id", roleID), slog.Int("depth", depth))
			break
		}
		visited[current] = struct{}{}

		perms, err := s.DirectPermissions(ctx, current, useCache)
		if err != nil {
			if current == roleID {
				return nil, err
			}
			s.logger.Warn("ancestor permissions unavailable",
				slog.Int64("role_id", roleID), slog.Int64("ancestor_id", current), slog.Any("error", err))
			break
		}
		for _, p := range perms {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}

		parent, err := s.source.RoleParent(ctx, current)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				s.logger.Warn("role row missing during inheritance walk",
					slog.Int64("role_id", roleID), slog.Int64("missing_id", current))
			} else {
				s.logger.Warn("role parent lookup failed",
					slog.Int64("role_id", roleID), slog.Int64("at_id", current), slog.Any("error", err))
			}
			break
		}
		if parent == nil {
			break
		}
		current = *parent
	}
	return out, nil
}

// load fetches through singleflight. The generation in the key keeps calls
// issued after ClearCache from joining a fetch that began before it, and a
// fetch that straddles a clear does not write its result back.
func (s *Store) load(ctx context.Context, kind string, roleID int64, useCache bool, cache Cache, fetch func(context.Context) ([]string, error)) ([]string, error) {
	if !useCache {
		return fetch(ctx)
	}
	gen := s.generation.Load()
	key := fmt.Sprintf("%s:%d:%d", kind, roleID, gen)
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		perms, err := fetch(shared)
		if err != nil {
			return nil, err
		}
		if s.generation.Load() == gen {
			cache.Set(shared, roleID, perms)
		}
		return perms, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]string)), nil
	}
}

// ClearCache empties both caches and tells sibling processes to do the same.
// Call it after any write to roles, role_permissions or the hierarchy.
func (s *Store) ClearCache(ctx context.Context) {
	s.ClearLocal(ctx)
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx); err != nil {
			s.logger.Warn("publish permission cache invalidation", slog.Any("error", err))
		}
	}
}

// ClearLocal empties both caches without notifying anyone.
func (s *Store) ClearLocal(ctx context.Context) {
	s.generation.Add(1)
	s.direct.Clear(ctx)
	s.inherited.Clear(ctx)
}

func (s *Store) hit(kind string) {
	if s.observer != nil {
		s.observer.CacheHit(kind)
	}
}

func (s *Store) miss(kind string) {
	if s.observer != nil {
		s.observer.CacheMiss(kind)
	}
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
