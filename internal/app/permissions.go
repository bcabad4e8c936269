package app

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/rbac"
)

// PermissionStoreParams selects the caches behind the permission store.
type PermissionStoreParams struct {
	Config   *Config
	Source   rbac.Source
	Redis    *redis.Client
	Logger   *slog.Logger
	Observer rbac.CacheObserver
}

// NewPermissionStore builds the permission store configured by
// PERMISSION_CACHE. The broadcaster is non-nil when clears must reach other
// processes; callers should Listen on it and route messages to ClearLocal.
func NewPermissionStore(p PermissionStoreParams) (*rbac.Store, *rbac.Broadcaster) {
	opts := []rbac.StoreOption{rbac.WithLogger(p.Logger)}
	if p.Observer != nil {
		opts = append(opts, rbac.WithObserver(p.Observer))
	}

	kind := CacheLRU
	if p.Config != nil {
		kind = p.Config.PermissionCache
	}
	var broadcaster *rbac.Broadcaster
	switch {
	case kind == CacheRedis && p.Redis != nil:
		ttl := p.Config.PermissionCacheTTL
		opts = append(opts, rbac.WithCaches(
			rbac.NewRedisCache(p.Redis, rbac.KindDirect, ttl, p.Logger),
			rbac.NewRedisCache(p.Redis, rbac.KindInherited, ttl, p.Logger),
		))
	case kind == CacheMemory:
		opts = append(opts, rbac.WithCaches(rbac.NewMemoryCache(), rbac.NewMemoryCache()))
		if p.Redis != nil {
			broadcaster = rbac.NewBroadcaster(p.Redis, p.Logger)
		}
	default:
		size, ttl := 0, time.Duration(0)
		if p.Config != nil {
			size, ttl = p.Config.PermissionCacheSize, p.Config.PermissionCacheTTL
		}
		opts = append(opts, rbac.WithCaches(rbac.NewLRUCache(size, ttl), rbac.NewLRUCache(size, ttl)))
		if p.Redis != nil {
			broadcaster = rbac.NewBroadcaster(p.Redis, p.Logger)
		}
	}
	if broadcaster != nil {
		opts = append(opts, rbac.WithNotifier(broadcaster))
	}
	return rbac.NewStore(p.Source, opts...), broadcaster
}
