package rbac

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache maps a role id to a permission name list. Implementations must be
// safe for concurrent use and must hand out copies.
type Cache interface {
	Get(ctx context.Context, roleID int64) ([]string, bool)
	Set(ctx context.Context, roleID int64, perms []string)
	Clear(ctx context.Context)
}

// MemoryCache is an unbounded process-wide map. Entries live until Clear.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int64][]string
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[int64][]string)}
}

// Get returns a copy of the cached list.
func (c *MemoryCache) Get(_ context.Context, roleID int64) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	perms, ok := c.entries[roleID]
	if !ok {
		return nil, false
	}
	return clone(perms), true
}

// Set stores a copy of perms.
func (c *MemoryCache) Set(_ context.Context, roleID int64, perms []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[roleID] = clone(perms)
}

// Clear drops every entry.
func (c *MemoryCache) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64][]string)
}

// Len reports the number of cached roles.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LRUCache bounds the number of cached roles and expires entries after a TTL,
// for processes that serve many users at once.
type LRUCache struct {
	lru *expirable.LRU[int64, []string]
}

// NewLRUCache builds an LRUCache. A ttl of zero disables expiry.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{lru: expirable.NewLRU[int64, []string](size, nil, ttl)}
}

// Get returns a copy of the cached list.
func (c *LRUCache) Get(_ context.Context, roleID int64) ([]string, bool) {
	perms, ok := c.lru.Get(roleID)
	if !ok {
		return nil, false
	}
	return clone(perms), true
}

// Set stores a copy of perms, evicting the least recently used role if full.
func (c *LRUCache) Set(_ context.Context, roleID int64, perms []string) {
	c.lru.Add(roleID, clone(perms))
}

// Clear drops every entry.
func (c *LRUCache) Clear(context.Context) {
	c.lru.Purge()
}

// Len reports the number of cached roles.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

func clone(perms []string) []string {
	if perms == nil {
		return []string{}
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}
