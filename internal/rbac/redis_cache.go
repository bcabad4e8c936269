package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries cache clear notifications between processes.
const InvalidationChannel = "rbac.invalidate"

// RedisCache shares permission lists between processes. Clear bumps a
// version counter so stale keys are simply never read again and age out.
type RedisCache struct {
	client *redis.Client
	kind   string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache builds a RedisCache for one cache kind.
func NewRedisCache(client *redis.Client, kind string, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{client: client, kind: kind, ttl: ttl, logger: logger}
}

func (c *RedisCache) versionKey() string {
	return "rbac:perm:" + c.kind + ":version"
}

func (c *RedisCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, c.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey(), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, c.versionKey()).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *RedisCache) key(ctx context.Context, roleID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rbac:perm:%s:%d:v%d", c.kind, roleID, ver), nil
}

// Get reads a cached list. Redis failures count as a miss.
func (c *RedisCache) Get(ctx context.Context, roleID int64) ([]string, bool) {
	key, err := c.key(ctx, roleID)
	if err != nil {
		c.logger.Warn("rbac cache version", slog.String("kind", c.kind), slog.Any("error", err))
		return nil, false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("rbac cache get", slog.String("kind", c.kind), slog.Any("error", err))
		}
		return nil, false
	}
	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil {
		c.logger.Warn("rbac cache decode", slog.String("kind", c.kind), slog.Any("error", err))
		return nil, false
	}
	return clone(perms), true
}

// Set writes a list under the current version.
func (c *RedisCache) Set(ctx context.Context, roleID int64, perms []string) {
	key, err := c.key(ctx, roleID)
	if err != nil {
		c.logger.Warn("rbac cache version", slog.String("kind", c.kind), slog.Any("error", err))
		return
	}
	raw, err := json.Marshal(clone(perms))
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("rbac cache set", slog.String("kind", c.kind), slog.Any("error", err))
	}
}

// Clear invalidates every entry of this kind.
func (c *RedisCache) Clear(ctx context.Context) {
	if err := c.client.Incr(ctx, c.versionKey()).Err(); err != nil {
		c.logger.Error("rbac cache clear", slog.String("kind", c.kind), slog.Any("error", err))
	}
}

// Broadcaster tells sibling processes to drop their local caches.
type Broadcaster struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewBroadcaster builds a Broadcaster on InvalidationChannel.
func NewBroadcaster(client *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{client: client, channel: InvalidationChannel, origin: uuid.NewString(), logger: logger}
}

// Publish announces a cache clear.
func (b *Broadcaster) Publish(ctx context.Context) error {
	return b.client.Publish(ctx, b.channel, b.origin).Err()
}

// Listen calls onClear for every clear announced by another process until
// ctx is done. It returns once the subscription is active.
func (b *Broadcaster) Listen(ctx context.Context, onClear func(context.Context)) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("rbac: subscribe invalidation: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == b.origin {
					continue
				}
				b.logger.Info("rbac cache invalidated remotely", slog.String("origin", msg.Payload))
				onClear(ctx)
			}
		}
	}()
	return nil
}
