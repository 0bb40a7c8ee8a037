package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisClient handles caching operations. The dominant consumer is the
// per-user unread notification counter, which is read on every page load
// and invalidated whenever notifications change.
type RedisClient struct {
	client *redis.Client
	config Config
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg Config) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	if cfg.RedisDB >= 0 {
		opts.DB = cfg.RedisDB
	}
	if cfg.RedisMaxRetries > 0 {
		opts.MaxRetries = cfg.RedisMaxRetries
	}
	if cfg.RedisPoolSize > 0 {
		opts.PoolSize = cfg.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{client: client, config: cfg}, nil
}

// NewRedisClientFromExisting wraps an already-constructed client. Used in
// tests with miniredis.
func NewRedisClientFromExisting(client *redis.Client, cfg Config) *RedisClient {
	return &RedisClient{client: client, config: cfg}
}

// Underlying exposes the raw client for health checks
func (c *RedisClient) Underlying() *redis.Client {
	return c.client
}

func unreadKey(principalID int64) string {
	return fmt.Sprintf("unread:%d", principalID)
}

// GetUnreadCount retrieves a cached unread notification count.
// The second return value is false on a cache miss.
func (c *RedisClient) GetUnreadCount(ctx context.Context, principalID int64) (int, bool, error) {
	val, err := c.client.Get(ctx, unreadKey(principalID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		// corrupt entry, drop it
		c.client.Del(ctx, unreadKey(principalID))
		return 0, false, nil
	}
	return count, true, nil
}

// SetUnreadCount caches an unread notification count
func (c *RedisClient) SetUnreadCount(ctx context.Context, principalID int64, count int) error {
	ttl := c.config.CacheTTL["unread_count"]
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	if err := c.client.Set(ctx, unreadKey(principalID), strconv.Itoa(count), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// InvalidateUnreadCount drops a cached unread count after a read-state change
func (c *RedisClient) InvalidateUnreadCount(ctx context.Context, principalID int64) error {
	if err := c.client.Del(ctx, unreadKey(principalID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

// InvalidateAllUnreadCounts drops every cached unread count. Called when
// a broadcast notification is created or deactivated, since any user's
// count may have changed.
func (c *RedisClient) InvalidateAllUnreadCounts(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "unread:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del failed: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.client.Close()
}
