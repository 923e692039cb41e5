// Package cache is a Redis cache-aside layer for public post listings.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"chapel/internal/posts/models"
)

const (
	defaultPrefix = "chapel:posts:"
	defaultTTL    = time.Minute
	generationKey = "generation"
)

// ListCache stores listings as JSON under prefix+"v<generation>:"+key.
// Invalidate bumps the generation, so a load that began before it can only
// write under a key nobody reads any more. Redis failures degrade to a direct
// load; they are logged and never surface to callers.
type ListCache struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

type Option func(*ListCache)

func WithPrefix(p string) Option {
	return func(c *ListCache) { c.prefix = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *ListCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a cache. A non-positive ttl falls back to one minute.
func New(client redis.Cmdable, ttl time.Duration, opts ...Option) *ListCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c := &ListCache{client: client, ttl: ttl, prefix: defaultPrefix, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached listing for key or loads, stores and returns it.
// Concurrent misses for the same key share one load.
func (c *ListCache) Fetch(ctx context.Context, key string, load func(context.Context) ([]*models.Post, error)) ([]*models.Post, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "post cache generation read failed", "error", err)
		return load(ctx)
	}
	fullKey := c.listKey(gen, key)

	raw, err := c.client.Get(ctx, fullKey).Bytes()
	switch {
	case err == nil:
		var posts []*models.Post
		if jsonErr := json.Unmarshal(raw, &posts); jsonErr == nil {
			return posts, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", fullKey)
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "post cache read failed", "key", fullKey, "error", err)
	}

	v, err, _ := c.group.Do(fullKey, func() (any, error) {
		posts, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.store(ctx, fullKey, posts)
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*models.Post), nil
}

func (c *ListCache) store(ctx context.Context, key string, posts []*models.Post) {
	if posts == nil {
		posts = []*models.Post{}
	}
	raw, err := json.Marshal(posts)
	if err != nil {
		c.logger.WarnContext(ctx, "post cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "post cache write failed", "key", key, "error", err)
	}
}

func (c *ListCache) listKey(gen int64, key string) string {
	return fmt.Sprintf("%sv%d:%s", c.prefix, gen, key)
}

func (c *ListCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.prefix+generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Invalidate moves readers to a new generation and drops stored listings.
func (c *ListCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.prefix+generationKey).Err(); err != nil {
		return fmt.Errorf("bump post cache generation: %w", err)
	}
	iter := c.client.Scan(ctx, 0, c.prefix+"v*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan post cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete post cache: %w", err)
	}
	return nil
}
