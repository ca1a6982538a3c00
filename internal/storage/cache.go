package storage

import (
	"context"
	"encoding/json"
	"time"

	"postback-relay/internal/models"
	"postback-relay/pkg/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const endpointKeyPrefix = "postback:endpoint:slug:"

// CachedStore serves endpoint-by-slug lookups from Redis and delegates
// everything else to the wrapped Store. Cache errors fall through to the
// wrapped store.
type CachedStore struct {
	Store
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStore(store Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	return &CachedStore{Store: store, rdb: rdb, ttl: ttl, logger: logger}
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errs.Wrap(err, "ping redis")
	}
	return rdb, nil
}

func endpointKey(slug string) string {
	return endpointKeyPrefix + slug
}

func (c *CachedStore) GetEndpointBySlug(ctx context.Context, slug string) (*models.Endpoint, error) {
	key := endpointKey(slug)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var e models.Endpoint
		if jsonErr := json.Unmarshal(raw, &e); jsonErr == nil {
			return &e, nil
		}
		c.logger.Warn("Discarding undecodable cached endpoint", zap.String("slug", slug))
	case err != redis.Nil:
		c.logger.Warn("Endpoint cache read failed", zap.String("slug", slug), zap.Error(err))
	}

	e, err := c.Store.GetEndpointBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(e); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Warn("Endpoint cache write failed", zap.String("slug", slug), zap.Error(err))
		}
	}
	return e, nil
}

func (c *CachedStore) UpdateEndpoint(ctx context.Context, e *models.Endpoint) error {
	previous, err := c.Store.GetEndpoint(ctx, e.ID)
	if err != nil {
		return err
	}
	if err := c.Store.UpdateEndpoint(ctx, e); err != nil {
		return err
	}
	c.invalidate(ctx, previous.Slug, e.Slug)
	return nil
}

func (c *CachedStore) DeleteEndpoint(ctx context.Context, id string, at time.Time) error {
	previous, err := c.Store.GetEndpoint(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Store.DeleteEndpoint(ctx, id, at); err != nil {
		return err
	}
	c.invalidate(ctx, previous.Slug)
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context, slugs ...string) {
	keys := make([]string, 0, len(slugs))
	for _, s := range slugs {
		keys = append(keys, endpointKey(s))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("Endpoint cache invalidation failed", zap.Strings("slugs", slugs), zap.Error(err))
	}
}

func (c *CachedStore) Close(ctx context.Context) error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("Failed to close redis client", zap.Error(err))
	}
	return c.Store.Close(ctx)
}
