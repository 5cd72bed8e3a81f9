package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"dapurku/backend/internal/domain"
)

// RedisOutlierCache keeps one hash per location and vendor so a single DEL
// clears every cached variant.
type RedisOutlierCache struct {
	client *redis.Client
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedisOutlierCache(client *redis.Client) *RedisOutlierCache {
	return &RedisOutlierCache{client: client}
}

func (c *RedisOutlierCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOutlierCache) Get(ctx context.Context, locationID int64, vendorID int64, variant string) ([]domain.VendorOutlier, bool, error) {
	val, err := c.client.HGet(ctx, outlierKey(locationID, vendorID), variant).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var outliers []domain.VendorOutlier
	if err := json.Unmarshal([]byte(val), &outliers); err != nil {
		return nil, false, err
	}
	return outliers, true, nil
}

func (c *RedisOutlierCache) Set(ctx context.Context, locationID int64, vendorID int64, variant string, value []domain.VendorOutlier, ttl time.Duration) error {
	if value == nil {
		value = []domain.VendorOutlier{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	key := outlierKey(locationID, vendorID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, variant, payload)
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisOutlierCache) Invalidate(ctx context.Context, locationID int64, vendorID int64) error {
	return c.client.Del(ctx, outlierKey(locationID, vendorID)).Err()
}
