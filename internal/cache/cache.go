// Package cache keeps the public product listing in Redis so the hot
// GET /products path does not hit Postgres on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/fishmart/internal/models"
)

const keyAvailableProducts = "products:available:v1"

type ProductCache interface {
	// GetAvailable reports a miss with ok == false and a nil error.
	GetAvailable(ctx context.Context) (products []models.Product, ok bool, err error)
	SetAvailable(ctx context.Context, products []models.Product) error
	InvalidateAvailable(ctx context.Context) error
}

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

type RedisProductCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisProductCache(rdb redis.Cmdable, ttl time.Duration) *RedisProductCache {
	return &RedisProductCache{rdb: rdb, ttl: ttl}
}

func (c *RedisProductCache) GetAvailable(ctx context.Context) ([]models.Product, bool, error) {
	raw, err := c.rdb.Get(ctx, keyAvailableProducts).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cached products: %w", err)
	}

	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, fmt.Errorf("decode cached products: %w", err)
	}
	return products, true, nil
}

func (c *RedisProductCache) SetAvailable(ctx context.Context, products []models.Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	if err := c.rdb.Set(ctx, keyAvailableProducts, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache products: %w", err)
	}
	return nil
}

func (c *RedisProductCache) InvalidateAvailable(ctx context.Context) error {
	if err := c.rdb.Del(ctx, keyAvailableProducts).Err(); err != nil {
		return fmt.Errorf("invalidate products: %w", err)
	}
	return nil
}

// Noop never hits; used when no Redis address is configured.
type Noop struct{}

func (Noop) GetAvailable(context.Context) ([]models.Product, bool, error) { return nil, false, nil }
func (Noop) SetAvailable(context.Context, []models.Product) error { return nil }
func (Noop) InvalidateAvailable(context.Context) error { return nil }
