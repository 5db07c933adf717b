// Package cache keeps the product list close to lightweight readers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go-pos-sync/internal/models"

	"github.com/go-redis/redis/v8"
)

const productsKey = "pos:products:all"

// ProductCache is a cache-aside store for GET /api/products.
type ProductCache interface {
	// Products reports false on a miss.
	Products(ctx context.Context) ([]models.Product, bool, error)
	SetProducts(ctx context.Context, products []models.Product) error
	Invalidate(ctx context.Context) error
}

// RedisCache holds the Redis client connection
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects and pings Redis within five seconds.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR environment variable not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	slog.Info("connected to redis", "addr", addr, "ping", pong)
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Products(ctx context.Context) ([]models.Product, bool, error) {
	raw, err := c.client.Get(ctx, productsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read product cache: %w", err)
	}
	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		// A corrupt entry is treated as a miss and overwritten later.
		return nil, false, nil
	}
	return products, true, nil
}

func (c *RedisCache) SetProducts(ctx context.Context, products []models.Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productsKey, raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, productsKey).Err()
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Nop always misses. Used when REDIS_ADDR is not set.
type Nop struct{}

func (Nop) Products(context.Context) ([]models.Product, bool, error) { return nil, false, nil }
func (Nop) SetProducts(context.Context, []models.Product) error      { return nil }
func (Nop) Invalidate(context.Context) error                         { return nil }
