package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/decrement_stock.lua
var decrementStockScript string

// ErrSessionNotFound is returned when a checkout session is missing or expired.
var ErrSessionNotFound = errors.New("checkout session not found")

type Client struct {
	rdb             *redis.Client
	decrementScript *redis.Script
}

// NewClient creates a new Redis client with the stock script loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		decrementScript: redis.NewScript(decrementStockScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stockKey(kind string, id int64) string {
	return fmt.Sprintf("stock:%s:%d", kind, id)
}

// SetProductStock caches the authoritative product stock count.
func (c *Client) SetProductStock(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey("product", productID), stock, 0).Err()
}

// SetVariantStock caches the authoritative variant stock count.
func (c *Client) SetVariantStock(ctx context.Context, variantID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey("variant", variantID), stock, 0).Err()
}

// GetProductStock reads the cached product stock count.
// Returns found=false on a cache miss.
func (c *Client) GetProductStock(ctx context.Context, productID int64) (stock int, found bool, err error) {
	return c.getStock(ctx, stockKey("product", productID))
}

// GetVariantStock reads the cached variant stock count.
func (c *Client) GetVariantStock(ctx context.Context, variantID int64) (stock int, found bool, err error) {
	return c.getStock(ctx, stockKey("variant", variantID))
}

func (c *Client) getStock(ctx context.Context, key string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	stock, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt stock value %q: %w", val, err)
	}
	return stock, true, nil
}

// DecrementProductStock atomically decrements the cached product stock,
// clamped at zero. Returns the remaining count, or -1 on a cache miss.
func (c *Client) DecrementProductStock(ctx context.Context, productID int64, quantity int) (int, error) {
	return c.decrement(ctx, stockKey("product", productID), quantity)
}

// DecrementVariantStock atomically decrements the cached variant stock.
func (c *Client) DecrementVariantStock(ctx context.Context, variantID int64, quantity int) (int, error) {
	return c.decrement(ctx, stockKey("variant", variantID), quantity)
}

func (c *Client) decrement(ctx context.Context, key string, quantity int) (int, error) {
	result, err := c.decrementScript.Run(ctx, c.rdb, []string{key}, quantity).Result()
	if err != nil {
		return 0, fmt.Errorf("decrement stock script failed: %w", err)
	}

	remaining, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return int(remaining), nil
}

// SaveSession stores a checkout session payload with a TTL.
func (c *Client) SaveSession(ctx context.Context, id string, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("checkout:%s", id), payload, ttl).Err()
}

// LoadSession retrieves a checkout session payload.
func (c *Client) LoadSession(ctx context.Context, id string) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, fmt.Sprintf("checkout:%s", id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	return payload, err
}

// DeleteSession discards a checkout session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("checkout:%s", id)).Err()
}

// CacheZone stores a serialized delivery zone lookup keyed by upazila.
func (c *Client) CacheZone(ctx context.Context, upazilaID int64, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("zone:upazila:%d", upazilaID), payload, ttl).Err()
}

// CachedZone retrieves a cached delivery zone lookup. Returns nil on a miss.
func (c *Client) CachedZone(ctx context.Context, upazilaID int64) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, fmt.Sprintf("zone:upazila:%d", upazilaID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return payload, err
}
