package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/set_cart_item.lua
var cartItemScript string

const (
	// CartTTL is how long an untouched cart survives
	CartTTL = 7 * 24 * time.Hour
	// MaxLineQuantity caps a single cart line
	MaxLineQuantity = 99
)

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	cartScript    *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
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
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		cartScript:    redis.NewScript(cartItemScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity for readiness probes
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func cartKey(session string) string {
	return fmt.Sprintf("cart:%s", session)
}

// CartQuantities returns product id -> quantity for a session
func (c *Client) CartQuantities(ctx context.Context, session string) (map[string]int, error) {
	raw, err := c.rdb.HGetAll(ctx, cartKey(session)).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(raw))
	for productID, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			continue
		}
		out[productID] = n
	}
	return out, nil
}

// AdjustCartItem adds delta to a line, removing it at zero, and returns the new quantity
func (c *Client) AdjustCartItem(ctx context.Context, session, productID string, delta int) (int, error) {
	res, err := c.cartScript.Run(ctx, c.rdb, []string{cartKey(session)},
		productID, delta, int(CartTTL.Seconds()), MaxLineQuantity).Int()
	if err != nil {
		return 0, fmt.Errorf("cart script failed: %w", err)
	}
	return res, nil
}

// SetCartItem sets a line's quantity; zero or less removes it
func (c *Client) SetCartItem(ctx context.Context, session, productID string, quantity int) error {
	key := cartKey(session)
	if quantity <= 0 {
		return c.RemoveCartItem(ctx, session, productID)
	}
	if quantity > MaxLineQuantity {
		quantity = MaxLineQuantity
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, productID, quantity)
	pipe.Expire(ctx, key, CartTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RemoveCartItem drops a line
func (c *Client) RemoveCartItem(ctx context.Context, session, productID string) error {
	return c.rdb.HDel(ctx, cartKey(session), productID).Err()
}

// ClearCart deletes the whole cart
func (c *Client) ClearCart(ctx context.Context, session string) error {
	return c.rdb.Del(ctx, cartKey(session)).Err()
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// CheckIdempotencyKey checks if an idempotency key exists
func (c *Client) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

// AcquireLock acquires a distributed lock and returns the token needed to release it
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}
