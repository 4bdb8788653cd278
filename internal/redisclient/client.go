package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with the lock-release script loaded.
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
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireCheckoutLock takes the per-user checkout lock so at most one
// checkout per user is in flight. The token identifies this attempt; the TTL
// bounds how long a crashed checkout can hold the lock.
func (c *Client) AcquireCheckoutLock(ctx context.Context, userID, token string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, checkoutLockKey(userID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	return ok, nil
}

// ReleaseCheckoutLock releases the lock only if this attempt's token still
// holds it, so a lock that expired and was re-acquired is not stolen.
func (c *Client) ReleaseCheckoutLock(ctx context.Context, userID, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{checkoutLockKey(userID)}, token).Result()
	if err != nil {
		return fmt.Errorf("failed to release checkout lock: %w", err)
	}
	return nil
}

func checkoutLockKey(userID string) string {
	return fmt.Sprintf("checkout:lock:%s", userID)
}
