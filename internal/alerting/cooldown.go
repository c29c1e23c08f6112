package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cooldown suppresses repeated alerts for the same key within a window.
type Cooldown interface {
	// Allow reports whether an alert for key may be sent now, and reserves the window if so.
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisCooldown shares the cooldown window across replicas.
type RedisCooldown struct {
	Client *redis.Client
	TTL    time.Duration
}

// NewRedisCooldown wires a redis client into a cooldown.
func NewRedisCooldown(client *redis.Client, ttl time.Duration) *RedisCooldown {
	return &RedisCooldown{Client: client, TTL: ttl}
}

// Allow reserves key with SETNX for TTL.
func (c *RedisCooldown) Allow(ctx context.Context, key string) (bool, error) {
	if c.TTL <= 0 {
		return true, nil
	}
	ok, err := c.Client.SetNX(ctx, key, "1", c.TTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// MemoryCooldown is a process-local cooldown.
type MemoryCooldown struct {
	mu    sync.Mutex
	ttl   time.Duration
	until map[string]time.Time
	now   func() time.Time
}

// NewMemoryCooldown constructs a process-local cooldown.
func NewMemoryCooldown(ttl time.Duration) *MemoryCooldown {
	return &MemoryCooldown{ttl: ttl, until: make(map[string]time.Time), now: time.Now}
}

// Allow reserves key for ttl unless a reservation is still active.
func (c *MemoryCooldown) Allow(_ context.Context, key string) (bool, error) {
	if c.ttl <= 0 {
		return true, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false, nil
	}
	c.until[key] = now.Add(c.ttl)
	return true, nil
}

var (
	_ Cooldown = (*RedisCooldown)(nil)
	_ Cooldown = (*MemoryCooldown)(nil)
)
