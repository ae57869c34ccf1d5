package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/esomin/gpu-market-etl/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Cooldown is a shared per-host rate-limit hint, so a Retry-After
// observed by one process is honored by the next pipeline run even
// across restarts. Grounded on pkg/redis/redis.go's client wrapper,
// repurposed here from token-blacklisting to rate-limit bookkeeping.
type Cooldown interface {
	Set(ctx context.Context, host string, d time.Duration)
	Remaining(ctx context.Context, host string) time.Duration
}

// RedisCooldown is best-effort: any Redis error is logged and treated
// as "no cooldown known" rather than failing the caller.
type RedisCooldown struct {
	client *redis.Client
}

// NewRedisCooldown builds a Cooldown backed by Redis. Returns nil,
// without error, when host is empty or Redis does not answer a ping at
// construction — callers should skip WithCooldown entirely in that case
// and rely on in-process-only backoff.
func NewRedisCooldown(host, port, password string, db int) *RedisCooldown {
	if host == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return &RedisCooldown{client: client}
}

func cooldownKey(host string) string {
	return "etl:cooldown:" + host
}

func (c *RedisCooldown) Set(ctx context.Context, host string, d time.Duration) {
	if err := c.client.Set(ctx, cooldownKey(host), "1", d).Err(); err != nil {
		logger.Warn("failed to record shared cooldown, falling back to in-process backoff", map[string]interface{}{"host": host, "error": err.Error()})
	}
}

func (c *RedisCooldown) Remaining(ctx context.Context, host string) time.Duration {
	ttl, err := c.client.TTL(ctx, cooldownKey(host)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

// Close releases the underlying Redis client.
func (c *RedisCooldown) Close() error {
	return c.client.Close()
}
