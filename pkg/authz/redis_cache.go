package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "authz:"

// RedisCache is a DecisionCache shared by every replica through Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to url and verifies the connection.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Client returns the underlying client, used by the readiness probe.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

// Get implements DecisionCache.
func (c *RedisCache) Get(ctx context.Context, key DecisionKey) (Decision, uint64, bool, error) {
	gen, err := c.generation(ctx, key.TenantID)
	if err != nil {
		return Decision{}, 0, false, err
	}

	raw, err := c.client.Get(ctx, decisionKey(key, gen)).Bytes()
	if err == redis.Nil {
		return Decision{}, gen, false, nil
	}
	if err != nil {
		return Decision{}, 0, false, fmt.Errorf("failed to read decision: %w", err)
	}

	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, 0, false, fmt.Errorf("failed to decode decision: %w", err)
	}
	return d, gen, true, nil
}

// Set implements DecisionCache.
func (c *RedisCache) Set(ctx context.Context, key DecisionKey, generation uint64, d Decision) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, decisionKey(key, generation), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write decision: %w", err)
	}
	return nil
}

// InvalidateTenant implements DecisionCache.
func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	if err := c.client.Incr(ctx, generationKey(tenantID)).Err(); err != nil {
		return fmt.Errorf("failed to bump tenant generation: %w", err)
	}
	return nil
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) generation(ctx context.Context, tenantID uuid.UUID) (uint64, error) {
	val, err := c.client.Get(ctx, generationKey(tenantID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tenant generation: %w", err)
	}
	gen, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tenant generation %q: %w", val, err)
	}
	return gen, nil
}

func generationKey(tenantID uuid.UUID) string {
	return redisKeyPrefix + "gen:" + tenantID.String()
}

func decisionKey(key DecisionKey, generation uint64) string {
	return fmt.Sprintf("%sdecision:%s:%d:%s:%s", redisKeyPrefix, key.TenantID, generation, key.UserID, key.Module)
}
