// Package report caches attendance summaries of ended sessions in Redis.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"classroll/internal/attendance"
)

const keyPrefix = "classroll:summary:"

// RedisCache implements attendance.SummaryCache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache stores summaries for ttl; zero keeps them until deleted.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func key(sessionID string) string { return keyPrefix + sessionID }

// Get returns ok=false on a miss.
func (c *RedisCache) Get(ctx context.Context, sessionID string) (attendance.Summary, bool, error) {
	raw, err := c.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return attendance.Summary{}, false, nil
	}
	if err != nil {
		return attendance.Summary{}, false, err
	}
	var sum attendance.Summary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return attendance.Summary{}, false, err
	}
	return sum, true, nil
}

func (c *RedisCache) Set(ctx context.Context, sessionID string, sum attendance.Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(sessionID), raw, c.ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, key(sessionID)).Err()
}

var _ attendance.SummaryCache = (*RedisCache)(nil)
