package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "refresh-token:"

// Redis keeps sessions as `refresh-token:<user id>` keys with an expiry.
type Redis struct {
	rdb redis.UniversalClient
}

func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb}
}

func key(userID string) string { return keyPrefix + userID }

func (r *Redis) Put(ctx context.Context, userID, refreshToken string, ttl time.Duration) error {
	ttl = ttlSeconds(ttl)
	if ttl == 0 {
		return errors.New("session ttl must be positive")
	}
	if err := r.rdb.Set(ctx, key(userID), refreshToken, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, userID string) (string, error) {
	v, err := r.rdb.Get(ctx, key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("redis get session: %w", err)
	}
	return v, nil
}

func (r *Redis) Delete(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}
	return nil
}
