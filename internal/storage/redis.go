package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aoisupersix/strava-leaderboard-enhanced/pkg/utils"
)

// RedisStore caches fetched leaderboard pages so repeated aggregations of the
// same view don't hammer the host.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb, ttl: ttl}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func pageKey(identity string) string {
	return fmt.Sprintf("page:%s", utils.HashURL(identity))
}

// GetPage returns a cached page body for the request identity, if present.
func (s *RedisStore) GetPage(ctx context.Context, identity string) ([]byte, bool) {
	body, err := s.client.Get(ctx, pageKey(identity)).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

// SavePage caches a page body under the request identity with the store TTL.
func (s *RedisStore) SavePage(ctx context.Context, identity string, body []byte) error {
	return s.client.Set(ctx, pageKey(identity), body, s.ttl).Err()
}
