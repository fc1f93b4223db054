package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "replay:sig:"

// RedisStore shares the replay cache across bridge instances. SET NX with an expiry
// makes the claim atomic.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, replayKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim replay key: %w", err)
	}
	return ok, nil
}
