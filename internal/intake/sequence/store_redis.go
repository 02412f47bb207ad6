package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/google/uuid"
)

// RedisStore backs counters with Redis INCR, which is atomic across
// processes. Suitable when several API replicas share one Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(k Key) string {
	return fmt.Sprintf("ppdb:seq:%s:%d:%s", uuid.UUID(k.TenantID), k.CycleYear, k.BatchCode)
}

func (s *RedisStore) Next(ctx context.Context, key Key) (int, error) {
	v, err := s.client.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr sequence for %s: %w", key, err)
	}
	return int(v), nil
}

// seedScript raises the counter to max without ever lowering it. The
// comparison and write run as one script, so a concurrent INCR cannot
// interleave.
var seedScript = redis.NewScript(`
	local current = tonumber(redis.call('GET', KEYS[1]) or '0')
	local max = tonumber(ARGV[1])
	if current < max then
		redis.call('SET', KEYS[1], max)
	end
	return 0
`)

func (s *RedisStore) Seed(ctx context.Context, key Key, max int) error {
	if err := seedScript.Run(ctx, s.client, []string{s.key(key)}, max).Err(); err != nil {
		return fmt.Errorf("seed sequence for %s: %w", key, err)
	}
	return nil
}
