package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a single lock node. Nodes are independent; coordination between
// them happens only through the quorum rules of the Manager.
type Store interface {
	// SetIfAbsent stores value under key with the ttl when the key is free.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// ExtendIfOwner resets the key ttl when it still holds value.
	ExtendIfOwner(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// DeleteIfOwner removes the key when it still holds value.
	DeleteIfOwner(ctx context.Context, key, value string) (bool, error)
}

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// RedisStore implements Store on a single Redis node.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStores wraps one client per independent node.
func NewRedisStores(clients ...*redis.Client) []Store {
	stores := make([]Store, 0, len(clients))
	for _, c := range clients {
		stores = append(stores, NewRedisStore(c))
	}
	return stores
}

// SetIfAbsent issues SET key value NX PX ttl.
func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// ExtendIfOwner runs a compare-and-PEXPIRE script.
func (s *RedisStore) ExtendIfOwner(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return runOwnerScript(ctx, s.client, extendScript, key, value, ttl.Milliseconds())
}

// DeleteIfOwner runs a compare-and-DEL script.
func (s *RedisStore) DeleteIfOwner(ctx context.Context, key, value string) (bool, error) {
	return runOwnerScript(ctx, s.client, releaseScript, key, value)
}

func runOwnerScript(ctx context.Context, c redis.Scripter, script *redis.Script, key string, args ...any) (bool, error) {
	n, err := script.Run(ctx, c, []string{key}, args...).Int64()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
