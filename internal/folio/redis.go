package folio

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps counters as Redis integers. INCR creates a missing key at 1
// and is atomic on the server, so concurrent callers never share a value.
//
// Redis counters live outside the entry's database transaction: a failed
// insert after a successful INCR leaves a gap, never a duplicate.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db).
func NewRedisStore(url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), prefix), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "formflow:folio"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(templateID uint) string {
	return fmt.Sprintf("%s:%d", r.prefix, templateID)
}

func (r *RedisStore) Increment(ctx context.Context, templateID uint) (int64, error) {
	n, err := r.client.Incr(ctx, r.key(templateID)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis incr")
	}
	return n, nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return errors.WithStack(r.client.Ping(ctx).Err())
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Backend() string { return "redis" }
