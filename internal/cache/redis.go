package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// Redis is a Cache backed by a Redis server, letting several verifier
// processes share search and regulatory results. All keys carry prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis connects to Redis and verifies the connection with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrapf(err, "cache: ping redis %s", opts.Addr)
	}
	return NewRedisFromClient(client, opts.Prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "cache: redis get %s", key)
	}
	return raw, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: redis set %s", key)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return eris.Wrapf(err, "cache: redis del %s", key)
	}
	return nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	keys, err := r.scan(ctx)
	return len(keys), err
}

func (r *Redis) Clear(ctx context.Context) error {
	keys, err := r.scan(ctx)
	if err != nil || len(keys) == 0 {
		return err
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return eris.Wrap(err, "cache: redis clear")
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "cache: redis scan")
	}
	return keys, nil
}
