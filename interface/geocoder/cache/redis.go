package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "geocode:"

// RedisStore shares the cache between several instances. Entries expire with their TTL.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redis://[user:password@]host:port[/db]
func NewRedisStore(ctx context.Context, uri string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("NewRedisStore.ParseURL: %w", err)
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("NewRedisStore.Ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Load implements Store
func (s *RedisStore) Load(ctx context.Context, key string) (*Entry, error) {
	b, err := s.rdb.Get(ctx, redisPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("Load.Unmarshal: %w", err)
	}
	return &e, nil
}

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, key string, e Entry, ttl time.Duration) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("Save.Marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, redisPrefix+key, b, ttl).Err(); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Close the connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
