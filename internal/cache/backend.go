package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
)

// ErrMiss is returned by a Backend when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Backend is the process-wide key/value store behind the cache layer. Values
// are replaced wholesale; there are no partial updates.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Name() string
}

// MemoryBackend keeps entries in process memory with go-cache.
type MemoryBackend struct {
	store *gocache.Cache
}

// NewMemoryBackend creates an in-memory backend; expired entries are purged
// every cleanupInterval.
func NewMemoryBackend(cleanupInterval time.Duration) *MemoryBackend {
	return &MemoryBackend{store: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, found := m.store.Get(key)
	if !found {
		return nil, ErrMiss
	}
	return v.([]byte), nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	m.store.Set(key, buf, ttl)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.store.Delete(k)
	}
	return nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Name() string { return "memory" }

// RedisBackend stores entries in Redis with SET EX semantics.
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// NewRedisBackendFromURL parses a redis:// URL and builds a backend.
func NewRedisBackendFromURL(url string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisBackend(redis.NewClient(opts)), nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrMiss
		}
		return nil, err
	}
	return val, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Name() string { return "redis" }

// Close releases the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
