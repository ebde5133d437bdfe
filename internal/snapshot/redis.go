package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pead-drift/internal/research/pead"
)

// RedisStore keeps snapshots as JSON strings under prefix:key
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ pead.SnapshotStore = (*RedisStore)(nil)

// RedisConfig configures NewRedisStore
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client. A zero ttl keeps
// snapshots forever.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "pead:iv30"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Load implements pead.SnapshotStore
func (s *RedisStore) Load(ctx context.Context, key string) (*pead.IVSnapshot, error) {
	data, err := s.client.Get(ctx, s.wrapKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", key, pead.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var snap pead.IVSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// Save implements pead.SnapshotStore
func (s *RedisStore) Save(ctx context.Context, key string, snap pead.IVSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.wrapKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrapKey(key string) string {
	return s.prefix + ":" + key
}
