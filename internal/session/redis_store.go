package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"meal-plan-assistant/internal/swap"
)

// RedisStore keeps pending swaps in Redis, expiring them with the key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultPendingTTL
	}
	return &RedisStore{client: client, prefix: "pending_swap:", ttl: ttl}
}

func (s *RedisStore) key(owner string) string {
	return s.prefix + owner
}

func (s *RedisStore) Get(ctx context.Context, owner string) (*swap.Pending, error) {
	data, err := s.client.Get(ctx, s.key(owner)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pending swap: %w", err)
	}

	var p swap.Pending
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pending swap: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Put(ctx context.Context, p swap.Pending) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending swap: %w", err)
	}
	if err := s.client.Set(ctx, s.key(p.Owner), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save pending swap: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, owner string) error {
	if err := s.client.Del(ctx, s.key(owner)).Err(); err != nil {
		return fmt.Errorf("delete pending swap: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
