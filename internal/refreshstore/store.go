package refreshstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound    = errors.New("refresh token not found")
	ErrUnavailable = errors.New("refresh store unavailable")
)

// Store keeps at most one live refresh token per username.
type Store interface {
	Save(ctx context.Context, username, token string) error
	Get(ctx context.Context, username string) (string, error)
	Delete(ctx context.Context, username string) error
}

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClient builds a client from a redis:// URL. Retries are disabled:
// a failing store fails the enclosing auth operation immediately.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = -1
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	return redis.NewClient(opts), nil
}

func (s *RedisStore) key(username string) string { return s.prefix + username }

// Save overwrites whatever token was stored for username.
func (s *RedisStore) Save(ctx context.Context, username, token string) error {
	if err := s.client.Set(ctx, s.key(username), token, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, username string) (string, error) {
	v, err := s.client.Get(ctx, s.key(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	return v, nil
}

func (s *RedisStore) Delete(ctx context.Context, username string) error {
	if err := s.client.Del(ctx, s.key(username)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}
