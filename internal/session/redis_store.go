// Package session provides Redis-backed storage for signed-in user sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session is absent or has expired.
var ErrNotFound = errors.New("session not found or expired")

// Identity is the data stored for each session: who the user is according
// to Google sign-in, plus the OAuth bearer token their browser obtained.
// The bearer token is only used by the self-check authorization strategy
// and is empty in service-account deployments.
type Identity struct {
	Sub         string    `json:"sub"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	GoogleToken string    `json:"google_token,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedisStore implements session storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: "session:",
	}, nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

// key generates the Redis key for a token hash
func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

// Save stores a session identity under the token hash with expiration
func (s *RedisStore) Save(ctx context.Context, tokenHash string, identity Identity, expiresAt time.Time) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}

	jsonData, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session expiry %s is in the past", expiresAt.Format(time.RFC3339))
	}

	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	return nil
}

// Lookup retrieves the identity stored for a token hash
func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Identity, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal([]byte(jsonData), &identity); err != nil {
		return Identity{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return identity, nil
}

// Revoke deletes a session
func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
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
