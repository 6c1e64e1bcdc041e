// store/session_store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/atlas-iam/gatekeeper/logging"
	"github.com/atlas-iam/gatekeeper/model"
)

// SessionStore is the narrow interface the auth pipeline uses for durable
// sessions. Load returns (nil, nil) when no session exists.
type SessionStore interface {
	Load(ctx context.Context, key string) (model.SessionData, error)
	Save(ctx context.Context, key string, payload model.SessionData, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// RedisSessionStore keeps serialized session payloads in Redis under a
// common prefix.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "session:"}
}

func (s *RedisSessionStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisSessionStore) Load(ctx context.Context, key string) (model.SessionData, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var payload model.SessionData
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}
	return payload, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, key string, payload model.SessionData, ttl time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode session payload: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logger.Debug("Session saved", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (s *RedisSessionStore) Forget(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to forget session: %w", err)
	}
	logger.Debug("Session forgotten", zap.String("key", key))
	return nil
}
