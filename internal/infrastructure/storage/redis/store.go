package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "compliance:session:"

// SessionStore keeps each session in one hash that expires after ttl of
// inactivity.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(addr, password string, db int, ttl time.Duration) (*SessionStore, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &SessionStore{client: client, prefix: defaultKeyPrefix, ttl: ttl}, nil
}

func (s *SessionStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *SessionStore) Close() error {
	return s.client.Close()
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load session: %w", err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// Apply runs every change plus the TTL refresh in one MULTI/EXEC.
func (s *SessionStore) Apply(ctx context.Context, sessionID string, set map[string]string, unset []string) error {
	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(unset) > 0 {
			pipe.HDel(ctx, key, unset...)
		}
		if len(set) > 0 {
			pipe.HSet(ctx, key, flatten(set)...)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply session: %w", err)
	}
	return nil
}

func (s *SessionStore) Drop(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis drop session: %w", err)
	}
	return nil
}

func (s *SessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func flatten(values map[string]string) []any {
	out := make([]any, 0, len(values)*2)
	for key, value := range values {
		out = append(out, key, value)
	}
	return out
}
