package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askwhyharsh/nearcontacts/internal/storage"
)

// RedisStore keeps each address book as one JSON value, expiring with the
// session that synced it.
type RedisStore struct {
	redis storage.RedisClient
	ttl   time.Duration
}

func NewRedisStore(redisClient storage.RedisClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

func (s *RedisStore) Replace(ctx context.Context, sessionID string, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal contacts: %w", err)
	}

	if err := s.redis.Set(ctx, s.contactsKey(sessionID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to store contacts: %w", err)
	}

	return nil
}

func (s *RedisStore) List(ctx context.Context, sessionID string) ([]Record, error) {
	data, err := s.redis.Get(ctx, s.contactsKey(sessionID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to get contacts: %w", err)
	}

	var records []Record
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contacts: %w", err)
	}

	return records, nil
}

// Touch restarts the book's TTL. A missing book is not an error.
func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	if err := s.redis.Expire(ctx, s.contactsKey(sessionID), s.ttl); err != nil {
		return fmt.Errorf("failed to refresh contacts: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.contactsKey(sessionID)); err != nil {
		return fmt.Errorf("failed to delete contacts: %w", err)
	}
	return nil
}

func (s *RedisStore) contactsKey(sessionID string) string {
	return fmt.Sprintf("contacts:%s", sessionID)
}
