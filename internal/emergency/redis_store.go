package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key for the shared stop flag. The flag deliberately carries no
// TTL: an emergency stop must outlive process restarts until someone
// explicitly clears it.
const stopStateKey = "warden:emergency:stop"

// RedisStopStore is a Redis-backed StopStateStore shared by a fleet of
// warden replicas.
type RedisStopStore struct {
	client *redis.Client
}

// NewRedisStopStore creates a Redis-backed store.
func NewRedisStopStore(client *redis.Client) *RedisStopStore {
	return &RedisStopStore{client: client}
}

// redisStopEntry is the JSON-serializable form for Redis storage.
type redisStopEntry struct {
	Reason      string    `json:"reason"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Activate records the stop flag.
func (s *RedisStopStore) Activate(ctx context.Context, reason string) error {
	entry := &redisStopEntry{
		Reason:      reason,
		ActivatedAt: time.Now(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if setErr := s.client.Set(ctx, stopStateKey, data, 0).Err(); setErr != nil {
		return fmt.Errorf("set key: %w", setErr)
	}
	return nil
}

// Deactivate clears the stop flag.
func (s *RedisStopStore) Deactivate(ctx context.Context) error {
	if err := s.client.Del(ctx, stopStateKey).Err(); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// Get returns whether the flag is set and the recorded reason.
func (s *RedisStopStore) Get(ctx context.Context) (bool, string, error) {
	data, err := s.client.Get(ctx, stopStateKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("get key: %w", err)
	}

	var entry redisStopEntry
	if unmarshalErr := json.Unmarshal(data, &entry); unmarshalErr != nil {
		return false, "", fmt.Errorf("unmarshal entry: %w", unmarshalErr)
	}
	return true, entry.Reason, nil
}
