package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

const redisPrefix = "essembi:pending:"

// RedisStore keeps selections in Redis so several instances behind a load
// balancer share dialog state. Expiry is delegated to Redis key TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session store: redis ping %s: %w", addr, err)
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}, nil
}

func redisKey(key Key) string {
	return redisPrefix + key.ConversationID + ":" + key.UserID
}

func (s *RedisStore) Put(ctx context.Context, key Key, sel *protocol.PendingSelection) error {
	cp := *sel
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("session store: encode: %w", err)
	}
	if err := s.client.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session store: put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*protocol.PendingSelection, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session store: get: %w", err)
	}

	var sel protocol.PendingSelection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("session store: decode %s: %w", key, err)
	}
	return &sel, nil
}

func (s *RedisStore) Clear(ctx context.Context, key Key) error {
	if err := s.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("session store: clear: %w", err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
