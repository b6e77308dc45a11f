package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "payment:context:"

// RedisStore implements Store on Redis with per-key expiry.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed settlement context store.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

func key(orderID string) string { return keyPrefix + orderID }

// Save writes c under its order id. The key expires after ttl.
func (s *RedisStore) Save(ctx context.Context, c *Context, ttl time.Duration) error {
	if c.OrderID == "" {
		return errors.New("settlement context without order id")
	}
	if ttl <= 0 {
		return fmt.Errorf("invalid context ttl %s", ttl)
	}
	if c.State == "" {
		c.State = StatePending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.ExpiresAt = c.CreatedAt.Add(ttl)
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	if err := s.client.Set(ctx, key(c.OrderID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	s.logger.Debug("settlement context saved", zap.String("order_id", c.OrderID), zap.Duration("ttl", ttl))
	return nil
}

// Get returns the context for orderID or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, orderID string) (*Context, error) {
	raw, err := s.client.Get(ctx, key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &c, nil
}

// Delete removes the context. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, orderID string) error {
	if err := s.client.Del(ctx, key(orderID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
