package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

// CartStore persists one cart per session.
type CartStore interface {
	Get(ctx context.Context, sessionID string) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, sessionID string) error
}

type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration) *RedisCartStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCartStore{client: client, ttl: ttl}
}

// Get returns an empty cart when the session has none. Reads slide the TTL.
func (s *RedisCartStore) Get(ctx context.Context, sessionID string) (*models.Cart, error) {
	key := cartKey(sessionID)

	data, err := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCart(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart failed: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	cart.SessionID = sessionID

	return &cart, nil
}

func (s *RedisCartStore) Save(ctx context.Context, cart *models.Cart) error {
	if cart.IsEmpty() {
		return s.Delete(ctx, cart.SessionID)
	}

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	if err := s.client.Set(ctx, cartKey(cart.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart failed: %w", err)
	}
	return nil
}

func (s *RedisCartStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart failed: %w", err)
	}
	return nil
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}
