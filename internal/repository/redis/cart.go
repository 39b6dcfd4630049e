package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

const (
	cartKeyPrefix        = "cart:"
	cartSessionKeyPrefix = "cart:session:"
)

// CartRepository implements repository.CartRepository using Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository. The TTL bounds
// how long an abandoned cart lingers.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cart by its ID.
func (r *CartRepository) Get(ctx context.Context, cartID string) (*domain.CartSession, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+cartID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.UnknownCart(cartID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.CartSession
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &cart, nil
}

// GetBySession retrieves the open cart owned by a session.
func (r *CartRepository) GetBySession(ctx context.Context, sessionID string) (*domain.CartSession, error) {
	cartID, err := r.client.Get(ctx, cartSessionKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart for session", sessionID)
		}
		return nil, fmt.Errorf("redis get session cart: %w", err)
	}

	return r.Get(ctx, cartID)
}

// Save persists a cart and the session-to-cart index under the configured TTL.
func (r *CartRepository) Save(ctx context.Context, cart *domain.CartSession) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, cartKeyPrefix+cart.ID, data, r.ttl)
	if cart.Status == domain.CartOpen {
		pipe.Set(ctx, cartSessionKeyPrefix+cart.SessionID, cart.ID, r.ttl)
	} else {
		// A closed cart no longer claims its session's open-cart slot.
		pipe.Del(ctx, cartSessionKeyPrefix+cart.SessionID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save cart: %w", err)
	}

	return nil
}
