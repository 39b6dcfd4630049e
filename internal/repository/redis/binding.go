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

const bindingKeyPrefix = "device:binding:"

// BindingRepository implements repository.BindingRepository using Redis.
type BindingRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBindingRepository creates a new Redis-backed device binding repository.
// Bindings share the cart TTL: a binding without a live cart is useless.
func NewBindingRepository(client *redis.Client, ttl time.Duration) *BindingRepository {
	return &BindingRepository{client: client, ttl: ttl}
}

// Bind records a device binding, replacing any prior binding for the device.
func (r *BindingRepository) Bind(ctx context.Context, binding *domain.DeviceBinding) error {
	data, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("marshal binding: %w", err)
	}

	if err := r.client.Set(ctx, bindingKeyPrefix+binding.DeviceID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set binding: %w", err)
	}

	return nil
}

// GetByDevice retrieves the binding for a device.
func (r *BindingRepository) GetByDevice(ctx context.Context, deviceID string) (*domain.DeviceBinding, error) {
	data, err := r.client.Get(ctx, bindingKeyPrefix+deviceID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.DeviceUnauthorized(deviceID)
		}
		return nil, fmt.Errorf("redis get binding: %w", err)
	}

	var binding domain.DeviceBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		return nil, fmt.Errorf("unmarshal binding: %w", err)
	}

	return &binding, nil
}

// Unbind removes a device binding.
func (r *BindingRepository) Unbind(ctx context.Context, deviceID string) error {
	if err := r.client.Del(ctx, bindingKeyPrefix+deviceID).Err(); err != nil {
		return fmt.Errorf("redis del binding: %w", err)
	}
	return nil
}
