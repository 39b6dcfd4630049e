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
	challengeKeyPrefix = "otp:challenge:"
	activeRefKeyPrefix = "otp:active:"
)

// ChallengeRepository implements repository.ChallengeRepository using Redis.
// The per-mobile active pointer makes a new request supersede the prior
// challenge: verification against a superseded ref fails as expired.
type ChallengeRepository struct {
	client *redis.Client
}

// NewChallengeRepository creates a new Redis-backed challenge repository.
func NewChallengeRepository(client *redis.Client) *ChallengeRepository {
	return &ChallengeRepository{client: client}
}

// Save persists a challenge and points the mobile number's active ref at it.
// The redis TTL outlives the challenge TTL slightly so expired challenges can
// still be distinguished from unknown refs.
func (r *ChallengeRepository) Save(ctx context.Context, challenge *domain.OTPChallenge, ttl time.Duration) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	keyTTL := ttl + time.Minute

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, challengeKeyPrefix+challenge.Ref, data, keyTTL)
	pipe.Set(ctx, activeRefKeyPrefix+challenge.MobileNumber, challenge.Ref, keyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save challenge: %w", err)
	}

	return nil
}

// Get retrieves a challenge by ref.
func (r *ChallengeRepository) Get(ctx context.Context, ref string) (*domain.OTPChallenge, error) {
	data, err := r.client.Get(ctx, challengeKeyPrefix+ref).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("challenge", ref)
		}
		return nil, fmt.Errorf("redis get challenge: %w", err)
	}

	var challenge domain.OTPChallenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}

	return &challenge, nil
}

// ActiveRef returns the active challenge ref for a mobile number.
func (r *ChallengeRepository) ActiveRef(ctx context.Context, mobileNumber string) (string, error) {
	ref, err := r.client.Get(ctx, activeRefKeyPrefix+mobileNumber).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperrors.NotFound("active challenge", mobileNumber)
		}
		return "", fmt.Errorf("redis get active ref: %w", err)
	}
	return ref, nil
}

// Delete removes a challenge by ref.
func (r *ChallengeRepository) Delete(ctx context.Context, ref string) error {
	if err := r.client.Del(ctx, challengeKeyPrefix+ref).Err(); err != nil {
		return fmt.Errorf("redis del challenge: %w", err)
	}
	return nil
}
