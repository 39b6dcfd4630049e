package repository

import (
	"context"
	"time"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
)

// SessionRepository persists shopper sessions. Implementations must honor the
// TTL passed to Save and Touch so session expiry survives process restarts.
type SessionRepository interface {
	// Save persists a session with the given TTL, overwriting any prior state.
	Save(ctx context.Context, session *domain.Session, ttl time.Duration) error

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*domain.Session, error)

	// Touch extends the session's TTL (sliding expiry on access).
	Touch(ctx context.Context, id string, ttl time.Duration) error

	// Delete removes a session.
	Delete(ctx context.Context, id string) error
}

// ChallengeRepository persists OTP challenges. One challenge per mobile number
// is active at a time; saving a new one supersedes the previous reference.
type ChallengeRepository interface {
	// Save persists a challenge under its ref and marks it as the active
	// challenge for its mobile number.
	Save(ctx context.Context, challenge *domain.OTPChallenge, ttl time.Duration) error

	// Get retrieves a challenge by its opaque reference.
	Get(ctx context.Context, ref string) (*domain.OTPChallenge, error)

	// ActiveRef returns the currently active challenge ref for a mobile number.
	ActiveRef(ctx context.Context, mobileNumber string) (string, error)

	// Delete removes a challenge by ref.
	Delete(ctx context.Context, ref string) error
}

// CartRepository persists cart sessions.
type CartRepository interface {
	// Get retrieves a cart by its ID.
	Get(ctx context.Context, cartID string) (*domain.CartSession, error)

	// GetBySession retrieves the open cart owned by a session, if any.
	GetBySession(ctx context.Context, sessionID string) (*domain.CartSession, error)

	// Save persists a cart, overwriting any existing state.
	Save(ctx context.Context, cart *domain.CartSession) error
}

// BindingRepository persists device-to-cart bindings.
type BindingRepository interface {
	// Bind records a device binding, replacing any prior binding for the device.
	Bind(ctx context.Context, binding *domain.DeviceBinding) error

	// GetByDevice retrieves the binding for a device.
	GetByDevice(ctx context.Context, deviceID string) (*domain.DeviceBinding, error)

	// Unbind removes a device binding.
	Unbind(ctx context.Context, deviceID string) error
}

// UserRepository persists shopper profiles.
type UserRepository interface {
	// GetByMobile retrieves a profile by mobile number.
	GetByMobile(ctx context.Context, mobileNumber string) (*domain.UserProfile, error)

	// Create inserts a new profile.
	Create(ctx context.Context, user *domain.UserProfile) error

	// Update persists profile changes.
	Update(ctx context.Context, user *domain.UserProfile) error
}

// CatalogRepository resolves barcodes to products.
type CatalogRepository interface {
	// GetByBarcode retrieves the product carrying the given barcode.
	GetByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
}

// DeviceRepository stores registered in-cart devices and their credentials.
type DeviceRepository interface {
	// Get retrieves a device by ID.
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
}

// CommandLogRepository is the durable record of applied mutation commands,
// used to rebuild a cart's dedup index after a restart.
type CommandLogRepository interface {
	// Append records an applied command and the version it produced.
	Append(ctx context.Context, cmd *domain.MutationCommand, version int64) error

	// AppliedVersions returns, for a cart, the map of "actor:idempotencyKey"
	// to the version each command produced.
	AppliedVersions(ctx context.Context, cartID string) (map[string]int64, error)
}

// StoreLayoutRepository loads the store's aisle graph configuration.
type StoreLayoutRepository interface {
	// Nodes returns all store nodes with their shelved products.
	Nodes(ctx context.Context) ([]domain.StoreNode, error)

	// Edges returns all walkable edges.
	Edges(ctx context.Context) ([]domain.StoreEdge, error)
}
