package domain

import "time"

// Operation is the kind of cart mutation.
type Operation string

const (
	// OpAdd increases the line quantity by a delta.
	OpAdd Operation = "add"
	// OpRemove decreases the line quantity by a delta, clamping at zero.
	OpRemove Operation = "remove"
	// OpSetQuantity sets the line quantity to a target value. Idempotent by
	// construction.
	OpSetQuantity Operation = "setQuantity"
)

// MutationCommand is one immutable cart mutation issued by an actor. The
// triple (CartID, Actor, IdempotencyKey) identifies an attempt; the machine
// never applies the same triple twice.
type MutationCommand struct {
	CartID         string    `json:"cart_id"`
	Actor          Actor     `json:"actor"`
	IdempotencyKey string    `json:"idempotency_key"`
	Op             Operation `json:"operation"`
	ProductID      string    `json:"product_id"`
	// Quantity is a delta for add/remove and a target for setQuantity.
	Quantity  int       `json:"quantity"`
	ActorSeq  int64     `json:"actor_seq"`
	ArrivedAt time.Time `json:"arrived_at"`
}

// ScanDirection is the direction reported by the in-cart scanning device.
type ScanDirection string

const (
	ScanIn  ScanDirection = "in"
	ScanOut ScanDirection = "out"
)

// ScanEvent is raw telemetry from the in-cart device. The device link is
// at-least-once and unordered; DeviceSeq doubles as the idempotency key.
type ScanEvent struct {
	DeviceID  string        `json:"device_id"`
	Barcode   string        `json:"barcode"`
	Direction ScanDirection `json:"direction"`
	DeviceSeq int64         `json:"device_seq"`
}

// DeviceBinding maps an in-cart device to the cart it feeds. Established by
// the shopper's connect call before any scan is accepted.
type DeviceBinding struct {
	DeviceID  string    `json:"device_id"`
	CartID    string    `json:"cart_id"`
	BoundAt   time.Time `json:"bound_at"`
	SessionID string    `json:"session_id"`
}

// Device is a registered in-cart scanning unit. Its API key hash is the
// credential class distinct from shopper JWTs.
type Device struct {
	ID         string    `json:"id"`
	APIKeyHash string    `json:"-"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Product is the minimal catalog projection the ingester needs to resolve a
// barcode to a product.
type Product struct {
	ID      string `json:"id"`
	Barcode string `json:"barcode"`
	Name    string `json:"name"`
}
