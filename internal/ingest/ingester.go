package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/AaryaPoriya/QuantumCoders/internal/cart"
	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/repository"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// CommandApplier applies mutation commands. Implemented by the cart state
// machine.
type CommandApplier interface {
	Apply(ctx context.Context, cmd *domain.MutationCommand) (*cart.ApplyResult, error)
}

// Ingester normalizes raw scan telemetry from in-cart devices into mutation
// commands. Devices authenticate with an API key, a distinct credential class
// from shopper tokens, and must be bound to a cart before scans are accepted.
// Redelivered scans are inert: the device-local sequence number is the
// idempotency key.
type Ingester struct {
	devices  repository.DeviceRepository
	bindings repository.BindingRepository
	catalog  repository.CatalogRepository
	applier  CommandApplier
	logger   *slog.Logger
}

// NewIngester creates the device event ingester.
func NewIngester(
	devices repository.DeviceRepository,
	bindings repository.BindingRepository,
	catalog repository.CatalogRepository,
	applier CommandApplier,
	logger *slog.Logger,
) *Ingester {
	return &Ingester{
		devices:  devices,
		bindings: bindings,
		catalog:  catalog,
		applier:  applier,
		logger:   logger,
	}
}

// Authorize checks a device's API key against its registered hash.
func (i *Ingester) Authorize(ctx context.Context, deviceID, apiKey string) error {
	device, err := i.devices.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(device.APIKeyHash), []byte(apiKey)); err != nil {
		return apperrors.DeviceUnauthorized(deviceID)
	}
	return nil
}

// Bind attaches a device to a cart so its scans are accepted. An existing
// binding for the device is replaced.
func (i *Ingester) Bind(ctx context.Context, deviceID, cartID, sessionID string) error {
	if _, err := i.devices.Get(ctx, deviceID); err != nil {
		return err
	}
	binding := &domain.DeviceBinding{
		DeviceID:  deviceID,
		CartID:    cartID,
		SessionID: sessionID,
		BoundAt:   time.Now().UTC(),
	}
	if err := i.bindings.Bind(ctx, binding); err != nil {
		return fmt.Errorf("bind device %s: %w", deviceID, err)
	}
	i.logger.InfoContext(ctx, "device bound to cart",
		slog.String("device_id", deviceID),
		slog.String("cart_id", cartID),
	)
	return nil
}

// Unbind detaches a device from its cart.
func (i *Ingester) Unbind(ctx context.Context, deviceID string) error {
	return i.bindings.Unbind(ctx, deviceID)
}

// Ingest translates one scan into a mutation command and applies it. The
// device gets an acknowledgement only; it is not a display surface, so cart
// state never flows back. Scans arriving out of device order are applied in
// arrival order; a lower sequence number does not rewind later effects.
func (i *Ingester) Ingest(ctx context.Context, scan *domain.ScanEvent) error {
	binding, err := i.bindings.GetByDevice(ctx, scan.DeviceID)
	if err != nil {
		return err
	}

	product, err := i.catalog.GetByBarcode(ctx, scan.Barcode)
	if err != nil {
		return fmt.Errorf("resolve barcode %s: %w", scan.Barcode, err)
	}

	op := domain.OpAdd
	if scan.Direction == domain.ScanOut {
		op = domain.OpRemove
	}

	cmd := &domain.MutationCommand{
		CartID:         binding.CartID,
		Actor:          domain.ActorDevice,
		IdempotencyKey: fmt.Sprintf("%s:%d", scan.DeviceID, scan.DeviceSeq),
		Op:             op,
		ProductID:      product.ID,
		Quantity:       1,
		ActorSeq:       scan.DeviceSeq,
		ArrivedAt:      time.Now().UTC(),
	}

	result, err := i.applier.Apply(ctx, cmd)
	if err != nil {
		return err
	}
	if result.Duplicate {
		i.logger.DebugContext(ctx, "scan redelivery ignored",
			slog.String("device_id", scan.DeviceID),
			slog.Int64("device_seq", scan.DeviceSeq),
		)
		return nil
	}

	i.logger.InfoContext(ctx, "scan applied",
		slog.String("device_id", scan.DeviceID),
		slog.String("cart_id", binding.CartID),
		slog.String("product_id", product.ID),
		slog.String("op", string(op)),
		slog.Int64("version", result.Version),
	)
	return nil
}
