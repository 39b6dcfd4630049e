package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/pkg/database"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// DeviceRepository implements repository.DeviceRepository using PostgreSQL.
type DeviceRepository struct {
	pool database.DBTX
}

// NewDeviceRepository creates a new PostgreSQL-backed device repository.
func NewDeviceRepository(pool database.DBTX) *DeviceRepository {
	return &DeviceRepository{pool: pool}
}

// Get retrieves a registered in-cart device by ID.
func (r *DeviceRepository) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := `
		SELECT id, api_key_hash, label, created_at
		FROM devices
		WHERE id = $1`

	var d domain.Device
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(&d.ID, &d.APIKeyHash, &d.Label, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.DeviceUnauthorized(deviceID)
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}

	return &d, nil
}
