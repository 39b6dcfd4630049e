package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/pkg/database"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new shopper profile.
func (r *UserRepository) Create(ctx context.Context, u *domain.UserProfile) error {
	query := `
		INSERT INTO users (id, mobile_number, name, email, profile_complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		u.ID,
		u.MobileNumber,
		u.Name,
		u.Email,
		u.ProfileComplete,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(fmt.Sprintf("user with mobile %s already exists", u.MobileNumber))
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByMobile retrieves a profile by mobile number.
func (r *UserRepository) GetByMobile(ctx context.Context, mobileNumber string) (*domain.UserProfile, error) {
	query := `
		SELECT id, mobile_number, name, email, profile_complete, created_at, updated_at
		FROM users
		WHERE mobile_number = $1`

	var u domain.UserProfile
	err := r.pool.QueryRow(ctx, query, mobileNumber).Scan(
		&u.ID,
		&u.MobileNumber,
		&u.Name,
		&u.Email,
		&u.ProfileComplete,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", mobileNumber)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

// Update persists profile changes.
func (r *UserRepository) Update(ctx context.Context, u *domain.UserProfile) error {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET name = $1, email = $2, profile_complete = $3, updated_at = $4
		WHERE id = $5`

	ct, err := r.pool.Exec(ctx, query,
		u.Name,
		u.Email,
		u.ProfileComplete,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}
