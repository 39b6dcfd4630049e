package postgres

import (
	"context"
	"fmt"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/pkg/database"
)

// CommandLogRepository implements repository.CommandLogRepository using
// PostgreSQL. The log is append-only; the (cart_id, actor, idempotency_key)
// unique constraint makes replayed inserts visible as conflicts.
type CommandLogRepository struct {
	pool database.DBTX
}

// NewCommandLogRepository creates a new PostgreSQL-backed command log.
func NewCommandLogRepository(pool database.DBTX) *CommandLogRepository {
	return &CommandLogRepository{pool: pool}
}

// Append records an applied command and the cart version it produced. A
// replay of an already-logged command is a silent no-op.
func (r *CommandLogRepository) Append(ctx context.Context, cmd *domain.MutationCommand, version int64) error {
	query := `
		INSERT INTO cart_command_log (cart_id, actor, idempotency_key, op, product_id, quantity, actor_seq, version, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (cart_id, actor, idempotency_key) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		cmd.CartID,
		cmd.Actor,
		cmd.IdempotencyKey,
		cmd.Op,
		cmd.ProductID,
		cmd.Quantity,
		cmd.ActorSeq,
		version,
		cmd.ArrivedAt,
	)
	if err != nil {
		return fmt.Errorf("append command log: %w", err)
	}

	return nil
}

// AppliedVersions returns, for a cart, the map of "actor:idempotencyKey" to
// the version each command produced.
func (r *CommandLogRepository) AppliedVersions(ctx context.Context, cartID string) (map[string]int64, error) {
	query := `
		SELECT actor, idempotency_key, version
		FROM cart_command_log
		WHERE cart_id = $1`

	rows, err := r.pool.Query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("query command log: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]int64)
	for rows.Next() {
		var (
			actor   string
			key     string
			version int64
		)
		if err := rows.Scan(&actor, &key, &version); err != nil {
			return nil, fmt.Errorf("scan command log row: %w", err)
		}
		applied[actor+":"+key] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate command log: %w", err)
	}

	return applied, nil
}
