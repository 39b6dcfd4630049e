package postgres

import (
	"context"
	"fmt"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/pkg/database"
)

// StoreLayoutRepository implements repository.StoreLayoutRepository using
// PostgreSQL. Product placements live in a separate table joined via
// array_agg so a node row carries its shelved product IDs.
type StoreLayoutRepository struct {
	pool database.DBTX
}

// NewStoreLayoutRepository creates a new PostgreSQL-backed store layout repository.
func NewStoreLayoutRepository(pool database.DBTX) *StoreLayoutRepository {
	return &StoreLayoutRepository{pool: pool}
}

// Nodes returns all store nodes with their shelved products.
func (r *StoreLayoutRepository) Nodes(ctx context.Context) ([]domain.StoreNode, error) {
	query := `
		SELECT n.id, n.label, n.x, n.y,
		       COALESCE(array_agg(p.product_id) FILTER (WHERE p.product_id IS NOT NULL), '{}')
		FROM store_nodes n
		LEFT JOIN product_placements p ON p.node_id = n.id
		GROUP BY n.id, n.label, n.x, n.y
		ORDER BY n.id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query store nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.StoreNode
	for rows.Next() {
		var n domain.StoreNode
		if err := rows.Scan(&n.ID, &n.Label, &n.X, &n.Y, &n.ProductIDs); err != nil {
			return nil, fmt.Errorf("scan store node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store nodes: %w", err)
	}

	return nodes, nil
}

// Edges returns all walkable edges.
func (r *StoreLayoutRepository) Edges(ctx context.Context) ([]domain.StoreEdge, error) {
	query := `
		SELECT node_a, node_b, cost
		FROM store_edges
		ORDER BY node_a, node_b`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query store edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.StoreEdge
	for rows.Next() {
		var e domain.StoreEdge
		if err := rows.Scan(&e.A, &e.B, &e.Cost); err != nil {
			return nil, fmt.Errorf("scan store edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate store edges: %w", err)
	}

	return edges, nil
}
