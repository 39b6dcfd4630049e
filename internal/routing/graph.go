package routing

import (
	"fmt"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// neighbor is one outgoing hop in the adjacency list.
type neighbor struct {
	node string
	cost float64
}

// Graph is the store's aisle graph: undirected, weighted, and connected.
// Immutable after construction, so it is shared across requests without
// locking.
type Graph struct {
	nodes    map[string]domain.StoreNode
	adjacent map[string][]neighbor
	products map[string][]string // product id -> node ids shelving it
}

// NewGraph builds and validates the aisle graph. A graph that is not fully
// connected, references unknown nodes, or carries a negative edge cost is a
// configuration error and fails with DisconnectedStore.
func NewGraph(nodes []domain.StoreNode, edges []domain.StoreEdge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, apperrors.DisconnectedStore("store layout has no nodes")
	}

	g := &Graph{
		nodes:    make(map[string]domain.StoreNode, len(nodes)),
		adjacent: make(map[string][]neighbor, len(nodes)),
		products: make(map[string][]string),
	}
	for _, n := range nodes {
		if _, dup := g.nodes[n.ID]; dup {
			return nil, apperrors.DisconnectedStore(fmt.Sprintf("duplicate node %s in store layout", n.ID))
		}
		g.nodes[n.ID] = n
		for _, pid := range n.ProductIDs {
			g.products[pid] = append(g.products[pid], n.ID)
		}
	}

	for _, e := range edges {
		if e.Cost < 0 {
			return nil, apperrors.DisconnectedStore(fmt.Sprintf("edge %s-%s has negative cost", e.A, e.B))
		}
		if _, ok := g.nodes[e.A]; !ok {
			return nil, apperrors.DisconnectedStore(fmt.Sprintf("edge references unknown node %s", e.A))
		}
		if _, ok := g.nodes[e.B]; !ok {
			return nil, apperrors.DisconnectedStore(fmt.Sprintf("edge references unknown node %s", e.B))
		}
		g.adjacent[e.A] = append(g.adjacent[e.A], neighbor{node: e.B, cost: e.Cost})
		g.adjacent[e.B] = append(g.adjacent[e.B], neighbor{node: e.A, cost: e.Cost})
	}

	if unreached := g.unreachableFromAny(); len(unreached) > 0 {
		return nil, apperrors.DisconnectedStore(
			fmt.Sprintf("%d of %d nodes unreachable, first: %s", len(unreached), len(nodes), unreached[0]),
		)
	}

	return g, nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (domain.StoreNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes.
func (g *Graph) Nodes() []domain.StoreNode {
	out := make([]domain.StoreNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}

// Neighbors returns the outgoing hops from a node.
func (g *Graph) Neighbors(id string) []neighbor {
	return g.adjacent[id]
}

// ShelfNodes returns the node IDs shelving a product.
func (g *Graph) ShelfNodes(productID string) []string {
	return g.products[productID]
}

// unreachableFromAny walks the graph from an arbitrary node and returns the
// IDs it never reached.
func (g *Graph) unreachableFromAny() []string {
	var start string
	for id := range g.nodes {
		start = id
		break
	}

	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range g.adjacent[cur] {
			if !seen[nb.node] {
				seen[nb.node] = true
				queue = append(queue, nb.node)
			}
		}
	}

	var unreached []string
	for id := range g.nodes {
		if !seen[id] {
			unreached = append(unreached, id)
		}
	}
	return unreached
}
