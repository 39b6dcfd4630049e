package routing

import (
	"container/heap"
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// Planner computes walking routes over the aisle graph. Stateless apart from
// the immutable graph, so calls are independently parallelizable.
type Planner struct {
	graph  *Graph
	logger *slog.Logger
}

// NewPlanner creates a route planner over a validated graph.
func NewPlanner(graph *Graph, logger *slog.Logger) *Planner {
	return &Planner{graph: graph, logger: logger}
}

// Plan resolves each product to its nearest shelf node from the shopper's
// current position and produces a visiting order using a greedy
// nearest-unvisited-next heuristic over Dijkstra distances. Cart sizes are
// small, so the heuristic's sub-second answer is preferred over an exact
// traveling-salesperson solve. Products with no reachable shelf are reported
// in Route.Unreachable instead of failing the whole plan.
func (p *Planner) Plan(ctx context.Context, startNode string, productIDs []string) (*domain.Route, error) {
	if _, ok := p.graph.Node(startNode); !ok {
		return nil, apperrors.NotFound("store node", startNode)
	}

	route := &domain.Route{Stops: []domain.RouteStop{}}

	// pending products, deduplicated, in stable order for determinism.
	pending := make(map[string]bool, len(productIDs))
	order := make([]string, 0, len(productIDs))
	for _, pid := range productIDs {
		if !pending[pid] {
			pending[pid] = true
			order = append(order, pid)
		}
	}
	sort.Strings(order)

	current := startNode
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dist, prev := p.dijkstra(current)

		// Pick the pending product whose nearest shelf is closest to the
		// shopper's current position.
		bestProduct := ""
		bestNode := ""
		bestCost := math.Inf(1)
		for _, pid := range order {
			if !pending[pid] {
				continue
			}
			node, cost, ok := p.nearestShelf(pid, dist)
			if !ok {
				p.logger.WarnContext(ctx, "product has no reachable shelf",
					slog.String("product_id", pid),
					slog.String("from_node", current),
				)
				route.Unreachable = append(route.Unreachable, pid)
				delete(pending, pid)
				continue
			}
			if cost < bestCost {
				bestProduct, bestNode, bestCost = pid, node, cost
			}
		}
		if bestProduct == "" {
			break
		}

		// Several pending products may sit on the chosen node (or on the way's
		// end node); collect them all in one visit.
		collected := []string{}
		for _, pid := range order {
			if !pending[pid] {
				continue
			}
			for _, shelf := range p.graph.ShelfNodes(pid) {
				if shelf == bestNode {
					collected = append(collected, pid)
					delete(pending, pid)
					break
				}
			}
		}

		p.appendLeg(route, pathTo(prev, current, bestNode), collected)
		route.TotalCost += bestCost
		current = bestNode
	}

	annotateTurns(route.Stops)
	return route, nil
}

// nearestShelf returns the reachable shelf node for a product with the lowest
// distance, or ok=false when every shelf is unreachable.
func (p *Planner) nearestShelf(productID string, dist map[string]float64) (string, float64, bool) {
	bestNode := ""
	bestCost := math.Inf(1)
	for _, node := range p.graph.ShelfNodes(productID) {
		if d, ok := dist[node]; ok && d < bestCost {
			bestNode, bestCost = node, d
		}
	}
	return bestNode, bestCost, bestNode != ""
}

// appendLeg extends the route with the walked path to the next shelf. The
// leg's first node duplicates the previous leg's last and is skipped.
func (p *Planner) appendLeg(route *domain.Route, path []string, collected []string) {
	start := 0
	if len(route.Stops) > 0 && len(path) > 0 {
		start = 1
	}
	for i := start; i < len(path); i++ {
		node, _ := p.graph.Node(path[i])
		stop := domain.RouteStop{
			NodeID: node.ID,
			Label:  node.Label,
			X:      node.X,
			Y:      node.Y,
		}
		if i == len(path)-1 {
			stop.ProductIDs = collected
			stop.Instruction = domain.TurnArrive
		}
		route.Stops = append(route.Stops, stop)
	}
}

// dijkstra computes shortest distances from the source to every reachable
// node, plus the predecessor map for path reconstruction.
func (p *Planner) dijkstra(source string) (map[string]float64, map[string]string) {
	dist := map[string]float64{source: 0}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &nodeQueue{{node: source, cost: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(nodeCost)
		if visited[item.node] {
			continue
		}
		visited[item.node] = true

		for _, nb := range p.graph.Neighbors(item.node) {
			next := item.cost + nb.cost
			if d, seen := dist[nb.node]; !seen || next < d {
				dist[nb.node] = next
				prev[nb.node] = item.node
				heap.Push(pq, nodeCost{node: nb.node, cost: next})
			}
		}
	}

	return dist, prev
}

// pathTo reconstructs the node sequence from source to target using the
// predecessor map.
func pathTo(prev map[string]string, source, target string) []string {
	if source == target {
		return []string{source}
	}
	var rev []string
	for cur := target; ; {
		rev = append(rev, cur)
		if cur == source {
			break
		}
		next, ok := prev[cur]
		if !ok {
			return nil
		}
		cur = next
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// annotateTurns attaches walking hints to intermediate stops based on the
// heading change between consecutive segments: within ±45° is straight, a
// larger positive change is a left turn, a larger negative one a right turn.
// Arrival stops keep their arrive instruction.
func annotateTurns(stops []domain.RouteStop) {
	for i := 1; i < len(stops)-1; i++ {
		if stops[i].Instruction == domain.TurnArrive {
			continue
		}
		stops[i].Instruction = headingChange(stops[i-1], stops[i], stops[i+1])
	}
}

func headingChange(a, b, c domain.RouteStop) domain.TurnInstruction {
	angle1 := math.Atan2(b.Y-a.Y, b.X-a.X)
	angle2 := math.Atan2(c.Y-b.Y, c.X-b.X)

	diff := (angle2 - angle1) * 180 / math.Pi
	if diff > 180 {
		diff -= 360
	}
	if diff < -180 {
		diff += 360
	}

	switch {
	case diff >= -45 && diff <= 45:
		return domain.TurnStraight
	case diff > 45:
		return domain.TurnLeft
	default:
		return domain.TurnRight
	}
}

// nodeCost is a priority queue entry.
type nodeCost struct {
	node string
	cost float64
}

type nodeQueue []nodeCost

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)         { *q = append(*q, x.(nodeCost)) }
func (q *nodeQueue) Pop() any           { old := *q; n := len(old); item := old[n-1]; *q = old[:n-1]; return item }
