package domain

// StoreNode is one walkable location in the store: an aisle segment, an
// entrance, or a shelf-facing point. A product may be shelved at several
// nodes.
type StoreNode struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	ProductIDs []string `json:"product_ids,omitempty"`
}

// StoreEdge is an undirected walkable connection between two nodes with a
// non-negative walking cost.
type StoreEdge struct {
	A    string  `json:"a"`
	B    string  `json:"b"`
	Cost float64 `json:"cost"`
}

// TurnInstruction is a walking hint attached to a route stop.
type TurnInstruction string

const (
	TurnStraight TurnInstruction = "straight"
	TurnLeft     TurnInstruction = "left"
	TurnRight    TurnInstruction = "right"
	TurnArrive   TurnInstruction = "arrive"
)

// RouteStop is one visit in a planned route.
type RouteStop struct {
	NodeID      string          `json:"node_id"`
	Label       string          `json:"label,omitempty"`
	X           float64         `json:"x"`
	Y           float64         `json:"y"`
	ProductIDs  []string        `json:"product_ids,omitempty"`
	Instruction TurnInstruction `json:"instruction,omitempty"`
}

// Route is a projection of cart plus store graph at a point in time. It is
// computed on demand and never persisted.
type Route struct {
	Stops       []RouteStop `json:"stops"`
	TotalCost   float64     `json:"total_cost"`
	Unreachable []string    `json:"unreachable,omitempty"`
}
