package domain

import "time"

// CartStatus is the lifecycle state of a cart session.
type CartStatus string

const (
	CartOpen       CartStatus = "open"
	CartCheckedOut CartStatus = "checked_out"
	CartAbandoned  CartStatus = "abandoned"
)

// Actor identifies which class of actor issued a mutation.
type Actor string

const (
	ActorMobile Actor = "mobile"
	ActorDevice Actor = "device"
)

// CartLine is one product line in a cart. Quantity is always positive; a line
// that would reach zero is removed rather than retained.
type CartLine struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	LastWriter Actor  `json:"last_writer"`
	LastSeq    int64  `json:"last_seq"`
}

// CartSession is the authoritative, versioned line-item state for one
// shopper's active cart. The version counter strictly increases with every
// accepted mutation and is returned with every read.
type CartSession struct {
	ID        string              `json:"id"`
	SessionID string              `json:"session_id"`
	Version   int64               `json:"version"`
	Lines     map[string]CartLine `json:"lines"`
	Status    CartStatus          `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ItemCount returns the total quantity across all lines.
func (c *CartSession) ItemCount() int {
	var n int
	for _, line := range c.Lines {
		n += line.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (c *CartSession) Empty() bool {
	return len(c.Lines) == 0
}

// Clone returns a deep copy. The cart machine mutates copies and swaps them
// atomically so snapshot readers never observe a torn write.
func (c *CartSession) Clone() *CartSession {
	cp := *c
	cp.Lines = make(map[string]CartLine, len(c.Lines))
	for id, line := range c.Lines {
		cp.Lines[id] = line
	}
	return &cp
}

// ProductIDs returns the product IDs of all lines with quantity > 0.
func (c *CartSession) ProductIDs() []string {
	ids := make([]string, 0, len(c.Lines))
	for id, line := range c.Lines {
		if line.Quantity > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}
