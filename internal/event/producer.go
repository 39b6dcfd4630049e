package event

import (
	"context"
	"log/slog"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/pkg/kafka"
	"github.com/AaryaPoriya/QuantumCoders/pkg/logger"
)

// Kafka topics for cart domain events.
const (
	TopicCartUpdated    = "smartcart.cart.updated"
	TopicCartCheckedOut = "smartcart.cart.checked_out"
)

// Aggregate and source identifiers.
const (
	AggregateTypeCart = "cart"
	SourceCartEngine  = "cart-engine"
)

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartID    string         `json:"cart_id"`
	SessionID string         `json:"session_id"`
	Version   int64          `json:"version"`
	ItemCount int            `json:"item_count"`
	Lines     []CartLineData `json:"lines"`
	Actor     string         `json:"actor"`
	Operation string         `json:"operation"`
	ProductID string         `json:"product_id"`
}

// CartLineData is the line payload within cart events.
type CartLineData struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartCheckedOutData is the payload for a cart.checked_out event.
type CartCheckedOutData struct {
	CartID    string         `json:"cart_id"`
	SessionID string         `json:"session_id"`
	Version   int64          `json:"version"`
	ItemCount int            `json:"item_count"`
	Lines     []CartLineData `json:"lines"`
}

// Producer publishes cart lifecycle events to Kafka. Publishing is best
// effort and never fails the mutation that triggered it.
type Producer struct {
	kafka  *kafka.Producer
	logger *slog.Logger
}

// NewProducer creates a cart event producer.
func NewProducer(k *kafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: k, logger: logger}
}

// CartUpdated publishes a cart.updated event for an applied mutation.
func (p *Producer) CartUpdated(ctx context.Context, cart *domain.CartSession, cmd *domain.MutationCommand) {
	data := CartUpdatedData{
		CartID:    cart.ID,
		SessionID: cart.SessionID,
		Version:   cart.Version,
		ItemCount: cart.ItemCount(),
		Lines:     lineData(cart),
		Actor:     string(cmd.Actor),
		Operation: string(cmd.Op),
		ProductID: cmd.ProductID,
	}
	p.publish(ctx, TopicCartUpdated, "cart.updated", cart.ID, data)
}

// CartCheckedOut publishes a cart.checked_out event.
func (p *Producer) CartCheckedOut(ctx context.Context, cart *domain.CartSession) {
	data := CartCheckedOutData{
		CartID:    cart.ID,
		SessionID: cart.SessionID,
		Version:   cart.Version,
		ItemCount: cart.ItemCount(),
		Lines:     lineData(cart),
	}
	p.publish(ctx, TopicCartCheckedOut, "cart.checked_out", cart.ID, data)
}

func (p *Producer) publish(ctx context.Context, topic, eventType, cartID string, data any) {
	event, err := kafka.NewEvent(eventType, cartID, AggregateTypeCart, SourceCartEngine, data)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to build event",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		event = event.WithCorrelationID(cid)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("event_type", eventType),
			slog.String("cart_id", cartID),
			slog.String("error", err.Error()),
		)
	}
}

func lineData(cart *domain.CartSession) []CartLineData {
	lines := make([]CartLineData, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, CartLineData{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}
