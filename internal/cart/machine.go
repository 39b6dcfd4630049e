package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/repository"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// DefaultApplyTimeout bounds how long a mutation waits for its cart's
// serialization slot before failing with CartBusy.
const DefaultApplyTimeout = 2 * time.Second

// SessionChecker reports whether a session is active. Implemented by the
// session authenticator.
type SessionChecker interface {
	Active(ctx context.Context, sessionID string) error
}

// EventPublisher receives cart lifecycle notifications. Implementations must
// not block the caller. A nil publisher disables publishing.
type EventPublisher interface {
	CartUpdated(ctx context.Context, cart *domain.CartSession, cmd *domain.MutationCommand)
	CartCheckedOut(ctx context.Context, cart *domain.CartSession)
}

// ApplyResult is the outcome of one mutation command.
type ApplyResult struct {
	Version   int64                      `json:"version"`
	Lines     map[string]domain.CartLine `json:"lines"`
	Duplicate bool                       `json:"duplicate"`
}

// StateMachine serializes and applies mutation commands per cart. Commands
// for the same cart are admitted one at a time through a per-cart slot;
// commands for different carts proceed in parallel. Reads go through an
// atomically swapped snapshot and never wait on writers.
type StateMachine struct {
	carts    repository.CartRepository
	log      repository.CommandLogRepository
	sessions SessionChecker
	events   EventPublisher
	logger   *slog.Logger

	applyTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*cartEntry
}

// cartEntry is the in-memory serialization point for one cart. The semaphore
// admits one writer at a time; state holds the current copy-on-write
// snapshot; applied maps "actor:idempotencyKey" to the version that command
// produced and is accessed only while holding the semaphore.
type cartEntry struct {
	sem      chan struct{}
	state    atomic.Pointer[domain.CartSession]
	applied  map[string]int64
	hydrated bool
}

// NewStateMachine creates the cart mutation engine.
func NewStateMachine(
	carts repository.CartRepository,
	log repository.CommandLogRepository,
	sessions SessionChecker,
	events EventPublisher,
	logger *slog.Logger,
	applyTimeout time.Duration,
) *StateMachine {
	if applyTimeout <= 0 {
		applyTimeout = DefaultApplyTimeout
	}
	return &StateMachine{
		carts:        carts,
		log:          log,
		sessions:     sessions,
		events:       events,
		logger:       logger,
		applyTimeout: applyTimeout,
		entries:      make(map[string]*cartEntry),
	}
}

// Open creates or returns the open cart for an authenticated session.
func (m *StateMachine) Open(ctx context.Context, sessionID string) (*domain.CartSession, error) {
	if err := m.sessions.Active(ctx, sessionID); err != nil {
		return nil, err
	}

	existing, err := m.carts.GetBySession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	cart := &domain.CartSession{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Version:   0,
		Lines:     make(map[string]domain.CartLine),
		Status:    domain.CartOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("save new cart: %w", err)
	}

	m.logger.InfoContext(ctx, "cart opened",
		slog.String("cart_id", cart.ID),
		slog.String("session_id", sessionID),
	)

	return cart, nil
}

// Apply validates a mutation command, admits it through the cart's
// serialization slot, and applies it exactly once. A replayed idempotency
// key returns the current state with Duplicate set instead of reapplying.
func (m *StateMachine) Apply(ctx context.Context, cmd *domain.MutationCommand) (*ApplyResult, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}

	entry := m.entry(cmd.CartID)
	release, err := m.acquire(ctx, entry, cmd.CartID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.hydrate(ctx, entry, cmd.CartID); err != nil {
		return nil, err
	}

	cur := entry.state.Load()
	if cur.Status != domain.CartOpen {
		return nil, apperrors.NotOpen(cmd.CartID)
	}

	dedupKey := string(cmd.Actor) + ":" + cmd.IdempotencyKey
	if _, seen := entry.applied[dedupKey]; seen {
		m.logger.DebugContext(ctx, "duplicate command ignored",
			slog.String("cart_id", cmd.CartID),
			slog.String("idempotency_key", cmd.IdempotencyKey),
			slog.String("actor", string(cmd.Actor)),
		)
		return &ApplyResult{Version: cur.Version, Lines: cur.Clone().Lines, Duplicate: true}, nil
	}

	next := cur.Clone()
	applyOperation(next, cmd)
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	// Persist before swapping: on save failure nothing was applied, which is
	// what CartBusy-style retries rely on.
	if err := m.carts.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save cart %s: %w", cmd.CartID, err)
	}
	if err := m.log.Append(ctx, cmd, next.Version); err != nil {
		// The mutation is already durable in the cart itself; a lost log row
		// only weakens dedup across restarts. Keep serving.
		m.logger.WarnContext(ctx, "command log append failed",
			slog.String("cart_id", cmd.CartID),
			slog.String("error", err.Error()),
		)
	}

	entry.state.Store(next)
	entry.applied[dedupKey] = next.Version

	if m.events != nil {
		m.events.CartUpdated(ctx, next, cmd)
	}

	return &ApplyResult{Version: next.Version, Lines: next.Clone().Lines}, nil
}

// Snapshot returns the current version and line items without waiting on
// writers. Carts not resident in memory are read straight from storage.
func (m *StateMachine) Snapshot(ctx context.Context, cartID string) (*domain.CartSession, error) {
	m.mu.Lock()
	entry, ok := m.entries[cartID]
	m.mu.Unlock()

	if ok && entry.hydrated {
		if cur := entry.state.Load(); cur != nil {
			return cur.Clone(), nil
		}
	}

	return m.carts.Get(ctx, cartID)
}

// Checkout transitions an open, non-empty cart to checked out. The cart's
// serialization slot is held so a checkout never races a mutation.
func (m *StateMachine) Checkout(ctx context.Context, cartID string) (*domain.CartSession, error) {
	entry := m.entry(cartID)
	release, err := m.acquire(ctx, entry, cartID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := m.hydrate(ctx, entry, cartID); err != nil {
		return nil, err
	}

	cur := entry.state.Load()
	if cur.Status != domain.CartOpen {
		return nil, apperrors.NotOpen(cartID)
	}
	if cur.Empty() {
		return nil, apperrors.EmptyCart(cartID)
	}

	next := cur.Clone()
	next.Status = domain.CartCheckedOut
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	if err := m.carts.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("save checked-out cart %s: %w", cartID, err)
	}

	entry.state.Store(next)

	if m.events != nil {
		m.events.CartCheckedOut(ctx, next)
	}

	m.logger.InfoContext(ctx, "cart checked out",
		slog.String("cart_id", cartID),
		slog.Int64("version", next.Version),
		slog.Int("items", next.ItemCount()),
	)

	// The cart is terminal; drop its serialization entry.
	m.mu.Lock()
	delete(m.entries, cartID)
	m.mu.Unlock()

	return next.Clone(), nil
}

// entry returns the serialization entry for a cart, creating it on first use.
func (m *StateMachine) entry(cartID string) *cartEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[cartID]
	if !ok {
		e = &cartEntry{
			sem:     make(chan struct{}, 1),
			applied: make(map[string]int64),
		}
		m.entries[cartID] = e
	}
	return e
}

// acquire takes the cart's writer slot, waiting at most the apply timeout.
func (m *StateMachine) acquire(ctx context.Context, entry *cartEntry, cartID string) (func(), error) {
	timer := time.NewTimer(m.applyTimeout)
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
		return func() { <-entry.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, apperrors.CartBusy(cartID)
	}
}

// hydrate loads the cart and its dedup index from storage on first access.
// Caller must hold the entry's semaphore.
func (m *StateMachine) hydrate(ctx context.Context, entry *cartEntry, cartID string) error {
	if entry.hydrated {
		return nil
	}

	cart, err := m.carts.Get(ctx, cartID)
	if err != nil {
		return err
	}
	applied, err := m.log.AppliedVersions(ctx, cartID)
	if err != nil {
		return fmt.Errorf("load applied commands for cart %s: %w", cartID, err)
	}

	entry.state.Store(cart)
	entry.applied = applied
	entry.hydrated = true
	return nil
}

// validateCommand rejects malformed commands before they reach the
// serialization slot.
func validateCommand(cmd *domain.MutationCommand) error {
	if cmd.CartID == "" || cmd.ProductID == "" || cmd.IdempotencyKey == "" {
		return apperrors.InvalidOperation("cart id, product id, and idempotency key are required")
	}
	switch cmd.Op {
	case domain.OpAdd, domain.OpRemove:
		if cmd.Quantity < 1 {
			return apperrors.InvalidOperation(fmt.Sprintf("%s requires quantity >= 1", cmd.Op))
		}
	case domain.OpSetQuantity:
		if cmd.Quantity < 0 {
			return apperrors.InvalidOperation("setQuantity target must be >= 0")
		}
	default:
		return apperrors.InvalidOperation(fmt.Sprintf("unknown operation %q", cmd.Op))
	}
	return nil
}

// applyOperation mutates the cloned cart in place. Quantities clamp at zero
// and a line at zero is removed rather than retained; a remove or
// setQuantity(0) against a missing line is a no-op.
func applyOperation(cart *domain.CartSession, cmd *domain.MutationCommand) {
	line, exists := cart.Lines[cmd.ProductID]

	var quantity int
	switch cmd.Op {
	case domain.OpAdd:
		quantity = line.Quantity + cmd.Quantity
	case domain.OpRemove:
		quantity = line.Quantity - cmd.Quantity
		if quantity < 0 {
			quantity = 0
		}
	case domain.OpSetQuantity:
		if !exists && cmd.Quantity == 0 {
			return
		}
		quantity = cmd.Quantity
	}

	if quantity <= 0 {
		delete(cart.Lines, cmd.ProductID)
		return
	}

	cart.Lines[cmd.ProductID] = domain.CartLine{
		ProductID:  cmd.ProductID,
		Quantity:   quantity,
		LastWriter: cmd.Actor,
		LastSeq:    cmd.ActorSeq,
	}
}
