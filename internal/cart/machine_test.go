package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	redisrepo "github.com/AaryaPoriya/QuantumCoders/internal/repository/redis"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
)

// --- Test doubles ---

// memoryCommandLog is an in-memory CommandLogRepository.
type memoryCommandLog struct {
	mu      sync.Mutex
	applied map[string]map[string]int64
}

func newMemoryCommandLog() *memoryCommandLog {
	return &memoryCommandLog{applied: make(map[string]map[string]int64)}
}

func (l *memoryCommandLog) Append(_ context.Context, cmd *domain.MutationCommand, version int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	byCart, ok := l.applied[cmd.CartID]
	if !ok {
		byCart = make(map[string]int64)
		l.applied[cmd.CartID] = byCart
	}
	key := string(cmd.Actor) + ":" + cmd.IdempotencyKey
	if _, seen := byCart[key]; !seen {
		byCart[key] = version
	}
	return nil
}

func (l *memoryCommandLog) AppliedVersions(_ context.Context, cartID string) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.applied[cartID]))
	for k, v := range l.applied[cartID] {
		out[k] = v
	}
	return out, nil
}

// allowAllSessions treats every session as active.
type allowAllSessions struct{}

func (allowAllSessions) Active(context.Context, string) error { return nil }

// rejectAllSessions fails every session check.
type rejectAllSessions struct{}

func (rejectAllSessions) Active(context.Context, string) error {
	return apperrors.Unauthenticated("session is not active")
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestMachine(t *testing.T) (*StateMachine, *redisrepo.CartRepository, *memoryCommandLog) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	carts := redisrepo.NewCartRepository(client, 24*time.Hour)
	log := newMemoryCommandLog()
	m := NewStateMachine(carts, log, allowAllSessions{}, nil, newTestLogger(), DefaultApplyTimeout)
	return m, carts, log
}

func openCart(t *testing.T, m *StateMachine) *domain.CartSession {
	t.Helper()
	cart, err := m.Open(context.Background(), "sess-1")
	require.NoError(t, err)
	return cart
}

func addCommand(cartID, key, productID string, qty int) *domain.MutationCommand {
	return &domain.MutationCommand{
		CartID:         cartID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: key,
		Op:             domain.OpAdd,
		ProductID:      productID,
		Quantity:       qty,
		ArrivedAt:      time.Now().UTC(),
	}
}

// --- Open ---

func TestOpen_CreatesThenReturnsSameCart(t *testing.T) {
	m, _, _ := newTestMachine(t)
	ctx := context.Background()

	first, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CartOpen, first.Status)
	assert.EqualValues(t, 0, first.Version)

	second, err := m.Open(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestOpen_Unauthenticated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	carts := redisrepo.NewCartRepository(client, time.Hour)
	m := NewStateMachine(carts, newMemoryCommandLog(), rejectAllSessions{}, nil, newTestLogger(), DefaultApplyTimeout)

	_, err := m.Open(context.Background(), "sess-1")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthenticated))
}

// --- Apply ---

func TestApply_UnknownCart(t *testing.T) {
	m, _, _ := newTestMachine(t)

	_, err := m.Apply(context.Background(), addCommand("ghost", "k-1", "prod-1", 1))
	assert.True(t, errors.Is(err, apperrors.ErrUnknownCart))
}

func TestApply_VersionIncrementsPerAcceptedCommand(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	res1, err := m.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 2))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res1.Version)

	res2, err := m.Apply(ctx, addCommand(cart.ID, "k-2", "prod-2", 1))
	require.NoError(t, err)
	assert.EqualValues(t, 2, res2.Version)
	assert.Equal(t, 2, res2.Lines["prod-1"].Quantity)
	assert.Equal(t, 1, res2.Lines["prod-2"].Quantity)
}

func TestApply_RedeliveryAppliesOnce(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	scan := &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorDevice,
		IdempotencyKey: "esp32-07:1",
		Op:             domain.OpAdd,
		ProductID:      "prod-1",
		Quantity:       1,
		ActorSeq:       1,
	}

	first, err := m.Apply(ctx, scan)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.EqualValues(t, 1, first.Version)

	for i := 0; i < 2; i++ {
		replay, err := m.Apply(ctx, scan)
		require.NoError(t, err)
		assert.True(t, replay.Duplicate)
		assert.EqualValues(t, 1, replay.Version)
		assert.Equal(t, 1, replay.Lines["prod-1"].Quantity)
	}
}

func TestApply_RemoveClampsAtZero(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	_, err := m.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 1))
	require.NoError(t, err)

	res, err := m.Apply(ctx, &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: "k-2",
		Op:             domain.OpRemove,
		ProductID:      "prod-1",
		Quantity:       5,
	})
	require.NoError(t, err)
	_, present := res.Lines["prod-1"]
	assert.False(t, present, "line at zero must be removed, not retained")
}

func TestApply_RemoveMissingLineIsNoOp(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)

	res, err := m.Apply(context.Background(), &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: "k-1",
		Op:             domain.OpRemove,
		ProductID:      "never-added",
		Quantity:       1,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
	assert.EqualValues(t, 1, res.Version)
}

func TestApply_SetQuantity(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	res, err := m.Apply(ctx, &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: "k-1",
		Op:             domain.OpSetQuantity,
		ProductID:      "prod-1",
		Quantity:       4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Lines["prod-1"].Quantity)

	res, err = m.Apply(ctx, &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: "k-2",
		Op:             domain.OpSetQuantity,
		ProductID:      "prod-1",
		Quantity:       0,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Lines)
}

func TestApply_NegativeSetQuantityRejected(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)

	_, err := m.Apply(context.Background(), &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: "k-1",
		Op:             domain.OpSetQuantity,
		ProductID:      "prod-1",
		Quantity:       -3,
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidOperation))
}

func TestApply_ConcurrentActorsDistinctKeys(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	device := &domain.MutationCommand{
		CartID:         cart.ID,
		Actor:          domain.ActorDevice,
		IdempotencyKey: "esp32-07:1",
		Op:             domain.OpAdd,
		ProductID:      "prod-1",
		Quantity:       1,
		ActorSeq:       1,
	}
	mobile := addCommand(cart.ID, "app-key-1", "prod-1", 1)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = m.Apply(ctx, device)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = m.Apply(ctx, mobile)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	snap, err := m.Snapshot(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Lines["prod-1"].Quantity, "both deltas must apply")
	assert.EqualValues(t, 2, snap.Version)
}

func TestApply_ConcurrentMutationsStayNonNegative(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			op := domain.OpAdd
			if i%2 == 1 {
				op = domain.OpRemove
			}
			_, err := m.Apply(ctx, &domain.MutationCommand{
				CartID:         cart.ID,
				Actor:          domain.ActorMobile,
				IdempotencyKey: fmt.Sprintf("k-%d", i),
				Op:             op,
				ProductID:      "prod-1",
				Quantity:       1,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := m.Snapshot(ctx, cart.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.Lines["prod-1"].Quantity, 0)
	assert.EqualValues(t, 20, snap.Version)
}

func TestApply_CartBusyWhenSlotHeld(t *testing.T) {
	m, _, _ := newTestMachine(t)
	m.applyTimeout = 50 * time.Millisecond
	cart := openCart(t, m)

	// Occupy the cart's writer slot directly.
	entry := m.entry(cart.ID)
	entry.sem <- struct{}{}
	defer func() { <-entry.sem }()

	_, err := m.Apply(context.Background(), addCommand(cart.ID, "k-1", "prod-1", 1))
	assert.True(t, errors.Is(err, apperrors.ErrCartBusy))
}

func TestApply_DedupSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	carts := redisrepo.NewCartRepository(client, time.Hour)
	log := newMemoryCommandLog()
	ctx := context.Background()

	m1 := NewStateMachine(carts, log, allowAllSessions{}, nil, newTestLogger(), DefaultApplyTimeout)
	cart, err := m1.Open(ctx, "sess-1")
	require.NoError(t, err)
	_, err = m1.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 1))
	require.NoError(t, err)

	// A fresh machine sharing the same storage must still recognize the key.
	m2 := NewStateMachine(carts, log, allowAllSessions{}, nil, newTestLogger(), DefaultApplyTimeout)
	res, err := m2.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 1))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, res.Lines["prod-1"].Quantity)
}

// --- Checkout ---

func TestCheckout_EmptyCart(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)

	_, err := m.Checkout(context.Background(), cart.ID)
	assert.True(t, errors.Is(err, apperrors.ErrEmptyCart))
}

func TestCheckout_ThenMutationRejected(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	_, err := m.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 1))
	require.NoError(t, err)

	done, err := m.Checkout(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CartCheckedOut, done.Status)

	_, err = m.Apply(ctx, addCommand(cart.ID, "k-2", "prod-2", 1))
	assert.True(t, errors.Is(err, apperrors.ErrNotOpen))
}

func TestCheckout_NotOpenTwice(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	_, err := m.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 1))
	require.NoError(t, err)
	_, err = m.Checkout(ctx, cart.ID)
	require.NoError(t, err)

	_, err = m.Checkout(ctx, cart.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotOpen))
}

// --- Snapshot ---

func TestSnapshot_IsolatedFromLaterMutations(t *testing.T) {
	m, _, _ := newTestMachine(t)
	cart := openCart(t, m)
	ctx := context.Background()

	_, err := m.Apply(ctx, addCommand(cart.ID, "k-1", "prod-1", 1))
	require.NoError(t, err)

	snap, err := m.Snapshot(ctx, cart.ID)
	require.NoError(t, err)

	_, err = m.Apply(ctx, addCommand(cart.ID, "k-2", "prod-1", 1))
	require.NoError(t, err)

	assert.Equal(t, 1, snap.Lines["prod-1"].Quantity, "snapshot must not see later writes")
}
