package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AaryaPoriya/QuantumCoders/internal/cart"
	"github.com/AaryaPoriya/QuantumCoders/internal/domain"
	"github.com/AaryaPoriya/QuantumCoders/internal/ingest"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/httputil"
	"github.com/AaryaPoriya/QuantumCoders/pkg/logger"
	"github.com/AaryaPoriya/QuantumCoders/pkg/validator"
)

// CartHandler handles cart endpoints for the mobile app.
type CartHandler struct {
	machine  *cart.StateMachine
	ingester *ingest.Ingester
	logger   *slog.Logger
}

// NewCartHandler creates the cart HTTP handler.
func NewCartHandler(machine *cart.StateMachine, ingester *ingest.Ingester, logger *slog.Logger) *CartHandler {
	return &CartHandler{machine: machine, ingester: ingester, logger: logger}
}

// --- Request DTOs ---

// CommandRequest is the body for POST /cart/commands.
type CommandRequest struct {
	CartID         string `json:"cart_id" validate:"required"`
	ProductID      string `json:"product_id" validate:"required"`
	Operation      string `json:"operation" validate:"required,oneof=add remove setQuantity"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

// ConnectDeviceRequest is the body for POST /cart/{cartID}/connect.
type ConnectDeviceRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

// --- Handlers ---

// Open handles POST /api/v1/cart/open: creates or returns the session's open
// cart.
func (h *CartHandler) Open(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthenticated("authentication required"), h.logger)
		return
	}

	opened, err := h.machine.Open(r.Context(), sess.ID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: opened})
}

// Command handles POST /api/v1/cart/commands: one mutation from the mobile
// app. A duplicate idempotency key returns the current state unchanged.
func (h *CartHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	quantity := req.Quantity
	if quantity == 0 && req.Operation != string(domain.OpSetQuantity) {
		quantity = 1
	}

	ctx := logger.WithCartID(r.Context(), req.CartID)
	result, err := h.machine.Apply(ctx, &domain.MutationCommand{
		CartID:         req.CartID,
		Actor:          domain.ActorMobile,
		IdempotencyKey: req.IdempotencyKey,
		Op:             domain.Operation(req.Operation),
		ProductID:      req.ProductID,
		Quantity:       quantity,
		ArrivedAt:      time.Now().UTC(),
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Get handles GET /api/v1/cart/{cartID}: a lock-free snapshot.
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")

	snap, err := h.machine.Snapshot(r.Context(), cartID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: snap})
}

// Checkout handles POST /api/v1/cart/{cartID}/checkout.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")

	ctx := logger.WithCartID(r.Context(), cartID)
	done, err := h.machine.Checkout(ctx, cartID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: done})
}

// Connect handles POST /api/v1/cart/{cartID}/connect: binds an in-cart device
// to the shopper's cart so its scans are accepted.
func (h *CartHandler) Connect(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthenticated("authentication required"), h.logger)
		return
	}
	cartID := chi.URLParam(r, "cartID")

	var req ConnectDeviceRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// The cart must exist and belong to this session.
	snap, err := h.machine.Snapshot(r.Context(), cartID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if snap.SessionID != sess.ID {
		httputil.WriteError(w, r, apperrors.Forbidden("cart belongs to another session"), h.logger)
		return
	}

	if err := h.ingester.Bind(r.Context(), req.DeviceID, cartID, sess.ID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"device_id": req.DeviceID,
		"cart_id":   cartID,
	}})
}
