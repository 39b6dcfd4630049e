package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AaryaPoriya/QuantumCoders/internal/cart"
	"github.com/AaryaPoriya/QuantumCoders/internal/routing"
	apperrors "github.com/AaryaPoriya/QuantumCoders/pkg/errors"
	"github.com/AaryaPoriya/QuantumCoders/pkg/httputil"
)

// RouteHandler computes in-store walking routes for a cart's remaining items.
type RouteHandler struct {
	machine *cart.StateMachine
	planner *routing.Planner
	graph   *routing.Graph
	logger  *slog.Logger
}

// NewRouteHandler creates the route HTTP handler.
func NewRouteHandler(machine *cart.StateMachine, planner *routing.Planner, graph *routing.Graph, logger *slog.Logger) *RouteHandler {
	return &RouteHandler{machine: machine, planner: planner, graph: graph, logger: logger}
}

// Plan handles GET /api/v1/cart/{cartID}/route?current_node=N. The route is a
// point-in-time projection of cart plus store graph; abandoning the request
// has no side effects.
func (h *RouteHandler) Plan(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartID")
	currentNode := r.URL.Query().Get("current_node")
	if currentNode == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("current_node query parameter is required"), h.logger)
		return
	}

	snap, err := h.machine.Snapshot(r.Context(), cartID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	route, err := h.planner.Plan(r.Context(), currentNode, snap.ProductIDs())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: route})
}

// Sections handles GET /api/v1/store/sections: the store layout for map
// rendering.
func (h *RouteHandler) Sections(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.graph.Nodes()})
}
