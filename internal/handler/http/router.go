package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaryaPoriya/QuantumCoders/internal/cart"
	"github.com/AaryaPoriya/QuantumCoders/internal/ingest"
	"github.com/AaryaPoriya/QuantumCoders/internal/routing"
	"github.com/AaryaPoriya/QuantumCoders/internal/session"
	"github.com/AaryaPoriya/QuantumCoders/pkg/health"
	"github.com/AaryaPoriya/QuantumCoders/pkg/middleware"
)

// NewRouter creates a chi router with all routes registered.
func NewRouter(
	auth *session.Authenticator,
	machine *cart.StateMachine,
	ingester *ingest.Ingester,
	planner *routing.Planner,
	graph *routing.Graph,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics())
	r.Use(middleware.Tracing("smartcart"))
	r.Use(middleware.RequestLogger(logger))

	// Health and metrics
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(auth, logger)
	cartHandler := NewCartHandler(machine, ingester, logger)
	deviceHandler := NewDeviceHandler(ingester, logger)
	routeHandler := NewRouteHandler(machine, planner, graph, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// OTP flow, no session required.
		r.Post("/auth/otp/request", authHandler.RequestOTP)
		r.Post("/auth/otp/verify", authHandler.VerifyOTP)

		// Session-scoped auth endpoints. Profile creation runs before the
		// session is Active, so it sits outside RequireActive.
		r.Group(func(r chi.Router) {
			r.Use(SessionAuth(auth))
			r.Post("/auth/profile", authHandler.CreateProfile)
			r.Post("/auth/logout", authHandler.Logout)
		})

		// Cart endpoints require a fully authenticated session.
		r.Group(func(r chi.Router) {
			r.Use(SessionAuth(auth))
			r.Use(RequireActive)

			r.Post("/cart/open", cartHandler.Open)
			r.Post("/cart/commands", cartHandler.Command)
			r.Get("/cart/{cartID}", cartHandler.Get)
			r.Post("/cart/{cartID}/checkout", cartHandler.Checkout)
			r.Post("/cart/{cartID}/connect", cartHandler.Connect)

			r.Get("/cart/{cartID}/route", routeHandler.Plan)
			r.Get("/store/sections", routeHandler.Sections)
		})

		// Device telemetry uses the device credential class.
		r.Group(func(r chi.Router) {
			r.Use(DeviceAuth(ingester))
			r.Post("/device/scans", deviceHandler.Scan)
		})
	})

	return r
}
