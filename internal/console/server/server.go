package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/console/handler"
	"github.com/lishushu94/provider-console/internal/infra"
	"github.com/lishushu94/provider-console/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// RS256 verification for the protected perimeter.
	authValidator auth.TokenValidator

	authHandler     *handler.AuthHandler      // /auth/token
	providerHandler *handler.ProviderHandler  // /api/v1/providers
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard
	auditHandler    *handler.AuditHandler     // /api/v1/providers/{id}/audit
}

func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	providerH *handler.ProviderHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		authValidator:   validator,
		authHandler:     authH,
		providerHandler: providerH,
		dashHandler:     dashH,
		auditHandler:    auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// Infrastructure middleware for everything.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public routes.
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// Protected perimeter: everything below requires a valid RS256 token.
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard KPIs and the global throughput chart.
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)
		r.Get("/api/v1/dashboard/trend", s.dashHandler.GetTrend)

		// Provider lifecycle.
		r.Route("/api/v1/providers", func(r chi.Router) {
			r.Get("/", s.providerHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.providerHandler.Get)

				// Audit axis: pending -> testing -> decision.
				r.Post("/test", s.providerHandler.Test)
				r.Post("/approve", s.providerHandler.Approve)
				r.Post("/reject", s.providerHandler.Reject)

				// Operation axis: active <-> paused -> offline.
				r.Post("/pause", s.providerHandler.Pause)
				r.Post("/resume", s.providerHandler.Resume)
				r.Post("/offline", s.providerHandler.Offline)

				// Per-model availability.
				r.Post("/models/{model}/toggle", s.providerHandler.ToggleModel)

				// Charts and trail for the provider page.
				r.Get("/metrics/trend", s.dashHandler.GetProviderTrend)
				r.Get("/metrics/latency", s.dashHandler.GetProviderLatency)
				r.Get("/metrics/daily", s.dashHandler.GetProviderDaily)
				r.Get("/audit/history", s.auditHandler.GetHistory)
			})
		})
	})
}

// ServeHTTP lets the ConsoleServer be used as a standard http.Handler.
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
