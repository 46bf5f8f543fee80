package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(clientIPMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}

	requireValid := middleware.RequireValid(s.engine)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		// Logout accepts expired or invalid tokens, so it sits outside the guard.
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireValid)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/change-password", s.handleChangePassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Chain(requireValid, middleware.RequireRole(authcore.RoleAdmin)))

			r.Get("/users", s.handleListUsers)
			r.Route("/users/{id}", func(r chi.Router) {
				r.Delete("/", s.handleDeleteUser)
				r.Post("/toggle-status", s.handleToggleStatus)
				r.Get("/sessions", s.handleListSessions)
				r.Post("/revoke-all", s.handleRevokeAll)
			})
			r.Delete("/sessions/{jti}", s.handleRevokeSession)
			r.Get("/refresh-tokens", s.handleRefreshTokens)
			r.Get("/security-report", s.handleSecurityReport)
		})
	})

	return r
}

// handleHealth returns the server health status. A failing registry ping turns it into
// 503 so load balancers stop routing to an instance that cannot rotate tokens.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latency, err := s.engine.Ping(r.Context())
	if err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "unavailable",
			"version":    s.version,
			"error_code": ErrCodeUnavailable,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"store_latency_ms": latency.Milliseconds(),
	})
}
