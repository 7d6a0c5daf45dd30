package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/flemzord/membot/internal/security"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metrics.Handler())

	// Admin endpoints. Auth applies when configured; Validate refuses
	// unauthenticated binds beyond loopback unless allow_remote is set.
	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
		}
		r.Get("/status", g.handleStatus())
		r.Get("/ws/status", g.handleStatusStream())

		r.Route("/api", func(r chi.Router) {
			r.Use(rateLimitMiddleware(security.KindAdmin, g.audit, g.limiter))

			r.Get("/modules", g.handleGetAllModules())

			r.Route("/bot", func(r chi.Router) {
				r.Post("/start", g.handleBotControl(actionStart))
				r.Post("/stop", g.handleBotControl(actionStop))
				r.Post("/restart", g.handleBotControl(actionRestart))
			})

			r.Get("/settings", g.handleGetSettings())
			r.Put("/settings", g.handlePutSettings())

			r.Route("/memory", func(r chi.Router) {
				r.Get("/facts", g.handleListFacts())
				r.Post("/facts", g.handleCreateFact())
				r.Delete("/facts/{id}", g.handleDeleteFact())
				r.Get("/entries", g.handleListEntries())
				r.Delete("/entries/{id}", g.handleDeleteEntry())
				r.Delete("/users/{userID}", g.handleClearUser())
				r.Get("/stats", g.handleStats())
			})

			r.Post("/context/preview", g.handleContextPreview())
			r.With(rateLimitMiddleware(security.KindChat, g.audit, g.limiter)).
				Post("/chat", g.handleChat())
		})
	})

	return r
}
