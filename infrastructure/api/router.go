// Package api exposes the REST surface next to the live socket endpoint.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter wires REST handlers, the socket endpoint and /metrics.
func NewRouter(
	log *slog.Logger,
	cfg RouterConfig,
	h *Handler,
	authenticator Authenticator,
	socket http.Handler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(h.NotFound)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/socket", socket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(log, authenticator))

			r.Get("/auth/me", h.Me)
			r.Get("/auth/users", h.Users)
			r.Get("/messages/unread/count", h.UnreadCount)
			r.Put("/messages/read/{userId}", h.MarkRead)
			r.Get("/messages/{userId}", h.Conversation)
		})
	})

	return r
}
