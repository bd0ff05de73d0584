package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/middleware"
)

// RouteRegistrar is implemented by every handler in this package
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter wires the public health check and the authenticated /v1 API
func NewRouter(log logrus.FieldLogger, auth *middleware.AuthMiddleware, health http.HandlerFunc, handlers ...RouteRegistrar) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(chimw.Recoverer)

	// Health check (no auth needed)
	r.Get("/health", health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.RequireAuth)
		for _, h := range handlers {
			h.RegisterRoutes(r)
		}
	})
	return r
}
