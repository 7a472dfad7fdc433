package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/maisondore/newsletter/internal/pkg/httputil"
)

// SetupRoutes configures the router and middleware stack.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(h.requestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://maisondore.com", "https://www.maisondore.com", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api/newsletter", func(r chi.Router) {
		r.Post("/subscribe", h.Subscribe)
		r.Post("/confirm", h.Confirm)
		r.Get("/confirm", h.Confirm) // email clients follow the link with GET
		r.Get("/list", h.List)
		r.Get("/all", h.ListAll)
		r.Post("/unsubscribe", h.Unsubscribe)
		r.Get("/unsubscribe", h.UnsubscribeProbe)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
