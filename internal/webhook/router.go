package webhook

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterConfig holds the handlers mounted by the webhook server.
type RouterConfig struct {
	Events         *Handler
	Admin          *AdminHandler
	MetricsHandler http.Handler
}

// NewRouter builds the webhook server's routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	if cfg.Events != nil {
		r.Post("/webhook", cfg.Events.Handle)
		r.Post("/webhook/", cfg.Events.Handle)
	}
	if cfg.Admin != nil {
		r.Route("/admin/bot", func(r chi.Router) {
			r.Get("/status", cfg.Admin.Status)
			r.Post("/activate", cfg.Admin.Activate)
			r.Post("/deactivate", cfg.Admin.Deactivate)
		})
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
