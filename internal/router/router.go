package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/stargan-id/jaga-gizi-alerting/internal/handlers"
)

// Options configures the router.
type Options struct {
	// CronSecret guards the scan and sweep triggers.
	CronSecret string
	// Metrics records per-request counters. Nil disables request metrics.
	Metrics RequestMetrics
}

// NewRouter wires every endpoint onto a chi router.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", handlers.UserHeader},
		MaxAge:         300,
	}))
	if opts.Metrics != nil {
		r.Use(metricsMiddleware(opts.Metrics))
	}

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", h.Summary)
		r.Get("/rules", h.ListRules)
		r.Get("/metrics", h.Metrics)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/", h.CreateAlert)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAlert)
				r.Patch("/", h.UpdateAlert)
				r.Delete("/", h.DeleteAlert)
				r.Post("/acknowledge", h.AcknowledgeAlert)
				r.Post("/resolve", h.ResolveAlert)
				r.Post("/dismiss", h.DismissAlert)
				r.With(cronAuth(opts.CronSecret)).Post("/recheck", h.RecheckAlert)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Get("/digests", h.NotificationDigests)
			r.Post("/mark", h.MarkNotifications)
		})

		r.Group(func(r chi.Router) {
			r.Use(cronAuth(opts.CronSecret))
			r.Post("/scans", h.ScanAll)
			r.Post("/scans/{rule}", h.ScanRule)
			r.Post("/sweeps/escalation", h.SweepEscalation)
			r.Post("/sweeps/resolution", h.SweepResolution)
		})
	})

	return r
}
