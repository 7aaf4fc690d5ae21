package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seatsurge/seatsurge/internal/admission"
	"github.com/seatsurge/seatsurge/internal/observability"
	"github.com/seatsurge/seatsurge/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, issuer *admission.Issuer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)

	// Queue entry is the surge surface, so it carries the rate limiter.
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl))
		r.Post("/v1/queue/{eventID}/apply", h.Apply)
	})
	r.Get("/v1/queue/{eventID}", h.QueueStatus)

	// Checkout path, gated by the access key issued at admission.
	r.Route("/v1/events/{eventID}/seats", func(r chi.Router) {
		r.Get("/", h.SeatMapStatus)
		r.Group(func(r chi.Router) {
			r.Use(AccessKeyMiddleware(issuer))
			r.Post("/{seatID}/lock", h.LockSeat)
			r.Post("/{seatID}/restore", h.RestoreSeat)
			r.Get("/{seatID}/eligibility", h.SeatEligibility)
			r.Post("/lock-all", h.LockAllSeats)
			r.Post("/restore-all", h.RestoreAllSeats)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(AccessKeyMiddleware(issuer))
		r.Post("/v1/access/release", h.ReleaseAccess)
	})

	r.Post("/v1/admin/queue/{eventID}/poll", h.PollQueue)
	r.Post("/v1/admin/events/{eventID}/gate", h.SetGate)
	r.Post("/v1/admin/events/{eventID}/cache/warmup", h.WarmUpCache)
	r.Delete("/v1/admin/events/{eventID}/cache", h.ClearCache)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
