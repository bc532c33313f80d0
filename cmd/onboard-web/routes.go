package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

// newRouter sets up the JSON API. When jwtSecret is non-empty, mutating
// routes require an HS256 bearer token signed with it.
func newRouter(engine *onboard.Engine, jwtSecret []byte, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(log))
	r.Use(recovery(log))

	h := &handlers{engine: engine, log: log}

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/recommendations", h.handleRecommendations)
		r.Get("/interest", h.handleInterest)
		r.Get("/discover", h.handleDiscover)
		r.Get("/jobs", h.handleJobList)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(jwtSecret))
			r.Post("/feedback", h.handleFeedback)
			r.Post("/clicks", h.handleClick)
			r.Post("/jobs/{name}", h.handleJobRun)
		})
	})

	return r
}
