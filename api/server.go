/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/simulations/*    Open simulations and their edits
  /api/saved/*          Stored simulations
  /api/restore          Open a simulation from snapshot JSON
  /api/options          Month option overrides
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint
  /                     API index

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
// allowedOrigins feeds the CORS middleware.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Simulation routes
		r.Route("/simulations", func(r chi.Router) {
			r.Get("/", h.ListSimulations)
			r.Post("/", h.CreateSimulation)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSimulation)
				r.Delete("/", h.DeleteSimulation)

				r.Put("/months/{month}/remuneration", h.SetMonthRemuneration)
				r.Put("/months/{month}/options/{key}", h.SetMonthOption)
				r.Delete("/months/{month}/options/{key}", h.ClearMonthOption)
				r.Put("/remuneration/monthly", h.SetMonthlyRemuneration)
				r.Put("/remuneration/annual", h.SetAnnualRemuneration)
				r.Put("/company-size", h.SetCompanySize)
				r.Put("/paid-leave-fund", h.SetPaidLeaveFund)
				r.Put("/regularisation", h.SetRegularisationMode)
				r.Post("/regularisation/trigger", h.TriggerAnnualRegularisation)
				r.Put("/bindings", h.SetBinding)
				r.Put("/year", h.SetYear)
				r.Put("/display-mode", h.SetDisplayMode)

				r.Post("/save", h.SaveSimulation)
				r.Get("/export", h.ExportSimulation)
			})
		})

		// Stored simulation routes
		r.Route("/saved", func(r chi.Router) {
			r.Get("/", h.ListSaved)
			r.Post("/{id}/restore", h.RestoreSaved)
			r.Delete("/{id}", h.DeleteSaved)
		})

		r.Post("/restore", h.RestoreSnapshot)
		r.Get("/options", h.ListOptions)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.Reset)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Réduction générale</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Réduction générale API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/simulations">/api/simulations</a> - Open simulations</li>
<li><a href="/api/saved">/api/saved</a> - Saved simulations</li>
<li><a href="/api/options">/api/options</a> - Month options</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
	})

	return r
}
