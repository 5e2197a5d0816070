package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.StripSlashes)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.metrics != nil {
		r.Use(s.metrics.HTTPMiddleware)
	}
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "Method Not Allowed")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Post("/register", s.handleRegister)
	r.Post("/token", s.handleToken)
	r.Post("/token/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/logout", s.handleLogout)

		r.Route("/pots", func(r chi.Router) {
			r.Post("/", s.handleCreatePot)
			r.Get("/", s.handleListPots)
			// {pot} is a pot id for POST .../plants and a pot name elsewhere.
			r.Route("/{pot}", func(r chi.Router) {
				r.Get("/", s.handleGetPot)
				r.Delete("/", s.handleDeletePot)
				r.Post("/plants", s.handleCreatePlant)
				r.Get("/plants", s.handleListPlants)
			})
		})

		r.Route("/plants/{plant_id}", func(r chi.Router) {
			r.Get("/", s.handleGetPlant)
			r.Delete("/", s.handleDeletePlant)
			r.Post("/sensordata", s.handleAddReading)
		})

		r.Get("/sensordata", s.handleListReadings)

		r.Route("/users/me", func(r chi.Router) {
			r.Get("/", s.handleGetAccount)
			r.Delete("/", s.handleDeleteAccount)
			r.Get("/activity", s.handleListActivity)
		})
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Smart Pot API!"})
}

// Health states reported by /health.
const (
	healthOK          = "ok"
	healthDegraded    = "degraded"
	healthUnavailable = "unavailable"
)

// handleHealth reports 503 when the database does not answer. An enabled
// MQTT or InfluxDB link that fails its check marks the service degraded
// but still answers 200, since the API keeps serving from SQLite.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := healthOK
	components := map[string]string{"database": healthOK}

	if err := s.db.HealthCheck(ctx); err != nil {
		s.log(r).Error("health check failed", "component", "database", "error", err)
		status = healthUnavailable
		components["database"] = healthUnavailable
	}
	for _, c := range s.components {
		if err := c.checker.HealthCheck(ctx); err != nil {
			s.log(r).Warn("health check failed", "component", c.name, "error", err)
			components[c.name] = healthUnavailable
			if status == healthOK {
				status = healthDegraded
			}
			continue
		}
		components[c.name] = healthOK
	}

	code := http.StatusOK
	if status == healthUnavailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
