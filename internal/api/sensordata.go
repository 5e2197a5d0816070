package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/garden"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

// readingRequest uses pointers so a missing value is distinguishable from 0.
type readingRequest struct {
	Moisture    *float64   `json:"moisture" validate:"required"`
	Light       *float64   `json:"light" validate:"required"`
	Temperature *float64   `json:"temperature" validate:"required"`
	Timestamp   *time.Time `json:"timestamp"`
}

func (s *Server) handleAddReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	plantID := chi.URLParam(r, "plant_id")

	reading := &garden.SensorReading{
		PlantID:     plantID,
		Moisture:    *req.Moisture,
		Light:       *req.Light,
		Temperature: *req.Temperature,
	}
	if req.Timestamp != nil {
		reading.Timestamp = *req.Timestamp
	}
	if err := garden.ValidateReading(reading); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		repo := garden.NewSQLiteRepository(tx)
		if _, err := repo.GetPlant(ctx, userID, plantID); err != nil {
			return err
		}
		return repo.AddReading(ctx, reading)
	})
	if errors.Is(err, garden.ErrPlantNotFound) {
		writeNotFound(w, plantNotFound(plantID))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to add sensor data")
		return
	}

	if s.mirror != nil {
		s.mirror.WriteSensorReading(plantID, reading.Moisture, reading.Light, reading.Temperature, reading.Timestamp)
	}
	if s.metrics != nil {
		s.metrics.ReadingsIngested.WithLabelValues(audit.SourceAPI).Inc()
	}
	s.record(audit.ActionCreate, "sensor_reading", reading.ID, userID, map[string]any{"plant_id": plantID})
	writeJSON(w, http.StatusCreated, map[string]string{"id": reading.ID})
}

// handleListReadings returns the caller's readings in ascending timestamp
// order, optionally for one plant.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plantID := r.URL.Query().Get("plant_id")

	var readings []garden.SensorReading
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		readings, err = garden.NewSQLiteRepository(tx).ListReadings(ctx, userIDFromContext(ctx), plantID)
		return err
	})
	if err != nil {
		s.writeGardenError(w, r, err, "failed to list sensor data")
		return
	}
	if plantID != "" && len(readings) == 0 {
		writeNotFound(w, "No sensor data found for the given plant ID")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensor_data": readings,
		"count":       len(readings),
	})
}
