package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/garden"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
)

type createPlantRequest struct {
	Species  string  `json:"species" validate:"required,max=100"`
	Nickname *string `json:"nickname" validate:"omitempty,max=100"`
}

// handleCreatePlant adds a plant to the pot whose id is in the path.
func (s *Server) handleCreatePlant(w http.ResponseWriter, r *http.Request) {
	var req createPlantRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	potID := chi.URLParam(r, "pot")

	plant := &garden.Plant{PotID: potID, Species: req.Species, Nickname: req.Nickname}
	if err := garden.ValidatePlant(plant); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		return garden.NewSQLiteRepository(tx).CreatePlant(ctx, userID, plant)
	})
	if errors.Is(err, garden.ErrPotNotFound) {
		writeNotFound(w, fmt.Sprintf("Pot with ID '%s' not found.", potID))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to create plant")
		return
	}

	s.record(audit.ActionCreate, "plant", plant.ID, userID, map[string]any{
		"pot_id":  potID,
		"species": plant.Species,
	})
	writeJSON(w, http.StatusCreated, map[string]string{"id": plant.ID})
}

// handleListPlants lists the plants of the pot named in the path.
func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "pot")

	var plants []garden.Plant
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		plants, err = garden.NewSQLiteRepository(tx).ListPlantsByPotName(ctx, userIDFromContext(ctx), name)
		return err
	})
	if errors.Is(err, garden.ErrPotNotFound) {
		writeNotFound(w, potNotFound(name))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to list plants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plants": plants,
		"count":  len(plants),
	})
}

func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "plant_id")

	var plant *garden.Plant
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		plant, err = garden.NewSQLiteRepository(tx).GetPlant(ctx, userIDFromContext(ctx), id)
		return err
	})
	if errors.Is(err, garden.ErrPlantNotFound) {
		writeNotFound(w, plantNotFound(id))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to get plant")
		return
	}
	writeJSON(w, http.StatusOK, plant)
}

func (s *Server) handleDeletePlant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	id := chi.URLParam(r, "plant_id")

	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		return garden.NewSQLiteRepository(tx).DeletePlant(ctx, userID, id)
	})
	if errors.Is(err, garden.ErrPlantNotFound) {
		writeNotFound(w, plantNotFound(id))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to delete plant")
		return
	}

	s.record(audit.ActionDelete, "plant", id, userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func plantNotFound(id string) string {
	return fmt.Sprintf("Plant with ID '%s' not found.", id)
}
