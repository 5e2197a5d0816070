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

type createPotRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (s *Server) handleCreatePot(w http.ResponseWriter, r *http.Request) {
	var req createPotRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	userID := userIDFromContext(ctx)

	pot := &garden.Pot{UserID: userID, Name: req.Name}
	if err := garden.ValidatePot(pot); err != nil {
		writeValidationError(w, err.Error())
		return
	}

	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		return garden.NewSQLiteRepository(tx).CreatePot(ctx, pot)
	})
	if err != nil {
		s.writeGardenError(w, r, err, "failed to create pot")
		return
	}

	s.record(audit.ActionCreate, "pot", pot.ID, userID, map[string]any{"name": pot.Name})
	writeJSON(w, http.StatusCreated, map[string]string{"id": pot.ID})
}

func (s *Server) handleListPots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var pots []garden.Pot
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		pots, err = garden.NewSQLiteRepository(tx).ListPots(ctx, userIDFromContext(ctx))
		return err
	})
	if err != nil {
		s.writeGardenError(w, r, err, "failed to list pots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pots":  pots,
		"count": len(pots),
	})
}

func (s *Server) handleGetPot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "pot")

	var pot *garden.Pot
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		pot, err = garden.NewSQLiteRepository(tx).GetPotByName(ctx, userIDFromContext(ctx), name)
		return err
	})
	if errors.Is(err, garden.ErrPotNotFound) {
		writeNotFound(w, potNotFound(name))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to get pot")
		return
	}
	writeJSON(w, http.StatusOK, pot)
}

func (s *Server) handleDeletePot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	name := chi.URLParam(r, "pot")

	var potID string
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		potID, err = garden.NewSQLiteRepository(tx).DeletePot(ctx, userID, name)
		return err
	})
	if errors.Is(err, garden.ErrPotNotFound) {
		writeNotFound(w, potNotFound(name))
		return
	}
	if err != nil {
		s.writeGardenError(w, r, err, "failed to delete pot")
		return
	}

	s.record(audit.ActionDelete, "pot", potID, userID, map[string]any{"name": name})
	w.WriteHeader(http.StatusNoContent)
}

func potNotFound(name string) string {
	return fmt.Sprintf("Pot with name '%s' not found.", name)
}

// writeGardenError maps garden sentinels to responses. Anything unknown is
// logged and reported as a 500 with fallback as the message.
func (s *Server) writeGardenError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, garden.ErrValidation):
		writeValidationError(w, err.Error())
	case errors.Is(err, garden.ErrPotNameExists):
		writeConflict(w, "A pot with this name already exists")
	case errors.Is(err, garden.ErrPotNotFound):
		writeNotFound(w, "Pot not found.")
	case errors.Is(err, garden.ErrPlantNotFound):
		writeNotFound(w, "Plant not found.")
	case errors.Is(err, garden.ErrOwnerNotFound):
		writeNotFound(w, "User not found.")
	default:
		s.log(r).Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
