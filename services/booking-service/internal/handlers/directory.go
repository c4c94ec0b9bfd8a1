package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage"
)

// DirectoryWriter registers and removes the providers, patients and locations appointments refer to.
// Removal follows the per-entity delete policy of the implementation.
type DirectoryWriter interface {
	CreateProvider(ctx context.Context, name string) (string, error)
	CreatePatient(ctx context.Context, name string) (string, error)
	CreateLocation(ctx context.Context, name string) (string, error)
	DeleteProvider(ctx context.Context, id string) error
	DeletePatient(ctx context.Context, id string) error
	DeleteLocation(ctx context.Context, id string) error
}

type DirectoryHandler struct {
	dir    DirectoryWriter
	logger *slog.Logger
}

func NewDirectoryHandler(dir DirectoryWriter, logger *slog.Logger) *DirectoryHandler {
	return &DirectoryHandler{dir: dir, logger: logger}
}

func (h *DirectoryHandler) Routes(r chi.Router) {
	r.Post("/api/v1/providers", h.create("provider", h.dir.CreateProvider))
	r.Delete("/api/v1/providers/{id}", h.remove("provider", h.dir.DeleteProvider))
	r.Post("/api/v1/patients", h.create("patient", h.dir.CreatePatient))
	r.Delete("/api/v1/patients/{id}", h.remove("patient", h.dir.DeletePatient))
	r.Post("/api/v1/locations", h.create("location", h.dir.CreateLocation))
	r.Delete("/api/v1/locations/{id}", h.remove("location", h.dir.DeleteLocation))
}

type entityRequest struct {
	Name string `json:"name"`
}

type entityResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (h *DirectoryHandler) create(entity string, fn func(context.Context, string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req entityRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, h.logger, apperr.Validation("name is required"))
			return
		}
		id, err := fn(r.Context(), name)
		if err != nil {
			writeError(w, h.logger, apperr.Storage(err, "create "+entity))
			return
		}
		h.logger.Info(entity+" created", "id", id)
		writeJSON(w, http.StatusCreated, entityResponse{ID: id, Name: name, Status: "active"})
	}
}

func (h *DirectoryHandler) remove(entity string, fn func(context.Context, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(r.Context(), id); err != nil {
			if isUnknownEntity(err) {
				writeError(w, h.logger, apperr.NotFound("%s %s not found", entity, id))
				return
			}
			writeError(w, h.logger, apperr.Storage(err, "delete "+entity))
			return
		}
		h.logger.Info(entity+" deleted", "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func isUnknownEntity(err error) bool {
	return errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, scheduling.ErrUnknownProvider) ||
		errors.Is(err, scheduling.ErrUnknownPatient) ||
		errors.Is(err, scheduling.ErrUnknownLocation)
}
