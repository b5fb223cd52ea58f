package catalog_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"ms-booking/internal/catalog"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *catalog.Service
	Logger  *logger.Logger
}

func NewHandler(service *catalog.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes registers the staff-facing screening routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/screenings", h.CreateScreening)
	r.Get("/api/screenings", h.ListScreenings)
	r.Get("/api/screenings/{screeningId}", h.GetScreening)
	r.Get("/api/movies/{movieId}/screenings", h.ListScreeningsByMovie)
}

func (h *Handler) CreateScreening(w http.ResponseWriter, r *http.Request) {
	var req models.CreateScreeningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	screening, err := h.Service.CreateScreening(r.Context(), req)
	if errors.Is(err, catalog.ErrInvalidScreening) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid screening", err)
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Create screening failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create screening", nil)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Screening created", screening))
}

func (h *Handler) GetScreening(w http.ResponseWriter, r *http.Request) {
	screening, err := h.Service.GetScreening(r.Context(), chi.URLParam(r, "screeningId"))
	if errors.Is(err, catalog.ErrScreeningNotFound) {
		utils.WriteError(w, http.StatusNotFound, "Screening not found", nil)
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Get screening failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load screening", nil)
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Screening", screening))
}

func (h *Handler) ListScreenings(w http.ResponseWriter, r *http.Request) {
	var (
		screenings []models.Screening
		err        error
	)
	if movieID := r.URL.Query().Get("movie_id"); movieID != "" {
		screenings, err = h.Service.ListScreeningsByMovie(r.Context(), movieID)
	} else {
		screenings, err = h.Service.ListScreenings(r.Context())
	}
	h.writeList(w, screenings, err)
}

func (h *Handler) ListScreeningsByMovie(w http.ResponseWriter, r *http.Request) {
	screenings, err := h.Service.ListScreeningsByMovie(r.Context(), chi.URLParam(r, "movieId"))
	h.writeList(w, screenings, err)
}

func (h *Handler) writeList(w http.ResponseWriter, screenings []models.Screening, err error) {
	if errors.Is(err, catalog.ErrInvalidScreening) {
		utils.WriteError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("List screenings failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to list screenings", nil)
		return
	}
	if screenings == nil {
		screenings = []models.Screening{}
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d screenings", len(screenings)), screenings))
}
