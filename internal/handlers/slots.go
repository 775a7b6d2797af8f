package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trailbook/slotsync/internal/repositories"
	"github.com/trailbook/slotsync/internal/services"
)

// SlotHandler exposes the vendor-side slot CRUD surface. Mutations flow
// through SlotService so every write also feeds the audit log and the change
// event stream.
type SlotHandler struct {
	service *services.SlotService
}

func NewSlotHandler(service *services.SlotService) *SlotHandler {
	return &SlotHandler{service: service}
}

func (h *SlotHandler) RegisterRoutes(r chi.Router) {
	r.Get("/experiences/{experienceID}/slots", h.ListSlots)
	r.Post("/experiences/{experienceID}/slots", h.CreateSlot)
	r.Get("/experiences/{experienceID}/audit", h.AuditTrail)
	r.Patch("/slots/{slotID}", h.UpdateSlot)
	r.Delete("/slots/{slotID}", h.DeleteSlot)
	r.Post("/slots/{slotID}/block", h.BlockSlot)
	r.Post("/slots/{slotID}/unblock", h.UnblockSlot)
}

func (h *SlotHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	experienceID, err := uuid.Parse(chi.URLParam(r, "experienceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid experience id")
		return
	}

	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	if endDate == "" {
		endDate = startDate
	}

	slots, err := h.service.GetAvailableSlots(r.Context(), experienceID, startDate, endDate)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, slots)
}

func (h *SlotHandler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	experienceID, err := uuid.Parse(chi.URLParam(r, "experienceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid experience id")
		return
	}

	var input services.SlotCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input.ExperienceID = experienceID

	slot, err := h.service.CreateSlot(r.Context(), input)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, slot)
}

func (h *SlotHandler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	var input services.SlotUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slot, err := h.service.UpdateSlot(r.Context(), slotID, input)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, slot)
}

func (h *SlotHandler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	slotID, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	if err := h.service.DeleteSlot(r.Context(), slotID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (h *SlotHandler) BlockSlot(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

func (h *SlotHandler) UnblockSlot(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *SlotHandler) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	slotID, err := uuid.Parse(chi.URLParam(r, "slotID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	var slotFn = h.service.UnblockSlot
	if blocked {
		slotFn = h.service.BlockSlot
	}

	slot, err := slotFn(r.Context(), slotID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, slot)
}

func (h *SlotHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	experienceID, err := uuid.Parse(chi.URLParam(r, "experienceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid experience id")
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since sequence number")
			return
		}
	}

	events, err := h.service.GetAuditTrail(r.Context(), experienceID, since)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondError(w, http.StatusNotFound, "slot not found")
	case errors.Is(err, repositories.ErrDuplicateSlot):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, repositories.ErrConcurrentUpdate):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidDate),
		errors.Is(err, services.ErrInvalidTime),
		errors.Is(err, services.ErrInvalidCapacity),
		errors.Is(err, services.ErrInvalidRange):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
