package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type updateTrackingRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// updateTracking appends a tracking event to an order and remaps the event
// status to the order lifecycle status. Admin only.
func (h *Handler) updateTracking(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	var req updateTrackingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "tracking status is required")
		return
	}

	t, err := h.orders.UpdateTracking(r.Context(), orderID, req.Status, req.Message)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingToResponse(t))
}
