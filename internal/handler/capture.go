package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/efreitasn/hookrelay/internal/domain"
	"github.com/efreitasn/hookrelay/internal/service"
	"github.com/go-chi/chi/v5"
)

// CaptureHandler handles HTTP requests for the capture and lookup endpoints.
type CaptureHandler struct {
	captureSvc *service.CaptureService
}

// NewCaptureHandler creates a new CaptureHandler.
func NewCaptureHandler(captureSvc *service.CaptureService) *CaptureHandler {
	return &CaptureHandler{captureSvc: captureSvc}
}

// Capture handles POST, PUT, PATCH, GET and DELETE /callback/{id}.
func (h *CaptureHandler) Capture(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	req := h.captureSvc.HandleCapture(id, r.Method, r.Header, string(body))
	WriteJSON(w, http.StatusOK, req)
}

// Latest handles GET /latest/{id}.
func (h *CaptureHandler) Latest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.captureSvc.HandleLatestLookup(id)
	if err != nil {
		mapCaptureError(w, id, err)
		return
	}

	WriteJSON(w, http.StatusOK, req)
}

// mapCaptureError maps domain errors to HTTP responses for capture endpoints.
func mapCaptureError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, domain.ErrCaptureNotFound):
		WriteText(w, http.StatusNotFound, "No data available for identification: "+id)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
