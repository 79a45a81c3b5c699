package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"property-map-search/models"
	"property-map-search/services"
	"property-map-search/storage"
	"property-map-search/utils"
)

// Handler holds the route handlers.
type Handler struct {
	svc    SearchService
	source storage.PropertySource
	logger *utils.Logger
}

// invalidator is implemented by sources that cache, such as
// storage.CachedSource.
type invalidator interface {
	Invalidate()
}

type selectRequest struct {
	ID string `json:"id"`
}

// selectResponse is the snapshot plus whether the selection was accepted.
type selectResponse struct {
	Accepted bool `json:"accepted"`
	models.Snapshot
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// State handles GET /api/search/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	respondSnapshot(w, snap, err)
}

// Viewport handles POST /api/search/viewport.
func (h *Handler) Viewport(w http.ResponseWriter, r *http.Request) {
	var b models.ViewportBounds
	if !decode(w, r, &b) {
		return
	}
	snap, err := h.svc.OnViewportChange(r.Context(), b)
	respondSnapshot(w, snap, err)
}

// Filters handles POST /api/search/filters.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	var s models.FilterSettings
	if !decode(w, r, &s) {
		return
	}
	snap, err := h.svc.OnFilterSettingsChange(r.Context(), s)
	respondSnapshot(w, snap, err)
}

// Reset handles POST /api/search/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.OnReset(r.Context())
	respondSnapshot(w, snap, err)
}

// Reload handles POST /api/search/reload: the property snapshot is fetched
// again and replaces the current one wholesale.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		WriteJSONError(w, http.StatusNotImplemented, "no property source configured")
		return
	}

	if inv, ok := h.source.(invalidator); ok {
		inv.Invalidate()
	}

	records, err := h.source.FetchAll(r.Context())
	if err != nil {
		h.logger.Error("[api] Reloading properties failed: %v", err)
		WriteJSONError(w, http.StatusBadGateway, "failed to load properties")
		return
	}
	h.logger.Info("[api] Reloaded %d properties", len(records))

	snap, err := h.svc.SetProperties(r.Context(), records)
	respondSnapshot(w, snap, err)
}

// Select handles POST /api/search/select.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decode(w, r, &req) {
		return
	}
	snap, ok, err := h.svc.OnPropertySelect(r.Context(), req.ID)
	respondSelection(w, snap, ok, err)
}

// Deselect handles DELETE /api/search/select.
func (h *Handler) Deselect(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Deselect(r.Context())
	respondSnapshot(w, snap, err)
}

// MarkerClick handles POST /api/search/markers/{id}/click.
func (h *Handler) MarkerClick(w http.ResponseWriter, r *http.Request) {
	snap, ok, err := h.svc.OnMarkerClick(r.Context(), chi.URLParam(r, "id"))
	respondSelection(w, snap, ok, err)
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func respondSnapshot(w http.ResponseWriter, snap models.Snapshot, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, snap)
}

func respondSelection(w http.ResponseWriter, snap models.Snapshot, ok bool, err error) {
	if err != nil {
		writeServiceError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, selectResponse{Accepted: ok, Snapshot: snap})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDispatcherStopped):
		WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteJSONError(w, http.StatusGatewayTimeout, err.Error())
	default:
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// RespondWithJSON writes payload as the JSON response body.
func RespondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteJSONError writes {"error": msg} with the given status.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	RespondWithJSON(w, status, errorResponse{Error: msg})
}
