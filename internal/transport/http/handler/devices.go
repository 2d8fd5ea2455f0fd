package handler

import (
	"net/http"

	"github.com/ecotrack-api/internal/application/device"
	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// DeviceHandler handles device endpoints.
type DeviceHandler struct {
	svc device.Service
}

func NewDeviceHandler(svc device.Service) *DeviceHandler { return &DeviceHandler{svc: svc} }

// Register upserts a push target for the caller, keyed by token.
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RegisterDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.svc.Register(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	devices, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.UpdateDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Delete deactivates the device; the row stays for audit.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id"), claims.UserID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "device deactivated"})
}
