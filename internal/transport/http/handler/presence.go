package handler

import (
	"net/http"

	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/realtime"
)

// PresenceHandler exposes live-session stats to admins.
type PresenceHandler struct {
	hub *realtime.Hub
}

func NewPresenceHandler(hub *realtime.Hub) *PresenceHandler { return &PresenceHandler{hub: hub} }

func (h *PresenceHandler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PresenceStatsEnvelope{
		Total:  h.hub.Count(),
		Users:  h.hub.Count(domain.RoleUser),
		Admins: h.hub.Count(domain.RoleAdmin, domain.RoleSuperAdmin),
	})
}
