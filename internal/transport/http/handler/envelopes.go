package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ecotrack-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// MarkReadEnvelope reports how many notifications a mark-read call flipped.
type MarkReadEnvelope struct {
	MarkedRead int `json:"marked_read"`
}

// BulkEnvelope wraps bulk and broadcast creation responses.
type BulkEnvelope struct {
	Created       int                   `json:"created"`
	Notifications []domain.Notification `json:"notifications"`
}

// PresenceStatsEnvelope is the live-session headcount for admins.
type PresenceStatsEnvelope struct {
	Total  int `json:"total"`
	Users  int `json:"users"`
	Admins int `json:"admins"`
}

// decodeJSON decodes a request body strictly: unknown fields are rejected
// at the boundary rather than silently dropped.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors onto HTTP statuses. Anything
// unrecognized is an internal fault.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
