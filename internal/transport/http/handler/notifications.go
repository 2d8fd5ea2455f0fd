package handler

import (
	"net/http"
	"strconv"

	"github.com/ecotrack-api/internal/application/notification"
	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
)

// NotificationHandler handles notification endpoints.
type NotificationHandler struct {
	svc notification.Service
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// Create composes a notification for one recipient. Admin only.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.svc.Create(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// CreateBulk composes one notification per listed recipient. Admin only.
func (h *NotificationHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req domain.BulkCreateNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.svc.CreateBulk(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BulkEnvelope{Created: len(created), Notifications: created})
}

// Broadcast targets every active user, optionally narrowed by role. Admin only.
func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req domain.BroadcastNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := h.svc.Broadcast(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, BulkEnvelope{Created: len(created), Notifications: created})
}

// List pages through the caller's own notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	unreadOnly := q.Get("unread_only") == "true"

	result, err := h.svc.List(r.Context(), claims.UserID, page, size, unreadOnly)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MarkRead flips a batch of the caller's notifications to read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.MarkReadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	count, err := h.svc.MarkRead(r.Context(), claims.UserID, req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkReadEnvelope{MarkedRead: count})
}
