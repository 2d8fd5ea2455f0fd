package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ecotrack-api/internal/domain"
	jwtinfra "github.com/ecotrack-api/internal/infrastructure/jwt"
	"github.com/ecotrack-api/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockNotifSvc struct{ mock.Mock }

func (m *mockNotifSvc) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	args := m.Called(ctx, req)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotifSvc) CreateBulk(ctx context.Context, req domain.BulkCreateNotificationRequest) ([]domain.Notification, error) {
	args := m.Called(ctx, req)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *mockNotifSvc) Broadcast(ctx context.Context, req domain.BroadcastNotificationRequest) ([]domain.Notification, error) {
	args := m.Called(ctx, req)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *mockNotifSvc) List(ctx context.Context, userID string, page, size int, unreadOnly bool) (*domain.NotificationPage, error) {
	args := m.Called(ctx, userID, page, size, unreadOnly)
	if p, _ := args.Get(0).(*domain.NotificationPage); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotifSvc) Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID, userID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotifSvc) MarkRead(ctx context.Context, userID string, req domain.MarkReadRequest) (int, error) {
	args := m.Called(ctx, userID, req)
	return args.Int(0), args.Error(1)
}

// --- helpers ---

// asUser injects claims the way the auth middleware would.
func asUser(r *http.Request, userID, role string) *http.Request {
	claims := &jwtinfra.Claims{UserID: userID, Role: role}
	ctx := context.WithValue(r.Context(), middleware.ClaimsKey, claims)
	return r.WithContext(ctx)
}

// --- tests ---

func TestNotifications_ListUsesCallerIdentity(t *testing.T) {
	svc := &mockNotifSvc{}
	h := NewNotificationHandler(svc)

	svc.On("List", mock.Anything, "u1", 2, 5, true).Return(&domain.NotificationPage{
		Notifications: []domain.Notification{{NotificationID: "n1", UserID: "u1"}},
		Total:         11,
		Page:          2,
		Size:          5,
		HasNext:       true,
		HasPrevious:   true,
		UnreadCount:   11,
	}, nil)

	req := asUser(httptest.NewRequest(http.MethodGet, "/v1/notifications?page=2&size=5&unread_only=true", nil), "u1", "user")
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var page domain.NotificationPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 11, page.Total)
	assert.True(t, page.HasNext)
	svc.AssertExpectations(t)
}

func TestNotifications_ListWithoutClaims(t *testing.T) {
	h := NewNotificationHandler(&mockNotifSvc{})

	req := httptest.NewRequest(http.MethodGet, "/v1/notifications", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNotifications_CreateBadBody(t *testing.T) {
	h := NewNotificationHandler(&mockNotifSvc{})

	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotifications_CreateUnknownFieldRejected(t *testing.T) {
	svc := &mockNotifSvc{}
	h := NewNotificationHandler(svc)

	body := []byte(`{"user_id":"u1","title":"t","message":"m","type":"system","recipient":"u2"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code, "unknown fields are rejected, not dropped")
	svc.AssertNotCalled(t, "Create")
}

func TestNotifications_MarkReadUnknownFieldRejected(t *testing.T) {
	svc := &mockNotifSvc{}
	h := NewNotificationHandler(svc)

	body := []byte(`{"notification_ids":["n1"],"force":true}`)
	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/mark-read", bytes.NewReader(body)), "u1", "user")
	rr := httptest.NewRecorder()
	h.MarkRead(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "MarkRead")
}

func TestNotifications_CreateValidationErrorMapsTo400(t *testing.T) {
	svc := &mockNotifSvc{}
	h := NewNotificationHandler(svc)

	svc.On("Create", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("title required: %w", domain.ErrBadRequest))

	body, _ := json.Marshal(domain.CreateNotificationRequest{UserID: "u1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotifications_GetForeignMapsTo403(t *testing.T) {
	svc := &mockNotifSvc{}
	h := NewNotificationHandler(svc)

	svc.On("Get", mock.Anything, "", "u1").
		Return(nil, fmt.Errorf("notification: %w", domain.ErrForbidden))

	req := asUser(httptest.NewRequest(http.MethodGet, "/v1/notifications/n1", nil), "u1", "user")
	rr := httptest.NewRecorder()
	h.Get(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestNotifications_MarkReadEnvelope(t *testing.T) {
	svc := &mockNotifSvc{}
	h := NewNotificationHandler(svc)

	svc.On("MarkRead", mock.Anything, "u1", domain.MarkReadRequest{NotificationIDs: []string{"n1", "n2"}}).
		Return(1, nil)

	body, _ := json.Marshal(domain.MarkReadRequest{NotificationIDs: []string{"n1", "n2"}})
	req := asUser(httptest.NewRequest(http.MethodPost, "/v1/notifications/mark-read", bytes.NewReader(body)), "u1", "user")
	rr := httptest.NewRecorder()
	h.MarkRead(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var env MarkReadEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, 1, env.MarkedRead)
	svc.AssertExpectations(t)
}
