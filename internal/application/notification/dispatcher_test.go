package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/infrastructure/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockDispatchStore struct{ mock.Mock }

func (m *mockDispatchStore) MarkSent(ctx context.Context, notificationID string, now time.Time) error {
	return m.Called(ctx, notificationID, now).Error(0)
}

func (m *mockDispatchStore) MarkFailed(ctx context.Context, notificationID string, retryCount int, nextRetryAt *time.Time, now time.Time) error {
	return m.Called(ctx, notificationID, retryCount, nextRetryAt, now).Error(0)
}

type mockDevices struct{ mock.Mock }

func (m *mockDevices) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Device), args.Error(1)
}

type mockPresence struct{ mock.Mock }

func (m *mockPresence) IsOnline(userID string) bool {
	return m.Called(userID).Bool(0)
}

func (m *mockPresence) Emit(room, event string, data any) {
	m.Called(room, event, data)
}

type mockGateway struct{ mock.Mock }

func (m *mockGateway) Send(ctx context.Context, tokens []string, title, message string, data map[string]string) (*sns.PushResult, error) {
	args := m.Called(ctx, tokens, title, message, data)
	if res, _ := args.Get(0).(*sns.PushResult); res != nil {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func newTestDispatcher(store *mockDispatchStore, devices *mockDevices, presence *mockPresence, gw *mockGateway) *Dispatcher {
	return NewDispatcher(DispatcherDeps{
		Store:         store,
		Devices:       devices,
		Presence:      presence,
		Gateway:       gw,
		BackoffBase:   5 * time.Minute,
		BackoffFactor: 2,
		PushTimeout:   time.Second,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func pendingNotification() *domain.Notification {
	return &domain.Notification{
		NotificationID: "n1",
		UserID:         "u1",
		Title:          "Collection tomorrow",
		Message:        "Your bin is collected at 8am",
		Type:           domain.TypeCollectionReminder,
		Priority:       domain.PriorityMedium,
		Status:         domain.StatusPending,
		MaxRetries:     3,
	}
}

// --- tests ---

func TestDispatcher_PushDeliveredMarksSent(t *testing.T) {
	store := &mockDispatchStore{}
	devices := &mockDevices{}
	presence := &mockPresence{}
	gw := &mockGateway{}
	d := newTestDispatcher(store, devices, presence, gw)

	presence.On("IsOnline", "u1").Return(false)
	devices.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.Device{
		{DeviceID: "d1", Token: "tok-1"},
		{DeviceID: "d2", Token: "tok-2"},
	}, nil)
	gw.On("Send", mock.Anything, []string{"tok-1", "tok-2"}, "Collection tomorrow", "Your bin is collected at 8am", mock.Anything).
		Return(&sns.PushResult{SuccessCount: 2}, nil)
	store.On("MarkSent", mock.Anything, "n1", mock.Anything).Return(nil)

	n := pendingNotification()
	require.NoError(t, d.Send(context.Background(), n))

	assert.Equal(t, domain.StatusSent, n.Status)
	require.NotNil(t, n.SentAt)
	assert.Zero(t, n.RetryCount)
	store.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestDispatcher_LiveSessionGetsEvent(t *testing.T) {
	store := &mockDispatchStore{}
	devices := &mockDevices{}
	presence := &mockPresence{}
	gw := &mockGateway{}
	d := newTestDispatcher(store, devices, presence, gw)

	presence.On("IsOnline", "u1").Return(true)
	presence.On("Emit", "user:u1", "notification", mock.Anything).Return()
	devices.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.Device{}, nil)
	store.On("MarkSent", mock.Anything, "n1", mock.Anything).Return(nil)

	n := pendingNotification()
	require.NoError(t, d.Send(context.Background(), n))

	assert.Equal(t, domain.StatusSent, n.Status)
	presence.AssertExpectations(t)
	gw.AssertNotCalled(t, "Send")
}

func TestDispatcher_NoChannelsStillSent(t *testing.T) {
	store := &mockDispatchStore{}
	devices := &mockDevices{}
	presence := &mockPresence{}
	gw := &mockGateway{}
	d := newTestDispatcher(store, devices, presence, gw)

	presence.On("IsOnline", "u1").Return(false)
	devices.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.Device{}, nil)
	store.On("MarkSent", mock.Anything, "n1", mock.Anything).Return(nil)

	n := pendingNotification()
	require.NoError(t, d.Send(context.Background(), n))

	assert.Equal(t, domain.StatusSent, n.Status)
	gw.AssertNotCalled(t, "Send")
}

func TestDispatcher_GatewayFailureSchedulesRetry(t *testing.T) {
	store := &mockDispatchStore{}
	devices := &mockDevices{}
	presence := &mockPresence{}
	gw := &mockGateway{}
	d := newTestDispatcher(store, devices, presence, gw)

	presence.On("IsOnline", "u1").Return(false)
	devices.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.Device{{DeviceID: "d1", Token: "tok-1"}}, nil)
	gw.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("sns unavailable"))
	store.On("MarkFailed", mock.Anything, "n1", 1,
		mock.MatchedBy(func(next *time.Time) bool { return next != nil }), mock.Anything).Return(nil)

	n := pendingNotification()
	require.NoError(t, d.Send(context.Background(), n), "channel errors are consumed, not returned")

	assert.Equal(t, domain.StatusFailed, n.Status)
	assert.Equal(t, 1, n.RetryCount)
	require.NotNil(t, n.NextRetryAt)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), *n.NextRetryAt, 10*time.Second)
	store.AssertExpectations(t)
}

func TestDispatcher_RetryExhaustionIsTerminal(t *testing.T) {
	store := &mockDispatchStore{}
	devices := &mockDevices{}
	presence := &mockPresence{}
	gw := &mockGateway{}
	d := newTestDispatcher(store, devices, presence, gw)

	presence.On("IsOnline", "u1").Return(false)
	devices.On("ListActiveByUser", mock.Anything, "u1").Return([]domain.Device{{DeviceID: "d1", Token: "tok-1"}}, nil)
	gw.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("sns unavailable"))
	store.On("MarkFailed", mock.Anything, "n1", 3,
		mock.MatchedBy(func(next *time.Time) bool { return next == nil }), mock.Anything).Return(nil)

	n := pendingNotification()
	n.RetryCount = 2
	n.Status = domain.StatusFailed
	require.NoError(t, d.Send(context.Background(), n))

	assert.Equal(t, 3, n.RetryCount)
	assert.False(t, n.CanRetry())
	assert.Nil(t, n.NextRetryAt, "exhausted notifications carry no next attempt")
	store.AssertExpectations(t)
}

func TestDispatcher_FutureScheduleIsDeferred(t *testing.T) {
	store := &mockDispatchStore{}
	devices := &mockDevices{}
	presence := &mockPresence{}
	gw := &mockGateway{}
	d := newTestDispatcher(store, devices, presence, gw)

	n := pendingNotification()
	later := time.Now().Add(time.Hour)
	n.ScheduledAt = &later

	require.NoError(t, d.Send(context.Background(), n))

	assert.Equal(t, domain.StatusPending, n.Status)
	devices.AssertNotCalled(t, "ListActiveByUser")
	store.AssertNotCalled(t, "MarkSent")
}

func TestDispatcher_BackoffCurve(t *testing.T) {
	d := newTestDispatcher(&mockDispatchStore{}, &mockDevices{}, &mockPresence{}, &mockGateway{})

	assert.Equal(t, 5*time.Minute, d.backoff(1))
	assert.Equal(t, 10*time.Minute, d.backoff(2))
	assert.Equal(t, 20*time.Minute, d.backoff(3))

	prev := time.Duration(0)
	for retry := 1; retry <= 12; retry++ {
		cur := d.backoff(retry)
		assert.GreaterOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, maxBackoff)
		prev = cur
	}
	assert.Equal(t, maxBackoff, d.backoff(12))
}
