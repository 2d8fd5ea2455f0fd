package device

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ecotrack-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) Create(ctx context.Context, d *domain.Device) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockRepo) Get(ctx context.Context, deviceID string) (*domain.Device, error) {
	args := m.Called(ctx, deviceID)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) GetByToken(ctx context.Context, token string) (*domain.Device, error) {
	args := m.Called(ctx, token)
	if d, _ := args.Get(0).(*domain.Device); d != nil {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Device), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, deviceID string, updates map[string]interface{}) error {
	return m.Called(ctx, deviceID, updates).Error(0)
}

func (m *mockRepo) Deactivate(ctx context.Context, deviceID string) error {
	return m.Called(ctx, deviceID).Error(0)
}

func notFound() error {
	return fmt.Errorf("device token: %w", domain.ErrNotFound)
}

func TestRegister_NewToken(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	repo.On("GetByToken", mock.Anything, "tok-new").Return(nil, notFound())
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	d, err := svc.Register(context.Background(), "u1", domain.RegisterDeviceRequest{
		Token: "tok-new",
		Type:  "android",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, d.DeviceID)
	assert.Equal(t, "u1", d.UserID)
	assert.Equal(t, "tok-new", d.Token)
	assert.True(t, d.Active)
	require.NotNil(t, d.LastUsedAt)
	repo.AssertExpectations(t)
}

func TestRegister_ExistingTokenReassigned(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	existing := &domain.Device{DeviceID: "d1", UserID: "old-owner", Token: "tok-1", Active: false}
	repo.On("GetByToken", mock.Anything, "tok-1").Return(existing, nil)
	repo.On("Update", mock.Anything, "d1", mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["user_id"] == "new-owner" && u["active"] == true
	})).Return(nil)
	repo.On("Get", mock.Anything, "d1").Return(&domain.Device{
		DeviceID: "d1", UserID: "new-owner", Token: "tok-1", Active: true,
	}, nil)

	d, err := svc.Register(context.Background(), "new-owner", domain.RegisterDeviceRequest{
		Token: "tok-1",
		Type:  "ios",
	})
	require.NoError(t, err)

	assert.Equal(t, "d1", d.DeviceID, "no duplicate row for a known token")
	assert.Equal(t, "new-owner", d.UserID, "last writer wins")
	assert.True(t, d.Active)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Create")
}

func TestRegister_ConcurrentSameTokenReassignsWinner(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	// Token looks unknown, but a parallel registration commits first and the
	// conditional create fails. The loser must adopt the winner's row rather
	// than duplicating the token or surfacing the conflict.
	repo.On("GetByToken", mock.Anything, "tok-raced").Return(nil, notFound()).Once()
	repo.On("Create", mock.Anything, mock.Anything).
		Return(fmt.Errorf("device token already registered: %w", domain.ErrConflict))
	winner := &domain.Device{DeviceID: "d-winner", UserID: "other", Token: "tok-raced", Active: true}
	repo.On("GetByToken", mock.Anything, "tok-raced").Return(winner, nil).Once()
	repo.On("Update", mock.Anything, "d-winner", mock.MatchedBy(func(u map[string]interface{}) bool {
		return u["user_id"] == "u1" && u["active"] == true
	})).Return(nil)
	repo.On("Get", mock.Anything, "d-winner").Return(&domain.Device{
		DeviceID: "d-winner", UserID: "u1", Token: "tok-raced", Active: true,
	}, nil)

	d, err := svc.Register(context.Background(), "u1", domain.RegisterDeviceRequest{
		Token: "tok-raced",
		Type:  "android",
	})
	require.NoError(t, err)

	assert.Equal(t, "d-winner", d.DeviceID, "single row per token even under a race")
	assert.Equal(t, "u1", d.UserID)
	repo.AssertExpectations(t)
}

func TestRegister_RejectsBadType(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	_, err := svc.Register(context.Background(), "u1", domain.RegisterDeviceRequest{
		Token: "tok-1",
		Type:  "fax",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	repo.AssertNotCalled(t, "GetByToken")
}

func TestUpdate_ForeignDeviceForbidden(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	repo.On("Get", mock.Anything, "d1").Return(&domain.Device{
		DeviceID: "d1", UserID: "someone-else",
	}, nil)

	name := "kitchen tablet"
	_, err := svc.Update(context.Background(), "d1", "u1", domain.UpdateDeviceRequest{Name: &name})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "Update")
}

func TestUpdate_NoFieldsIsNoop(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	now := time.Now().UTC()
	repo.On("Get", mock.Anything, "d1").Return(&domain.Device{
		DeviceID: "d1", UserID: "u1", UpdatedAt: now,
	}, nil)

	d, err := svc.Update(context.Background(), "d1", "u1", domain.UpdateDeviceRequest{})
	require.NoError(t, err)
	assert.Equal(t, now, d.UpdatedAt)
	repo.AssertNotCalled(t, "Update")
}

func TestDeactivate_OwnedDevice(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	repo.On("Get", mock.Anything, "d1").Return(&domain.Device{DeviceID: "d1", UserID: "u1"}, nil)
	repo.On("Deactivate", mock.Anything, "d1").Return(nil)

	require.NoError(t, svc.Deactivate(context.Background(), "d1", "u1"))
	repo.AssertExpectations(t)
}
