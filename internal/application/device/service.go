package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/pkg/id"
	"github.com/ecotrack-api/internal/pkg/validate"
)

type deviceStore interface {
	Create(ctx context.Context, d *domain.Device) error
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
	GetByToken(ctx context.Context, token string) (*domain.Device, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID string, updates map[string]interface{}) error
	Deactivate(ctx context.Context, deviceID string) error
}

// Service manages a user's push targets. Every mutation is scoped to the
// calling user; touching someone else's device is forbidden.
type Service interface {
	Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error)
	List(ctx context.Context, userID string) ([]domain.Device, error)
	Update(ctx context.Context, deviceID, userID string, req domain.UpdateDeviceRequest) (*domain.Device, error)
	Deactivate(ctx context.Context, deviceID, userID string) error
}

type service struct {
	repo deviceStore
}

func NewService(repo deviceStore) Service {
	return &service{repo: repo}
}

// Register upserts a device keyed by its push token. A token already on
// record is reassigned to the caller and reactivated (last writer wins),
// which covers a phone changing hands between accounts.
func (s *service) Register(ctx context.Context, userID string, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	now := time.Now().UTC()

	existing, err := s.repo.GetByToken(ctx, req.Token)
	switch {
	case err == nil:
		return s.reassign(ctx, existing.DeviceID, userID, req, now)
	case errors.Is(err, domain.ErrNotFound):
		d := &domain.Device{
			DeviceID:   id.New(),
			UserID:     userID,
			Token:      req.Token,
			Type:       req.Type,
			Name:       req.Name,
			Active:     true,
			LastUsedAt: &now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		cerr := s.repo.Create(ctx, d)
		if errors.Is(cerr, domain.ErrConflict) {
			// Lost a race against another registration of the same token.
			// Take over the row that won instead of surfacing the conflict.
			winner, gerr := s.repo.GetByToken(ctx, req.Token)
			if gerr != nil {
				return nil, gerr
			}
			return s.reassign(ctx, winner.DeviceID, userID, req, now)
		}
		if cerr != nil {
			return nil, cerr
		}
		return d, nil
	default:
		return nil, err
	}
}

// reassign moves an existing token row to the caller and reactivates it.
func (s *service) reassign(ctx context.Context, deviceID, userID string, req domain.RegisterDeviceRequest, now time.Time) (*domain.Device, error) {
	updates := map[string]interface{}{
		"user_id":      userID,
		"device_type":  req.Type,
		"active":       true,
		"last_used_at": now,
	}
	if req.Name != nil {
		updates["device_name"] = *req.Name
	}
	if err := s.repo.Update(ctx, deviceID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, deviceID)
}

func (s *service) List(ctx context.Context, userID string) ([]domain.Device, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

func (s *service) Update(ctx context.Context, deviceID, userID string, req domain.UpdateDeviceRequest) (*domain.Device, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	d, err := s.owned(ctx, deviceID, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["device_name"] = *req.Name
	}
	if req.Type != nil {
		updates["device_type"] = *req.Type
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return d, nil
	}
	if err := s.repo.Update(ctx, deviceID, updates); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, deviceID)
}

func (s *service) Deactivate(ctx context.Context, deviceID, userID string) error {
	if _, err := s.owned(ctx, deviceID, userID); err != nil {
		return err
	}
	return s.repo.Deactivate(ctx, deviceID)
}

func (s *service) owned(ctx context.Context, deviceID, userID string) (*domain.Device, error) {
	d, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, fmt.Errorf("device %s: %w", deviceID, domain.ErrForbidden)
	}
	return d, nil
}
