package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/pkg/id"
	"github.com/ecotrack-api/internal/pkg/validate"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string, now time.Time) (bool, error)
}

type userDirectory interface {
	ListActive(ctx context.Context, roles []string) ([]domain.User, error)
}

type sender interface {
	Send(ctx context.Context, n *domain.Notification) error
}

// Service composes, persists and queries notifications. Creation paths
// hand freshly persisted records to the dispatcher unless a future
// schedule defers them to the sweep.
type Service interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error)
	CreateBulk(ctx context.Context, req domain.BulkCreateNotificationRequest) ([]domain.Notification, error)
	Broadcast(ctx context.Context, req domain.BroadcastNotificationRequest) ([]domain.Notification, error)
	List(ctx context.Context, userID string, page, size int, unreadOnly bool) (*domain.NotificationPage, error)
	Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	MarkRead(ctx context.Context, userID string, req domain.MarkReadRequest) (int, error)
}

type service struct {
	repo       notificationStore
	users      userDirectory
	dispatcher sender
	maxRetries int
}

func NewService(repo notificationStore, users userDirectory, dispatcher sender, maxRetries int) Service {
	return &service{repo: repo, users: users, dispatcher: dispatcher, maxRetries: maxRetries}
}

// build materializes one pending notification record from shared content.
func (s *service) build(userID string, c domain.NotificationContent) *domain.Notification {
	now := time.Now().UTC()
	priority := c.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	return &domain.Notification{
		NotificationID: id.New(),
		UserID:         userID,
		Title:          c.Title,
		Message:        c.Message,
		Type:           c.Type,
		Priority:       priority,
		Data:           c.Data,
		ActionURL:      c.ActionURL,
		Icon:           c.Icon,
		Status:         domain.StatusPending,
		IsRead:         false,
		ScheduledAt:    c.ScheduledAt,
		RetryCount:     0,
		MaxRetries:     s.maxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest) (*domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	n := s.build(req.UserID, req.NotificationContent)
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, err
	}
	if n.ScheduledAt == nil {
		if err := s.dispatcher.Send(ctx, n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (s *service) CreateBulk(ctx context.Context, req domain.BulkCreateNotificationRequest) ([]domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}
	return s.createMany(ctx, req.UserIDs, req.NotificationContent)
}

// Broadcast targets every active user, narrowed to target_roles when given.
func (s *service) Broadcast(ctx context.Context, req domain.BroadcastNotificationRequest) ([]domain.Notification, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	users, err := s.users.ListActive(ctx, req.TargetRoles)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast audience: %w", err)
	}
	userIDs := make([]string, len(users))
	for i, u := range users {
		userIDs[i] = u.UserID
	}
	return s.createMany(ctx, userIDs, req.NotificationContent)
}

// createMany persists one independent record per recipient, then dispatches
// the non-scheduled ones. A persistence fault aborts the loop; records
// already written stay written.
func (s *service) createMany(ctx context.Context, userIDs []string, c domain.NotificationContent) ([]domain.Notification, error) {
	created := make([]domain.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		n := s.build(userID, c)
		if err := s.repo.Put(ctx, n); err != nil {
			return nil, fmt.Errorf("persist notification for %s: %w", userID, err)
		}
		created = append(created, *n)
	}

	if c.ScheduledAt == nil {
		for i := range created {
			if err := s.dispatcher.Send(ctx, &created[i]); err != nil {
				return nil, err
			}
		}
	}
	return created, nil
}

// List pages through the caller's notifications, newest first.
func (s *service) List(ctx context.Context, userID string, page, size int, unreadOnly bool) (*domain.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	all, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	unread := 0
	for i := range all {
		if !all[i].IsRead {
			unread++
		}
	}

	matched := all
	if unreadOnly {
		matched = make([]domain.Notification, 0, unread)
		for i := range all {
			if !all[i].IsRead {
				matched = append(matched, all[i])
			}
		}
	}

	total := len(matched)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return &domain.NotificationPage{
		Notifications: matched[start:end],
		Total:         total,
		Page:          page,
		Size:          size,
		HasNext:       end < total,
		HasPrevious:   page > 1,
		UnreadCount:   unread,
	}, nil
}

// Get fetches one notification, enforcing ownership.
func (s *service) Get(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", notificationID, domain.ErrForbidden)
	}
	return n, nil
}

// MarkRead marks each listed notification read for the caller and returns
// how many actually flipped. Ids that are missing, foreign or already read
// are skipped, which makes retrying the same batch harmless.
func (s *service) MarkRead(ctx context.Context, userID string, req domain.MarkReadRequest) (int, error) {
	if err := validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
	}

	now := time.Now().UTC()
	count := 0
	for _, notificationID := range req.NotificationIDs {
		ok, err := s.repo.MarkRead(ctx, notificationID, userID, now)
		if err != nil {
			return count, err
		}
		if ok {
			count++
		}
	}
	return count, nil
}
