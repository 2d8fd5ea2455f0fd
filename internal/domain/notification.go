package domain

import "time"

// NotificationType classifies what a notification is about.
type NotificationType string

const (
	TypeSystem             NotificationType = "system"
	TypeWasteUpdate        NotificationType = "waste_update"
	TypeCollectionReminder NotificationType = "collection_reminder"
	TypeAchievement        NotificationType = "achievement"
	TypeAdminMessage       NotificationType = "admin_message"
	TypeVerification       NotificationType = "verification"
	TypeSecurity           NotificationType = "security"
	TypePromotion          NotificationType = "promotion"
)

// NotificationPriority orders notifications for clients; it does not affect delivery.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationStatus is the delivery state machine:
// pending -> sent -> delivered -> read, with failed reachable from any
// attempted send. A failed notification whose retry budget is exhausted
// is terminal and never dispatched again.
type NotificationStatus string

const (
	StatusPending   NotificationStatus = "pending"
	StatusSent      NotificationStatus = "sent"
	StatusDelivered NotificationStatus = "delivered"
	StatusRead      NotificationStatus = "read"
	StatusFailed    NotificationStatus = "failed"
)

type Notification struct {
	NotificationID string               `json:"id" dynamodbav:"notification_id"`
	UserID         string               `json:"user_id" dynamodbav:"user_id"`
	Title          string               `json:"title" dynamodbav:"title"`
	Message        string               `json:"message" dynamodbav:"message"`
	Type           NotificationType     `json:"type" dynamodbav:"notification_type"`
	Priority       NotificationPriority `json:"priority" dynamodbav:"priority"`
	Data           map[string]string    `json:"data,omitempty" dynamodbav:"data,omitempty"`
	ActionURL      *string              `json:"action_url,omitempty" dynamodbav:"action_url,omitempty"`
	Icon           *string              `json:"icon,omitempty" dynamodbav:"icon,omitempty"`
	Status         NotificationStatus   `json:"status" dynamodbav:"status"`
	IsRead         bool                 `json:"is_read" dynamodbav:"is_read"`
	// ScheduledAt and NextRetryAt use omitempty so the sweep claims can key
	// on attribute existence. Nil ScheduledAt means "dispatch immediately
	// at creation".
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" dynamodbav:"scheduled_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time  `json:"updated" dynamodbav:"updated_at"`
	RetryCount  int        `json:"retry_count" dynamodbav:"retry_count"`
	MaxRetries  int        `json:"max_retries" dynamodbav:"max_retries"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" dynamodbav:"next_retry_at,omitempty"`
}

// CanRetry reports whether another dispatch attempt is allowed after a failure.
func (n *Notification) CanRetry() bool {
	return n.RetryCount < n.MaxRetries
}

// NotificationContent carries the user-supplied fields shared by all
// creation requests.
type NotificationContent struct {
	Title       string               `json:"title" validate:"required,max=255"`
	Message     string               `json:"message" validate:"required"`
	Type        NotificationType     `json:"type" validate:"required,oneof=system waste_update collection_reminder achievement admin_message verification security promotion"`
	Priority    NotificationPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Data        map[string]string    `json:"data"`
	ActionURL   *string              `json:"action_url" validate:"omitempty,max=500"`
	Icon        *string              `json:"icon" validate:"omitempty,max=100"`
	ScheduledAt *time.Time           `json:"scheduled_at"`
}

type CreateNotificationRequest struct {
	UserID string `json:"user_id" validate:"required"`
	NotificationContent
}

type BulkCreateNotificationRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,required"`
	NotificationContent
}

type BroadcastNotificationRequest struct {
	TargetRoles []string `json:"target_roles" validate:"omitempty,dive,oneof=user admin super_admin"`
	NotificationContent
}

type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids" validate:"required,min=1,dive,required"`
}

// NotificationPage is the paginated list result for one user.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
	Page          int            `json:"page"`
	Size          int            `json:"size"`
	HasNext       bool           `json:"has_next"`
	HasPrevious   bool           `json:"has_previous"`
	UnreadCount   int            `json:"unread_count"`
}
