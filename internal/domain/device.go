package domain

import "time"

// Device is a push target registered by a user. Exactly one row exists per
// token: re-registering a known token reassigns ownership (last writer wins)
// and reactivates the row instead of duplicating it.
type Device struct {
	DeviceID   string     `json:"id" dynamodbav:"device_id"`
	UserID     string     `json:"user_id" dynamodbav:"user_id"`
	Token      string     `json:"token" dynamodbav:"token"`
	Type       string     `json:"type" dynamodbav:"device_type"`
	Name       *string    `json:"name,omitempty" dynamodbav:"device_name,omitempty"`
	Active     bool       `json:"active" dynamodbav:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" dynamodbav:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt  time.Time  `json:"updated" dynamodbav:"updated_at"`
}

type RegisterDeviceRequest struct {
	Token string  `json:"token" validate:"required,max=255"`
	Type  string  `json:"type" validate:"required,oneof=ios android web"`
	Name  *string `json:"name" validate:"omitempty,max=100"`
}

// UpdateDeviceRequest enumerates the mutable device fields. Unknown fields
// are rejected at the transport boundary.
type UpdateDeviceRequest struct {
	Name   *string `json:"name" validate:"omitempty,max=100"`
	Type   *string `json:"type" validate:"omitempty,oneof=ios android web"`
	Active *bool   `json:"active"`
}
