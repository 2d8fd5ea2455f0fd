package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/infrastructure/sns"
	"github.com/ecotrack-api/internal/realtime"
)

// maxBackoff caps the retry delay curve.
const maxBackoff = 6 * time.Hour

type presenceNotifier interface {
	IsOnline(userID string) bool
	Emit(room, event string, data any)
}

type deviceResolver interface {
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Device, error)
}

type dispatchStore interface {
	MarkSent(ctx context.Context, notificationID string, now time.Time) error
	MarkFailed(ctx context.Context, notificationID string, retryCount int, nextRetryAt *time.Time, now time.Time) error
}

// Dispatcher attempts delivery of one notification over the live channel
// and the push channel, then records the resulting state transition.
// Channel errors are consumed here: they become the FAILED transition plus
// retry scheduling, never an error for the creator.
type Dispatcher struct {
	store    dispatchStore
	devices  deviceResolver
	presence presenceNotifier
	gateway  sns.PushGateway

	backoffBase   time.Duration
	backoffFactor int
	pushTimeout   time.Duration
	logger        *slog.Logger
}

// DispatcherDeps wires the dispatcher's collaborators and tuning.
type DispatcherDeps struct {
	Store    dispatchStore
	Devices  deviceResolver
	Presence presenceNotifier
	Gateway  sns.PushGateway

	BackoffBase   time.Duration
	BackoffFactor int
	PushTimeout   time.Duration
	Logger        *slog.Logger
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		store:         deps.Store,
		devices:       deps.Devices,
		presence:      deps.Presence,
		gateway:       deps.Gateway,
		backoffBase:   deps.BackoffBase,
		backoffFactor: deps.BackoffFactor,
		pushTimeout:   deps.PushTimeout,
		logger:        deps.Logger,
	}
}

// Send attempts delivery and applies the matching state transition.
//
// Success policy: reaching a live session counts, and so does a gateway
// call that completes. Having neither a session nor a device is not a
// failure either, since the record persists and is retrievable, so the
// notification still becomes SENT.
// FAILED is reserved for an actual channel error from an attempted call.
// The returned error covers persistence faults only.
func (d *Dispatcher) Send(ctx context.Context, n *domain.Notification) error {
	if n.ScheduledAt != nil && n.ScheduledAt.After(time.Now()) {
		// Not due yet; the schedule sweep owns it.
		return nil
	}

	if d.presence.IsOnline(n.UserID) {
		// Fire and forget: live fan-out never fails the dispatch.
		d.presence.Emit(realtime.UserRoom(n.UserID), realtime.EventNotification, n)
	}

	devices, err := d.devices.ListActiveByUser(ctx, n.UserID)
	if err != nil {
		return d.fail(ctx, n, fmt.Errorf("resolve devices: %w", err))
	}

	if len(devices) > 0 {
		tokens := make([]string, len(devices))
		for i, dev := range devices {
			tokens[i] = dev.Token
		}
		pushCtx, cancel := context.WithTimeout(ctx, d.pushTimeout)
		res, err := d.gateway.Send(pushCtx, tokens, n.Title, n.Message, pushData(n))
		cancel()
		if err != nil {
			return d.fail(ctx, n, err)
		}
		d.logger.Debug("push delivered",
			"notification_id", n.NotificationID, "success", res.SuccessCount, "failure", res.FailureCount)
	}

	return d.succeed(ctx, n)
}

func (d *Dispatcher) succeed(ctx context.Context, n *domain.Notification) error {
	now := time.Now().UTC()
	n.Status = domain.StatusSent
	n.SentAt = &now
	n.UpdatedAt = now
	return d.store.MarkSent(ctx, n.NotificationID, now)
}

// fail applies the retry transition: bump retry_count and either schedule
// the next attempt or, with the budget exhausted, park the record in its
// terminal FAILED state.
func (d *Dispatcher) fail(ctx context.Context, n *domain.Notification, cause error) error {
	now := time.Now().UTC()
	n.Status = domain.StatusFailed
	n.RetryCount++
	n.UpdatedAt = now
	if n.CanRetry() {
		next := now.Add(d.backoff(n.RetryCount))
		n.NextRetryAt = &next
	} else {
		n.NextRetryAt = nil
	}

	d.logger.Warn("dispatch failed",
		"notification_id", n.NotificationID, "user_id", n.UserID,
		"retry_count", n.RetryCount, "max_retries", n.MaxRetries, "err", cause)

	return d.store.MarkFailed(ctx, n.NotificationID, n.RetryCount, n.NextRetryAt, now)
}

// backoff returns the delay before attempt retry+1. The curve is
// base * factor^(retry-1), capped, so tiers are monotonic non-decreasing.
func (d *Dispatcher) backoff(retry int) time.Duration {
	delay := d.backoffBase
	for i := 1; i < retry; i++ {
		delay *= time.Duration(d.backoffFactor)
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay >= maxBackoff {
		return maxBackoff
	}
	return delay
}

// pushData is the opaque payload attached to the push request. The
// notification's own metadata goes first so callers' payload keys win.
func pushData(n *domain.Notification) map[string]string {
	data := map[string]string{
		"notification_id": n.NotificationID,
		"type":            string(n.Type),
	}
	if n.ActionURL != nil {
		data["action_url"] = *n.ActionURL
	}
	for k, v := range n.Data {
		data[k] = v
	}
	return data
}
