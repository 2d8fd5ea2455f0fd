package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ecotrack-api/internal/domain"
)

type sweepStore interface {
	ListScheduledDue(ctx context.Context, now time.Time) ([]domain.Notification, error)
	ListRetryDue(ctx context.Context, now time.Time) ([]domain.Notification, error)
	ClaimScheduled(ctx context.Context, notificationID string, now time.Time) (bool, error)
	ClaimRetry(ctx context.Context, notificationID string, now time.Time) (bool, error)
}

type dispatcher interface {
	Send(ctx context.Context, n *domain.Notification) error
}

// Sweeper runs the two periodic delivery loops: the schedule sweep that
// releases due scheduled notifications and the retry sweep that re-attempts
// failed ones. Each due row is claimed with a conditional update before
// dispatch, so overlapping sweeps (or multiple instances) never dispatch the
// same row twice.
type Sweeper struct {
	store    sweepStore
	sender   dispatcher
	schedule time.Duration
	retry    time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

func NewSweeper(store sweepStore, sender dispatcher, scheduleInterval, retryInterval, dispatchTimeout time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		sender:   sender,
		schedule: scheduleInterval,
		retry:    retryInterval,
		timeout:  dispatchTimeout,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, ticking both sweeps at their own
// cadence.
func (s *Sweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.schedule, s.SweepScheduled)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.retry, s.SweepRetries)
	}()
	wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, interval time.Duration, sweep func(context.Context) int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

// SweepScheduled releases every due scheduled notification it manages to
// claim and reports how many it dispatched. The pass returns after all
// dispatches complete.
func (s *Sweeper) SweepScheduled(ctx context.Context) int {
	now := time.Now().UTC()
	due, err := s.store.ListScheduledDue(ctx, now)
	if err != nil {
		s.logger.Error("schedule sweep query failed", "err", err)
		return 0
	}
	return s.dispatchClaimed(ctx, due, now, s.store.ClaimScheduled, "schedule")
}

// SweepRetries re-attempts every failed notification whose retry is due.
func (s *Sweeper) SweepRetries(ctx context.Context) int {
	now := time.Now().UTC()
	due, err := s.store.ListRetryDue(ctx, now)
	if err != nil {
		s.logger.Error("retry sweep query failed", "err", err)
		return 0
	}
	return s.dispatchClaimed(ctx, due, now, s.store.ClaimRetry, "retry")
}

func (s *Sweeper) dispatchClaimed(ctx context.Context, due []domain.Notification, now time.Time, claim func(context.Context, string, time.Time) (bool, error), sweep string) int {
	var wg sync.WaitGroup
	dispatched := 0
	for i := range due {
		n := due[i]
		ok, err := claim(ctx, n.NotificationID, now)
		if err != nil {
			s.logger.Error("claim failed", "sweep", sweep, "notification_id", n.NotificationID, "err", err)
			continue
		}
		if !ok {
			// Another worker got there first.
			continue
		}
		// The claim removed the due-time attribute; mirror that locally so
		// the dispatcher sees the row as immediately due.
		n.ScheduledAt = nil
		n.NextRetryAt = nil

		dispatched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
			defer cancel()
			if err := s.sender.Send(sendCtx, &n); err != nil {
				s.logger.Error("sweep dispatch failed", "sweep", sweep, "notification_id", n.NotificationID, "err", err)
			}
		}()
	}
	wg.Wait()

	if dispatched > 0 {
		s.logger.Info("sweep dispatched", "sweep", sweep, "count", dispatched, "due", len(due))
	}
	return dispatched
}
