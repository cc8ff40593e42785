package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/agroaid/plant-reminder/internal/model"
	reminderrepo "github.com/agroaid/plant-reminder/internal/repository/reminder"
)

var (
	// ErrPastDue is returned when a fire time is further in the past
	// than the configured grace period.
	ErrPastDue = errors.New("fire time is past due")

	// ErrInvalidRecurrence is returned for an unsupported recurrence value.
	ErrInvalidRecurrence = errors.New("invalid recurrence")
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/reminder/mock.go -package=mocks

type reminderRepository interface {
	CreateReminder(context.Context, model.Reminder) (uuid.UUID, error)
	GetReminderStateByID(context.Context, uuid.UUID) (model.State, error)
	SetState(ctx context.Context, id uuid.UUID, from, to model.State) error
	ListByOwner(ctx context.Context, owner string) ([]model.Reminder, error)
	DeleteReminder(ctx context.Context, id uuid.UUID) error
}

// waker wakes the scheduling loop after a submission so that a reminder
// due earlier than the currently armed timer is not missed.
type waker interface {
	Notify()
}

type cache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

// Service implements the reminder API consumed by the UI layer.
//
// Submissions and cancellations run on the caller's goroutine; they never
// block on the scheduling loop, they only signal it through the waker.
type Service struct {
	repo      reminderRepository
	scheduler waker
	cache     cache
	clock     clock.Clock
	grace     time.Duration
}

// NewService creates a reminder service. grace is the tolerance for
// accepting a fire time that is already slightly in the past.
func NewService(
	repo reminderRepository,
	scheduler waker,
	cache cache,
	clk clock.Clock,
	grace time.Duration,
) *Service {
	return &Service{repo: repo, scheduler: scheduler, cache: cache, clock: clk, grace: grace}
}

// CreateReminder validates and stores a new pending reminder, caches its
// state and wakes the scheduling loop.
func (s *Service) CreateReminder(ctx context.Context, strategy retry.Strategy, reminder model.Reminder) (uuid.UUID, error) {
	if !reminder.Recurrence.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidRecurrence, reminder.Recurrence)
	}

	if reminder.FireAt.Before(s.clock.Now().Add(-s.grace)) {
		return uuid.Nil, ErrPastDue
	}

	reminder.State = model.StatePending

	id, err := s.repo.CreateReminder(ctx, reminder)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create reminder: %w", err)
	}

	err = s.cache.SetWithRetry(ctx, strategy, id.String(), string(model.StatePending))
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder state")
	}

	s.scheduler.Notify()

	return id, nil
}

// CancelReminder moves a pending reminder to cancelled.
//
// Cancellation is idempotent: if the scheduler has already claimed the
// reminder, or it is already fired or cancelled, the call is a no-op.
// Only a missing reminder is an error.
func (s *Service) CancelReminder(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error {
	err := s.repo.SetState(ctx, id, model.StatePending, model.StateCancelled)
	if err != nil {
		if errors.Is(err, reminderrepo.ErrStateConflict) {
			// The fire or a previous cancel won the race; nothing to do.
			zlog.Logger.Info().Str("id", id.String()).Msg("reminder no longer pending, cancel is a no-op")
			return nil
		}

		return fmt.Errorf("cancel reminder: %w", err)
	}

	err = s.cache.SetWithRetry(ctx, strategy, id.String(), string(model.StateCancelled))
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder state")
	}

	return nil
}

// GetReminderStateByID returns the current state of a reminder,
// preferring the cache and falling back to the store on a miss.
func (s *Service) GetReminderStateByID(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (model.State, error) {
	cached, err := s.cache.GetWithRetry(ctx, strategy, id.String())
	if err != nil && !errors.Is(err, redis.Nil) {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get reminder state from cache")
	}

	if err == nil {
		return model.State(cached), nil
	}

	state, err := s.repo.GetReminderStateByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get reminder state: %w", err)
	}

	err = s.cache.SetWithRetry(ctx, strategy, id.String(), string(state))
	if err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder state")
	}

	return state, nil
}

// ListByOwner returns all reminders belonging to an owner.
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]model.Reminder, error) {
	reminders, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	return reminders, nil
}

// DeleteReminder removes a reminder entirely. Reminders are only ever
// destroyed by an explicit user action, never by the scheduler.
func (s *Service) DeleteReminder(ctx context.Context, id uuid.UUID) error {
	err := s.repo.DeleteReminder(ctx, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}

	return nil
}
