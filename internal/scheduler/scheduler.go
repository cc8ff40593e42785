package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/agroaid/plant-reminder/internal/model"
	"github.com/agroaid/plant-reminder/internal/rabbitmq/queue"
	reminderrepo "github.com/agroaid/plant-reminder/internal/repository/reminder"
)

//go:generate mockgen -source=scheduler.go -destination=../mocks/scheduler/mock.go -package=mocks

type reminderRepository interface {
	NextFireTime(ctx context.Context) (time.Time, error)
	FindDue(ctx context.Context, at time.Time) ([]model.Reminder, error)
	SetState(ctx context.Context, id uuid.UUID, from, to model.State) error
	Advance(ctx context.Context, id uuid.UUID, nextFireAt time.Time) error
	Complete(ctx context.Context, id uuid.UUID) error
	RecoverFiring(ctx context.Context) (int64, error)
}

// Notifier delivers a human-perceptible alert for a fired reminder.
// Delivery failures are transient and retryable.
type Notifier interface {
	Send(to string, msg string) error
}

type firedPublisher interface {
	Publish(ev queue.FiredEvent, strategy retry.Strategy) error
}

type stateCache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
}

// Scheduler owns the scheduling loop for all pending reminders.
//
// The store is the single source of truth: the loop keeps no reminder state
// across waits and re-reads the due set from the store after every wake, so
// it tolerates restarts and cancellations arriving from other sessions.
type Scheduler struct {
	repo         reminderRepository
	notifiers    map[string]Notifier
	events       firedPublisher
	cache        stateCache
	clock        clock.Clock
	storeBackoff time.Duration
	wakeCh       chan struct{}
}

// New creates a scheduler. storeBackoff is the pause before retrying after
// a store failure inside the loop.
func New(
	repo reminderRepository,
	notifiers map[string]Notifier,
	events firedPublisher,
	cache stateCache,
	clk clock.Clock,
	storeBackoff time.Duration,
) *Scheduler {
	return &Scheduler{
		repo:         repo,
		notifiers:    notifiers,
		events:       events,
		cache:        cache,
		clock:        clk,
		storeBackoff: storeBackoff,
		wakeCh:       make(chan struct{}, 1),
	}
}

// Notify wakes the scheduling loop. Non-blocking: if a wake is already
// pending the signal is coalesced with it.
func (s *Scheduler) Notify() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Run executes the scheduling loop until ctx is cancelled.
//
// Each iteration performs a single blocking wait: until the earliest
// pending fire time, or until a submission wakes the loop, whichever comes
// first. There is no periodic polling.
func (s *Scheduler) Run(ctx context.Context, strategy retry.Strategy) {
	zlog.Logger.Info().Msg("scheduler started")

	// Rows left in firing by a crash between claim and completion would
	// otherwise never be scheduled again; sweep them back to pending before
	// entering the loop.
	for {
		recovered, err := s.repo.RecoverFiring(ctx)
		if err == nil {
			if recovered > 0 {
				zlog.Logger.Info().Int64("count", recovered).Msg("recovered firing reminders")
			}
			break
		}

		zlog.Logger.Error().Err(err).Msg("failed to recover firing reminders, backing off")
		if !s.waitBackoff(ctx) {
			zlog.Logger.Info().Msg("scheduler stopped")
			return
		}
	}

	for {
		next, err := s.repo.NextFireTime(ctx)

		switch {
		case errors.Is(err, reminderrepo.ErrNoPendingReminders):
			// Nothing scheduled; sleep until a submission arrives.
			select {
			case <-ctx.Done():
				zlog.Logger.Info().Msg("scheduler stopped")
				return
			case <-s.wakeCh:
			}

		case err != nil:
			zlog.Logger.Error().Err(err).Msg("failed to read next fire time, backing off")
			if !s.waitBackoff(ctx) {
				zlog.Logger.Info().Msg("scheduler stopped")
				return
			}

		default:
			if wait := next.Sub(s.clock.Now()); wait > 0 {
				timer := s.clock.Timer(wait)

				select {
				case <-ctx.Done():
					timer.Stop()
					zlog.Logger.Info().Msg("scheduler stopped")
					return
				case <-s.wakeCh:
					// A newly submitted reminder may be due earlier than the
					// armed timer; re-read the earliest fire time.
					timer.Stop()
					continue
				case <-timer.C:
				}
			}

			s.fireDue(ctx, strategy)
		}
	}
}

// waitBackoff pauses for the store backoff interval. It returns false if
// ctx was cancelled while waiting.
func (s *Scheduler) waitBackoff(ctx context.Context) bool {
	timer := s.clock.Timer(s.storeBackoff)

	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-s.wakeCh:
		timer.Stop()
		return true
	case <-timer.C:
		return true
	}
}

// fireDue re-reads the current time and fires every reminder now due, in
// (fire_at, id) order so that same-instant reminders fire deterministically.
func (s *Scheduler) fireDue(ctx context.Context, strategy retry.Strategy) {
	now := s.clock.Now()

	due, err := s.repo.FindDue(ctx, now)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to find due reminders, backing off")
		s.waitBackoff(ctx)
		return
	}

	for _, rem := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.fire(ctx, strategy, rem)
	}
}

// fire executes one occurrence of a reminder.
//
// The pending→firing compare-and-set is the arbiter against concurrent
// cancellation: if it misses, someone else already owns the reminder and
// the occurrence is skipped. After delivery the reminder always leaves the
// firing state, even when every delivery attempt failed.
func (s *Scheduler) fire(ctx context.Context, strategy retry.Strategy, rem model.Reminder) {
	err := s.repo.SetState(ctx, rem.ID, model.StatePending, model.StateFiring)
	if err != nil {
		if errors.Is(err, reminderrepo.ErrStateConflict) || errors.Is(err, reminderrepo.ErrReminderNotFound) {
			zlog.Logger.Info().Str("id", rem.ID.String()).Msg("reminder no longer pending, skipping")
			return
		}

		zlog.Logger.Error().Err(err).Str("id", rem.ID.String()).Msg("failed to claim reminder")
		return
	}

	msg := rem.Message()

	deliveryErr := retry.Do(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return s.send(rem.Channel, rem.Contact, msg)
		}
	}, strategy)

	if deliveryErr != nil {
		// Delivery is best effort: the occurrence still completes so the
		// reminder is never left stuck in the firing state.
		zlog.Logger.Error().Err(deliveryErr).
			Str("id", rem.ID.String()).
			Str("channel", rem.Channel).
			Msg("failed to deliver reminder")
	} else {
		zlog.Logger.Info().
			Str("id", rem.ID.String()).
			Str("owner", rem.Owner).
			Msg("reminder delivered")
	}

	if !s.complete(ctx, strategy, rem) {
		return
	}

	// Published only once the occurrence counter has been written, so the
	// occurrence number always matches the stored row.
	ev := queue.FiredEvent{
		ID:         rem.ID,
		Owner:      rem.Owner,
		Task:       rem.Task,
		Plant:      rem.Plant,
		Message:    msg,
		FiredAt:    s.clock.Now(),
		Occurrence: rem.OccurrenceCount + 1,
		Delivered:  deliveryErr == nil,
	}

	if err := s.events.Publish(ev, strategy); err != nil {
		zlog.Logger.Error().Err(err).Str("id", rem.ID.String()).Msg("failed to publish fired event")
	}
}

// complete finishes an occurrence: a once-only reminder becomes fired, a
// recurring one returns to pending with the fire time advanced by exactly
// one period from the previous schedule, so late deliveries never
// accumulate drift.
//
// Store errors are retried past the bounded strategy with the store
// backoff: a claimed reminder must always leave the firing state, since the
// scheduling queries only look at pending rows. If the advanced fire time
// collides with another reminder for the same plant and task, this row is
// finished instead of rescheduled. Reports whether the completion write
// landed; on shutdown mid-completion the startup sweep returns the row to
// pending on the next run.
func (s *Scheduler) complete(ctx context.Context, strategy retry.Strategy, rem model.Reminder) bool {
	once := rem.Recurrence == model.RecurrenceOnce

	for {
		var (
			next  model.State
			apply func() error
		)

		if once {
			next = model.StateFired
			apply = func() error { return s.repo.Complete(ctx, rem.ID) }
		} else {
			next = model.StatePending
			nextFireAt := rem.Recurrence.Next(rem.FireAt)
			apply = func() error { return s.repo.Advance(ctx, rem.ID, nextFireAt) }
		}

		err := retry.Do(apply, strategy)
		if err == nil {
			if err := s.cache.SetWithRetry(ctx, strategy, rem.ID.String(), string(next)); err != nil {
				zlog.Logger.Error().Err(err).Str("id", rem.ID.String()).Msg("failed to cache reminder state")
			}
			return true
		}

		switch {
		case errors.Is(err, reminderrepo.ErrReminderNotFound), errors.Is(err, reminderrepo.ErrStateConflict):
			// Deleted or moved by someone else mid-occurrence; nothing left
			// to finish.
			zlog.Logger.Warn().Err(err).Str("id", rem.ID.String()).Msg("reminder gone before completion")
			return false

		case errors.Is(err, reminderrepo.ErrDuplicateReminder):
			zlog.Logger.Warn().
				Str("id", rem.ID.String()).
				Str("owner", rem.Owner).
				Msg("next occurrence already scheduled, finishing reminder")
			once = true

		default:
			zlog.Logger.Error().Err(err).Str("id", rem.ID.String()).Msg("failed to complete occurrence, backing off")
			if !s.waitBackoff(ctx) {
				return false
			}
		}
	}
}

func (s *Scheduler) send(channel, to, msg string) error {
	notifier, ok := s.notifiers[channel]
	if !ok {
		return fmt.Errorf("unknown channel %s", channel)
	}

	return notifier.Send(to, msg)
}
