package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wb-go/wbf/dbpg"

	"github.com/agroaid/plant-reminder/internal/model"
)

var (
	ErrReminderNotFound   = errors.New("reminder not found")
	ErrDuplicateReminder  = errors.New("reminder already exists")
	ErrStateConflict      = errors.New("reminder state conflict")
	ErrNoPendingReminders = errors.New("no pending reminders")
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

// Repository provides methods to interact with the reminders table.
//
// The reminders table is the single source of truth for reminder state;
// every state transition goes through a compare-and-set on the current
// state so that concurrent cancel and fire attempts cannot both win.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new reminder repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateReminder inserts a new pending reminder and returns its ID.
//
// A reminder is unique per (owner, task, plant, fire_at); inserting a
// duplicate returns ErrDuplicateReminder.
func (r *Repository) CreateReminder(ctx context.Context, reminder model.Reminder) (uuid.UUID, error) {
	query := `
		INSERT INTO reminders (
		    owner, task, plant, fire_at, recurrence, channel, contact
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id;
    `

	err := r.db.Master.QueryRowContext(
		ctx, query,
		reminder.Owner, reminder.Task, reminder.Plant, reminder.FireAt,
		reminder.Recurrence, reminder.Channel, reminder.Contact,
	).Scan(&reminder.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return uuid.Nil, ErrDuplicateReminder
		}

		return uuid.Nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	return reminder.ID, nil
}

// SetState transitions a reminder from one state to another.
//
// The update only applies if the reminder is currently in the expected
// state. On a miss the current state is re-read to distinguish a missing
// reminder (ErrReminderNotFound) from a lost race (ErrStateConflict).
func (r *Repository) SetState(ctx context.Context, id uuid.UUID, from, to model.State) error {
	query := `
		UPDATE reminders
		SET state = $1, updated_at = now()
		WHERE id = $2 AND state = $3;
    `

	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update reminder state: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		if _, err := r.GetReminderStateByID(ctx, id); err != nil {
			return err
		}

		return ErrStateConflict
	}

	return nil
}

// Advance reschedules a firing recurring reminder: it moves the reminder
// back to pending with the next fire time and counts the occurrence.
//
// If the next fire time collides with another reminder for the same
// (owner, task, plant), the unique constraint rejects the reschedule and
// ErrDuplicateReminder is returned.
func (r *Repository) Advance(ctx context.Context, id uuid.UUID, nextFireAt time.Time) error {
	query := `
		UPDATE reminders
		SET state = $1, fire_at = $2, occurrence_count = occurrence_count + 1, updated_at = now()
		WHERE id = $3 AND state = $4;
    `

	res, err := r.db.ExecContext(ctx, query, model.StatePending, nextFireAt, id, model.StateFiring)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateReminder
		}

		return fmt.Errorf("failed to advance reminder: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		if _, err := r.GetReminderStateByID(ctx, id); err != nil {
			return err
		}

		return ErrStateConflict
	}

	return nil
}

// Complete marks a firing once-only reminder as fired and counts the occurrence.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE reminders
		SET state = $1, occurrence_count = occurrence_count + 1, updated_at = now()
		WHERE id = $2 AND state = $3;
    `

	res, err := r.db.ExecContext(ctx, query, model.StateFired, id, model.StateFiring)
	if err != nil {
		return fmt.Errorf("failed to complete reminder: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		if _, err := r.GetReminderStateByID(ctx, id); err != nil {
			return err
		}

		return ErrStateConflict
	}

	return nil
}

// RecoverFiring returns every firing reminder to pending and reports how
// many rows were reset.
//
// A crash between the pending to firing claim and the completion write
// strands rows in the firing state, where the scheduling queries no longer
// see them. Sweeping them back to pending on startup lets the loop fire
// them again.
func (r *Repository) RecoverFiring(ctx context.Context) (int64, error) {
	query := `
		UPDATE reminders
		SET state = $1, updated_at = now()
		WHERE state = $2;
    `

	res, err := r.db.ExecContext(ctx, query, model.StatePending, model.StateFiring)
	if err != nil {
		return 0, fmt.Errorf("failed to recover firing reminders: %w", err)
	}

	rows, _ := res.RowsAffected()

	return rows, nil
}

// GetReminderStateByID retrieves the current state of a reminder by its ID.
func (r *Repository) GetReminderStateByID(ctx context.Context, id uuid.UUID) (model.State, error) {
	query := `
		SELECT state
		FROM reminders
		WHERE id = $1;
    `

	var state model.State
	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrReminderNotFound
		}

		return "", fmt.Errorf("failed to get reminder state: %w", err)
	}

	return state, nil
}

// NextFireTime returns the earliest fire time among pending reminders.
//
// Returns ErrNoPendingReminders if there is nothing left to schedule.
func (r *Repository) NextFireTime(ctx context.Context) (time.Time, error) {
	query := `
		SELECT fire_at
		FROM reminders
		WHERE state = $1
		ORDER BY fire_at, id
		LIMIT 1;
    `

	var fireAt time.Time
	err := r.db.Master.QueryRowContext(ctx, query, model.StatePending).Scan(&fireAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, ErrNoPendingReminders
		}

		return time.Time{}, fmt.Errorf("failed to get next fire time: %w", err)
	}

	return fireAt, nil
}

// FindDue retrieves all pending reminders due at or before the given time,
// ordered by fire time and then by ID so that same-instant reminders fire
// in a stable order.
func (r *Repository) FindDue(ctx context.Context, at time.Time) ([]model.Reminder, error) {
	query := `
		SELECT id, owner, task, plant, fire_at, recurrence, state, channel, contact, occurrence_count
		FROM reminders
		WHERE state = $1 AND fire_at <= $2
		ORDER BY fire_at, id;
    `

	rows, err := r.db.QueryContext(ctx, query, model.StatePending, at)
	if err != nil {
		return nil, fmt.Errorf("failed to find due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(
			&rem.ID, &rem.Owner, &rem.Task, &rem.Plant, &rem.FireAt,
			&rem.Recurrence, &rem.State, &rem.Channel, &rem.Contact, &rem.OccurrenceCount,
		); err != nil {
			return nil, err
		}

		reminders = append(reminders, rem)
	}

	return reminders, rows.Err()
}

// ListByOwner retrieves all reminders belonging to an owner ordered by fire time.
func (r *Repository) ListByOwner(ctx context.Context, owner string) ([]model.Reminder, error) {
	query := `
		SELECT id, owner, task, plant, fire_at, recurrence, state, channel, contact, occurrence_count
		FROM reminders
		WHERE owner = $1
		ORDER BY fire_at, id;
    `

	rows, err := r.db.QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(
			&rem.ID, &rem.Owner, &rem.Task, &rem.Plant, &rem.FireAt,
			&rem.Recurrence, &rem.State, &rem.Channel, &rem.Contact, &rem.OccurrenceCount,
		); err != nil {
			return nil, err
		}

		reminders = append(reminders, rem)
	}

	return reminders, rows.Err()
}

// DeleteReminder removes a reminder by its ID.
func (r *Repository) DeleteReminder(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM reminders
		WHERE id = $1;
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		return ErrReminderNotFound
	}

	return nil
}
