package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const slotColumns = `id, tutor_id, day_of_week, specific_date, start_time, end_time, is_active, is_booked, class_id, created_at, updated_at`

// AvailabilityRepository persists tutor availability slots.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository constructs the repository.
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// GetByID returns a slot by identifier.
func (r *AvailabilityRepository) GetByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, `SELECT `+slotColumns+` FROM availability_slots WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get availability slot: %w", err)
	}
	return &slot, nil
}

// List returns slots matching the filter ordered by recurrence key and start time.
func (r *AvailabilityRepository) List(ctx context.Context, filter models.AvailabilityFilter) ([]models.AvailabilitySlot, error) {
	var conditions []string
	var args []interface{}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("tutor_id = $%d", len(args)))
	}
	if filter.DayOfWeek != nil {
		args = append(args, *filter.DayOfWeek)
		conditions = append(conditions, fmt.Sprintf("day_of_week = $%d", len(args)))
	}
	if filter.SpecificDate != "" {
		args = append(args, filter.SpecificDate)
		conditions = append(conditions, fmt.Sprintf("specific_date = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.Booked != nil {
		args = append(args, *filter.Booked)
		conditions = append(conditions, fmt.Sprintf("is_booked = $%d", len(args)))
	}

	query := `SELECT ` + slotColumns + ` FROM availability_slots`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY specific_date NULLS FIRST, day_of_week, start_time"

	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, fmt.Errorf("list availability slots: %w", err)
	}
	return slots, nil
}

// ListActiveOnKey returns the tutor's active slots sharing a recurrence key.
func (r *AvailabilityRepository) ListActiveOnKey(ctx context.Context, tutorID string, dayOfWeek *int, specificDate *string) ([]models.AvailabilitySlot, error) {
	query := `SELECT ` + slotColumns + ` FROM availability_slots WHERE tutor_id = $1 AND is_active = TRUE AND `
	var key interface{}
	switch {
	case dayOfWeek != nil:
		query += "day_of_week = $2"
		key = *dayOfWeek
	case specificDate != nil:
		query += "specific_date = $2"
		key = *specificDate
	default:
		return nil, fmt.Errorf("list slots on key: recurrence key required")
	}
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query+" ORDER BY start_time", tutorID, key); err != nil {
		return nil, fmt.Errorf("list slots on key: %w", err)
	}
	return slots, nil
}

// ListBookedOn returns the tutor's booked slots that apply on a calendar date,
// with the start of each slot's linked class in BookedFor.
func (r *AvailabilityRepository) ListBookedOn(ctx context.Context, tutorID, date string, weekday int) ([]models.AvailabilitySlot, error) {
	query := `SELECT s.id, s.tutor_id, s.day_of_week, s.specific_date, s.start_time, s.end_time, s.is_active, s.is_booked,
	s.class_id, s.created_at, s.updated_at, c.scheduled_at AS booked_for
FROM availability_slots s LEFT JOIN class_sessions c ON c.id = s.class_id
WHERE s.tutor_id = $1 AND s.is_booked = TRUE AND (s.specific_date = $2 OR s.day_of_week = $3) ORDER BY s.start_time`
	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, tutorID, date, weekday); err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}
	return slots, nil
}

// Create inserts a new slot.
func (r *AvailabilityRepository) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	slot.CreatedAt = now
	slot.UpdatedAt = now
	const query = `INSERT INTO availability_slots (id, tutor_id, day_of_week, specific_date, start_time, end_time, is_active, is_booked, class_id, created_at, updated_at)
VALUES (:id, :tutor_id, :day_of_week, :specific_date, :start_time, :end_time, :is_active, :is_booked, :class_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create availability slot: %w", err)
	}
	return nil
}

// Update writes the window and active flag of an unbooked slot.
// It reports false when the slot was booked in the meantime.
func (r *AvailabilityRepository) Update(ctx context.Context, slot *models.AvailabilitySlot) (bool, error) {
	slot.UpdatedAt = time.Now().UTC()
	const query = `UPDATE availability_slots SET start_time = :start_time, end_time = :end_time, is_active = :is_active, updated_at = :updated_at
WHERE id = :id AND is_booked = FALSE`
	res, err := r.db.NamedExecContext(ctx, query, slot)
	if err != nil {
		return false, fmt.Errorf("update availability slot: %w", err)
	}
	return rowsChanged(res, "update availability slot")
}

// Delete removes an unbooked slot. It reports false when the slot is booked or missing.
func (r *AvailabilityRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM availability_slots WHERE id = $1 AND is_booked = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("delete availability slot: %w", err)
	}
	return rowsChanged(res, "delete availability slot")
}

// MarkBooked links the slot to a class unless someone else booked it first.
func (r *AvailabilityRepository) MarkBooked(ctx context.Context, slotID, classID string) (bool, error) {
	const query = `UPDATE availability_slots SET is_booked = TRUE, class_id = $2, updated_at = $3
WHERE id = $1 AND is_booked = FALSE AND is_active = TRUE`
	res, err := r.db.ExecContext(ctx, query, slotID, classID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("mark slot booked: %w", err)
	}
	return rowsChanged(res, "mark slot booked")
}

// Release frees a slot held by the given class.
func (r *AvailabilityRepository) Release(ctx context.Context, slotID, classID string) error {
	const query = `UPDATE availability_slots SET is_booked = FALSE, class_id = NULL, updated_at = $3 WHERE id = $1 AND class_id = $2`
	if _, err := r.db.ExecContext(ctx, query, slotID, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// ReleaseRecurring frees a weekly slot held by the given class. Dated slots stay booked.
func (r *AvailabilityRepository) ReleaseRecurring(ctx context.Context, slotID, classID string) error {
	const query = `UPDATE availability_slots SET is_booked = FALSE, class_id = NULL, updated_at = $3
WHERE id = $1 AND class_id = $2 AND day_of_week IS NOT NULL`
	if _, err := r.db.ExecContext(ctx, query, slotID, classID, time.Now().UTC()); err != nil {
		return fmt.Errorf("release recurring slot: %w", err)
	}
	return nil
}

func rowsChanged(res sql.Result, op string) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return affected > 0, nil
}
