package service

import (
	"context"
	"time"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

// maxSessionSpan bounds how far back an overlapping session can start.
// Session length is capped at MaxSessionMinutes.
const (
	MaxSessionMinutes = 24 * 60
	maxSessionSpan    = MaxSessionMinutes * time.Minute
)

type activeClassLister interface {
	ListActiveForTutor(ctx context.Context, tutorID string, from, to time.Time) ([]models.ClassSession, error)
}

type bookedSlotLister interface {
	ListBookedOn(ctx context.Context, tutorID, date string, weekday int) ([]models.AvailabilitySlot, error)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ClockOverlaps is Overlaps for HH:MM windows within one day. Zero-padded
// clock strings order lexicographically, and "24:00" sorts after every time.
func ClockOverlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && aEnd > bStart
}

// ConflictChecker finds what blocks a proposed session for a tutor: another
// active session or a booked availability slot on the same day.
type ConflictChecker struct {
	classes activeClassLister
	slots   bookedSlotLister
	loc     *time.Location
}

// NewConflictChecker builds a checker evaluating slot clock times in loc.
func NewConflictChecker(classes activeClassLister, slots bookedSlotLister, loc *time.Location) *ConflictChecker {
	if loc == nil {
		loc = time.UTC
	}
	return &ConflictChecker{classes: classes, slots: slots, loc: loc}
}

// CheckConflict reports whether the interval starting at start collides with anything.
func (c *ConflictChecker) CheckConflict(ctx context.Context, tutorID string, start time.Time, durationMinutes int) (bool, error) {
	conflict, err := c.FindConflict(ctx, tutorID, start, durationMinutes, "")
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

// FindConflict returns the first collision, ignoring the class ignoreClassID
// and any slot booked by it.
func (c *ConflictChecker) FindConflict(ctx context.Context, tutorID string, start time.Time, durationMinutes int, ignoreClassID string) (*models.ClassConflict, error) {
	if durationMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be greater than zero")
	}
	end := start.Add(time.Duration(durationMinutes) * time.Minute)

	sessions, err := c.classes.ListActiveForTutor(ctx, tutorID, start.Add(-maxSessionSpan), end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor sessions")
	}
	for i := range sessions {
		session := &sessions[i]
		if session.ID == ignoreClassID {
			continue
		}
		if Overlaps(session.ScheduledAt, session.EndsAt(), start, end) {
			return &models.ClassConflict{
				Kind:     models.ConflictKindClass,
				ID:       session.ID,
				StartsAt: session.ScheduledAt,
				EndsAt:   session.EndsAt(),
			}, nil
		}
	}

	if c.slots == nil {
		return nil, nil
	}
	localStart := start.In(c.loc)
	localEnd := end.In(c.loc)
	date := localStart.Format(dateLayout)
	startClock := localStart.Format(clockLayout)
	endClock := localEnd.Format(clockLayout)
	if localEnd.Format(dateLayout) != date {
		endClock = endOfDay
	}

	slots, err := c.slots.ListBookedOn(ctx, tutorID, date, int(localStart.Weekday()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load booked slots")
	}
	for _, slot := range slots {
		if ignoreClassID != "" && slot.ClassID != nil && *slot.ClassID == ignoreClassID {
			continue
		}
		// a weekly slot is held only for the occurrence its class was booked on
		if slot.Recurring() && (slot.BookedFor == nil || slot.BookedFor.In(c.loc).Format(dateLayout) != date) {
			continue
		}
		if !ClockOverlaps(slot.StartTime, slot.EndTime, startClock, endClock) {
			continue
		}
		conflict := &models.ClassConflict{Kind: models.ConflictKindSlot, ID: slot.ID}
		if from, err := atClock(localStart, slot.StartTime, c.loc); err == nil {
			conflict.StartsAt = from.UTC()
		}
		if to, err := atClock(localStart, slot.EndTime, c.loc); err == nil {
			conflict.EndsAt = to.UTC()
		}
		return conflict, nil
	}
	return nil, nil
}

// EnsureNoConflict returns a CLASS_CONFLICT error describing the first collision.
func (c *ConflictChecker) EnsureNoConflict(ctx context.Context, tutorID string, start time.Time, durationMinutes int, ignoreClassID string) error {
	conflict, err := c.FindConflict(ctx, tutorID, start, durationMinutes, ignoreClassID)
	if err != nil {
		return err
	}
	if conflict == nil {
		return nil
	}
	return conflictError(conflict)
}

func conflictError(conflict *models.ClassConflict) error {
	message := "tutor already has a class at this time"
	if conflict.Kind == models.ConflictKindSlot {
		message = "tutor has a booked availability slot at this time"
	}
	return appErrors.WithDetails(appErrors.ErrClassConflict, message, conflict)
}
