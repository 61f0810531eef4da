package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestCreateAvailabilityValidation(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()

	cases := map[string]models.CreateAvailabilityRequest{
		"neither key":  {StartTime: "09:00", EndTime: "10:00"},
		"both keys":    {DayOfWeek: intPtr(1), SpecificDate: strPtr("2025-03-03"), StartTime: "09:00", EndTime: "10:00"},
		"bad clock":    {DayOfWeek: intPtr(1), StartTime: "9am", EndTime: "10:00"},
		"inverted":     {DayOfWeek: intPtr(1), StartTime: "11:00", EndTime: "10:00"},
		"bad weekday":  {DayOfWeek: intPtr(7), StartTime: "09:00", EndTime: "10:00"},
		"past date":    {SpecificDate: strPtr("2025-02-01"), StartTime: "09:00", EndTime: "10:00"},
		"empty window": {DayOfWeek: intPtr(1), StartTime: "10:00", EndTime: "10:00"},
	}
	for name, req := range cases {
		_, err := fx.booking.Create(ctx, tutorPrincipal, req)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), name)
	}

	_, err := fx.booking.Create(ctx, studentPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:00"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestCreateAvailabilityRejectsOverlap(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()

	first, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Equal(t, tutorUUID, first.TutorID)

	_, err = fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "09:30", EndTime: "10:30"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrAvailabilityOverlap.Code, appErr.Code)
	assert.Equal(t, 400, appErr.Status)

	_, err = fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "10:00", EndTime: "11:00"})
	assert.NoError(t, err)
	_, err = fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(2), StartTime: "09:30", EndTime: "10:30"})
	assert.NoError(t, err)
}

func TestBookRecurringSlot(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:30"})
	require.NoError(t, err)

	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-04"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	booking, err := fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-03", Subject: "Chemistry"})
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2025-03-03T09:00:00Z"), booking.Class.ScheduledAt)
	assert.Equal(t, 90, booking.Class.DurationMinutes)
	assert.Equal(t, studentUUID, booking.Class.StudentID)
	require.NotNil(t, booking.Class.SlotID)
	assert.Equal(t, slot.ID, *booking.Class.SlotID)
	assert.True(t, booking.Slot.IsBooked)
	assert.ElementsMatch(t, []string{tutorUUID, studentUUID}, fx.notifier.recipients(models.NotificationClassScheduled))

	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-10"})
	assert.True(t, errors.Is(err, appErrors.ErrSlotBooked))

	err = fx.booking.Delete(ctx, tutorPrincipal, slot.ID)
	assert.True(t, errors.Is(err, appErrors.ErrSlotBooked))
	_, err = fx.booking.Update(ctx, tutorPrincipal, slot.ID, models.UpdateAvailabilityRequest{EndTime: strPtr("11:00")})
	assert.True(t, errors.Is(err, appErrors.ErrSlotBooked))
}

func TestBookedSlotBlocksDirectScheduling(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{SpecificDate: strPtr("2025-03-05"), StartTime: "14:00", EndTime: "15:00"})
	require.NoError(t, err)
	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{})
	require.NoError(t, err)

	other := models.Principal{UserID: otherUUID, Role: models.RoleStudent}
	_, err = fx.service.Schedule(ctx, other, scheduleRequest(t, "2025-03-05T14:30:00Z", 30))
	assert.True(t, errors.Is(err, appErrors.ErrClassConflict))
}

func TestBookSlotLosingRaceCancelsClass(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{SpecificDate: strPtr("2025-03-05"), StartTime: "14:00", EndTime: "15:00"})
	require.NoError(t, err)
	fx.slots.markBooked = func(string) bool { return false }

	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSlotBooked.Code, appErr.Code)
	assert.Equal(t, 400, appErr.Status)
	assert.Empty(t, fx.notifier.recipients(models.NotificationClassScheduled))

	classes, err := fx.classes.ListAll(ctx, models.ClassFilter{})
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, models.ClassCancelled, classes[0].Status)
}

func TestCancelReleasesBookedSlot(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{SpecificDate: strPtr("2025-03-05"), StartTime: "14:00", EndTime: "15:00"})
	require.NoError(t, err)
	booking, err := fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{})
	require.NoError(t, err)

	_, err = fx.service.Cancel(ctx, tutorPrincipal, booking.Class.ID, models.CancelClassRequest{Reason: "conference"})
	require.NoError(t, err)
	assert.Equal(t, []string{slot.ID}, fx.slots.released)

	reopened, err := fx.booking.Get(ctx, studentPrincipal, slot.ID)
	require.NoError(t, err)
	assert.False(t, reopened.IsBooked)

	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{})
	assert.NoError(t, err)
}

func TestInactiveSlotsHiddenFromOthers(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(3), StartTime: "08:00", EndTime: "09:00"})
	require.NoError(t, err)
	_, err = fx.booking.Update(ctx, tutorPrincipal, slot.ID, models.UpdateAvailabilityRequest{IsActive: new(bool)})
	require.NoError(t, err)

	_, err = fx.booking.Get(ctx, studentPrincipal, slot.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	_, err = fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-05"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	visible, err := fx.booking.List(ctx, studentPrincipal, models.AvailabilityFilter{TutorID: tutorUUID})
	require.NoError(t, err)
	assert.Empty(t, visible)
	own, err := fx.booking.List(ctx, tutorPrincipal, models.AvailabilityFilter{TutorID: tutorUUID})
	require.NoError(t, err)
	assert.Len(t, own, 1)
}

func TestCompletedClassReopensRecurringSlot(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "10:00", EndTime: "11:00"})
	require.NoError(t, err)
	booking, err := fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-10"})
	require.NoError(t, err)

	// Other Mondays stay open while the slot is held for 2025-03-10.
	other := models.Principal{UserID: otherUUID, Role: models.RoleStudent}
	_, err = fx.service.Schedule(ctx, other, scheduleRequest(t, "2025-03-03T10:00:00Z", 60))
	require.NoError(t, err)
	_, err = fx.service.Schedule(ctx, other, scheduleRequest(t, "2025-03-10T10:30:00Z", 30))
	assert.True(t, errors.Is(err, appErrors.ErrClassConflict))

	_, err = fx.service.Complete(ctx, tutorPrincipal, booking.Class.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{slot.ID}, fx.slots.released)

	next, err := fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-17"})
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2025-03-17T10:00:00Z"), next.Class.ScheduledAt)
}

func TestCompletedClassKeepsDatedSlotBooked(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()
	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{SpecificDate: strPtr("2025-03-05"), StartTime: "14:00", EndTime: "15:00"})
	require.NoError(t, err)
	booking, err := fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{})
	require.NoError(t, err)

	_, err = fx.service.Complete(ctx, tutorPrincipal, booking.Class.ID)
	require.NoError(t, err)

	stored, err := fx.booking.Get(ctx, tutorPrincipal, slot.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsBooked)
}

func TestSlotWindowLimits(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()

	_, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(2), StartTime: "09:00", EndTime: "18:00"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(2), StartTime: "09:00", EndTime: "12:00"})
	require.NoError(t, err)
	_, err = fx.booking.Update(ctx, tutorPrincipal, slot.ID, models.UpdateAvailabilityRequest{EndTime: strPtr("17:30")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSlotMayEndAtMidnight(t *testing.T) {
	fx := newSchedulingFixture()
	ctx := context.Background()

	_, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "24:00", EndTime: "24:00"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	slot, err := fx.booking.Create(ctx, tutorPrincipal, models.CreateAvailabilityRequest{DayOfWeek: intPtr(1), StartTime: "22:00", EndTime: "24:00"})
	require.NoError(t, err)

	booking, err := fx.booking.Book(ctx, studentPrincipal, slot.ID, models.BookSlotRequest{Date: "2025-03-03"})
	require.NoError(t, err)
	assert.Equal(t, 120, booking.Class.DurationMinutes)
	assert.Equal(t, mustTime(t, "2025-03-04T00:00:00Z"), booking.Class.EndsAt())
}

func TestBookWithoutSchedulerFails(t *testing.T) {
	slots := newMemSlotRepo(models.AvailabilitySlot{ID: "s1", TutorID: tutorUUID, DayOfWeek: intPtr(1), StartTime: "09:00", EndTime: "10:00", IsActive: true})
	svc := NewAvailabilityService(slots, newFakeTutorRepo(approvedTutor(tutorUUID)), nil, nil, nil, nil, time.UTC)

	_, err := svc.Book(context.Background(), studentPrincipal, "s1", models.BookSlotRequest{Date: "2025-03-03"})
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
