package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotRowColumns = []string{"id", "tutor_id", "day_of_week", "specific_date", "start_time", "end_time", "is_active", "is_booked", "class_id", "created_at", "updated_at"}

func TestAvailabilityRepositoryListActiveOnWeekday(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	now := time.Now()
	day := 2
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tutor_id = $1 AND is_active = TRUE AND day_of_week = $2 ORDER BY start_time")).
		WithArgs("t1", 2).
		WillReturnRows(sqlmock.NewRows(slotRowColumns).
			AddRow("s1", "t1", 2, nil, "09:00", "10:00", true, false, nil, now, now))

	slots, err := repo.ListActiveOnKey(context.Background(), "t1", &day, nil)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Recurring())
	assert.Equal(t, 2, *slots[0].DayOfWeek)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListActiveOnKeyRequiresKey(t *testing.T) {
	db, _, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	_, err := repo.ListActiveOnKey(context.Background(), "t1", nil, nil)
	assert.Error(t, err)
}

func TestAvailabilityRepositoryMarkBookedGuarded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_booked = FALSE AND is_active = TRUE")).
		WithArgs("s1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND is_booked = FALSE AND is_active = TRUE")).
		WithArgs("s1", "c2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.MarkBooked(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkBooked(context.Background(), "s1", "c2")
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryDeleteBookedSlotIsNoop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM availability_slots WHERE id = $1 AND is_booked = FALSE")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryListBookedOnLoadsClassStart(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	now := time.Now()
	bookedFor := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	columns := append(append([]string{}, slotRowColumns...), "booked_for")
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN class_sessions c ON c.id = s.class_id")).
		WithArgs("t1", "2025-03-10", 1).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("s1", "t1", 1, nil, "10:00", "11:00", true, true, "c1", now, now, bookedFor))

	slots, err := repo.ListBookedOn(context.Background(), "t1", "2025-03-10", 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.NotNil(t, slots[0].BookedFor)
	assert.True(t, bookedFor.Equal(*slots[0].BookedFor))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAvailabilityRepositoryReleaseRecurringOnlyTouchesWeeklySlots(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAvailabilityRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND class_id = $2 AND day_of_week IS NOT NULL")).
		WithArgs("s1", "c1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseRecurring(context.Background(), "s1", "c1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
