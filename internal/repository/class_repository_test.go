package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
)

func TestClassRepositoryCreateExclusiveInsertsUnderLock(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	start := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).WithArgs("t1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, scheduled_at, duration_minutes FROM class_sessions")).
		WithArgs("t1", sqlmock.AnyArg(), start.Add(time.Hour), start).
		WillReturnRows(sqlmock.NewRows([]string{"id", "scheduled_at", "duration_minutes"}))
	mock.ExpectExec("INSERT INTO class_sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	class := &models.ClassSession{TutorID: "t1", StudentID: "s1", ScheduledAt: start, DurationMinutes: 60, Status: models.ClassScheduled}
	require.NoError(t, repo.CreateExclusive(context.Background(), class))
	assert.NotEmpty(t, class.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryCreateExclusiveRejectsOverlap(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	existing := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, scheduled_at, duration_minutes FROM class_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "scheduled_at", "duration_minutes"}).AddRow("c-existing", existing, 60))
	mock.ExpectRollback()

	class := &models.ClassSession{TutorID: "t1", StudentID: "s1", ScheduledAt: existing.Add(30 * time.Minute), DurationMinutes: 60, Status: models.ClassScheduled}
	err := repo.CreateExclusive(context.Background(), class)

	var overlap *OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, "c-existing", overlap.ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryRescheduleExcludesItself(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	start := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("AND id <> $5 LIMIT 1")).
		WithArgs("t1", sqlmock.AnyArg(), start.Add(time.Hour), start, "c1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "scheduled_at", "duration_minutes"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_sessions SET scheduled_at")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	class := &models.ClassSession{ID: "c1", TutorID: "t1", ScheduledAt: start, DurationMinutes: 60, Status: models.ClassRescheduled}
	require.NoError(t, repo.RescheduleExclusive(context.Background(), class, true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryUpdateStatusStale(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_sessions SET status = $2")).WillReturnResult(sqlmock.NewResult(0, 0))

	class := &models.ClassSession{ID: "c1", Status: models.ClassCancelled}
	err := repo.UpdateStatus(context.Background(), class, []models.ClassStatus{models.ClassScheduled})
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE (c.tutor_id = $1 OR c.student_id = $1) AND c.status = ANY($2) ORDER BY c.scheduled_at ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM class_sessions c WHERE (c.tutor_id = $1 OR c.student_id = $1)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	classes, total, err := repo.List(context.Background(), models.ClassFilter{ParticipantID: "u1", Status: []models.ClassStatus{models.ClassScheduled}})
	require.NoError(t, err)
	assert.Empty(t, classes)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
