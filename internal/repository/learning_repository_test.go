package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
)

var certificateRowColumns = []string{"id", "course_id", "student_id", "instructor_id", "certificate_number", "completed_at", "issued_at", "file_path"}

func TestCourseRepositoryCreateLessonAppends(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lessons")).
		WithArgs(sqlmock.AnyArg(), "course-1", "Intro", "", 0, 15, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"position"}).AddRow(4))

	lesson := &models.Lesson{CourseID: "course-1", Title: "Intro", DurationMinutes: 15}
	require.NoError(t, repo.CreateLesson(context.Background(), lesson))
	assert.Equal(t, 4, lesson.Position)
	assert.NotEmpty(t, lesson.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryCountLessons(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM lessons WHERE course_id = $1")).
		WithArgs("course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	total, err := repo.CountLessons(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpsertLessonProgressKeepsCompletion(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, lesson_id) DO UPDATE SET")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "lesson_id", "course_id", "completed", "percentage", "completed_at", "created_at", "updated_at"}).
			AddRow("lp-original", "s1", "l1", "course-1", true, 100, now, now, now))

	progress := &models.LessonProgress{StudentID: "s1", LessonID: "l1", CourseID: "course-1", Percentage: 40}
	require.NoError(t, repo.UpsertLessonProgress(context.Background(), progress))
	assert.Equal(t, "lp-original", progress.ID)
	assert.True(t, progress.Completed)
	assert.Equal(t, 100, progress.Percentage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySaveProgressReadsBackStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	completedAt := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE course_enrollments SET progress = $2")).
		WithArgs("e1", 100, 4, 4, sqlmock.AnyArg(), models.EnrollmentCompleted, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"status", "completed_at"}).AddRow("COMPLETED", completedAt))

	lessonID := "l4"
	enrollment := &models.CourseEnrollment{ID: "e1", Progress: 100, CompletedLessons: 4, TotalLessons: 4, LastLessonID: &lessonID, Status: models.EnrollmentCompleted}
	require.NoError(t, repo.SaveProgress(context.Background(), enrollment))
	assert.Equal(t, models.EnrollmentCompleted, enrollment.Status)
	require.NotNil(t, enrollment.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryLinkCertificateOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND certificate_id IS NULL")).
		WithArgs("e1", "cert-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.LinkCertificate(context.Background(), "e1", "cert-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateOnceInserts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (course_id, student_id) DO NOTHING")).
		WillReturnRows(sqlmock.NewRows(certificateRowColumns).AddRow("cert-1", "course-1", "s1", "i1", "TUT-1", now, now, nil))

	cert, created, err := repo.CreateOnce(context.Background(), &models.Certificate{ID: "cert-1", CourseID: "course-1", StudentID: "s1", InstructorID: "i1", CertificateNumber: "TUT-1", CompletedAt: now, IssuedAt: now})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "cert-1", cert.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateRepositoryCreateOnceReturnsExisting(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (course_id, student_id) DO NOTHING")).WillReturnRows(sqlmock.NewRows(certificateRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("FROM certificates WHERE student_id = $1 AND course_id = $2")).
		WithArgs("s1", "course-1").
		WillReturnRows(sqlmock.NewRows(certificateRowColumns).AddRow("cert-first", "course-1", "s1", "i1", "TUT-0", now, now, "certificates/cert-first.pdf"))

	cert, created, err := repo.CreateOnce(context.Background(), &models.Certificate{CourseID: "course-1", StudentID: "s1", InstructorID: "i1", CertificateNumber: "TUT-2", CompletedAt: now, IssuedAt: now})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "cert-first", cert.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
