package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type progressFixture struct {
	courses      *memCourses
	enrollments  *memEnrollments
	certificates *memCertificates
	queue        *recordingQueue
	notifier     *recordingNotifier
	analytics    *countingInvalidator
	service      *ProgressService
}

func newProgressFixture() *progressFixture {
	courses := newMemCourses()
	enrollments := newMemEnrollments(courses)
	fx := &progressFixture{
		courses:      courses,
		enrollments:  enrollments,
		certificates: newMemCertificates(),
		queue:        &recordingQueue{},
		notifier:     &recordingNotifier{},
		analytics:    &countingInvalidator{},
	}
	fx.service = NewProgressService(ProgressServiceDeps{
		Enrollments:  enrollments,
		Courses:      courses,
		Certificates: fx.certificates,
		Notifier:     fx.notifier,
		Queue:        fx.queue,
		Analytics:    fx.analytics,
	})
	return fx
}

func (fx *progressFixture) enroll(t *testing.T, courseID string) *models.CourseEnrollment {
	enrollment := &models.CourseEnrollment{StudentID: studentUUID, CourseID: courseID, Status: models.EnrollmentActive}
	require.NoError(t, fx.enrollments.Create(context.Background(), enrollment))
	return enrollment
}

func TestCourseProgress(t *testing.T) {
	cases := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 4, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 4, 75},
		{4, 4, 100},
		{5, 4, 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CourseProgress(tc.completed, tc.total), "%d/%d", tc.completed, tc.total)
	}
}

func TestCompletingCourseIssuesOneCertificate(t *testing.T) {
	fx := newProgressFixture()
	ctx := context.Background()
	lessons := fx.courses.seed("course-1", tutorUUID, 4)
	enrollment := fx.enroll(t, "course-1")

	var result *models.ProgressResult
	var err error
	for _, lessonID := range lessons[:3] {
		result, err = fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, lessonID)
		require.NoError(t, err)
		assert.False(t, result.CertificateIssued)
	}
	assert.Equal(t, 75, result.Progress)
	assert.Equal(t, 3, result.CompletedLessons)
	assert.Equal(t, 4, result.TotalLessons)
	assert.Equal(t, models.EnrollmentActive, result.Status)
	assert.Equal(t, 0, fx.certificates.count())

	result, err = fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, lessons[3])
	require.NoError(t, err)
	assert.Equal(t, 100, result.Progress)
	assert.Equal(t, models.EnrollmentCompleted, result.Status)
	assert.True(t, result.CertificateIssued)
	require.NotNil(t, result.Certificate)
	assert.Equal(t, tutorUUID, result.Certificate.InstructorID)
	assert.Regexp(t, `^TUT-\d{8}-[0-9A-F]{10}$`, result.Certificate.CertificateNumber)
	assert.Equal(t, 1, fx.certificates.count())
	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, JobCertificateRender, fx.queue.jobs[0].Type)
	assert.Equal(t, result.Certificate.ID, fx.queue.jobs[0].Payload)
	assert.Equal(t, []string{studentUUID}, fx.notifier.recipients(models.NotificationCertificate))

	again, err := fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, lessons[3])
	require.NoError(t, err)
	assert.Equal(t, 100, again.Progress)
	assert.Equal(t, 4, again.CompletedLessons)
	assert.False(t, again.CertificateIssued)
	require.NotNil(t, again.Certificate)
	assert.Equal(t, result.Certificate.ID, again.Certificate.ID)
	assert.Equal(t, 1, fx.certificates.count())
	assert.Len(t, fx.queue.jobs, 1)

	stored, err := fx.enrollments.GetByID(ctx, enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CertificateID)
	assert.Equal(t, result.Certificate.ID, *stored.CertificateID)
	require.NotNil(t, stored.CompletedAt)
}

func TestProgressNeverDecreases(t *testing.T) {
	fx := newProgressFixture()
	ctx := context.Background()
	lessons := fx.courses.seed("course-1", tutorUUID, 2)
	fx.enroll(t, "course-1")

	result, err := fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, lessons[0])
	require.NoError(t, err)
	assert.Equal(t, 50, result.Progress)

	result, err = fx.service.RecordLessonProgress(ctx, studentPrincipal, studentUUID, lessons[0], models.LessonProgressRequest{Percentage: 10})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Progress)
	assert.Equal(t, 1, result.CompletedLessons)

	rows, err := fx.enrollments.ListLessonProgress(ctx, studentUUID, "course-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)
	assert.Equal(t, 100, rows[0].Percentage)

	fx.courses.seed("course-1", tutorUUID, 2)
	result, err = fx.service.RecordLessonProgress(ctx, studentPrincipal, studentUUID, lessons[1], models.LessonProgressRequest{Percentage: 40})
	require.NoError(t, err)
	assert.Equal(t, 50, result.Progress)
	assert.Equal(t, 4, result.TotalLessons)
}

func TestPartialProgressDoesNotComplete(t *testing.T) {
	fx := newProgressFixture()
	lessons := fx.courses.seed("course-1", tutorUUID, 1)
	fx.enroll(t, "course-1")

	result, err := fx.service.RecordLessonProgress(context.Background(), studentPrincipal, studentUUID, lessons[0], models.LessonProgressRequest{Percentage: 99})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Progress)
	assert.Equal(t, models.EnrollmentActive, result.Status)
	assert.Equal(t, 0, fx.certificates.count())

	_, err = fx.service.RecordLessonProgress(context.Background(), studentPrincipal, studentUUID, lessons[0], models.LessonProgressRequest{Percentage: 101})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRecordProgressRequiresEnrollment(t *testing.T) {
	fx := newProgressFixture()
	ctx := context.Background()
	lessons := fx.courses.seed("course-1", tutorUUID, 2)

	_, err := fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, lessons[0])
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErr.Code)
	assert.Equal(t, 403, appErr.Status)

	enrollment := fx.enroll(t, "course-1")
	require.NoError(t, fx.enrollments.UpdateStatus(ctx, enrollment.ID, models.EnrollmentDropped))
	_, err = fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, lessons[0])
	assert.True(t, errors.Is(err, appErrors.ErrNotEnrolled))

	_, err = fx.service.RecordLessonComplete(ctx, studentPrincipal, studentUUID, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = fx.service.RecordLessonComplete(ctx, tutorPrincipal, studentUUID, lessons[0])
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
