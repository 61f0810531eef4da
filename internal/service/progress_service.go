package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

// JobCertificateRender renders and stores the PDF of a newly issued certificate.
const JobCertificateRender = "certificate.render"

type progressRepository interface {
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error)
	UpsertLessonProgress(ctx context.Context, progress *models.LessonProgress) error
	CountCompletedLessons(ctx context.Context, studentID, courseID string) (int, error)
	SaveProgress(ctx context.Context, enrollment *models.CourseEnrollment) error
	LinkCertificate(ctx context.Context, enrollmentID, certificateID string) error
}

type lessonCatalog interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
	GetLesson(ctx context.Context, id string) (*models.Lesson, error)
	CountLessons(ctx context.Context, courseID string) (int, error)
}

type certificateIssuer interface {
	CreateOnce(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error)
}

// ProgressService records lesson progress, recomputes enrollment completion
// and issues the course certificate when a student reaches 100%.
type ProgressService struct {
	enrollments  progressRepository
	courses      lessonCatalog
	certificates certificateIssuer
	notifier     Notifier
	queue        JobEnqueuer
	analytics    overviewInvalidator
	metrics      *MetricsService
	authz        Authorizer
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// ProgressServiceDeps groups the collaborators of ProgressService.
type ProgressServiceDeps struct {
	Enrollments  progressRepository
	Courses      lessonCatalog
	Certificates certificateIssuer
	Notifier     Notifier
	Queue        JobEnqueuer
	Analytics    overviewInvalidator
	Metrics      *MetricsService
	Authz        Authorizer
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// NewProgressService constructs the service.
func NewProgressService(deps ProgressServiceDeps) *ProgressService {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Authz == nil {
		deps.Authz = DefaultPolicy()
	}
	return &ProgressService{
		enrollments:  deps.Enrollments,
		courses:      deps.Courses,
		certificates: deps.Certificates,
		notifier:     deps.Notifier,
		queue:        deps.Queue,
		analytics:    deps.Analytics,
		metrics:      deps.Metrics,
		authz:        deps.Authz,
		validator:    deps.Validator,
		logger:       deps.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CourseProgress is round(completed/total*100) clamped to [0, 100]. A course
// without lessons is at 0.
func CourseProgress(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	progress := int(math.Round(float64(completed) / float64(total) * 100))
	if progress > 100 {
		return 100
	}
	return progress
}

// RecordLessonComplete marks a lesson complete for the student.
func (s *ProgressService) RecordLessonComplete(ctx context.Context, principal models.Principal, studentID, lessonID string) (*models.ProgressResult, error) {
	return s.RecordLessonProgress(ctx, principal, studentID, lessonID, models.LessonProgressRequest{Percentage: 100})
}

// RecordLessonProgress stores partial progress on a lesson and recomputes the enrollment.
func (s *ProgressService) RecordLessonProgress(ctx context.Context, principal models.Principal, studentID, lessonID string, req models.LessonProgressRequest) (*models.ProgressResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid progress payload")
	}
	if studentID == "" {
		studentID = principal.UserID
	}
	if err := authorize(s.authz, principal, models.CapProgressRecord, studentID); err != nil {
		return nil, err
	}

	lesson, err := s.courses.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	enrollment, err := s.enrollments.FindByStudentCourse(ctx, studentID, lesson.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "student is not enrolled in this course")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentDropped {
		return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "enrollment was dropped")
	}

	now := s.now()
	progress := &models.LessonProgress{
		StudentID:  studentID,
		LessonID:   lesson.ID,
		CourseID:   lesson.CourseID,
		Percentage: req.Percentage,
		Completed:  req.Percentage >= 100,
	}
	if progress.Completed {
		progress.CompletedAt = &now
	}
	if err := s.enrollments.UpsertLessonProgress(ctx, progress); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record lesson progress")
	}

	if err := s.recompute(ctx, enrollment, lesson.ID, now); err != nil {
		return nil, err
	}

	result := &models.ProgressResult{
		EnrollmentID:     enrollment.ID,
		CourseID:         enrollment.CourseID,
		Progress:         enrollment.Progress,
		CompletedLessons: enrollment.CompletedLessons,
		TotalLessons:     enrollment.TotalLessons,
		Status:           enrollment.Status,
	}
	if enrollment.Status == models.EnrollmentCompleted {
		cert, issued, err := s.issueCertificate(ctx, enrollment)
		if err != nil {
			return nil, err
		}
		result.Certificate = cert
		result.CertificateIssued = issued
	}
	s.invalidateOverview(ctx)
	return result, nil
}

// recompute refreshes the enrollment counters from lesson progress. Progress
// never moves backwards and completion is sticky.
func (s *ProgressService) recompute(ctx context.Context, enrollment *models.CourseEnrollment, lessonID string, now time.Time) error {
	total, err := s.courses.CountLessons(ctx, enrollment.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	completed, err := s.enrollments.CountCompletedLessons(ctx, enrollment.StudentID, enrollment.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count completed lessons")
	}

	progress := CourseProgress(completed, total)
	if progress < enrollment.Progress {
		progress = enrollment.Progress
	}
	enrollment.Progress = progress
	enrollment.CompletedLessons = completed
	enrollment.TotalLessons = total
	enrollment.LastLessonID = &lessonID
	if progress >= 100 && enrollment.Status != models.EnrollmentCompleted {
		enrollment.Status = models.EnrollmentCompleted
		enrollment.CompletedAt = &now
	}
	if err := s.enrollments.SaveProgress(ctx, enrollment); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save enrollment progress")
	}
	return nil
}

// issueCertificate creates the (course, student) certificate once and links it
// to the enrollment. issued is true only for the call that created it.
func (s *ProgressService) issueCertificate(ctx context.Context, enrollment *models.CourseEnrollment) (*models.Certificate, bool, error) {
	course, err := s.courses.GetByID(ctx, enrollment.CourseID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	completedAt := s.now()
	if enrollment.CompletedAt != nil {
		completedAt = *enrollment.CompletedAt
	}
	cert, created, err := s.certificates.CreateOnce(ctx, &models.Certificate{
		CourseID:          enrollment.CourseID,
		StudentID:         enrollment.StudentID,
		InstructorID:      course.InstructorID,
		CertificateNumber: certificateNumber(completedAt),
		CompletedAt:       completedAt,
		IssuedAt:          s.now(),
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue certificate")
	}
	if enrollment.CertificateID == nil {
		if err := s.enrollments.LinkCertificate(ctx, enrollment.ID, cert.ID); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to link certificate")
		}
		enrollment.CertificateID = &cert.ID
	}
	if !created {
		return cert, false, nil
	}

	s.metrics.RecordCertificateIssued()
	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID),
		zap.String("course_id", cert.CourseID),
		zap.String("student_id", cert.StudentID),
	)
	notify(ctx, s.notifier, s.logger, NotificationInput{
		UserID:       enrollment.StudentID,
		Type:         models.NotificationCertificate,
		Title:        "Certificate issued",
		Message:      fmt.Sprintf("Congratulations! You completed %s.", course.Title),
		ResourceType: "certificate",
		ResourceID:   cert.ID,
	})
	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: cert.ID, Type: JobCertificateRender, Payload: cert.ID}); err != nil {
			s.logger.Warn("failed to enqueue certificate render", zap.String("certificate_id", cert.ID), zap.Error(err))
		}
	}
	return cert, true, nil
}

func (s *ProgressService) invalidateOverview(ctx context.Context) {
	if s.analytics != nil {
		s.analytics.InvalidateOverview(ctx)
	}
}

func certificateNumber(completedAt time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("TUT-%s-%s", completedAt.UTC().Format("20060102"), suffix)
}
