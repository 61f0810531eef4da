package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type enrollmentRepository interface {
	GetByID(ctx context.Context, id string) (*models.CourseEnrollment, error)
	FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Create(ctx context.Context, enrollment *models.CourseEnrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
	ListLessonProgress(ctx context.Context, studentID, courseID string) ([]models.LessonProgress, error)
}

type courseReader interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
	CountLessons(ctx context.Context, courseID string) (int, error)
}

// EnrollmentService orchestrates course enrollment workflows.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	users     userFinder
	notifier  Notifier
	analytics overviewInvalidator
	authz     Authorizer
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, users userFinder, notifier Notifier, analytics overviewInvalidator, authz Authorizer, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	return &EnrollmentService{repo: repo, courses: courses, users: users, notifier: notifier, analytics: analytics, authz: authz, logger: logger}
}

// Enroll adds a student to a published course. A dropped enrollment is reactivated.
func (s *EnrollmentService) Enroll(ctx context.Context, principal models.Principal, courseID, studentID string) (*models.CourseEnrollment, error) {
	if principal.Role != models.RoleAdmin || studentID == "" {
		studentID = principal.UserID
	}
	if err := authorize(s.authz, principal, models.CapCourseEnroll, studentID); err != nil {
		return nil, err
	}

	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.Published {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course is not open for enrollment")
	}
	if course.InstructorID == studentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "instructors cannot enroll in their own course")
	}
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent || !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only active students can enroll")
	}

	existing, err := s.repo.FindByStudentCourse(ctx, studentID, courseID)
	switch {
	case err == nil && existing.Status == models.EnrollmentDropped:
		if err := s.repo.UpdateStatus(ctx, existing.ID, models.EnrollmentActive); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate enrollment")
		}
		existing.Status = models.EnrollmentActive
		s.enrolled(ctx, course, student, existing)
		return existing, nil
	case err == nil:
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already enrolled in this course")
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	total, err := s.courses.CountLessons(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count lessons")
	}
	enrollment := &models.CourseEnrollment{
		StudentID:    studentID,
		CourseID:     courseID,
		TotalLessons: total,
		Status:       models.EnrollmentActive,
	}
	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	s.enrolled(ctx, course, student, enrollment)
	return enrollment, nil
}

// Drop withdraws an active enrollment.
func (s *EnrollmentService) Drop(ctx context.Context, principal models.Principal, id string) (*models.CourseEnrollment, error) {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.authz, principal, models.CapCourseEnroll, enrollment.StudentID); err != nil {
		return nil, err
	}
	if enrollment.Status != models.EnrollmentActive {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot drop a %s enrollment", enrollment.Status),
			map[string]models.EnrollmentStatus{"from": enrollment.Status, "to": models.EnrollmentDropped})
	}
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentDropped); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop enrollment")
	}
	enrollment.Status = models.EnrollmentDropped
	s.invalidateOverview(ctx)
	return enrollment, nil
}

// Get returns an enrollment visible to the student or the course instructor.
func (s *EnrollmentService) Get(ctx context.Context, principal models.Principal, id string) (*models.CourseEnrollment, error) {
	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, principal, enrollment); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// LessonProgress lists per-lesson progress for an enrollment.
func (s *EnrollmentService) LessonProgress(ctx context.Context, principal models.Principal, id string) ([]models.LessonProgress, error) {
	enrollment, err := s.Get(ctx, principal, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListLessonProgress(ctx, enrollment.StudentID, enrollment.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lesson progress")
	}
	return rows, nil
}

// List returns enrollments with pagination metadata. Students see their own;
// tutors must name one of their courses.
func (s *EnrollmentService) List(ctx context.Context, principal models.Principal, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	switch principal.Role {
	case models.RoleAdmin:
	case models.RoleTutor:
		if filter.CourseID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "course_id is required")
		}
		course, err := s.loadCourse(ctx, filter.CourseID)
		if err != nil {
			return nil, nil, err
		}
		if err := authorize(s.authz, principal, models.CapEnrollmentView, course.InstructorID); err != nil {
			return nil, nil, err
		}
	default:
		filter.StudentID = principal.UserID
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *EnrollmentService) authorizeView(ctx context.Context, principal models.Principal, enrollment *models.CourseEnrollment) error {
	if principal.UserID == enrollment.StudentID || principal.Role == models.RoleAdmin {
		return authorize(s.authz, principal, models.CapEnrollmentView, enrollment.StudentID)
	}
	course, err := s.loadCourse(ctx, enrollment.CourseID)
	if err != nil {
		return err
	}
	return authorize(s.authz, principal, models.CapEnrollmentView, enrollment.StudentID, course.InstructorID)
}

func (s *EnrollmentService) enrolled(ctx context.Context, course *models.Course, student *models.User, enrollment *models.CourseEnrollment) {
	s.logger.Info("student enrolled", zap.String("enrollment_id", enrollment.ID), zap.String("course_id", course.ID), zap.String("student_id", student.ID))
	notify(ctx, s.notifier, s.logger, NotificationInput{
		UserID:       course.InstructorID,
		Type:         models.NotificationEnrolled,
		Title:        "New enrollment",
		Message:      fmt.Sprintf("%s enrolled in %s.", student.FullName, course.Title),
		ResourceType: "enrollment",
		ResourceID:   enrollment.ID,
	})
	s.invalidateOverview(ctx)
}

func (s *EnrollmentService) invalidateOverview(ctx context.Context) {
	if s.analytics != nil {
		s.analytics.InvalidateOverview(ctx)
	}
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.CourseEnrollment, error) {
	enrollment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) loadCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
