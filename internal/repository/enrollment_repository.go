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

const enrollmentColumns = `id, student_id, course_id, progress, completed_lessons, total_lessons, last_lesson_id, status,
certificate_id, enrolled_at, completed_at, updated_at`

const lessonProgressColumns = `id, student_id, lesson_id, course_id, completed, percentage, completed_at, created_at, updated_at`

// EnrollmentRepository persists course enrollments and per-lesson progress.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// GetByID returns an enrollment.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.CourseEnrollment, error) {
	var enrollment models.CourseEnrollment
	if err := r.db.GetContext(ctx, &enrollment, `SELECT `+enrollmentColumns+` FROM course_enrollments WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindByStudentCourse returns the enrollment of a student in a course.
func (r *EnrollmentRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.CourseEnrollment, error) {
	var enrollment models.CourseEnrollment
	query := `SELECT ` + enrollmentColumns + ` FROM course_enrollments WHERE student_id = $1 AND course_id = $2`
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// List returns enrollments with course and student names.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var conditions []string
	var args []interface{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	base := `SELECT e.id, e.student_id, e.course_id, e.progress, e.completed_lessons, e.total_lessons, e.last_lesson_id, e.status,
e.certificate_id, e.enrolled_at, e.completed_at, e.updated_at, c.title AS course_title, u.full_name AS student_name
FROM course_enrollments e JOIN courses c ON c.id = e.course_id JOIN users u ON u.id = e.student_id`

	var query string
	if filter.PageSize < 0 {
		query = base + where + " ORDER BY e.enrolled_at DESC"
	} else {
		page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)
		query = fmt.Sprintf("%s%s ORDER BY e.enrolled_at DESC LIMIT %d OFFSET %d", base, where, pageSize, (page-1)*pageSize)
	}
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM course_enrollments e"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Create inserts an enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.CourseEnrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.EnrolledAt = now
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentActive
	}
	const query = `INSERT INTO course_enrollments (id, student_id, course_id, progress, completed_lessons, total_lessons, status, enrolled_at, updated_at)
VALUES (:id, :student_id, :course_id, :progress, :completed_lessons, :total_lessons, :status, :enrolled_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateStatus changes the enrollment status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE course_enrollments SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SaveProgress stores recomputed counters. Completion is sticky: a completed
// enrollment keeps its status and completion time.
func (r *EnrollmentRepository) SaveProgress(ctx context.Context, enrollment *models.CourseEnrollment) error {
	enrollment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE course_enrollments SET progress = $2, completed_lessons = $3, total_lessons = $4,
last_lesson_id = COALESCE($5, last_lesson_id),
status = CASE WHEN status = 'COMPLETED' THEN status ELSE $6 END,
completed_at = COALESCE(completed_at, $7), updated_at = $8
WHERE id = $1
RETURNING status, completed_at`
	row := struct {
		Status      models.EnrollmentStatus `db:"status"`
		CompletedAt *time.Time              `db:"completed_at"`
	}{}
	if err := r.db.GetContext(ctx, &row, query, enrollment.ID, enrollment.Progress, enrollment.CompletedLessons, enrollment.TotalLessons,
		enrollment.LastLessonID, enrollment.Status, enrollment.CompletedAt, enrollment.UpdatedAt); err != nil {
		return fmt.Errorf("save enrollment progress: %w", err)
	}
	enrollment.Status = row.Status
	enrollment.CompletedAt = row.CompletedAt
	return nil
}

// LinkCertificate attaches a certificate once; later calls leave the first link in place.
func (r *EnrollmentRepository) LinkCertificate(ctx context.Context, enrollmentID, certificateID string) error {
	const query = `UPDATE course_enrollments SET certificate_id = $2, updated_at = $3 WHERE id = $1 AND certificate_id IS NULL`
	if _, err := r.db.ExecContext(ctx, query, enrollmentID, certificateID, time.Now().UTC()); err != nil {
		return fmt.Errorf("link certificate: %w", err)
	}
	return nil
}

// UpsertLessonProgress records progress on a lesson. Percentage never decreases
// and a completed lesson stays completed.
func (r *EnrollmentRepository) UpsertLessonProgress(ctx context.Context, progress *models.LessonProgress) error {
	if progress.ID == "" {
		progress.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	progress.CreatedAt = now
	progress.UpdatedAt = now
	const query = `INSERT INTO lesson_progress (id, student_id, lesson_id, course_id, completed, percentage, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (student_id, lesson_id) DO UPDATE SET
percentage = GREATEST(lesson_progress.percentage, EXCLUDED.percentage),
completed = lesson_progress.completed OR EXCLUDED.completed,
completed_at = COALESCE(lesson_progress.completed_at, EXCLUDED.completed_at),
updated_at = EXCLUDED.updated_at
RETURNING ` + lessonProgressColumns
	if err := r.db.GetContext(ctx, progress, query, progress.ID, progress.StudentID, progress.LessonID, progress.CourseID,
		progress.Completed, progress.Percentage, progress.CompletedAt, now); err != nil {
		return fmt.Errorf("upsert lesson progress: %w", err)
	}
	return nil
}

// CountCompletedLessons counts completed lessons that still belong to the course.
func (r *EnrollmentRepository) CountCompletedLessons(ctx context.Context, studentID, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM lesson_progress lp JOIN lessons l ON l.id = lp.lesson_id
WHERE lp.student_id = $1 AND l.course_id = $2 AND lp.completed = TRUE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, courseID); err != nil {
		return 0, fmt.Errorf("count completed lessons: %w", err)
	}
	return count, nil
}

// ListLessonProgress returns a student's progress rows for a course.
func (r *EnrollmentRepository) ListLessonProgress(ctx context.Context, studentID, courseID string) ([]models.LessonProgress, error) {
	var rows []models.LessonProgress
	query := `SELECT ` + lessonProgressColumns + ` FROM lesson_progress WHERE student_id = $1 AND course_id = $2 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &rows, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list lesson progress: %w", err)
	}
	return rows, nil
}
