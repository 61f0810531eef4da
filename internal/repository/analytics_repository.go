package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutorly-api/internal/models"
)

// AnalyticsRepository exposes read-only aggregate queries for the admin dashboard.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository instantiates the repository.
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// UsersByRole counts active accounts per role.
func (r *AnalyticsRepository) UsersByRole(ctx context.Context) (map[string]int, error) {
	return r.grouped(ctx, "users by role", `SELECT role AS key, COUNT(*) AS count FROM users WHERE active = TRUE GROUP BY role`)
}

// ClassesByStatus counts class sessions per status.
func (r *AnalyticsRepository) ClassesByStatus(ctx context.Context) (map[string]int, error) {
	return r.grouped(ctx, "classes by status", `SELECT status AS key, COUNT(*) AS count FROM class_sessions GROUP BY status`)
}

// EnrollmentsByStatus counts course enrollments per status.
func (r *AnalyticsRepository) EnrollmentsByStatus(ctx context.Context) (map[string]int, error) {
	return r.grouped(ctx, "enrollments by status", `SELECT status AS key, COUNT(*) AS count FROM course_enrollments GROUP BY status`)
}

// PendingTutors counts tutor profiles awaiting review.
func (r *AnalyticsRepository) PendingTutors(ctx context.Context) (int, error) {
	return r.count(ctx, "pending tutors", `SELECT COUNT(*) FROM tutor_profiles WHERE approval_status = 'PENDING'`)
}

// CertificatesIssued counts all certificates.
func (r *AnalyticsRepository) CertificatesIssued(ctx context.Context) (int, error) {
	return r.count(ctx, "certificates", `SELECT COUNT(*) FROM certificates`)
}

// UpcomingClasses counts active classes starting after now.
func (r *AnalyticsRepository) UpcomingClasses(ctx context.Context, now time.Time) (int, error) {
	return r.count(ctx, "upcoming classes", `SELECT COUNT(*) FROM class_sessions WHERE scheduled_at >= $1 AND status = ANY($2)`,
		now, pq.Array(statusStrings(models.ActiveClassStatuses)))
}

// AverageProgress returns the mean progress of non-dropped enrollments.
func (r *AnalyticsRepository) AverageProgress(ctx context.Context) (float64, error) {
	var avg float64
	if err := r.db.GetContext(ctx, &avg, `SELECT COALESCE(AVG(progress), 0) FROM course_enrollments WHERE status <> 'DROPPED'`); err != nil {
		return 0, fmt.Errorf("query average progress: %w", err)
	}
	return avg, nil
}

func (r *AnalyticsRepository) grouped(ctx context.Context, name, query string, args ...interface{}) (map[string]int, error) {
	var rows []models.CountByKey
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Count
	}
	return out, nil
}

func (r *AnalyticsRepository) count(ctx context.Context, name, query string, args ...interface{}) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("query %s: %w", name, err)
	}
	return n, nil
}
