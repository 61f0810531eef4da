package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const tutorDetailSelect = `SELECT tp.user_id, tp.headline, tp.bio, tp.subjects, tp.hourly_rate, tp.approval_status, tp.active,
tp.reviewed_by, tp.reviewed_at, tp.created_at, tp.updated_at, u.full_name, u.email, u.active AS user_active
FROM tutor_profiles tp JOIN users u ON u.id = tp.user_id`

// TutorRepository persists tutor profiles.
type TutorRepository struct {
	db *sqlx.DB
}

// NewTutorRepository constructs a TutorRepository.
func NewTutorRepository(db *sqlx.DB) *TutorRepository {
	return &TutorRepository{db: db}
}

// FindByUserID returns the tutor profile joined with the account.
func (r *TutorRepository) FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error) {
	var detail models.TutorDetail
	if err := r.db.GetContext(ctx, &detail, tutorDetailSelect+` WHERE tp.user_id = $1`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find tutor profile: %w", err)
	}
	return &detail, nil
}

// List returns tutors matching the filter.
func (r *TutorRepository) List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error) {
	conditions := []string{"u.role = 'TUTOR'"}
	var args []interface{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("tp.approval_status = $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, strings.ToLower(filter.Subject))
		conditions = append(conditions, fmt.Sprintf("EXISTS (SELECT 1 FROM unnest(tp.subjects) s WHERE LOWER(s) = $%d)", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY tp.created_at DESC LIMIT %d OFFSET %d", tutorDetailSelect, where, pageSize, (page-1)*pageSize)
	var tutors []models.TutorDetail
	if err := r.db.SelectContext(ctx, &tutors, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tutors: %w", err)
	}
	var total int
	countQuery := "SELECT COUNT(*) FROM tutor_profiles tp JOIN users u ON u.id = tp.user_id" + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tutors: %w", err)
	}
	return tutors, total, nil
}

// Upsert creates or updates the editable profile fields. Approval state is untouched on update.
func (r *TutorRepository) Upsert(ctx context.Context, profile *models.TutorProfile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	if profile.ApprovalStatus == "" {
		profile.ApprovalStatus = models.TutorPending
	}
	if profile.Subjects == nil {
		profile.Subjects = []string{}
	}
	const query = `INSERT INTO tutor_profiles (user_id, headline, bio, subjects, hourly_rate, approval_status, active, created_at, updated_at)
VALUES (:user_id, :headline, :bio, :subjects, :hourly_rate, :approval_status, :active, :created_at, :updated_at)
ON CONFLICT (user_id) DO UPDATE SET headline = EXCLUDED.headline, bio = EXCLUDED.bio, subjects = EXCLUDED.subjects,
hourly_rate = EXCLUDED.hourly_rate, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("upsert tutor profile: %w", err)
	}
	return nil
}

// Review stores an approval decision.
func (r *TutorRepository) Review(ctx context.Context, userID string, status models.TutorApprovalStatus, reviewerID string, at time.Time) error {
	const query = `UPDATE tutor_profiles SET approval_status = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4 WHERE user_id = $1`
	res, err := r.db.ExecContext(ctx, query, userID, status, reviewerID, at)
	if err != nil {
		return fmt.Errorf("review tutor profile: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
