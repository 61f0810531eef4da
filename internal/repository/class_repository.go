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
	"github.com/lib/pq"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const classColumns = `id, tutor_id, student_id, subject, notes, scheduled_at, duration_minutes, status, meeting_link, meeting_platform,
slot_id, cancelled_by, cancelled_by_role, cancel_reason, cancelled_at, rescheduled_from, reschedule_reason, rescheduled_at,
started_at, completed_at, created_at, updated_at`

const classDetailSelect = `SELECT c.id, c.tutor_id, c.student_id, c.subject, c.notes, c.scheduled_at, c.duration_minutes, c.status,
c.meeting_link, c.meeting_platform, c.slot_id, c.cancelled_by, c.cancelled_by_role, c.cancel_reason, c.cancelled_at,
c.rescheduled_from, c.reschedule_reason, c.rescheduled_at, c.started_at, c.completed_at, c.created_at, c.updated_at,
t.full_name AS tutor_name, s.full_name AS student_name
FROM class_sessions c JOIN users t ON t.id = c.tutor_id JOIN users s ON s.id = c.student_id`

// ErrStaleState signals that a guarded status update matched no row.
var ErrStaleState = errors.New("class status changed concurrently")

// OverlapError reports the session that blocked an exclusive write.
type OverlapError struct {
	ClassID     string
	ScheduledAt time.Time
	Duration    int
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlaps class %s", e.ClassID)
}

// ClassRepository persists class sessions.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// GetByID returns a class session.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*models.ClassSession, error) {
	var class models.ClassSession
	if err := r.db.GetContext(ctx, &class, `SELECT `+classColumns+` FROM class_sessions WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get class session: %w", err)
	}
	return &class, nil
}

// List returns classes with participant names and the total count.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	where, args := classFilterClause(filter)
	order := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		order = "DESC"
	}
	page, pageSize := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("%s%s ORDER BY c.scheduled_at %s LIMIT %d OFFSET %d", classDetailSelect, where, order, pageSize, (page-1)*pageSize)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list class sessions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM class_sessions c"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count class sessions: %w", err)
	}
	return classes, total, nil
}

// ListAll returns every class matching the filter without paging, for exports and feeds.
func (r *ClassRepository) ListAll(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, error) {
	where, args := classFilterClause(filter)
	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, classDetailSelect+where+" ORDER BY c.scheduled_at", args...); err != nil {
		return nil, fmt.Errorf("list all class sessions: %w", err)
	}
	return classes, nil
}

func classFilterClause(filter models.ClassFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.TutorID != "" {
		args = append(args, filter.TutorID)
		conditions = append(conditions, fmt.Sprintf("c.tutor_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("c.student_id = $%d", len(args)))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		conditions = append(conditions, fmt.Sprintf("(c.tutor_id = $%d OR c.student_id = $%d)", len(args), len(args)))
	}
	if len(filter.Status) > 0 {
		args = append(args, pq.Array(statusStrings(filter.Status)))
		conditions = append(conditions, fmt.Sprintf("c.status = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("c.scheduled_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("c.scheduled_at < $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// ListActiveForTutor returns the tutor's active sessions starting in [from, to).
func (r *ClassRepository) ListActiveForTutor(ctx context.Context, tutorID string, from, to time.Time) ([]models.ClassSession, error) {
	query := `SELECT ` + classColumns + ` FROM class_sessions
WHERE tutor_id = $1 AND status = ANY($2) AND scheduled_at >= $3 AND scheduled_at < $4 ORDER BY scheduled_at`
	var classes []models.ClassSession
	if err := r.db.SelectContext(ctx, &classes, query, tutorID, pq.Array(statusStrings(models.ActiveClassStatuses)), from, to); err != nil {
		return nil, fmt.Errorf("list active tutor sessions: %w", err)
	}
	return classes, nil
}

// CreateExclusive inserts the class while holding a per-tutor advisory lock and
// re-checking overlaps, so concurrent bookings for one tutor are serialised.
func (r *ClassRepository) CreateExclusive(ctx context.Context, class *models.ClassSession) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now

	return r.withTutorLock(ctx, class.TutorID, func(tx *sqlx.Tx) error {
		if err := findOverlap(ctx, tx, class.TutorID, class.ScheduledAt, class.EndsAt(), ""); err != nil {
			return err
		}
		const query = `INSERT INTO class_sessions (id, tutor_id, student_id, subject, notes, scheduled_at, duration_minutes, status,
meeting_link, meeting_platform, slot_id, created_at, updated_at)
VALUES (:id, :tutor_id, :student_id, :subject, :notes, :scheduled_at, :duration_minutes, :status,
:meeting_link, :meeting_platform, :slot_id, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, class); err != nil {
			return fmt.Errorf("create class session: %w", err)
		}
		return nil
	})
}

// RescheduleExclusive moves the class under the tutor lock. checkOverlap toggles the in-lock re-check.
func (r *ClassRepository) RescheduleExclusive(ctx context.Context, class *models.ClassSession, checkOverlap bool) error {
	class.UpdatedAt = time.Now().UTC()
	return r.withTutorLock(ctx, class.TutorID, func(tx *sqlx.Tx) error {
		if checkOverlap {
			if err := findOverlap(ctx, tx, class.TutorID, class.ScheduledAt, class.EndsAt(), class.ID); err != nil {
				return err
			}
		}
		const query = `UPDATE class_sessions SET scheduled_at = :scheduled_at, duration_minutes = :duration_minutes, status = :status,
rescheduled_from = :rescheduled_from, reschedule_reason = :reschedule_reason, rescheduled_at = :rescheduled_at, updated_at = :updated_at
WHERE id = :id AND status IN ('SCHEDULED', 'RESCHEDULED')`
		res, err := tx.NamedExecContext(ctx, query, class)
		if err != nil {
			return fmt.Errorf("reschedule class session: %w", err)
		}
		ok, err := rowsChanged(res, "reschedule class session")
		if err != nil {
			return err
		}
		if !ok {
			return ErrStaleState
		}
		return nil
	})
}

// UpdateStatus applies a transition only when the stored status is one of from.
func (r *ClassRepository) UpdateStatus(ctx context.Context, class *models.ClassSession, from []models.ClassStatus) error {
	class.UpdatedAt = time.Now().UTC()
	query := `UPDATE class_sessions SET status = $2, cancelled_by = $3, cancelled_by_role = $4, cancel_reason = $5, cancelled_at = $6,
started_at = $7, completed_at = $8, updated_at = $9 WHERE id = $1 AND status = ANY($10)`
	res, err := r.db.ExecContext(ctx, query, class.ID, class.Status, class.CancelledBy, class.CancelledByRole, class.CancelReason,
		class.CancelledAt, class.StartedAt, class.CompletedAt, class.UpdatedAt, pq.Array(statusStrings(from)))
	if err != nil {
		return fmt.Errorf("update class status: %w", err)
	}
	ok, err := rowsChanged(res, "update class status")
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleState
	}
	return nil
}

func (r *ClassRepository) withTutorLock(ctx context.Context, tutorID string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin class transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tutorID); err != nil {
		return fmt.Errorf("lock tutor schedule: %w", err)
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit class transaction: %w", err)
	}
	return nil
}

func findOverlap(ctx context.Context, tx *sqlx.Tx, tutorID string, start, end time.Time, ignoreID string) error {
	query := `SELECT id, scheduled_at, duration_minutes FROM class_sessions
WHERE tutor_id = $1 AND status = ANY($2) AND scheduled_at < $3 AND scheduled_at + duration_minutes * INTERVAL '1 minute' > $4`
	args := []interface{}{tutorID, pq.Array(statusStrings(models.ActiveClassStatuses)), end, start}
	if ignoreID != "" {
		query += " AND id <> $5"
		args = append(args, ignoreID)
	}
	query += " LIMIT 1"

	var row struct {
		ID          string    `db:"id"`
		ScheduledAt time.Time `db:"scheduled_at"`
		Duration    int       `db:"duration_minutes"`
	}
	if err := tx.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("check class overlap: %w", err)
	}
	return &OverlapError{ClassID: row.ID, ScheduledAt: row.ScheduledAt, Duration: row.Duration}
}

func statusStrings(statuses []models.ClassStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
