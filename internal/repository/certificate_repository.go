package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorly-api/internal/models"
)

const certificateColumns = `id, course_id, student_id, instructor_id, certificate_number, completed_at, issued_at, file_path`

// CertificateRepository persists issued certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// CreateOnce inserts the certificate unless the (course, student) pair already has one.
// It returns the stored certificate and whether this call created it.
func (r *CertificateRepository) CreateOnce(ctx context.Context, cert *models.Certificate) (*models.Certificate, bool, error) {
	if cert.ID == "" {
		cert.ID = uuid.NewString()
	}
	query := `INSERT INTO certificates (id, course_id, student_id, instructor_id, certificate_number, completed_at, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (course_id, student_id) DO NOTHING
RETURNING ` + certificateColumns
	var stored models.Certificate
	err := r.db.GetContext(ctx, &stored, query, cert.ID, cert.CourseID, cert.StudentID, cert.InstructorID,
		cert.CertificateNumber, cert.CompletedAt, cert.IssuedAt)
	if err == nil {
		return &stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("create certificate: %w", err)
	}

	existing, err := r.FindByStudentCourse(ctx, cert.StudentID, cert.CourseID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// FindByStudentCourse returns the certificate for a (student, course) pair.
func (r *CertificateRepository) FindByStudentCourse(ctx context.Context, studentID, courseID string) (*models.Certificate, error) {
	var cert models.Certificate
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE student_id = $1 AND course_id = $2`
	if err := r.db.GetContext(ctx, &cert, query, studentID, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return &cert, nil
}

// GetDetail returns a certificate with the names printed on it.
func (r *CertificateRepository) GetDetail(ctx context.Context, id string) (*models.CertificateDetail, error) {
	const query = `SELECT ce.id, ce.course_id, ce.student_id, ce.instructor_id, ce.certificate_number, ce.completed_at, ce.issued_at, ce.file_path,
c.title AS course_title, s.full_name AS student_name, i.full_name AS instructor_name
FROM certificates ce JOIN courses c ON c.id = ce.course_id JOIN users s ON s.id = ce.student_id JOIN users i ON i.id = ce.instructor_id
WHERE ce.id = $1`
	var detail models.CertificateDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get certificate: %w", err)
	}
	return &detail, nil
}

// ListByStudent returns a student's certificates, newest first.
func (r *CertificateRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Certificate, error) {
	var certs []models.Certificate
	if err := r.db.SelectContext(ctx, &certs, `SELECT `+certificateColumns+` FROM certificates WHERE student_id = $1 ORDER BY issued_at DESC`, studentID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

// SetFilePath records where the rendered PDF was stored.
func (r *CertificateRepository) SetFilePath(ctx context.Context, id, path string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE certificates SET file_path = $2 WHERE id = $1`, id, path); err != nil {
		return fmt.Errorf("set certificate file path: %w", err)
	}
	return nil
}
