package models

import "time"

// EnrollmentStatus represents the lifecycle of a course enrollment.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentDropped   EnrollmentStatus = "DROPPED"
)

// CourseEnrollment tracks a student's completion of a course.
type CourseEnrollment struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	CourseID         string           `db:"course_id" json:"course_id"`
	Progress         int              `db:"progress" json:"progress"`
	CompletedLessons int              `db:"completed_lessons" json:"completed_lessons"`
	TotalLessons     int              `db:"total_lessons" json:"total_lessons"`
	LastLessonID     *string          `db:"last_lesson_id" json:"last_lesson_id,omitempty"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	CertificateID    *string          `db:"certificate_id" json:"certificate_id,omitempty"`
	EnrolledAt       time.Time        `db:"enrolled_at" json:"enrolled_at"`
	CompletedAt      *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches an enrollment with course and student names.
type EnrollmentDetail struct {
	CourseEnrollment
	CourseTitle string `db:"course_title" json:"course_title"`
	StudentName string `db:"student_name" json:"student_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
}

// LessonProgress is the per-student state of a single lesson.
type LessonProgress struct {
	ID          string     `db:"id" json:"id"`
	StudentID   string     `db:"student_id" json:"student_id"`
	LessonID    string     `db:"lesson_id" json:"lesson_id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	Completed   bool       `db:"completed" json:"completed"`
	Percentage  int        `db:"percentage" json:"percentage"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// LessonProgressRequest reports partial progress on a lesson; 100 completes it.
type LessonProgressRequest struct {
	Percentage int `json:"percentage" validate:"gte=0,lte=100"`
}

// ProgressResult is returned after every lesson progress write.
type ProgressResult struct {
	EnrollmentID      string           `json:"enrollment_id"`
	CourseID          string           `json:"course_id"`
	Progress          int              `json:"progress"`
	CompletedLessons  int              `json:"completed_lessons"`
	TotalLessons      int              `json:"total_lessons"`
	Status            EnrollmentStatus `json:"status"`
	CertificateIssued bool             `json:"certificate_issued"`
	Certificate       *Certificate     `json:"certificate,omitempty"`
}

// Certificate records completion of a course. There is at most one per (course, student).
type Certificate struct {
	ID                string    `db:"id" json:"id"`
	CourseID          string    `db:"course_id" json:"course_id"`
	StudentID         string    `db:"student_id" json:"student_id"`
	InstructorID      string    `db:"instructor_id" json:"instructor_id"`
	CertificateNumber string    `db:"certificate_number" json:"certificate_number"`
	CompletedAt       time.Time `db:"completed_at" json:"completed_at"`
	IssuedAt          time.Time `db:"issued_at" json:"issued_at"`
	FilePath          *string   `db:"file_path" json:"-"`
}

// CertificateDetail carries the names printed on the document.
type CertificateDetail struct {
	Certificate
	CourseTitle    string `db:"course_title" json:"course_title"`
	StudentName    string `db:"student_name" json:"student_name"`
	InstructorName string `db:"instructor_name" json:"instructor_name"`
}

// CertificateDownload is a signed, expiring link to the PDF.
type CertificateDownload struct {
	CertificateID string    `json:"certificate_id"`
	URL           string    `json:"url"`
	ExpiresAt     time.Time `json:"expires_at"`
	Ready         bool      `json:"ready"`
}
