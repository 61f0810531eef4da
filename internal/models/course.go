package models

import "time"

// Course groups ordered lessons taught by one instructor.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	Published    bool      `db:"published" json:"published"`
	LessonCount  int       `db:"lesson_count" json:"lesson_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Lesson is a unit of course content.
type Lesson struct {
	ID              string    `db:"id" json:"id"`
	CourseID        string    `db:"course_id" json:"course_id"`
	Title           string    `db:"title" json:"title"`
	Content         string    `db:"content" json:"content"`
	Position        int       `db:"position" json:"position"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	InstructorID string
	Published    *bool
	Search       string
	Page         int
	PageSize     int
}

// CreateCourseRequest creates a course. InstructorID is only honoured for admins.
type CreateCourseRequest struct {
	Title        string `json:"title" validate:"required,max=255"`
	Description  string `json:"description" validate:"max=5000"`
	InstructorID string `json:"instructor_id" validate:"omitempty,uuid"`
	Published    bool   `json:"published"`
}

// UpdateCourseRequest changes course metadata.
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Published   *bool   `json:"published"`
}

// CreateLessonRequest appends a lesson. A zero position appends at the end.
type CreateLessonRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	Content         string `json:"content"`
	Position        int    `json:"position" validate:"gte=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}
