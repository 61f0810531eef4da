package models

import "time"

// Notification types emitted by the platform.
const (
	NotificationClassScheduled   = "class.scheduled"
	NotificationClassRescheduled = "class.rescheduled"
	NotificationClassCancelled   = "class.cancelled"
	NotificationClassStarted     = "class.started"
	NotificationClassCompleted   = "class.completed"
	NotificationCertificate      = "certificate.issued"
	NotificationTutorReviewed    = "tutor.reviewed"
	NotificationEnrolled         = "course.enrolled"
)

// Notification is a persisted message for one user.
type Notification struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Type         string     `db:"type" json:"type"`
	Title        string     `db:"title" json:"title"`
	Message      string     `db:"message" json:"message"`
	ResourceType *string    `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string    `db:"resource_id" json:"resource_id,omitempty"`
	ReadAt       *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows a user's inbox.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
