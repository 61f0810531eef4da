package models

import "time"

// ClassStatus is the lifecycle state of a class session.
type ClassStatus string

const (
	ClassScheduled   ClassStatus = "SCHEDULED"
	ClassRescheduled ClassStatus = "RESCHEDULED"
	ClassOngoing     ClassStatus = "ONGOING"
	ClassCompleted   ClassStatus = "COMPLETED"
	ClassCancelled   ClassStatus = "CANCELLED"
)

// ActiveClassStatuses are the states that occupy the tutor's time.
var ActiveClassStatuses = []ClassStatus{ClassScheduled, ClassRescheduled, ClassOngoing}

// Terminal reports whether no further transition is possible.
func (s ClassStatus) Terminal() bool {
	return s == ClassCompleted || s == ClassCancelled
}

// ClassSession is one tutoring meeting between a tutor and a student.
type ClassSession struct {
	ID               string      `db:"id" json:"id"`
	TutorID          string      `db:"tutor_id" json:"tutor_id"`
	StudentID        string      `db:"student_id" json:"student_id"`
	Subject          string      `db:"subject" json:"subject"`
	Notes            string      `db:"notes" json:"notes"`
	ScheduledAt      time.Time   `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes  int         `db:"duration_minutes" json:"duration_minutes"`
	Status           ClassStatus `db:"status" json:"status"`
	MeetingLink      *string     `db:"meeting_link" json:"meeting_link,omitempty"`
	MeetingPlatform  *string     `db:"meeting_platform" json:"meeting_platform,omitempty"`
	SlotID           *string     `db:"slot_id" json:"slot_id,omitempty"`
	CancelledBy      *string     `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledByRole  *UserRole   `db:"cancelled_by_role" json:"cancelled_by_role,omitempty"`
	CancelReason     *string     `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CancelledAt      *time.Time  `db:"cancelled_at" json:"cancelled_at,omitempty"`
	RescheduledFrom  *time.Time  `db:"rescheduled_from" json:"rescheduled_from,omitempty"`
	RescheduleReason *string     `db:"reschedule_reason" json:"reschedule_reason,omitempty"`
	RescheduledAt    *time.Time  `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
	StartedAt        *time.Time  `db:"started_at" json:"started_at,omitempty"`
	CompletedAt      *time.Time  `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// EndsAt is the exclusive end of the session interval.
func (c *ClassSession) EndsAt() time.Time {
	return c.ScheduledAt.Add(time.Duration(c.DurationMinutes) * time.Minute)
}

// HasParticipant reports whether userID is the tutor or the student.
func (c *ClassSession) HasParticipant(userID string) bool {
	return userID != "" && (c.TutorID == userID || c.StudentID == userID)
}

// ClassDetail adds participant names for listings and exports.
type ClassDetail struct {
	ClassSession
	TutorName   string `db:"tutor_name" json:"tutor_name"`
	StudentName string `db:"student_name" json:"student_name"`
}

// ClassFilter describes query params for listing classes.
type ClassFilter struct {
	TutorID       string
	StudentID     string
	ParticipantID string
	Status        []ClassStatus
	From          *time.Time
	To            *time.Time
	Page          int
	PageSize      int
	SortOrder     string
}

// ScheduleClassRequest creates a class directly. StudentID defaults to the caller for students.
type ScheduleClassRequest struct {
	TutorID         string    `json:"tutor_id" validate:"required,uuid"`
	StudentID       string    `json:"student_id" validate:"omitempty,uuid"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,gt=0"`
	Subject         string    `json:"subject" validate:"max=255"`
	Notes           string    `json:"notes" validate:"max=2000"`
	MeetingLink     *string   `json:"meeting_link" validate:"omitempty,url"`
	MeetingPlatform *string   `json:"meeting_platform" validate:"omitempty,max=32"`
	SlotID          *string   `json:"-"`
}

// RescheduleClassRequest moves a class to a new start time.
type RescheduleClassRequest struct {
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes *int      `json:"duration_minutes" validate:"omitempty,gt=0"`
	Reason          string    `json:"reason" validate:"max=1000"`
}

// CancelClassRequest records why a class was cancelled.
type CancelClassRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// ClassConflict identifies what a proposed interval collided with.
type ClassConflict struct {
	Kind     string    `json:"kind"`
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Conflict kinds.
const (
	ConflictKindClass = "class"
	ConflictKindSlot  = "booked_slot"
)
