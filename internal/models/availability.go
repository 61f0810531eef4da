package models

import "time"

// AvailabilitySlot is a tutor-declared open window. Exactly one of DayOfWeek
// (recurring, 0 = Sunday) or SpecificDate (YYYY-MM-DD) is set. BookedFor is
// the start of the linked class and is only loaded by booked-slot lookups.
type AvailabilitySlot struct {
	ID           string     `db:"id" json:"id"`
	TutorID      string     `db:"tutor_id" json:"tutor_id"`
	DayOfWeek    *int       `db:"day_of_week" json:"day_of_week,omitempty"`
	SpecificDate *string    `db:"specific_date" json:"specific_date,omitempty"`
	StartTime    string     `db:"start_time" json:"start_time"`
	EndTime      string     `db:"end_time" json:"end_time"`
	IsActive     bool       `db:"is_active" json:"is_active"`
	IsBooked     bool       `db:"is_booked" json:"is_booked"`
	ClassID      *string    `db:"class_id" json:"class_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	BookedFor    *time.Time `db:"booked_for" json:"booked_for,omitempty"`
}

// Recurring reports whether the slot repeats weekly.
func (s *AvailabilitySlot) Recurring() bool {
	return s.DayOfWeek != nil
}

// AvailabilityFilter narrows slot listings.
type AvailabilityFilter struct {
	TutorID      string
	DayOfWeek    *int
	SpecificDate string
	Active       *bool
	Booked       *bool
}

// CreateAvailabilityRequest declares a new slot. TutorID is only honoured for admins.
type CreateAvailabilityRequest struct {
	TutorID      string  `json:"tutor_id" validate:"omitempty,uuid"`
	DayOfWeek    *int    `json:"day_of_week" validate:"omitempty,weekday"`
	SpecificDate *string `json:"specific_date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    string  `json:"start_time" validate:"required,hhmm"`
	EndTime      string  `json:"end_time" validate:"required,hhmm_end"`
}

// UpdateAvailabilityRequest changes the window or toggles a slot.
type UpdateAvailabilityRequest struct {
	StartTime *string `json:"start_time" validate:"omitempty,hhmm"`
	EndTime   *string `json:"end_time" validate:"omitempty,hhmm_end"`
	IsActive  *bool   `json:"is_active"`
}

// BookSlotRequest turns a slot into a class. Date is required for recurring slots.
type BookSlotRequest struct {
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StudentID string `json:"student_id" validate:"omitempty,uuid"`
	Subject   string `json:"subject" validate:"max=255"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// SlotBooking is the result of booking a slot.
type SlotBooking struct {
	Class *ClassSession     `json:"class"`
	Slot  *AvailabilitySlot `json:"slot"`
}
