package models

import (
	"time"

	"github.com/lib/pq"
)

// TutorApprovalStatus tracks admin review of a tutor profile.
type TutorApprovalStatus string

const (
	TutorPending  TutorApprovalStatus = "PENDING"
	TutorApproved TutorApprovalStatus = "APPROVED"
	TutorRejected TutorApprovalStatus = "REJECTED"
)

// TutorProfile is the tutor-specific extension of a user.
type TutorProfile struct {
	UserID         string              `db:"user_id" json:"user_id"`
	Headline       string              `db:"headline" json:"headline"`
	Bio            string              `db:"bio" json:"bio"`
	Subjects       pq.StringArray      `db:"subjects" json:"subjects"`
	HourlyRate     float64             `db:"hourly_rate" json:"hourly_rate"`
	ApprovalStatus TutorApprovalStatus `db:"approval_status" json:"approval_status"`
	Active         bool                `db:"active" json:"active"`
	ReviewedBy     *string             `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time          `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at" json:"updated_at"`
}

// TutorDetail joins the profile with the owning account.
type TutorDetail struct {
	TutorProfile
	FullName   string `db:"full_name" json:"full_name"`
	Email      string `db:"email" json:"email"`
	UserActive bool   `db:"user_active" json:"user_active"`
}

// CanTeach reports whether the tutor may be scheduled.
func (t *TutorDetail) CanTeach() bool {
	return t != nil && t.ApprovalStatus == TutorApproved && t.Active && t.UserActive
}

// TutorFilter narrows tutor listings.
type TutorFilter struct {
	Status   *TutorApprovalStatus
	Subject  string
	Page     int
	PageSize int
}

// UpsertTutorProfileRequest is submitted by tutors editing their profile.
type UpsertTutorProfileRequest struct {
	Headline   string   `json:"headline" validate:"max=255"`
	Bio        string   `json:"bio" validate:"max=5000"`
	Subjects   []string `json:"subjects" validate:"max=20,dive,required,max=64"`
	HourlyRate float64  `json:"hourly_rate" validate:"gte=0"`
	Active     *bool    `json:"active"`
}

// ReviewTutorRequest is the admin decision on a profile.
type ReviewTutorRequest struct {
	Status TutorApprovalStatus `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}
