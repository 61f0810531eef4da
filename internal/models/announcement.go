package models

import "time"

// AnnouncementAudience defines who can see an announcement.
type AnnouncementAudience string

const (
	AnnouncementAudienceAll      AnnouncementAudience = "ALL"
	AnnouncementAudienceTutors   AnnouncementAudience = "TUTORS"
	AnnouncementAudienceStudents AnnouncementAudience = "STUDENTS"
)

// AnnouncementPriority defines ordering for announcements.
type AnnouncementPriority string

const (
	AnnouncementPriorityLow    AnnouncementPriority = "LOW"
	AnnouncementPriorityNormal AnnouncementPriority = "NORMAL"
	AnnouncementPriorityHigh   AnnouncementPriority = "HIGH"
)

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID          string               `db:"id" json:"id"`
	Title       string               `db:"title" json:"title"`
	Content     string               `db:"content" json:"content"`
	Audience    AnnouncementAudience `db:"audience" json:"audience"`
	Priority    AnnouncementPriority `db:"priority" json:"priority"`
	IsPinned    bool                 `db:"is_pinned" json:"is_pinned"`
	PublishedAt time.Time            `db:"published_at" json:"published_at"`
	ExpiresAt   *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   string               `db:"created_by" json:"created_by"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter allows listing announcements.
type AnnouncementFilter struct {
	Audiences []AnnouncementAudience
	Page      int
	PageSize  int
}

// AudiencesFor returns the audiences visible to role.
func AudiencesFor(role UserRole) []AnnouncementAudience {
	switch role {
	case RoleTutor:
		return []AnnouncementAudience{AnnouncementAudienceAll, AnnouncementAudienceTutors}
	case RoleStudent:
		return []AnnouncementAudience{AnnouncementAudienceAll, AnnouncementAudienceStudents}
	default:
		return []AnnouncementAudience{AnnouncementAudienceAll, AnnouncementAudienceTutors, AnnouncementAudienceStudents}
	}
}

// CreateAnnouncementRequest payload for creating announcements.
type CreateAnnouncementRequest struct {
	Title       string               `json:"title" validate:"required,max=255"`
	Content     string               `json:"content" validate:"required"`
	Audience    AnnouncementAudience `json:"audience" validate:"required,oneof=ALL TUTORS STUDENTS"`
	Priority    AnnouncementPriority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	IsPinned    bool                 `json:"is_pinned"`
	PublishedAt *time.Time           `json:"published_at"`
	ExpiresAt   *time.Time           `json:"expires_at"`
}

// UpdateAnnouncementRequest payload for partial updates.
type UpdateAnnouncementRequest struct {
	Title     *string               `json:"title" validate:"omitempty,max=255"`
	Content   *string               `json:"content"`
	Audience  *AnnouncementAudience `json:"audience" validate:"omitempty,oneof=ALL TUTORS STUDENTS"`
	Priority  *AnnouncementPriority `json:"priority" validate:"omitempty,oneof=LOW NORMAL HIGH"`
	IsPinned  *bool                 `json:"is_pinned"`
	ExpiresAt *time.Time            `json:"expires_at"`
}
