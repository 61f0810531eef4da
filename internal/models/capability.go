package models

// Capability names an action a principal may perform. Ownership is checked
// separately for capabilities a role only holds over its own records.
type Capability string

const (
	CapUserManage         Capability = "user.manage"
	CapTutorProfileEdit   Capability = "tutor.profile.edit"
	CapTutorReview        Capability = "tutor.review"
	CapAvailabilityManage Capability = "availability.manage"
	CapAvailabilityBook   Capability = "availability.book"
	CapClassSchedule      Capability = "class.schedule"
	CapClassView          Capability = "class.view"
	CapClassReschedule    Capability = "class.reschedule"
	CapClassCancel        Capability = "class.cancel"
	CapClassConduct       Capability = "class.conduct"
	CapCourseManage       Capability = "course.manage"
	CapCourseEnroll       Capability = "course.enroll"
	CapProgressRecord     Capability = "progress.record"
	CapEnrollmentView     Capability = "enrollment.view"
	CapCertificateView    Capability = "certificate.view"
	CapAnnouncementManage Capability = "announcement.manage"
	CapAnalyticsView      Capability = "analytics.view"
	CapReportExport       Capability = "report.export"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   UserRole
}
