package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/middleware"
	"github.com/noah-isme/tutorly-api/internal/models"
)

// Handlers groups every HTTP handler served by the API.
type Handlers struct {
	Auth         *AuthHandler
	User         *UserHandler
	Tutor        *TutorHandler
	Availability *AvailabilityHandler
	Class        *ClassHandler
	Course       *CourseHandler
	Enrollment   *EnrollmentHandler
	Certificate  *CertificateHandler
	Notification *NotificationHandler
	Announcement *AnnouncementHandler
	Analytics    *AnalyticsHandler
	Metrics      *MetricsHandler
}

// RouteDeps carries the middleware collaborators used while registering routes.
type RouteDeps struct {
	Tokens        middleware.TokenValidator
	Policy        middleware.CapabilityHolder
	Limiter       middleware.WindowCounter
	Audit         middleware.AuditWriter
	Logger        *zap.Logger
	BookingLimit  int
	BookingWindow time.Duration
}

// Register mounts health probes at the root and the API under prefix.
func Register(r *gin.Engine, prefix string, h Handlers, deps RouteDeps) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	can := func(caps ...models.Capability) gin.HandlerFunc {
		return middleware.RequireCapability(deps.Policy, caps...)
	}
	booking := middleware.RateLimit(deps.Limiter, "booking", deps.BookingLimit, deps.BookingWindow, deps.Logger)

	api := r.Group(prefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		// signed token instead of a bearer header
		api.GET("/certificates/download", h.Certificate.Download)

		authorized := api.Group("")
		authorized.Use(middleware.JWT(deps.Tokens))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.POST("/auth/change-password", h.Auth.ChangePassword)
			authorized.GET("/auth/me", h.Auth.Me)

			users := authorized.Group("/users")
			{
				users.GET("", can(models.CapUserManage), h.User.List)
				users.GET("/:id", h.User.Get)
				users.POST("", can(models.CapUserManage), h.User.Create)
				users.PUT("/:id", can(models.CapUserManage), h.User.Update)
				users.DELETE("/:id", can(models.CapUserManage), h.User.Delete)
			}

			tutors := authorized.Group("/tutors")
			{
				tutors.GET("", h.Tutor.List)
				tutors.GET("/:id", h.Tutor.Get)
				tutors.PUT("/:id/profile", can(models.CapTutorProfileEdit), h.Tutor.UpsertProfile)
				tutors.POST("/:id/review", can(models.CapTutorReview), h.Tutor.Review)
			}

			availability := authorized.Group("/availability")
			{
				availability.GET("", h.Availability.List)
				availability.GET("/:id", h.Availability.Get)
				availability.POST("", can(models.CapAvailabilityManage), h.Availability.Create)
				availability.PUT("/:id", can(models.CapAvailabilityManage), h.Availability.Update)
				availability.DELETE("/:id", can(models.CapAvailabilityManage), h.Availability.Delete)
				availability.POST("/:id/book", can(models.CapAvailabilityBook), booking, h.Availability.Book)
			}

			classes := authorized.Group("/classes")
			{
				classes.GET("", can(models.CapClassView), h.Class.List)
				classes.GET("/calendar.ics", can(models.CapClassView), h.Class.Calendar)
				classes.GET("/:id", can(models.CapClassView), h.Class.Get)
				classes.POST("", can(models.CapClassSchedule), booking, h.Class.Schedule)
				classes.POST("/:id/reschedule", can(models.CapClassReschedule), h.Class.Reschedule)
				classes.POST("/:id/cancel", can(models.CapClassCancel), h.Class.Cancel)
				classes.POST("/:id/start", can(models.CapClassConduct), h.Class.Start)
				classes.POST("/:id/complete", can(models.CapClassConduct), h.Class.Complete)
			}

			courses := authorized.Group("/courses")
			{
				courses.GET("", h.Course.List)
				courses.GET("/:id", h.Course.Get)
				courses.GET("/:id/lessons", h.Course.Lessons)
				courses.POST("", can(models.CapCourseManage), h.Course.Create)
				courses.PUT("/:id", can(models.CapCourseManage), h.Course.Update)
				courses.POST("/:id/lessons", can(models.CapCourseManage), h.Course.AddLesson)
				courses.POST("/:id/enroll", can(models.CapCourseEnroll), h.Enrollment.Enroll)
			}

			enrollments := authorized.Group("/enrollments")
			enrollments.Use(can(models.CapEnrollmentView))
			{
				enrollments.GET("", h.Enrollment.List)
				enrollments.GET("/:id", h.Enrollment.Get)
				enrollments.GET("/:id/progress", h.Enrollment.Progress)
				enrollments.DELETE("/:id", h.Enrollment.Drop)
			}

			lessons := authorized.Group("/lessons")
			lessons.Use(can(models.CapProgressRecord))
			{
				lessons.POST("/:id/complete", h.Enrollment.CompleteLesson)
				lessons.POST("/:id/progress", h.Enrollment.RecordProgress)
			}

			certificates := authorized.Group("/certificates")
			certificates.Use(can(models.CapCertificateView))
			{
				certificates.GET("", h.Certificate.ListMine)
				certificates.GET("/:id", h.Certificate.Get)
				certificates.GET("/:id/download-url", h.Certificate.DownloadURL)
			}

			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.GET("/unread-count", h.Notification.UnreadCount)
				notifications.GET("/stream", h.Notification.Stream)
				notifications.POST("/read-all", h.Notification.MarkAllRead)
				notifications.POST("/:id/read", h.Notification.MarkRead)
			}

			announcements := authorized.Group("/announcements")
			{
				announcements.GET("", h.Announcement.List)
				announcements.GET("/:id", h.Announcement.Get)
				announcements.POST("", can(models.CapAnnouncementManage), h.Announcement.Create)
				announcements.PUT("/:id", can(models.CapAnnouncementManage), h.Announcement.Update)
				announcements.DELETE("/:id", can(models.CapAnnouncementManage), h.Announcement.Delete)
			}

			analytics := authorized.Group("/analytics")
			analytics.Use(can(models.CapAnalyticsView), middleware.WithResponseMeta())
			{
				analytics.GET("/overview", h.Analytics.Overview)
				analytics.GET("/system", h.Analytics.System)
			}

			exports := authorized.Group("/exports")
			exports.Use(can(models.CapReportExport))
			{
				exports.GET("/classes", middleware.Audit(deps.Audit, models.AuditActionReportExport, "classes", deps.Logger), h.Analytics.ExportClasses)
				exports.GET("/enrollments", middleware.Audit(deps.Audit, models.AuditActionReportExport, "enrollments", deps.Logger), h.Analytics.ExportEnrollments)
			}
		}
	}
}
