package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/repository"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type classRepository interface {
	GetByID(ctx context.Context, id string) (*models.ClassSession, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	ListAll(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, error)
	CreateExclusive(ctx context.Context, class *models.ClassSession) error
	RescheduleExclusive(ctx context.Context, class *models.ClassSession, checkOverlap bool) error
	UpdateStatus(ctx context.Context, class *models.ClassSession, from []models.ClassStatus) error
}

type teachableTutors interface {
	RequireTeachable(ctx context.Context, tutorID string) (*models.TutorDetail, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type slotReleaser interface {
	Release(ctx context.Context, slotID, classID string) error
	ReleaseRecurring(ctx context.Context, slotID, classID string) error
}

type conflictFinder interface {
	EnsureNoConflict(ctx context.Context, tutorID string, start time.Time, durationMinutes int, ignoreClassID string) error
}

type overviewInvalidator interface {
	InvalidateOverview(ctx context.Context)
}

// classTransitions lists, per target status, the states it may be entered from.
var classTransitions = map[models.ClassStatus][]models.ClassStatus{
	models.ClassRescheduled: {models.ClassScheduled, models.ClassRescheduled},
	models.ClassOngoing:     {models.ClassScheduled, models.ClassRescheduled},
	models.ClassCompleted:   {models.ClassScheduled, models.ClassRescheduled, models.ClassOngoing},
	models.ClassCancelled:   {models.ClassScheduled, models.ClassRescheduled, models.ClassOngoing},
}

// CanTransition reports whether a class in from may move to to.
func CanTransition(from, to models.ClassStatus) bool {
	for _, allowed := range classTransitions[to] {
		if allowed == from {
			return true
		}
	}
	return false
}

// ClassServiceConfig tunes scheduling validation.
type ClassServiceConfig struct {
	Location               *time.Location
	MaxDurationMinutes     int
	RevalidateOnReschedule bool
	AllowPastScheduling    bool
}

// ClassService runs the class session lifecycle.
type ClassService struct {
	repo      classRepository
	tutors    teachableTutors
	users     userFinder
	checker   conflictFinder
	slots     slotReleaser
	notifier  Notifier
	audit     auditWriter
	analytics overviewInvalidator
	metrics   *MetricsService
	authz     Authorizer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ClassServiceConfig
	now       func() time.Time
}

// ClassServiceDeps groups the collaborators of ClassService.
type ClassServiceDeps struct {
	Repo      classRepository
	Tutors    teachableTutors
	Users     userFinder
	Checker   conflictFinder
	Slots     slotReleaser
	Notifier  Notifier
	Audit     auditWriter
	Analytics overviewInvalidator
	Metrics   *MetricsService
	Authz     Authorizer
	Validator *validator.Validate
	Logger    *zap.Logger
}

// NewClassService constructs the service.
func NewClassService(deps ClassServiceDeps, cfg ClassServiceConfig) *ClassService {
	if deps.Validator == nil {
		deps.Validator = NewValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Authz == nil {
		deps.Authz = DefaultPolicy()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = 480
	}
	if cfg.MaxDurationMinutes > MaxSessionMinutes {
		cfg.MaxDurationMinutes = MaxSessionMinutes
	}
	return &ClassService{
		repo:      deps.Repo,
		tutors:    deps.Tutors,
		users:     deps.Users,
		checker:   deps.Checker,
		slots:     deps.Slots,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		analytics: deps.Analytics,
		metrics:   deps.Metrics,
		authz:     deps.Authz,
		validator: deps.Validator,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Schedule creates a class between a tutor and a student.
func (s *ClassService) Schedule(ctx context.Context, principal models.Principal, req models.ScheduleClassRequest) (*models.ClassSession, error) {
	if principal.Role == models.RoleStudent && req.StudentID == "" {
		req.StudentID = principal.UserID
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if req.StudentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	if err := authorize(s.authz, principal, models.CapClassSchedule, req.TutorID, req.StudentID); err != nil {
		return nil, err
	}
	req.SlotID = nil
	created, err := s.schedule(ctx, req, "direct")
	if err != nil {
		return nil, err
	}
	s.announce(ctx, created)
	return created.class, nil
}

// scheduleFromSlot is used by slot booking after it has authorised the caller.
// The caller announces the class once the slot is secured.
func (s *ClassService) scheduleFromSlot(ctx context.Context, req models.ScheduleClassRequest) (*scheduledClass, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	return s.schedule(ctx, req, "slot")
}

// abandonBooking cancels a class created for a slot that was taken concurrently.
func (s *ClassService) abandonBooking(ctx context.Context, class *models.ClassSession) {
	now := s.now()
	reason := "availability slot was booked by someone else"
	class.Status = models.ClassCancelled
	class.CancelledAt = &now
	class.CancelReason = &reason
	if err := s.repo.UpdateStatus(ctx, class, classTransitions[models.ClassCancelled]); err != nil {
		s.logger.Error("failed to cancel class for lost slot booking", zap.String("class_id", class.ID), zap.Error(err))
		return
	}
	s.metrics.RecordScheduling("slot", strings.ToLower(appErrors.ErrSlotBooked.Code))
	s.invalidateOverview(ctx)
}

func (s *ClassService) schedule(ctx context.Context, req models.ScheduleClassRequest, source string) (*scheduledClass, error) {
	start := req.ScheduledAt.UTC()
	if err := s.validateWindow(start, req.DurationMinutes); err != nil {
		return nil, err
	}
	if req.TutorID == req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tutor and student must be different users")
	}

	tutor, err := s.tutors.RequireTeachable(ctx, req.TutorID)
	if err != nil {
		return nil, err
	}
	student, err := s.requireStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	if err := s.checker.EnsureNoConflict(ctx, req.TutorID, start, req.DurationMinutes, ""); err != nil {
		s.recordScheduling(source, err)
		return nil, err
	}

	class := &models.ClassSession{
		TutorID:         req.TutorID,
		StudentID:       req.StudentID,
		Subject:         strings.TrimSpace(req.Subject),
		Notes:           req.Notes,
		ScheduledAt:     start,
		DurationMinutes: req.DurationMinutes,
		Status:          models.ClassScheduled,
		MeetingLink:     req.MeetingLink,
		MeetingPlatform: req.MeetingPlatform,
		SlotID:          req.SlotID,
	}
	if err := s.repo.CreateExclusive(ctx, class); err != nil {
		err = s.mapWriteError(err, "failed to create class")
		s.recordScheduling(source, err)
		return nil, err
	}
	s.recordScheduling(source, nil)

	s.logger.Info("class scheduled",
		zap.String("class_id", class.ID),
		zap.String("tutor_id", class.TutorID),
		zap.String("student_id", class.StudentID),
		zap.Time("scheduled_at", class.ScheduledAt),
		zap.String("source", source),
	)

	return &scheduledClass{class: class, tutorName: tutor.FullName, studentName: student.FullName}, nil
}

type scheduledClass struct {
	class       *models.ClassSession
	tutorName   string
	studentName string
}

// announce tells both participants about a new class.
func (s *ClassService) announce(ctx context.Context, created *scheduledClass) {
	class := created.class
	when := s.formatWhen(class.ScheduledAt)
	notify(ctx, s.notifier, s.logger, NotificationInput{
		UserID: class.TutorID, Type: models.NotificationClassScheduled, Title: "New class booked",
		Message:      fmt.Sprintf("%s booked a class with you on %s.", created.studentName, when),
		ResourceType: "class", ResourceID: class.ID,
	})
	notify(ctx, s.notifier, s.logger, NotificationInput{
		UserID: class.StudentID, Type: models.NotificationClassScheduled, Title: "Class scheduled",
		Message:      fmt.Sprintf("Your class with %s is scheduled for %s.", created.tutorName, when),
		ResourceType: "class", ResourceID: class.ID,
	})
	s.invalidateOverview(ctx)
}

// Get returns a class visible to the caller.
func (s *ClassService) Get(ctx context.Context, principal models.Principal, id string) (*models.ClassSession, error) {
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.authz, principal, models.CapClassView, class.TutorID, class.StudentID); err != nil {
		return nil, err
	}
	return class, nil
}

// List returns classes. Tutors and students only see their own.
func (s *ClassService) List(ctx context.Context, principal models.Principal, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	filter = s.scopeFilter(principal, filter)
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)

	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Reschedule moves a class to a new time, re-running the conflict check
// while ignoring the class itself.
func (s *ClassService) Reschedule(ctx context.Context, principal models.Principal, id string, req models.RescheduleClassRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reschedule payload")
	}
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.authz, principal, models.CapClassReschedule, class.TutorID, class.StudentID); err != nil {
		return nil, err
	}
	if !CanTransition(class.Status, models.ClassRescheduled) {
		return nil, transitionError(class.Status, models.ClassRescheduled)
	}

	duration := class.DurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	start := req.ScheduledAt.UTC()
	if err := s.validateWindow(start, duration); err != nil {
		return nil, err
	}
	if s.cfg.RevalidateOnReschedule {
		if err := s.checker.EnsureNoConflict(ctx, class.TutorID, start, duration, class.ID); err != nil {
			return nil, err
		}
	}

	previous := class.ScheduledAt
	now := s.now()
	class.RescheduledFrom = &previous
	class.RescheduledAt = &now
	class.ScheduledAt = start
	class.DurationMinutes = duration
	class.Status = models.ClassRescheduled
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		class.RescheduleReason = &reason
	} else {
		class.RescheduleReason = nil
	}

	if err := s.repo.RescheduleExclusive(ctx, class, s.cfg.RevalidateOnReschedule); err != nil {
		return nil, s.mapWriteError(err, "failed to reschedule class")
	}
	s.metrics.RecordClassTransition(models.ClassRescheduled)

	message := fmt.Sprintf("Your class was moved from %s to %s.", s.formatWhen(previous), s.formatWhen(class.ScheduledAt))
	for _, userID := range recipientsFor(principal, class) {
		notify(ctx, s.notifier, s.logger, NotificationInput{
			UserID: userID, Type: models.NotificationClassRescheduled, Title: "Class rescheduled",
			Message: message, ResourceType: "class", ResourceID: class.ID,
		})
	}
	s.invalidateOverview(ctx)
	return class, nil
}

// Cancel cancels a class and frees the availability slot it was booked from.
func (s *ClassService) Cancel(ctx context.Context, principal models.Principal, id string, req models.CancelClassRequest) (*models.ClassSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.authz, principal, models.CapClassCancel, class.TutorID, class.StudentID); err != nil {
		return nil, err
	}
	if !CanTransition(class.Status, models.ClassCancelled) {
		return nil, transitionError(class.Status, models.ClassCancelled)
	}

	now := s.now()
	actor := principal.UserID
	role := principal.Role
	class.Status = models.ClassCancelled
	class.CancelledAt = &now
	class.CancelledBy = &actor
	class.CancelledByRole = &role
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		class.CancelReason = &reason
	}

	if err := s.repo.UpdateStatus(ctx, class, classTransitions[models.ClassCancelled]); err != nil {
		return nil, s.mapWriteError(err, "failed to cancel class")
	}
	s.metrics.RecordClassTransition(models.ClassCancelled)

	if class.SlotID != nil && s.slots != nil {
		if err := s.slots.Release(ctx, *class.SlotID, class.ID); err != nil {
			s.logger.Warn("failed to release availability slot", zap.String("slot_id", *class.SlotID), zap.String("class_id", class.ID), zap.Error(err))
		}
	}

	if s.audit != nil {
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor,
			Action:     models.AuditActionClassCancel,
			Resource:   "class",
			ResourceID: &class.ID,
			NewValues:  []byte(`{"cancelled_by_role":"` + string(role) + `"}`),
		}); err != nil {
			s.logger.Warn("failed to record class cancel audit log", zap.Error(err))
		}
	}

	message := fmt.Sprintf("Your class on %s was cancelled.", s.formatWhen(class.ScheduledAt))
	if class.CancelReason != nil {
		message += " Reason: " + *class.CancelReason
	}
	for _, userID := range recipientsFor(principal, class) {
		notify(ctx, s.notifier, s.logger, NotificationInput{
			UserID: userID, Type: models.NotificationClassCancelled, Title: "Class cancelled",
			Message: message, ResourceType: "class", ResourceID: class.ID,
		})
	}
	s.invalidateOverview(ctx)
	return class, nil
}

// Start marks a class as in progress.
func (s *ClassService) Start(ctx context.Context, principal models.Principal, id string) (*models.ClassSession, error) {
	return s.conduct(ctx, principal, id, models.ClassOngoing)
}

// Complete marks a class as finished.
func (s *ClassService) Complete(ctx context.Context, principal models.Principal, id string) (*models.ClassSession, error) {
	return s.conduct(ctx, principal, id, models.ClassCompleted)
}

func (s *ClassService) conduct(ctx context.Context, principal models.Principal, id string, target models.ClassStatus) (*models.ClassSession, error) {
	class, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.authz, principal, models.CapClassConduct, class.TutorID); err != nil {
		return nil, err
	}
	if !CanTransition(class.Status, target) {
		return nil, transitionError(class.Status, target)
	}

	now := s.now()
	class.Status = target
	notification := NotificationInput{UserID: class.StudentID, ResourceType: "class", ResourceID: class.ID}
	switch target {
	case models.ClassOngoing:
		class.StartedAt = &now
		notification.Type = models.NotificationClassStarted
		notification.Title = "Class started"
		notification.Message = "Your tutor has started the class."
	case models.ClassCompleted:
		if class.StartedAt == nil {
			class.StartedAt = &now
		}
		class.CompletedAt = &now
		notification.Type = models.NotificationClassCompleted
		notification.Title = "Class completed"
		notification.Message = "Your class has been marked as completed."
	}

	if err := s.repo.UpdateStatus(ctx, class, classTransitions[target]); err != nil {
		return nil, s.mapWriteError(err, "failed to update class status")
	}
	s.metrics.RecordClassTransition(target)
	if target == models.ClassCompleted && class.SlotID != nil && s.slots != nil {
		if err := s.slots.ReleaseRecurring(ctx, *class.SlotID, class.ID); err != nil {
			s.logger.Warn("failed to release recurring slot", zap.String("slot_id", *class.SlotID), zap.String("class_id", class.ID), zap.Error(err))
		}
	}
	notify(ctx, s.notifier, s.logger, notification)
	s.invalidateOverview(ctx)
	return class, nil
}

// ListForCalendar returns the caller's classes in a window without paging.
func (s *ClassService) ListForCalendar(ctx context.Context, principal models.Principal, from, to *time.Time) ([]models.ClassDetail, error) {
	filter := models.ClassFilter{ParticipantID: principal.UserID, From: from, To: to, SortOrder: "asc"}
	classes, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, nil
}

func (s *ClassService) scopeFilter(principal models.Principal, filter models.ClassFilter) models.ClassFilter {
	switch principal.Role {
	case models.RoleTutor:
		filter.TutorID = principal.UserID
	case models.RoleStudent:
		filter.StudentID = principal.UserID
	case models.RoleAdmin:
	default:
		filter.ParticipantID = principal.UserID
	}
	return filter
}

func (s *ClassService) validateWindow(start time.Time, durationMinutes int) error {
	if durationMinutes <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "duration must be greater than zero")
	}
	if durationMinutes > s.cfg.MaxDurationMinutes {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration must not exceed %d minutes", s.cfg.MaxDurationMinutes))
	}
	if start.IsZero() {
		return appErrors.Clone(appErrors.ErrValidation, "scheduled_at is required")
	}
	if !s.cfg.AllowPastScheduling && start.Before(s.now()) {
		return appErrors.Clone(appErrors.ErrValidation, "scheduled_at must be in the future")
	}
	return nil
}

func (s *ClassService) requireStudent(ctx context.Context, studentID string) (*models.User, error) {
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent || !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student account is not active")
	}
	return student, nil
}

func (s *ClassService) load(ctx context.Context, id string) (*models.ClassSession, error) {
	class, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// mapWriteError turns repository guard failures into domain errors.
func (s *ClassService) mapWriteError(err error, message string) error {
	var overlap *repository.OverlapError
	switch {
	case errors.As(err, &overlap):
		return conflictError(&models.ClassConflict{
			Kind:     models.ConflictKindClass,
			ID:       overlap.ClassID,
			StartsAt: overlap.ScheduledAt,
			EndsAt:   overlap.ScheduledAt.Add(time.Duration(overlap.Duration) * time.Minute),
		})
	case errors.Is(err, repository.ErrStaleState):
		return appErrors.Clone(appErrors.ErrInvalidTransition, "class status changed, reload and try again")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

func (s *ClassService) recordScheduling(source string, err error) {
	outcome := "scheduled"
	if err != nil {
		outcome = strings.ToLower(appErrors.FromError(err).Code)
	}
	s.metrics.RecordScheduling(source, outcome)
}

func (s *ClassService) invalidateOverview(ctx context.Context) {
	if s.analytics != nil {
		s.analytics.InvalidateOverview(ctx)
	}
}

func (s *ClassService) formatWhen(t time.Time) string {
	return t.In(s.cfg.Location).Format("Mon 2 Jan 2006 15:04 MST")
}

func transitionError(from, to models.ClassStatus) error {
	return appErrors.WithDetails(appErrors.ErrInvalidTransition,
		fmt.Sprintf("cannot move class from %s to %s", from, to),
		map[string]models.ClassStatus{"from": from, "to": to})
}

// recipientsFor returns the participants other than the actor; admins notify both.
func recipientsFor(actor models.Principal, class *models.ClassSession) []string {
	switch actor.UserID {
	case class.TutorID:
		return []string{class.StudentID}
	case class.StudentID:
		return []string{class.TutorID}
	default:
		return []string{class.TutorID, class.StudentID}
	}
}
