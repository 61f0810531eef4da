package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type availabilityRepository interface {
	GetByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	List(ctx context.Context, filter models.AvailabilityFilter) ([]models.AvailabilitySlot, error)
	ListActiveOnKey(ctx context.Context, tutorID string, dayOfWeek *int, specificDate *string) ([]models.AvailabilitySlot, error)
	Create(ctx context.Context, slot *models.AvailabilitySlot) error
	Update(ctx context.Context, slot *models.AvailabilitySlot) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	MarkBooked(ctx context.Context, slotID, classID string) (bool, error)
}

type tutorFinder interface {
	FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error)
}

type slotScheduler interface {
	scheduleFromSlot(ctx context.Context, req models.ScheduleClassRequest) (*scheduledClass, error)
	abandonBooking(ctx context.Context, class *models.ClassSession)
	announce(ctx context.Context, created *scheduledClass)
}

// AvailabilityService manages tutor availability and turns slots into classes.
type AvailabilityService struct {
	repo      availabilityRepository
	tutors    tutorFinder
	classes   slotScheduler
	authz     Authorizer
	validator *validator.Validate
	logger    *zap.Logger
	loc       *time.Location
	maxWindow int
	now       func() time.Time
}

// NewAvailabilityService constructs the service. Slot clock times are read in loc.
func NewAvailabilityService(repo availabilityRepository, tutors tutorFinder, classes *ClassService, authz Authorizer, validate *validator.Validate, logger *zap.Logger, loc *time.Location) *AvailabilityService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	if loc == nil {
		loc = time.UTC
	}
	svc := &AvailabilityService{repo: repo, tutors: tutors, authz: authz, validator: validate, logger: logger, loc: loc, now: time.Now}
	if classes != nil {
		svc.classes = classes
		svc.maxWindow = classes.cfg.MaxDurationMinutes
	}
	return svc
}

// Create declares a new slot for a tutor.
func (s *AvailabilityService) Create(ctx context.Context, principal models.Principal, req models.CreateAvailabilityRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if (req.DayOfWeek == nil) == (req.SpecificDate == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly one of day_of_week or specific_date is required")
	}
	if err := s.checkWindow(req.StartTime, req.EndTime); err != nil {
		return nil, err
	}

	tutorID := req.TutorID
	if principal.Role != models.RoleAdmin || tutorID == "" {
		tutorID = principal.UserID
	}
	if err := authorize(s.authz, principal, models.CapAvailabilityManage, tutorID); err != nil {
		return nil, err
	}
	if _, err := s.tutors.FindByUserID(ctx, tutorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor")
	}
	if req.SpecificDate != nil {
		date, err := parseDate(*req.SpecificDate, s.loc)
		if err != nil {
			return nil, appErrors.Invalid(err, "invalid specific_date")
		}
		if date.Before(s.today()) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "specific_date must not be in the past")
		}
	}

	slot := &models.AvailabilitySlot{
		TutorID:      tutorID,
		DayOfWeek:    req.DayOfWeek,
		SpecificDate: req.SpecificDate,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IsActive:     true,
	}
	if err := s.ensureNoOverlap(ctx, slot); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create availability slot")
	}
	return slot, nil
}

// List returns slots. Only the owning tutor and admins see inactive slots.
func (s *AvailabilityService) List(ctx context.Context, principal models.Principal, filter models.AvailabilityFilter) ([]models.AvailabilitySlot, error) {
	if principal.Role != models.RoleAdmin && (filter.TutorID == "" || filter.TutorID != principal.UserID) {
		active := true
		filter.Active = &active
	}
	slots, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}
	return slots, nil
}

// Get returns a single slot.
func (s *AvailabilityService) Get(ctx context.Context, principal models.Principal, id string) (*models.AvailabilitySlot, error) {
	slot, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !slot.IsActive && principal.Role != models.RoleAdmin && principal.UserID != slot.TutorID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
	}
	return slot, nil
}

// Update changes the window or active flag of an unbooked slot.
func (s *AvailabilityService) Update(ctx context.Context, principal models.Principal, id string, req models.UpdateAvailabilityRequest) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	slot, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(s.authz, principal, models.CapAvailabilityManage, slot.TutorID); err != nil {
		return nil, err
	}
	if slot.IsBooked {
		return nil, appErrors.Clone(appErrors.ErrSlotBooked, "booked slots cannot be changed")
	}

	if req.StartTime != nil {
		slot.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		slot.EndTime = *req.EndTime
	}
	if req.IsActive != nil {
		slot.IsActive = *req.IsActive
	}
	if err := s.checkWindow(slot.StartTime, slot.EndTime); err != nil {
		return nil, err
	}
	if slot.IsActive {
		if err := s.ensureNoOverlap(ctx, slot); err != nil {
			return nil, err
		}
	}

	ok, err := s.repo.Update(ctx, slot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update availability slot")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrSlotBooked, "booked slots cannot be changed")
	}
	return slot, nil
}

// Delete removes an unbooked slot.
func (s *AvailabilityService) Delete(ctx context.Context, principal models.Principal, id string) error {
	slot, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authorize(s.authz, principal, models.CapAvailabilityManage, slot.TutorID); err != nil {
		return err
	}
	if slot.IsBooked {
		return appErrors.Clone(appErrors.ErrSlotBooked, "booked slots cannot be deleted")
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability slot")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrSlotBooked, "booked slots cannot be deleted")
	}
	return nil
}

// Book schedules a class in the slot's window and marks the slot booked.
// Recurring slots need the calendar date of the occurrence being booked.
func (s *AvailabilityService) Book(ctx context.Context, principal models.Principal, slotID string, req models.BookSlotRequest) (*models.SlotBooking, error) {
	if s.classes == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "class scheduling is not configured")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid booking payload")
	}
	studentID := req.StudentID
	if principal.Role != models.RoleAdmin || studentID == "" {
		studentID = principal.UserID
	}
	if err := authorize(s.authz, principal, models.CapAvailabilityBook, studentID); err != nil {
		return nil, err
	}

	slot, err := s.load(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.IsActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "availability slot is not active")
	}
	if slot.IsBooked {
		return nil, appErrors.WithDetails(appErrors.ErrSlotBooked, "availability slot is already booked", map[string]string{"slot_id": slot.ID})
	}

	start, duration, err := s.occurrence(slot, req.Date)
	if err != nil {
		return nil, err
	}

	created, err := s.classes.scheduleFromSlot(ctx, models.ScheduleClassRequest{
		TutorID:         slot.TutorID,
		StudentID:       studentID,
		ScheduledAt:     start,
		DurationMinutes: duration,
		Subject:         req.Subject,
		Notes:           req.Notes,
		SlotID:          &slot.ID,
	})
	if err != nil {
		return nil, err
	}

	booked, err := s.repo.MarkBooked(ctx, slot.ID, created.class.ID)
	if err != nil || !booked {
		s.classes.abandonBooking(ctx, created.class)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book availability slot")
		}
		return nil, appErrors.WithDetails(appErrors.ErrSlotBooked, "availability slot is already booked", map[string]string{"slot_id": slot.ID})
	}

	slot.IsBooked = true
	slot.ClassID = &created.class.ID
	s.classes.announce(ctx, created)

	s.logger.Info("availability slot booked", zap.String("slot_id", slot.ID), zap.String("class_id", created.class.ID))
	return &models.SlotBooking{Class: created.class, Slot: slot}, nil
}

// occurrence resolves the start instant and length of the slot on the requested date.
func (s *AvailabilityService) occurrence(slot *models.AvailabilitySlot, requested string) (time.Time, int, error) {
	dateValue := requested
	if slot.SpecificDate != nil {
		if requested != "" && requested != *slot.SpecificDate {
			return time.Time{}, 0, appErrors.Clone(appErrors.ErrValidation, "date does not match the slot date")
		}
		dateValue = *slot.SpecificDate
	}
	if dateValue == "" {
		return time.Time{}, 0, appErrors.Clone(appErrors.ErrValidation, "date is required for recurring slots")
	}
	date, err := parseDate(dateValue, s.loc)
	if err != nil {
		return time.Time{}, 0, appErrors.Invalid(err, "invalid date")
	}
	if slot.DayOfWeek != nil && int(date.Weekday()) != *slot.DayOfWeek {
		return time.Time{}, 0, appErrors.Clone(appErrors.ErrValidation, "date does not fall on the slot's weekday")
	}

	start, err := atClock(date, slot.StartTime, s.loc)
	if err != nil {
		return time.Time{}, 0, appErrors.Internal(err, "invalid slot start time")
	}
	end, err := atClock(date, slot.EndTime, s.loc)
	if err != nil {
		return time.Time{}, 0, appErrors.Internal(err, "invalid slot end time")
	}
	return start.UTC(), int(end.Sub(start) / time.Minute), nil
}

// checkWindow rejects empty windows and windows too long to book as one class.
func (s *AvailabilityService) checkWindow(startClock, endClock string) error {
	start, err := clockMinutes(startClock)
	if err != nil {
		return appErrors.Invalid(err, "invalid start_time")
	}
	end, err := clockMinutes(endClock)
	if err != nil {
		return appErrors.Invalid(err, "invalid end_time")
	}
	if start >= end {
		return appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	if s.maxWindow > 0 && end-start > s.maxWindow {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot must not exceed %d minutes", s.maxWindow))
	}
	return nil
}

func (s *AvailabilityService) ensureNoOverlap(ctx context.Context, slot *models.AvailabilitySlot) error {
	existing, err := s.repo.ListActiveOnKey(ctx, slot.TutorID, slot.DayOfWeek, slot.SpecificDate)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	for _, other := range existing {
		if other.ID == slot.ID {
			continue
		}
		if ClockOverlaps(other.StartTime, other.EndTime, slot.StartTime, slot.EndTime) {
			return appErrors.WithDetails(appErrors.ErrAvailabilityOverlap, "overlapping availability", map[string]string{
				"slot_id":    other.ID,
				"start_time": other.StartTime,
				"end_time":   other.EndTime,
			})
		}
	}
	return nil
}

func (s *AvailabilityService) load(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	slot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "availability slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability slot")
	}
	return slot, nil
}

func (s *AvailabilityService) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}
