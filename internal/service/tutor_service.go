package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type tutorRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.TutorDetail, error)
	List(ctx context.Context, filter models.TutorFilter) ([]models.TutorDetail, int, error)
	Upsert(ctx context.Context, profile *models.TutorProfile) error
	Review(ctx context.Context, userID string, status models.TutorApprovalStatus, reviewerID string, at time.Time) error
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// TutorService manages tutor profiles and their approval.
type TutorService struct {
	repo      tutorRepository
	audit     auditWriter
	notifier  Notifier
	authz     Authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTutorService constructs the service.
func NewTutorService(repo tutorRepository, audit auditWriter, notifier Notifier, authz Authorizer, validate *validator.Validate, logger *zap.Logger) *TutorService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	return &TutorService{repo: repo, audit: audit, notifier: notifier, authz: authz, validator: validate, logger: logger}
}

// Get returns a tutor profile. Unapproved profiles are visible to their owner and admins only.
func (s *TutorService) Get(ctx context.Context, principal models.Principal, tutorID string) (*models.TutorDetail, error) {
	tutor, err := s.load(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if tutor.ApprovalStatus != models.TutorApproved && principal.UserID != tutorID && principal.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
	}
	return tutor, nil
}

// List returns tutors. Non-admins only see approved, active tutors.
func (s *TutorService) List(ctx context.Context, principal models.Principal, filter models.TutorFilter) ([]models.TutorDetail, *models.Pagination, error) {
	if principal.Role != models.RoleAdmin {
		approved := models.TutorApproved
		filter.Status = &approved
	}
	filter.Page, filter.PageSize = models.NormalizePage(filter.Page, filter.PageSize)
	filter.Subject = strings.TrimSpace(filter.Subject)

	tutors, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tutors")
	}
	if principal.Role != models.RoleAdmin {
		visible := tutors[:0]
		for i := range tutors {
			if tutors[i].CanTeach() {
				visible = append(visible, tutors[i])
			}
		}
		tutors = visible
	}
	return tutors, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UpsertProfile lets a tutor edit their profile. Approval state is kept.
func (s *TutorService) UpsertProfile(ctx context.Context, principal models.Principal, tutorID string, req models.UpsertTutorProfileRequest) (*models.TutorDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tutor profile payload")
	}
	if err := authorize(s.authz, principal, models.CapTutorProfileEdit, tutorID); err != nil {
		return nil, err
	}

	current, err := s.load(ctx, tutorID)
	if err != nil {
		return nil, err
	}

	profile := current.TutorProfile
	profile.Headline = strings.TrimSpace(req.Headline)
	profile.Bio = req.Bio
	profile.Subjects = normalizeSubjects(req.Subjects)
	profile.HourlyRate = req.HourlyRate
	if req.Active != nil {
		profile.Active = *req.Active
	}
	if err := s.repo.Upsert(ctx, &profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save tutor profile")
	}
	return s.load(ctx, tutorID)
}

// Review records an admin approval decision and tells the tutor.
func (s *TutorService) Review(ctx context.Context, principal models.Principal, tutorID string, req models.ReviewTutorRequest) (*models.TutorDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if err := authorize(s.authz, principal, models.CapTutorReview); err != nil {
		return nil, err
	}

	if err := s.repo.Review(ctx, tutorID, req.Status, principal.UserID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review tutor")
	}

	if s.audit != nil {
		actor := principal.UserID
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actor,
			Action:     models.AuditActionTutorReview,
			Resource:   "tutor_profile",
			ResourceID: &tutorID,
			NewValues:  []byte(`{"status":"` + string(req.Status) + `"}`),
		}); err != nil {
			s.logger.Warn("failed to record tutor review audit log", zap.Error(err))
		}
	}

	message := "Your tutor profile was approved. Students can now book your sessions."
	if req.Status == models.TutorRejected {
		message = "Your tutor profile was not approved."
	}
	notify(ctx, s.notifier, s.logger, NotificationInput{
		UserID:       tutorID,
		Type:         models.NotificationTutorReviewed,
		Title:        "Tutor profile reviewed",
		Message:      message,
		ResourceType: "tutor_profile",
		ResourceID:   tutorID,
	})

	return s.load(ctx, tutorID)
}

// RequireTeachable loads the tutor and fails unless they may be scheduled.
func (s *TutorService) RequireTeachable(ctx context.Context, tutorID string) (*models.TutorDetail, error) {
	tutor, err := s.load(ctx, tutorID)
	if err != nil {
		return nil, err
	}
	if !tutor.CanTeach() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "tutor is not approved or not active")
	}
	return tutor, nil
}

func (s *TutorService) load(ctx context.Context, tutorID string) (*models.TutorDetail, error) {
	tutor, err := s.repo.FindByUserID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor")
	}
	return tutor, nil
}

func normalizeSubjects(subjects []string) []string {
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		key := strings.ToLower(subject)
		if subject == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, subject)
	}
	return out
}
