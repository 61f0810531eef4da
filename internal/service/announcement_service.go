package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
)

// EventAnnouncementCreated is broadcast on the relay when an announcement is published.
const EventAnnouncementCreated = "announcement.created"

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	GetByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	Delete(ctx context.Context, id string) error
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	audit     auditWriter
	publisher EventPublisher
	authz     Authorizer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the service.
func NewAnnouncementService(repo announcementRepository, audit auditWriter, publisher EventPublisher, authz Authorizer, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	return &AnnouncementService{repo: repo, audit: audit, publisher: publisher, authz: authz, validator: validate, logger: logger}
}

// List returns the announcements the caller's role may see.
func (s *AnnouncementService) List(ctx context.Context, principal models.Principal, page, pageSize int) ([]models.Announcement, *models.Pagination, error) {
	filter := models.AnnouncementFilter{Audiences: models.AudiencesFor(principal.Role)}
	filter.Page, filter.PageSize = models.NormalizePage(page, pageSize)
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an announcement if the caller's role is in its audience.
func (s *AnnouncementService) Get(ctx context.Context, principal models.Principal, id string) (*models.Announcement, error) {
	ann, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, audience := range models.AudiencesFor(principal.Role) {
		if ann.Audience == audience {
			return ann, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
}

// Create publishes a new announcement and broadcasts it to connected clients.
func (s *AnnouncementService) Create(ctx context.Context, principal models.Principal, req models.CreateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := authorize(s.authz, principal, models.CapAnnouncementManage); err != nil {
		return nil, err
	}
	publishedAt := time.Now().UTC()
	if req.PublishedAt != nil {
		publishedAt = req.PublishedAt.UTC()
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(publishedAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
	}
	priority := req.Priority
	if priority == "" {
		priority = models.AnnouncementPriorityNormal
	}
	announcement := &models.Announcement{
		Title:       strings.TrimSpace(req.Title),
		Content:     req.Content,
		Audience:    req.Audience,
		Priority:    priority,
		IsPinned:    req.IsPinned,
		PublishedAt: publishedAt,
		ExpiresAt:   req.ExpiresAt,
		CreatedBy:   principal.UserID,
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.recordAudit(ctx, principal, announcement.ID, announcement)
	s.broadcast(ctx, announcement)
	return announcement, nil
}

// Update modifies an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, principal models.Principal, id string, req models.UpdateAnnouncementRequest) (*models.Announcement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := authorize(s.authz, principal, models.CapAnnouncementManage); err != nil {
		return nil, err
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		existing.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		existing.Content = *req.Content
	}
	if req.Audience != nil {
		existing.Audience = *req.Audience
	}
	if req.Priority != nil {
		existing.Priority = *req.Priority
	}
	if req.IsPinned != nil {
		existing.IsPinned = *req.IsPinned
	}
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(existing.PublishedAt) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "expires_at must be after published_at")
		}
		existing.ExpiresAt = req.ExpiresAt
	}
	if existing.Title == "" || existing.Content == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "title and content are required")
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	s.recordAudit(ctx, principal, id, existing)
	return existing, nil
}

// Delete removes an announcement by id.
func (s *AnnouncementService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if err := authorize(s.authz, principal, models.CapAnnouncementManage); err != nil {
		return err
	}
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	s.recordAudit(ctx, principal, id, nil)
	return nil
}

func (s *AnnouncementService) broadcast(ctx context.Context, announcement *models.Announcement) {
	if s.publisher == nil {
		return
	}
	evt, err := realtime.NewEvent(EventAnnouncementCreated, announcement)
	if err != nil {
		s.logger.Warn("failed to encode announcement event", zap.Error(err))
		return
	}
	if err := s.publisher.Broadcast(ctx, evt); err != nil && !errors.Is(err, realtime.ErrRelayDisabled) {
		s.logger.Warn("failed to broadcast announcement", zap.String("announcement_id", announcement.ID), zap.Error(err))
	}
}

func (s *AnnouncementService) recordAudit(ctx context.Context, principal models.Principal, id string, state *models.Announcement) {
	if s.audit == nil {
		return
	}
	var values []byte
	if state != nil {
		values, _ = json.Marshal(state)
	}
	actor := principal.UserID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor,
		Action:     models.AuditActionAnnouncement,
		Resource:   "announcement",
		ResourceID: &id,
		NewValues:  values,
	}); err != nil {
		s.logger.Warn("failed to record announcement audit log", zap.Error(err))
	}
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.Announcement, error) {
	ann, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get announcement")
	}
	return ann, nil
}
