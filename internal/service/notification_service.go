package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
)

// JobNotificationPush relays a stored notification to the user's live connections.
const JobNotificationPush = "notification.push"

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
}

// JobEnqueuer hands work to a background queue.
type JobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// EventPublisher pushes realtime events to connected clients.
type EventPublisher interface {
	Publish(ctx context.Context, userID string, evt realtime.Event) error
	Broadcast(ctx context.Context, evt realtime.Event) error
}

// Notifier is what other services use to message a user.
type Notifier interface {
	Notify(ctx context.Context, input NotificationInput) error
}

// NotificationInput describes a message to store for one user.
type NotificationInput struct {
	UserID       string
	Type         string
	Title        string
	Message      string
	ResourceType string
	ResourceID   string
}

// NotificationService stores notifications and relays them in the background.
type NotificationService struct {
	repo      notificationRepository
	queue     JobEnqueuer
	publisher EventPublisher
	logger    *zap.Logger
}

// NewNotificationService constructs the service. With a nil queue pushes happen inline.
func NewNotificationService(repo notificationRepository, queue JobEnqueuer, publisher EventPublisher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, queue: queue, publisher: publisher, logger: logger}
}

// Notify persists the notification then schedules its realtime push.
// A failed push never fails the write.
func (s *NotificationService) Notify(ctx context.Context, input NotificationInput) error {
	if input.UserID == "" || input.Type == "" {
		return appErrors.Clone(appErrors.ErrValidation, "notification user and type are required")
	}
	n := &models.Notification{
		UserID:  input.UserID,
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
	}
	if input.ResourceType != "" {
		n.ResourceType = &input.ResourceType
	}
	if input.ResourceID != "" {
		n.ResourceID = &input.ResourceID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store notification")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{Type: JobNotificationPush, Payload: *n}); err != nil {
			s.logger.Warn("failed to enqueue notification push", zap.String("notification_id", n.ID), zap.Error(err))
		}
		return nil
	}
	if err := s.push(ctx, *n); err != nil {
		s.logger.Warn("failed to push notification", zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

// HandlePush is the job handler for JobNotificationPush.
func (s *NotificationService) HandlePush(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(models.Notification)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	return s.push(ctx, n)
}

func (s *NotificationService) push(ctx context.Context, n models.Notification) error {
	if s.publisher == nil {
		return nil
	}
	evt, err := realtime.NewEvent(n.Type, n)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, n.UserID, evt)
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, principal models.Principal, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	page, pageSize = models.NormalizePage(page, pageSize)
	items, total, err := s.repo.List(ctx, models.NotificationFilter{UserID: principal.UserID, UnreadOnly: unreadOnly, Page: page, PageSize: pageSize})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UnreadCount returns the number of unread notifications for the caller.
func (s *NotificationService) UnreadCount(ctx context.Context, principal models.Principal) (int, error) {
	count, err := s.repo.CountUnread(ctx, principal.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, principal models.Principal, id string) error {
	ok, err := s.repo.MarkRead(ctx, id, principal.UserID, time.Now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

// MarkAllRead clears the caller's unread notifications and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal models.Principal) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, principal.UserID, time.Now().UTC())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return count, nil
}

// notify sends through n and logs failures; notifications never fail the caller.
func notify(ctx context.Context, n Notifier, logger *zap.Logger, input NotificationInput) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, input); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrValidation.Code {
			logger.Warn("dropped invalid notification", zap.String("type", input.Type))
			return
		}
		logger.Warn("failed to send notification", zap.String("type", input.Type), zap.String("user_id", input.UserID), zap.Error(err))
	}
}
