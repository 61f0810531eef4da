package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

const defaultHeartbeat = 25 * time.Second

type notificationService interface {
	List(ctx context.Context, principal models.Principal, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, principal models.Principal) (int, error)
	MarkRead(ctx context.Context, principal models.Principal, id string) error
	MarkAllRead(ctx context.Context, principal models.Principal) (int64, error)
}

// EventStream is an open subscription to a user's realtime events.
type EventStream interface {
	Events() <-chan realtime.Event
	Close() error
}

// StreamSource opens event streams and tracks which users are connected.
type StreamSource interface {
	Subscribe(ctx context.Context, userID string) (EventStream, error)
	Register(ctx context.Context, userID, connID string) error
	Touch(ctx context.Context, userID string) error
	Unregister(ctx context.Context, userID, connID string) error
}

type hubSource struct {
	*realtime.Hub
}

// HubSource adapts a realtime hub to StreamSource.
func HubSource(hub *realtime.Hub) StreamSource {
	return hubSource{Hub: hub}
}

func (s hubSource) Subscribe(ctx context.Context, userID string) (EventStream, error) {
	sub, err := s.Hub.Subscribe(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// NotificationHandler exposes the inbox and the live event stream.
type NotificationHandler struct {
	service   notificationService
	streams   StreamSource
	heartbeat time.Duration
	logger    *zap.Logger
}

// NewNotificationHandler constructs the handler. A zero heartbeat uses 25s.
func NewNotificationHandler(svc notificationService, streams StreamSource, heartbeat time.Duration, logger *zap.Logger) *NotificationHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{service: svc, streams: streams, heartbeat: heartbeat, logger: logger}
}

// List godoc
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	unread, err := boolQuery(c, "unread")
	if err != nil {
		response.Error(c, err)
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.List(c.Request.Context(), p, unread != nil && *unread, page, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount godoc
// @Summary Unread notification count
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"unread": count})
}

// MarkRead godoc
// @Summary Mark notification read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark every notification read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkAllRead(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"updated": updated})
}

// Stream godoc
// @Summary Live notification stream
// @Description Server-sent events. Browsers may pass the token as access_token since EventSource cannot set headers.
// @Tags Notifications
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Failure 503 {object} response.Envelope
// @Router /notifications/stream [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.streams == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "live notifications are disabled"))
		return
	}
	ctx := c.Request.Context()
	sub, err := h.streams.Subscribe(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, realtime.ErrRelayDisabled) {
			response.Error(c, appErrors.Clone(appErrors.ErrServiceUnavailable, "live notifications are disabled"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open notification stream"))
		return
	}
	defer sub.Close()

	connID := uuid.NewString()
	if err := h.streams.Register(ctx, p.UserID, connID); err != nil {
		h.logger.Warn("failed to register stream presence", zap.String("user_id", p.UserID), zap.Error(err))
	}
	defer func() {
		// the request context is already cancelled here
		cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.streams.Unregister(cleanup, p.UserID, connID); err != nil {
			h.logger.Warn("failed to unregister stream presence", zap.String("user_id", p.UserID), zap.Error(err))
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"connection_id": connID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(evt.Type, evt)
			c.Writer.Flush()
		case <-ticker.C:
			if err := h.streams.Touch(ctx, p.UserID); err != nil {
				h.logger.Debug("presence refresh failed", zap.String("user_id", p.UserID), zap.Error(err))
			}
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
