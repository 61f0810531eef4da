package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
)

type fakeNotificationService struct {
	unreadOnly bool
	marked     []string
}

func (f *fakeNotificationService) List(_ context.Context, _ models.Principal, unreadOnly bool, page, pageSize int) ([]models.Notification, *models.Pagination, error) {
	f.unreadOnly = unreadOnly
	return []models.Notification{{ID: "n-1"}}, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: 1}, nil
}

func (f *fakeNotificationService) UnreadCount(context.Context, models.Principal) (int, error) {
	return 4, nil
}

func (f *fakeNotificationService) MarkRead(_ context.Context, _ models.Principal, id string) error {
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeNotificationService) MarkAllRead(context.Context, models.Principal) (int64, error) {
	return 4, nil
}

type fakeStream struct {
	events chan realtime.Event
	closed bool
}

func (s *fakeStream) Events() <-chan realtime.Event { return s.events }

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeStreamSource struct {
	mu           sync.Mutex
	stream       *fakeStream
	subscribeErr error
	registered   []string
	unregistered []string
}

func (f *fakeStreamSource) Subscribe(context.Context, string) (EventStream, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.stream, nil
}

func (f *fakeStreamSource) Register(_ context.Context, userID, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, userID+"/"+connID)
	return nil
}

func (f *fakeStreamSource) Touch(context.Context, string) error { return nil }

func (f *fakeStreamSource) Unregister(_ context.Context, userID, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = append(f.unregistered, userID+"/"+connID)
	return nil
}

func TestNotificationListUnreadFilter(t *testing.T) {
	svc := &fakeNotificationService{}
	h := NewNotificationHandler(svc, nil, 0, nil)

	c, rec := newTestContext(http.MethodGet, "/notifications?unread=true&page=1&page_size=10", "", &studentPrincipal)
	h.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.unreadOnly)
	assert.Equal(t, 10, decodeEnvelope(t, rec).Pagination.PageSize)
}

func TestNotificationCountsAndMarks(t *testing.T) {
	svc := &fakeNotificationService{}
	h := NewNotificationHandler(svc, nil, 0, nil)

	c, rec := newTestContext(http.MethodGet, "/notifications/unread-count", "", &studentPrincipal)
	h.UnreadCount(c)
	assert.JSONEq(t, `{"unread":4}`, string(decodeEnvelope(t, rec).Data))

	c, rec = newTestContext(http.MethodPost, "/notifications/n-1/read", "", &studentPrincipal, idParam("n-1"))
	h.MarkRead(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"n-1"}, svc.marked)

	c, rec = newTestContext(http.MethodPost, "/notifications/read-all", "", &studentPrincipal)
	h.MarkAllRead(c)
	assert.JSONEq(t, `{"updated":4}`, string(decodeEnvelope(t, rec).Data))
}

func TestNotificationStreamRelayDisabled(t *testing.T) {
	h := NewNotificationHandler(&fakeNotificationService{}, &fakeStreamSource{subscribeErr: realtime.ErrRelayDisabled}, 0, nil)
	c, rec := newTestContext(http.MethodGet, "/notifications/stream", "", &studentPrincipal)
	h.Stream(c)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeEnvelope(t, rec).Error.Code)
}

func TestNotificationStreamDeliversEvents(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"class_id": "class-1"})
	stream := &fakeStream{events: make(chan realtime.Event, 1)}
	stream.events <- realtime.Event{Type: "notification", UserID: studentPrincipal.UserID, Payload: payload, SentAt: time.Now()}
	close(stream.events)

	source := &fakeStreamSource{stream: stream}
	h := NewNotificationHandler(&fakeNotificationService{}, source, time.Hour, nil)

	c, rec := newTestContext(http.MethodGet, "/notifications/stream", "", &studentPrincipal)
	h.Stream(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event:ready")
	assert.Contains(t, body, "event:notification")
	assert.Contains(t, body, "class-1")
	assert.True(t, stream.closed)
	require.Len(t, source.registered, 1)
	assert.Equal(t, source.registered, source.unregistered)
}
