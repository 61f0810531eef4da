package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/service"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type stubTokens map[string]models.Principal

func (s stubTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	p, ok := s[token]
	if !ok {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{UserID: p.UserID, Role: p.Role}, nil
}

type countingLimiter struct {
	count int64
}

func (l *countingLimiter) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	l.count++
	return l.count, time.Minute, nil
}

type discardAudit struct{}

func (discardAudit) CreateAuditLog(context.Context, *models.AuditLog) error { return nil }

func newTestRouter(t *testing.T, classes *fakeClassService, limiter *countingLimiter, bookingLimit int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	Register(r, "/api/v1", Handlers{
		Tutor:        NewTutorHandler(nil),
		Availability: NewAvailabilityHandler(nil),
		Class:        NewClassHandler(classes, fakeCalendar{}),
		Course:       NewCourseHandler(nil),
		Enrollment:   NewEnrollmentHandler(nil, nil),
		Certificate:  NewCertificateHandler(&fakeCertificateService{}),
		Notification: NewNotificationHandler(&fakeNotificationService{}, nil, 0, nil),
		Announcement: NewAnnouncementHandler(nil),
		Analytics:    NewAnalyticsHandler(nil, nil),
		Metrics:      NewMetricsHandler(service.NewMetricsService(), nil),
	}, RouteDeps{
		Tokens: stubTokens{
			"admin":   adminPrincipal,
			"tutor":   tutorPrincipal,
			"student": studentPrincipal,
		},
		Policy:        service.DefaultPolicy(),
		Limiter:       limiter,
		Audit:         discardAudit{},
		Logger:        zap.NewNop(),
		BookingLimit:  bookingLimit,
		BookingWindow: time.Minute,
	})
	return r
}

func serve(r *gin.Engine, method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRoutesProbesArePublic(t *testing.T) {
	r := newTestRouter(t, &fakeClassService{}, &countingLimiter{}, 0)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ready", "", "").Code)
}

func TestRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t, &fakeClassService{}, &countingLimiter{}, 0)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/classes", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/classes", "forged", "").Code)
}

func TestRoutesEnforceCapabilities(t *testing.T) {
	r := newTestRouter(t, &fakeClassService{}, &countingLimiter{}, 0)

	rec := serve(r, http.MethodPost, "/api/v1/announcements", "student", `{"title":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(r, http.MethodGet, "/api/v1/exports/classes", "tutor", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(r, http.MethodPost, "/api/v1/classes/class-1/start", "student", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRoutesReachHandlers(t *testing.T) {
	classes := &fakeClassService{}
	r := newTestRouter(t, classes, &countingLimiter{}, 0)

	rec := serve(r, http.MethodGet, "/api/v1/classes?status=scheduled", "student", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.ClassStatus{models.ClassScheduled}, classes.lastFilter.Status)

	rec = serve(r, http.MethodGet, "/api/v1/classes/calendar.ics", "tutor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "BEGIN:VCALENDAR")

	rec = serve(r, http.MethodGet, "/api/v1/certificates/download?token=good", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutesRateLimitBooking(t *testing.T) {
	limiter := &countingLimiter{}
	r := newTestRouter(t, &fakeClassService{}, limiter, 1)
	body := `{"tutor_id":"tutor-1","subject":"Math","scheduled_at":"2030-01-07T10:00:00Z","duration_minutes":60}`

	first := serve(r, http.MethodPost, "/api/v1/classes", "student", body)
	second := serve(r, http.MethodPost, "/api/v1/classes", "student", body)

	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}
