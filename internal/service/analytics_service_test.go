package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

type mockAnalyticsRepo struct {
	calls      int32
	pendingErr error
}

func (m *mockAnalyticsRepo) UsersByRole(ctx context.Context) (map[string]int, error) {
	atomic.AddInt32(&m.calls, 1)
	return map[string]int{"STUDENT": 12, "TUTOR": 3, "ADMIN": 1}, nil
}

func (m *mockAnalyticsRepo) ClassesByStatus(ctx context.Context) (map[string]int, error) {
	return map[string]int{"SCHEDULED": 4, "CANCELLED": 1}, nil
}

func (m *mockAnalyticsRepo) EnrollmentsByStatus(ctx context.Context) (map[string]int, error) {
	return map[string]int{"ACTIVE": 7, "COMPLETED": 2}, nil
}

func (m *mockAnalyticsRepo) PendingTutors(ctx context.Context) (int, error) {
	if m.pendingErr != nil {
		return 0, m.pendingErr
	}
	return 2, nil
}

func (m *mockAnalyticsRepo) CertificatesIssued(ctx context.Context) (int, error) {
	return 2, nil
}

func (m *mockAnalyticsRepo) UpcomingClasses(ctx context.Context, now time.Time) (int, error) {
	return 4, nil
}

func (m *mockAnalyticsRepo) AverageProgress(ctx context.Context) (float64, error) {
	return 41.5, nil
}

type stubCacheRepo struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.store {
		if strings.HasPrefix(key, prefix) {
			delete(s.store, key)
		}
	}
	return nil
}

func TestAnalyticsOverviewCaching(t *testing.T) {
	repo := &mockAnalyticsRepo{}
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	svc := NewAnalyticsService(repo, cacheSvc, nil, nil, zap.NewNop(), 0)
	ctx := context.Background()

	overview, hit, err := svc.Overview(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 12, overview.UsersByRole["STUDENT"])
	assert.Equal(t, 2, overview.PendingTutors)
	assert.Equal(t, 4, overview.UpcomingClasses)
	assert.InDelta(t, 41.5, overview.AverageCourseProgress, 0.001)

	cached, hit, err := svc.Overview(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, overview.ClassesByStatus, cached.ClassesByStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&repo.calls))

	svc.InvalidateOverview(ctx)
	_, hit, err = svc.Overview(ctx, adminPrincipal)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), atomic.LoadInt32(&repo.calls))
}

func TestAnalyticsOverviewWithoutCache(t *testing.T) {
	repo := &mockAnalyticsRepo{}
	svc := NewAnalyticsService(repo, NewCacheService(nil, nil, time.Minute, zap.NewNop(), false), nil, nil, nil, 0)

	_, hit, err := svc.Overview(context.Background(), adminPrincipal)
	require.NoError(t, err)
	assert.False(t, hit)
	svc.InvalidateOverview(context.Background())
}

func TestAnalyticsOverviewErrors(t *testing.T) {
	repo := &mockAnalyticsRepo{pendingErr: assert.AnError}
	svc := NewAnalyticsService(repo, nil, nil, nil, nil, 0)

	_, _, err := svc.Overview(context.Background(), adminPrincipal)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))

	_, _, err = svc.Overview(context.Background(), tutorPrincipal)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.SystemMetrics(studentPrincipal)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}
