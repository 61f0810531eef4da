package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
)

// AnalyticsRepository describes the persistence layer required by AnalyticsService.
type AnalyticsRepository interface {
	UsersByRole(ctx context.Context) (map[string]int, error)
	ClassesByStatus(ctx context.Context) (map[string]int, error)
	EnrollmentsByStatus(ctx context.Context) (map[string]int, error)
	PendingTutors(ctx context.Context) (int, error)
	CertificatesIssued(ctx context.Context) (int, error)
	UpcomingClasses(ctx context.Context, now time.Time) (int, error)
	AverageProgress(ctx context.Context) (float64, error)
}

// AnalyticsService provides the cached admin overview.
type AnalyticsService struct {
	repo    AnalyticsRepository
	cache   *CacheService
	metrics *MetricsService
	authz   Authorizer
	logger  *zap.Logger
	ttl     time.Duration
}

// NewAnalyticsService constructs an analytics service. ttl <= 0 uses the cache default.
func NewAnalyticsService(repo AnalyticsRepository, cache *CacheService, metrics *MetricsService, authz Authorizer, logger *zap.Logger, ttl time.Duration) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	return &AnalyticsService{repo: repo, cache: cache, metrics: metrics, authz: authz, logger: logger, ttl: ttl}
}

// Overview returns the dashboard summary. The boolean indicates whether data originated from cache.
func (s *AnalyticsService) Overview(ctx context.Context, principal models.Principal) (*models.AnalyticsOverview, bool, error) {
	if err := authorize(s.authz, principal, models.CapAnalyticsView); err != nil {
		return nil, false, err
	}

	cacheKey := s.cache.Key("analytics", "overview")
	var cached models.AnalyticsOverview
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	start := time.Now()
	overview, err := s.collect(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build analytics overview")
	}
	s.metrics.ObserveDBQuery("analytics_overview", time.Since(start))

	if err := s.cache.Set(ctx, cacheKey, overview, s.ttl); err != nil {
		s.logger.Warn("cache analytics overview", zap.Error(err))
	}
	return overview, false, nil
}

// InvalidateOverview drops the cached overview after writes that change it.
func (s *AnalyticsService) InvalidateOverview(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, s.cache.Key("analytics", "*")); err != nil {
		s.logger.Warn("invalidate analytics cache", zap.Error(err))
	}
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics(principal models.Principal) (models.SystemMetrics, error) {
	if err := authorize(s.authz, principal, models.CapAnalyticsView); err != nil {
		return models.SystemMetrics{}, err
	}
	if s.metrics == nil {
		return models.SystemMetrics{GeneratedAt: time.Now().UTC()}, nil
	}
	return s.metrics.Snapshot(), nil
}

func (s *AnalyticsService) collect(ctx context.Context) (*models.AnalyticsOverview, error) {
	now := time.Now().UTC()
	overview := &models.AnalyticsOverview{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		overview.UsersByRole, err = s.repo.UsersByRole(gctx)
		return wrapAggregate("users by role", err)
	})
	g.Go(func() (err error) {
		overview.ClassesByStatus, err = s.repo.ClassesByStatus(gctx)
		return wrapAggregate("classes by status", err)
	})
	g.Go(func() (err error) {
		overview.EnrollmentsByStatus, err = s.repo.EnrollmentsByStatus(gctx)
		return wrapAggregate("enrollments by status", err)
	})
	g.Go(func() (err error) {
		overview.PendingTutors, err = s.repo.PendingTutors(gctx)
		return wrapAggregate("pending tutors", err)
	})
	g.Go(func() (err error) {
		overview.CertificatesIssued, err = s.repo.CertificatesIssued(gctx)
		return wrapAggregate("certificates issued", err)
	})
	g.Go(func() (err error) {
		overview.UpcomingClasses, err = s.repo.UpcomingClasses(gctx, now)
		return wrapAggregate("upcoming classes", err)
	})
	g.Go(func() (err error) {
		overview.AverageCourseProgress, err = s.repo.AverageProgress(gctx)
		return wrapAggregate("average progress", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return overview, nil
}

func wrapAggregate(name string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
