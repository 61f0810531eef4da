package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorly-api/api/swagger"
	"github.com/noah-isme/tutorly-api/internal/handler"
	"github.com/noah-isme/tutorly-api/internal/middleware"
	"github.com/noah-isme/tutorly-api/internal/repository"
	"github.com/noah-isme/tutorly-api/internal/service"
	"github.com/noah-isme/tutorly-api/pkg/cache"
	"github.com/noah-isme/tutorly-api/pkg/config"
	"github.com/noah-isme/tutorly-api/pkg/database"
	"github.com/noah-isme/tutorly-api/pkg/export"
	"github.com/noah-isme/tutorly-api/pkg/jobs"
	"github.com/noah-isme/tutorly-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorly-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorly-api/pkg/middleware/requestid"
	"github.com/noah-isme/tutorly-api/pkg/realtime"
	"github.com/noah-isme/tutorly-api/pkg/storage"
)

// @title Tutorly API
// @version 1.0.0
// @description Tutoring marketplace: availability, class scheduling, courses, progress and certificates.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cache and live notifications disabled", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := service.NewMetricsService()
	policy := service.DefaultPolicy()
	validate := service.NewValidator()
	loc := cfg.Scheduling.Location()

	// repositories
	userRepo := repository.NewUserRepository(db)
	tutorRepo := repository.NewTutorRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	classRepo := repository.NewClassRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	// background work
	mux := jobs.NewMux()
	queue := jobs.NewQueue("background", func(ctx context.Context, job jobs.Job) error {
		start := time.Now()
		err := mux.Dispatch(ctx, job)
		metrics.ObserveJob(job.Type, err, time.Since(start))
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		RetryDelay: cfg.Jobs.RetryDelay,
		Logger:     logr.Named("jobs"),
	})
	hub := realtime.NewHub(redisClient, cfg.Realtime.PresenceTTL, logr.Named("realtime"))

	store, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare certificate storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)

	// services
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled && redisClient != nil)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, cacheSvc, metrics, policy, logr, cfg.Analytics.CacheTTL)
	notificationSvc := service.NewNotificationService(notificationRepo, queue, hub, logr)
	authSvc := service.NewAuthService(userRepo, tutorRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, policy, validate, logr)
	tutorSvc := service.NewTutorService(tutorRepo, userRepo, notificationSvc, policy, validate, logr)
	checker := service.NewConflictChecker(classRepo, availabilityRepo, loc)
	classSvc := service.NewClassService(service.ClassServiceDeps{
		Repo:      classRepo,
		Tutors:    tutorSvc,
		Users:     userRepo,
		Checker:   checker,
		Slots:     availabilityRepo,
		Notifier:  notificationSvc,
		Audit:     userRepo,
		Analytics: analyticsSvc,
		Metrics:   metrics,
		Authz:     policy,
		Validator: validate,
		Logger:    logr.Named("classes"),
	}, service.ClassServiceConfig{
		Location:               loc,
		MaxDurationMinutes:     cfg.Scheduling.MaxDurationMinutes,
		RevalidateOnReschedule: cfg.Scheduling.RevalidateOnReschedule,
		AllowPastScheduling:    cfg.Scheduling.AllowPastScheduling,
	})
	availabilitySvc := service.NewAvailabilityService(availabilityRepo, tutorRepo, classSvc, policy, validate, logr, loc)
	calendarSvc := service.NewCalendarService(classSvc, loc)
	courseSvc := service.NewCourseService(courseRepo, tutorRepo, policy, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, notificationSvc, analyticsSvc, policy, logr)
	progressSvc := service.NewProgressService(service.ProgressServiceDeps{
		Enrollments:  enrollmentRepo,
		Courses:      courseRepo,
		Certificates: certificateRepo,
		Notifier:     notificationSvc,
		Queue:        queue,
		Analytics:    analyticsSvc,
		Metrics:      metrics,
		Authz:        policy,
		Validator:    validate,
		Logger:       logr.Named("progress"),
	})
	certificateSvc := service.NewCertificateService(certificateRepo, store, signer, export.NewPDFExporter(), policy, logr, service.CertificateConfig{
		IssuerName: cfg.Certificates.IssuerName,
		APIPrefix:  cfg.APIPrefix,
	})
	announcementSvc := service.NewAnnouncementService(announcementRepo, userRepo, hub, policy, validate, logr)
	exportSvc := service.NewExportService(classRepo, enrollmentRepo, policy, logr, nil, nil)

	mux.Handle(service.JobNotificationPush, notificationSvc.HandlePush)
	mux.Handle(service.JobCertificateRender, certificateSvc.HandleRender)
	queue.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	probes := handler.NewMetricsHandler(metrics, map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"redis":    cacheRepo,
	})
	handler.Register(r, cfg.APIPrefix, handler.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		User:         handler.NewUserHandler(userSvc),
		Tutor:        handler.NewTutorHandler(tutorSvc),
		Availability: handler.NewAvailabilityHandler(availabilitySvc),
		Class:        handler.NewClassHandler(classSvc, calendarSvc),
		Course:       handler.NewCourseHandler(courseSvc),
		Enrollment:   handler.NewEnrollmentHandler(enrollmentSvc, progressSvc),
		Certificate:  handler.NewCertificateHandler(certificateSvc),
		Notification: handler.NewNotificationHandler(notificationSvc, handler.HubSource(hub), cfg.Realtime.HeartbeatInterval, logr),
		Announcement: handler.NewAnnouncementHandler(announcementSvc),
		Analytics:    handler.NewAnalyticsHandler(analyticsSvc, exportSvc),
		Metrics:      probes,
	}, handler.RouteDeps{
		Tokens:        authSvc,
		Policy:        policy,
		Limiter:       cacheRepo,
		Audit:         userRepo,
		Logger:        logr,
		BookingLimit:  cfg.RateLimit.BookingLimit,
		BookingWindow: cfg.RateLimit.BookingWindow,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
	queue.Stop()
	logr.Info("server stopped")
}
