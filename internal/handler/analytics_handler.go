package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/middleware"
	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/internal/service"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type analyticsService interface {
	Overview(ctx context.Context, principal models.Principal) (*models.AnalyticsOverview, bool, error)
	SystemMetrics(principal models.Principal) (models.SystemMetrics, error)
}

type exportService interface {
	ExportClasses(ctx context.Context, principal models.Principal, filter models.ReportFilter, format models.ReportFormat) (*service.ExportFile, error)
	ExportEnrollments(ctx context.Context, principal models.Principal, courseID string, status models.EnrollmentStatus) (*service.ExportFile, error)
}

// AnalyticsHandler exposes admin dashboards and exports.
type AnalyticsHandler struct {
	analytics analyticsService
	exports   exportService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService, exports exportService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, exports: exports}
}

// Overview godoc
// @Summary Platform overview
// @Description Counts of users, classes, enrollments and certificates. Cached; meta.cache_hit reports whether the cache served it.
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	overview, cacheHit, err := h.analytics.Overview(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, overview, nil, meta)
}

// System godoc
// @Summary Process metrics snapshot
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	metrics, err := h.analytics.SystemMetrics(p)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, false)
	response.JSON(c, http.StatusOK, metrics, nil, middleware.ExtractMeta(c))
}

// ExportClasses godoc
// @Summary Export classes
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param from query string false "Range start (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Range end (RFC3339 or YYYY-MM-DD)"
// @Param status query string false "Comma separated statuses"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /exports/classes [get]
func (h *AnalyticsHandler) ExportClasses(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.exports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var filter models.ReportFilter
	var err error
	if filter.From, err = timeQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = timeQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	if raw := c.Query("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, models.ClassStatus(strings.ToUpper(strings.TrimSpace(status))))
		}
	}
	format := models.ReportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ReportFormatCSV))))

	file, err := h.exports.ExportClasses(c.Request.Context(), p, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// ExportEnrollments godoc
// @Summary Export enrollments as CSV
// @Tags Exports
// @Produce text/csv
// @Param course_id query string false "Course filter"
// @Param status query string false "ACTIVE, COMPLETED or DROPPED"
// @Success 200 {file} file
// @Router /exports/enrollments [get]
func (h *AnalyticsHandler) ExportEnrollments(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.exports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	status := models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	file, err := h.exports.ExportEnrollments(c.Request.Context(), p, c.Query("course_id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
