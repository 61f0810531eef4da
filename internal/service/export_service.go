package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/export"
)

const (
	exportPageSize   = 100
	maxExportRange   = 366 * 24 * time.Hour
	exportTimeLayout = "2006-01-02 15:04"
)

type classExportSource interface {
	ListAll(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, error)
}

type enrollmentExportSource interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportFile is a rendered report ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders admin reports as CSV or PDF.
type ExportService struct {
	classes     classExportSource
	enrollments enrollmentExportSource
	csv         datasetRenderer
	pdf         datasetRenderer
	authz       Authorizer
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(classes classExportSource, enrollments enrollmentExportSource, authz Authorizer, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if authz == nil {
		authz = DefaultPolicy()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		classes:     classes,
		enrollments: enrollments,
		csv:         csv,
		pdf:         pdf,
		authz:       authz,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ExportClasses renders class sessions scheduled inside the filter window.
func (s *ExportService) ExportClasses(ctx context.Context, principal models.Principal, filter models.ReportFilter, format models.ReportFormat) (*ExportFile, error) {
	if err := authorize(s.authz, principal, models.CapReportExport); err != nil {
		return nil, err
	}
	renderer, err := s.renderer(format)
	if err != nil {
		return nil, err
	}
	if err := validateReportRange(filter); err != nil {
		return nil, err
	}

	rows, err := s.classes.ListAll(ctx, models.ClassFilter{From: filter.From, To: filter.To, Status: filter.Status, SortOrder: "asc"})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classes for export")
	}

	dataset := export.Dataset{
		Title:   "Class Sessions " + describeRange(filter),
		Headers: []string{"ID", "Subject", "Tutor", "Student", "Scheduled At", "Duration (min)", "Status", "Cancel Reason"},
	}
	for _, row := range rows {
		dataset.AddRow(
			row.ID,
			row.Subject,
			row.TutorName,
			row.StudentName,
			row.ScheduledAt.UTC().Format(exportTimeLayout),
			strconv.Itoa(row.DurationMinutes),
			string(row.Status),
			deref(row.CancelReason),
		)
	}
	return s.render(renderer, dataset, "classes", format)
}

// ExportEnrollments renders course enrollments as CSV, optionally for one course.
func (s *ExportService) ExportEnrollments(ctx context.Context, principal models.Principal, courseID string, status models.EnrollmentStatus) (*ExportFile, error) {
	if err := authorize(s.authz, principal, models.CapReportExport); err != nil {
		return nil, err
	}

	var rows []models.EnrollmentDetail
	for page := 1; ; page++ {
		batch, total, err := s.enrollments.List(ctx, models.EnrollmentFilter{CourseID: courseID, Status: status, Page: page, PageSize: exportPageSize})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments for export")
		}
		rows = append(rows, batch...)
		if len(batch) == 0 || len(rows) >= total {
			break
		}
	}

	dataset := export.Dataset{
		Title:   "Course Enrollments",
		Headers: []string{"ID", "Course", "Student", "Status", "Progress (%)", "Completed Lessons", "Total Lessons", "Enrolled At", "Completed At"},
	}
	for _, row := range rows {
		completedAt := ""
		if row.CompletedAt != nil {
			completedAt = row.CompletedAt.UTC().Format(exportTimeLayout)
		}
		dataset.AddRow(
			row.ID,
			row.CourseTitle,
			row.StudentName,
			string(row.Status),
			strconv.Itoa(row.Progress),
			strconv.Itoa(row.CompletedLessons),
			strconv.Itoa(row.TotalLessons),
			row.EnrolledAt.UTC().Format(exportTimeLayout),
			completedAt,
		)
	}
	return s.render(s.csv, dataset, "enrollments", models.ReportFormatCSV)
}

func (s *ExportService) renderer(format models.ReportFormat) (datasetRenderer, error) {
	switch format {
	case models.ReportFormatCSV, "":
		return s.csv, nil
	case models.ReportFormatPDF:
		return s.pdf, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
}

func (s *ExportService) render(renderer datasetRenderer, dataset export.Dataset, name string, format models.ReportFormat) (*ExportFile, error) {
	if format == "" {
		format = models.ReportFormatCSV
	}
	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("export rendered", zap.String("report", name), zap.String("format", string(format)), zap.Int("rows", len(dataset.Rows)))
	return &ExportFile{
		Filename:    fmt.Sprintf("%s_%s.%s", name, s.now().Format("20060102_150405"), format),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func validateReportRange(filter models.ReportFilter) error {
	if filter.From == nil || filter.To == nil {
		return nil
	}
	if !filter.To.After(*filter.From) {
		return appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	if filter.To.Sub(*filter.From) > maxExportRange {
		return appErrors.Clone(appErrors.ErrValidation, "export range cannot exceed one year")
	}
	return nil
}

func describeRange(filter models.ReportFilter) string {
	from, to := "start", "now"
	if filter.From != nil {
		from = filter.From.UTC().Format("2006-01-02")
	}
	if filter.To != nil {
		to = filter.To.UTC().Format("2006-01-02")
	}
	return from + " to " + to
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
