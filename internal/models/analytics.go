package models

import "time"

// CountByKey is one row of a grouped count.
type CountByKey struct {
	Key   string `db:"key" json:"key"`
	Count int    `db:"count" json:"count"`
}

// AnalyticsOverview is the admin dashboard summary.
type AnalyticsOverview struct {
	UsersByRole           map[string]int `json:"users_by_role"`
	PendingTutors         int            `json:"pending_tutors"`
	ClassesByStatus       map[string]int `json:"classes_by_status"`
	EnrollmentsByStatus   map[string]int `json:"enrollments_by_status"`
	CertificatesIssued    int            `json:"certificates_issued"`
	AverageCourseProgress float64        `json:"average_course_progress"`
	UpcomingClasses       int            `json:"upcoming_classes"`
	GeneratedAt           time.Time      `json:"generated_at"`
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportFilter scopes admin exports.
type ReportFilter struct {
	From   *time.Time
	To     *time.Time
	Status []ClassStatus
}

// SystemMetrics exposes process level counters captured by instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
