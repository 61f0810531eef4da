package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, principal models.Principal, courseID, studentID string) (*models.CourseEnrollment, error)
	Drop(ctx context.Context, principal models.Principal, id string) (*models.CourseEnrollment, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.CourseEnrollment, error)
	LessonProgress(ctx context.Context, principal models.Principal, id string) ([]models.LessonProgress, error)
	List(ctx context.Context, principal models.Principal, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error)
}

type progressService interface {
	RecordLessonComplete(ctx context.Context, principal models.Principal, studentID, lessonID string) (*models.ProgressResult, error)
	RecordLessonProgress(ctx context.Context, principal models.Principal, studentID, lessonID string, req models.LessonProgressRequest) (*models.ProgressResult, error)
}

// EnrollmentHandler exposes course enrollment and lesson progress endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
	progress    progressService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService, progress progressService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, progress: progress}
}

type enrollPayload struct {
	StudentID string `json:"student_id"`
}

type progressPayload struct {
	StudentID  string `json:"student_id"`
	Percentage int    `json:"percentage"`
}

// List godoc
// @Summary List enrollments
// @Description Students see their own enrollments; instructors see enrollments of their courses
// @Tags Enrollments
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param course_id query string false "Filter by course"
// @Param status query string false "ACTIVE, COMPLETED or DROPPED"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	filter := models.EnrollmentFilter{
		StudentID: c.Query("student_id"),
		CourseID:  c.Query("course_id"),
		Status:    models.EnrollmentStatus(strings.ToUpper(c.Query("status"))),
	}
	filter.Page, filter.PageSize = pageParams(c)

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Enroll godoc
// @Summary Enroll in course
// @Description Students enroll themselves; admins may pass student_id
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body enrollPayload false "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var payload enrollPayload
	if c.Request.ContentLength != 0 && !bindJSON(c, &payload) {
		return
	}
	enrollment, err := h.enrollments.Enroll(c.Request.Context(), p, c.Param("id"), h.studentFor(p, payload.StudentID))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// Progress godoc
// @Summary Lesson progress of an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/progress [get]
func (h *EnrollmentHandler) Progress(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	progress, err := h.enrollments.LessonProgress(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, progress)
}

// Drop godoc
// @Summary Drop enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	enrollment, err := h.enrollments.Drop(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, enrollment)
}

// CompleteLesson godoc
// @Summary Mark lesson complete
// @Description Recomputes course progress and issues a certificate once every lesson is complete
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body progressPayload false "Admins may pass student_id"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/complete [post]
func (h *EnrollmentHandler) CompleteLesson(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var payload progressPayload
	if c.Request.ContentLength != 0 && !bindJSON(c, &payload) {
		return
	}
	result, err := h.progress.RecordLessonComplete(c.Request.Context(), p, h.studentFor(p, payload.StudentID), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// RecordProgress godoc
// @Summary Record partial lesson progress
// @Description Progress never decreases; 100 completes the lesson
// @Tags Progress
// @Accept json
// @Produce json
// @Param id path string true "Lesson ID"
// @Param payload body progressPayload true "Percentage"
// @Success 200 {object} response.Envelope
// @Router /lessons/{id}/progress [post]
func (h *EnrollmentHandler) RecordProgress(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var payload progressPayload
	if !bindJSON(c, &payload) {
		return
	}
	req := models.LessonProgressRequest{Percentage: payload.Percentage}
	result, err := h.progress.RecordLessonProgress(c.Request.Context(), p, h.studentFor(p, payload.StudentID), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

func (h *EnrollmentHandler) studentFor(p models.Principal, requested string) string {
	if p.Role == models.RoleAdmin && requested != "" {
		return requested
	}
	return p.UserID
}
