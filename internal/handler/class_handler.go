package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type classService interface {
	Schedule(ctx context.Context, principal models.Principal, req models.ScheduleClassRequest) (*models.ClassSession, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.ClassSession, error)
	List(ctx context.Context, principal models.Principal, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error)
	Reschedule(ctx context.Context, principal models.Principal, id string, req models.RescheduleClassRequest) (*models.ClassSession, error)
	Cancel(ctx context.Context, principal models.Principal, id string, req models.CancelClassRequest) (*models.ClassSession, error)
	Start(ctx context.Context, principal models.Principal, id string) (*models.ClassSession, error)
	Complete(ctx context.Context, principal models.Principal, id string) (*models.ClassSession, error)
}

type calendarFeed interface {
	Feed(ctx context.Context, principal models.Principal) ([]byte, error)
}

// ClassHandler exposes the class scheduler.
type ClassHandler struct {
	service  classService
	calendar calendarFeed
}

// NewClassHandler constructs a class handler.
func NewClassHandler(svc classService, calendar calendarFeed) *ClassHandler {
	return &ClassHandler{service: svc, calendar: calendar}
}

// Schedule godoc
// @Summary Schedule a class
// @Description Creates a class after checking the tutor's sessions and booked slots for overlap
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body models.ScheduleClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope "VALIDATION_ERROR or CLASS_CONFLICT"
// @Failure 403 {object} response.Envelope
// @Router /classes [post]
func (h *ClassHandler) Schedule(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.ScheduleClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Schedule(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// List godoc
// @Summary List classes
// @Description Students and tutors see their own classes; admins may filter by tutor or student
// @Tags Classes
// @Produce json
// @Param tutor_id query string false "Tutor filter"
// @Param student_id query string false "Student filter"
// @Param status query string false "Comma separated statuses"
// @Param from query string false "Start of window (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "End of window (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	filter := models.ClassFilter{
		TutorID:   c.Query("tutor_id"),
		StudentID: c.Query("student_id"),
		SortOrder: c.Query("order"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	if raw := c.Query("status"); raw != "" {
		for _, status := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, models.ClassStatus(strings.ToUpper(strings.TrimSpace(status))))
		}
	}
	var err error
	if filter.From, err = timeQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = timeQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}

	classes, pagination, err := h.service.List(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	class, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Reschedule godoc
// @Summary Reschedule class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.RescheduleClassRequest true "New time"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "CLASS_CONFLICT or INVALID_TRANSITION"
// @Router /classes/{id}/reschedule [post]
func (h *ClassHandler) Reschedule(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.RescheduleClassRequest
	if !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Reschedule(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Cancel godoc
// @Summary Cancel class
// @Description Cancels the class and releases its availability slot
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body models.CancelClassRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "INVALID_TRANSITION"
// @Router /classes/{id}/cancel [post]
func (h *ClassHandler) Cancel(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.CancelClassRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	class, err := h.service.Cancel(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}

// Start godoc
// @Summary Start class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "INVALID_TRANSITION"
// @Router /classes/{id}/start [post]
func (h *ClassHandler) Start(c *gin.Context) {
	h.transition(c, h.service.Start)
}

// Complete godoc
// @Summary Complete class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "INVALID_TRANSITION"
// @Router /classes/{id}/complete [post]
func (h *ClassHandler) Complete(c *gin.Context) {
	h.transition(c, h.service.Complete)
}

// Calendar godoc
// @Summary Calendar feed
// @Description iCalendar feed of the caller's classes
// @Tags Classes
// @Produce text/calendar
// @Success 200 {string} string "ICS document"
// @Router /classes/calendar.ics [get]
func (h *ClassHandler) Calendar(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if h.calendar == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	feed, err := h.calendar.Feed(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", feed)
}

func (h *ClassHandler) transition(c *gin.Context, fn func(context.Context, models.Principal, string) (*models.ClassSession, error)) {
	p, ok := principal(c)
	if !ok {
		return
	}
	class, err := fn(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, class)
}
