package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/models"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type tutorService interface {
	Get(ctx context.Context, principal models.Principal, tutorID string) (*models.TutorDetail, error)
	List(ctx context.Context, principal models.Principal, filter models.TutorFilter) ([]models.TutorDetail, *models.Pagination, error)
	UpsertProfile(ctx context.Context, principal models.Principal, tutorID string, req models.UpsertTutorProfileRequest) (*models.TutorDetail, error)
	Review(ctx context.Context, principal models.Principal, tutorID string, req models.ReviewTutorRequest) (*models.TutorDetail, error)
}

// TutorHandler exposes tutor directory and approval endpoints.
type TutorHandler struct {
	service tutorService
}

// NewTutorHandler constructs the handler.
func NewTutorHandler(svc tutorService) *TutorHandler {
	return &TutorHandler{service: svc}
}

// List godoc
// @Summary List tutors
// @Description Non-admins only see approved tutors
// @Tags Tutors
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED (admin only)"
// @Param subject query string false "Subject filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tutors [get]
func (h *TutorHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	filter := models.TutorFilter{Subject: strings.TrimSpace(c.Query("subject"))}
	filter.Page, filter.PageSize = pageParams(c)
	if raw := c.Query("status"); raw != "" {
		status := models.TutorApprovalStatus(strings.ToUpper(raw))
		filter.Status = &status
	}
	tutors, pagination, err := h.service.List(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tutors, pagination)
}

// Get godoc
// @Summary Get tutor
// @Tags Tutors
// @Produce json
// @Param id path string true "Tutor user ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /tutors/{id} [get]
func (h *TutorHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	tutor, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tutor)
}

// UpsertProfile godoc
// @Summary Edit tutor profile
// @Description Rejected tutors who edit their profile return to PENDING
// @Tags Tutors
// @Accept json
// @Produce json
// @Param id path string true "Tutor user ID"
// @Param payload body models.UpsertTutorProfileRequest true "Profile"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/profile [put]
func (h *TutorHandler) UpsertProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.UpsertTutorProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	tutor, err := h.service.UpsertProfile(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tutor)
}

// Review godoc
// @Summary Approve or reject tutor
// @Tags Tutors
// @Accept json
// @Produce json
// @Param id path string true "Tutor user ID"
// @Param payload body models.ReviewTutorRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/review [post]
func (h *TutorHandler) Review(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.ReviewTutorRequest
	if !bindJSON(c, &req) {
		return
	}
	tutor, err := h.service.Review(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, tutor)
}
