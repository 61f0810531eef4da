package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorly-api/internal/models"
	appErrors "github.com/noah-isme/tutorly-api/pkg/errors"
	"github.com/noah-isme/tutorly-api/pkg/response"
)

type availabilityService interface {
	Create(ctx context.Context, principal models.Principal, req models.CreateAvailabilityRequest) (*models.AvailabilitySlot, error)
	List(ctx context.Context, principal models.Principal, filter models.AvailabilityFilter) ([]models.AvailabilitySlot, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.AvailabilitySlot, error)
	Update(ctx context.Context, principal models.Principal, id string, req models.UpdateAvailabilityRequest) (*models.AvailabilitySlot, error)
	Delete(ctx context.Context, principal models.Principal, id string) error
	Book(ctx context.Context, principal models.Principal, slotID string, req models.BookSlotRequest) (*models.SlotBooking, error)
}

// AvailabilityHandler exposes tutor availability slots.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler constructs the handler.
func NewAvailabilityHandler(svc availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc}
}

// Create godoc
// @Summary Create availability slot
// @Description A slot has either day_of_week (0-6) or specific_date, never both
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body models.CreateAvailabilityRequest true "Slot"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope "VALIDATION_ERROR or AVAILABILITY_OVERLAP"
// @Router /availability [post]
func (h *AvailabilityHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.CreateAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.service.Create(c.Request.Context(), p, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slot)
}

// List godoc
// @Summary List a tutor's slots
// @Tags Availability
// @Produce json
// @Param tutor_id query string true "Tutor ID"
// @Param day_of_week query int false "0 (Sunday) to 6"
// @Param date query string false "YYYY-MM-DD"
// @Param active query bool false "Active filter"
// @Param booked query bool false "Booked filter"
// @Success 200 {object} response.Envelope
// @Router /availability [get]
func (h *AvailabilityHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	filter := models.AvailabilityFilter{TutorID: c.Query("tutor_id"), SpecificDate: c.Query("date")}
	if filter.TutorID == "" && p.Role == models.RoleTutor {
		filter.TutorID = p.UserID
	}
	if filter.TutorID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "tutor_id is required"))
		return
	}
	if raw := c.Query("day_of_week"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil || day < 0 || day > 6 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 0 and 6"))
			return
		}
		filter.DayOfWeek = &day
	}
	var err error
	if filter.Active, err = boolQuery(c, "active"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.Booked, err = boolQuery(c, "booked"); err != nil {
		response.Error(c, err)
		return
	}

	slots, err := h.service.List(c.Request.Context(), p, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Get godoc
// @Summary Get slot
// @Tags Availability
// @Produce json
// @Param id path string true "Slot ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /availability/{id} [get]
func (h *AvailabilityHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	slot, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slot)
}

// Update godoc
// @Summary Update slot
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body models.UpdateAvailabilityRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope "SLOT_BOOKED or AVAILABILITY_OVERLAP"
// @Router /availability/{id} [put]
func (h *AvailabilityHandler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.UpdateAvailabilityRequest
	if !bindJSON(c, &req) {
		return
	}
	slot, err := h.service.Update(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, slot)
}

// Delete godoc
// @Summary Delete slot
// @Tags Availability
// @Param id path string true "Slot ID"
// @Success 204 {object} response.Envelope
// @Failure 400 {object} response.Envelope "SLOT_BOOKED"
// @Router /availability/{id} [delete]
func (h *AvailabilityHandler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Book godoc
// @Summary Book slot
// @Description Schedules a class in the slot. Recurring slots need a date on the matching weekday.
// @Tags Availability
// @Accept json
// @Produce json
// @Param id path string true "Slot ID"
// @Param payload body models.BookSlotRequest true "Booking"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope "SLOT_BOOKED or CLASS_CONFLICT"
// @Router /availability/{id}/book [post]
func (h *AvailabilityHandler) Book(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.BookSlotRequest
	if !bindJSON(c, &req) {
		return
	}
	booking, err := h.service.Book(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, booking)
}
