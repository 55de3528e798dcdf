package handlers

import (
	"strconv"
	"time"

	"github.com/churchhub/churchhub-api/internal/dto"
	"github.com/churchhub/churchhub-api/internal/identity"
	"github.com/churchhub/churchhub-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// BookingHandler is the owner-scoped HTTP surface over the booking
// store. It validates parameter shapes and delegates; all business
// rules live in the service.
type BookingHandler struct {
	bookings *services.BookingService
}

func NewBookingHandler(bookings *services.BookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBooking handles POST /bookings.
func (h *BookingHandler) CreateBooking(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid booking payload")
	}
	if req.CalBookingID == 0 || req.Title == "" || req.StartTime.IsZero() || req.EndTime.IsZero() {
		return badRequest(c, "cal_booking_id, title, start_time and end_time are required")
	}
	if !req.EndTime.After(req.StartTime) {
		return badRequest(c, "end_time must be after start_time")
	}

	booking, err := h.bookings.Create(userID, services.CreateBookingInput{
		CalBookingID:   req.CalBookingID,
		CalBookingUID:  req.CalBookingUID,
		EventTypeID:    req.EventTypeID,
		EventTypeTitle: req.EventTypeTitle,
		EventTypeSlug:  req.EventTypeSlug,
		Title:          req.Title,
		Description:    req.Description,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		TimeZone:       req.TimeZone,
		Location:       req.Location,
		Attendees:      req.Attendees,
		Sensitivity:    req.Sensitivity,
		IsAnonymous:    req.IsAnonymous,
		ProviderIDs:    req.ProviderIDs,
		Metadata:       req.Metadata,
		Status:         req.Status,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(booking)
}

// GetBookings handles GET /bookings with optional filters.
func (h *BookingHandler) GetBookings(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	opts := services.ListOptions{
		Status:      c.Query("status"),
		Sensitivity: c.Query("sensitivity"),
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	if v := c.Query("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "startDate must be RFC3339")
		}
		opts.StartDate = &t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return badRequest(c, "endDate must be RFC3339")
		}
		opts.EndDate = &t
	}

	bookings, total, err := h.bookings.List(userID, opts)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.BookingListResponse{Bookings: bookings, Total: total})
}

// GetBookingStats handles GET /bookings/stats.
func (h *BookingHandler) GetBookingStats(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}

	stats, err := h.bookings.GetStats(userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

// GetBookingByID handles GET /bookings/:id.
func (h *BookingHandler) GetBookingByID(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	booking, err := h.bookings.GetByID(bookingID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(booking)
}

// UpdateBooking handles PUT /bookings/:id.
func (h *BookingHandler) UpdateBooking(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	var req dto.UpdateBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid booking payload")
	}

	booking, err := h.bookings.Update(bookingID, userID, services.UpdateBookingInput{
		Title:       req.Title,
		Description: req.Description,
		Sensitivity: req.Sensitivity,
		IsAnonymous: req.IsAnonymous,
		Status:      req.Status,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(booking)
}

// DeleteBooking handles DELETE /bookings/:id.
func (h *BookingHandler) DeleteBooking(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	if err := h.bookings.Delete(bookingID, userID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Booking deleted successfully"})
}

// GetSecureNotes handles GET /bookings/:id/secure-notes.
func (h *BookingHandler) GetSecureNotes(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	notes, err := h.bookings.GetSecureNotes(bookingID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SecureNotesResponse{Notes: notes})
}

// UpdateSecureNotes handles PUT /bookings/:id/secure-notes.
func (h *BookingHandler) UpdateSecureNotes(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	var req dto.UpdateSecureNotesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid notes payload")
	}

	if err := h.bookings.UpdateSecureNotes(bookingID, userID, req.Notes); err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Secure notes updated successfully"})
}

// GetAuditTrail handles GET /bookings/:id/audit-logs.
func (h *BookingHandler) GetAuditTrail(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}

	entries, err := h.bookings.AuditTrail(bookingID, userID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.AuditTrailResponse{Entries: entries})
}

// GenerateContextSummary handles POST /bookings/:id/summary.
func (h *BookingHandler) GenerateContextSummary(c *fiber.Ctx) error {
	userID, err := identity.UserID(c)
	if err != nil {
		return unauthorized(c)
	}
	bookingID, ok := parseID(c)
	if !ok {
		return badRequest(c, "Invalid booking id")
	}

	summary, err := h.bookings.GenerateContextSummary(bookingID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

func parseID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: msg,
	})
}
