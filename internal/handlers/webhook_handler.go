package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/churchhub/churchhub-api/internal/apperr"
	"github.com/churchhub/churchhub-api/internal/config"
	"github.com/churchhub/churchhub-api/internal/dto"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/services"
	"github.com/gofiber/fiber/v2"
)

// WebhookHandler receives Cal platform lifecycle events. Success and
// failure are reported synchronously so the platform's retry mechanism
// can react: a 4xx means "do not retry", a 5xx means "retry later".
type WebhookHandler struct {
	webhooks *services.WebhookService
	secret   string
}

func NewWebhookHandler(webhooks *services.WebhookService, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, secret: cfg.CalWebhookSecret}
}

// HandleBookingCreated handles POST /webhooks/cal/booking-created.
func (h *WebhookHandler) HandleBookingCreated(c *fiber.Ctx) error {
	return h.handle(c, "booking.created", h.webhooks.HandleBookingCreated)
}

// HandleBookingUpdated handles POST /webhooks/cal/booking-updated.
func (h *WebhookHandler) HandleBookingUpdated(c *fiber.Ctx) error {
	return h.handle(c, "booking.updated", h.webhooks.HandleBookingUpdated)
}

func (h *WebhookHandler) handle(c *fiber.Ctx, event string, process func(*dto.CalBookingPayload) (*models.Booking, error)) error {
	if h.secret == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Webhooks not configured",
		})
	}

	body := c.Body()
	if !h.verifySignature(body, c.Get("X-Cal-Signature-256")) {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	var payload dto.CalBookingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid webhook payload",
		})
	}

	booking, err := process(&payload)
	if err != nil {
		if errors.Is(err, apperr.ErrBadInput) {
			slog.Warn("webhook rejected", "event", event, "cal_booking_id", payload.ID, "error", err)
			return respondError(c, err)
		}
		slog.Error("webhook processing failed", "event", event, "cal_booking_id", payload.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to process webhook event",
		})
	}

	slog.Info("webhook processed", "event", event, "cal_booking_id", payload.ID, "booking_id", booking.ID.String())
	return c.JSON(dto.WebhookAck{Received: true})
}

// verifySignature checks the HMAC-SHA256 of the raw body in constant
// time.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
