package routes

import (
	"time"

	"github.com/churchhub/churchhub-api/internal/config"
	"github.com/churchhub/churchhub-api/internal/handlers"
	"github.com/churchhub/churchhub-api/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	bookingHandler *handlers.BookingHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Webhooks are HMAC-signed by the Cal platform, no JWT
	webhooks := api.Group("/webhooks/cal")
	webhooks.Post("/booking-created", webhookHandler.HandleBookingCreated)
	webhooks.Post("/booking-updated", webhookHandler.HandleBookingUpdated)

	// Owner-scoped booking API (JWT required)
	bookings := api.Group("/bookings", middleware.JWTProtected(cfg))
	bookings.Post("/", bookingHandler.CreateBooking)
	bookings.Get("/", bookingHandler.GetBookings)
	bookings.Get("/stats", bookingHandler.GetBookingStats)
	bookings.Get("/:id", bookingHandler.GetBookingByID)
	bookings.Put("/:id", bookingHandler.UpdateBooking)
	bookings.Delete("/:id", bookingHandler.DeleteBooking)
	bookings.Get("/:id/secure-notes", bookingHandler.GetSecureNotes)
	bookings.Put("/:id/secure-notes", bookingHandler.UpdateSecureNotes)
	bookings.Post("/:id/summary", bookingHandler.GenerateContextSummary)
	bookings.Get("/:id/audit-logs", bookingHandler.GetAuditTrail)

	// Admin surface (JWT + admin required; admin token bypasses JWT)
	admin := api.Group("/admin", middleware.AdminGate(cfg), middleware.AdminRequired(cfg))
	admin.Post("/users", adminHandler.ProvisionUser)
	admin.Delete("/audit-logs", adminHandler.PurgeAuditLogs)
}
