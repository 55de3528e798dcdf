package handlers

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/churchhub/churchhub-api/internal/audit"
	"github.com/churchhub/churchhub-api/internal/dto"
	"github.com/churchhub/churchhub-api/internal/identity"
	"github.com/churchhub/churchhub-api/internal/queue"
	"github.com/churchhub/churchhub-api/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AdminHandler exposes the operator surface: owner provisioning and the
// explicit audit-log retention purge.
type AdminHandler struct {
	users    *services.UserService
	recorder *audit.Recorder
	jobs     queue.Publisher
}

func NewAdminHandler(users *services.UserService, recorder *audit.Recorder, jobs queue.Publisher) *AdminHandler {
	return &AdminHandler{users: users, recorder: recorder, jobs: jobs}
}

// ProvisionUser handles POST /admin/users.
func (h *AdminHandler) ProvisionUser(c *fiber.Ctx) error {
	var req dto.ProvisionUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid user payload")
	}

	user, err := h.users.Provision(services.ProvisionUserInput{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		CalUserID:   req.CalUserID,
		Password:    req.Password,
		Preferences: req.Preferences,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// PurgeAuditLogs handles DELETE /admin/audit-logs?olderThanDays=N.
// This is the only sanctioned removal path for audit entries, and it is
// itself audited.
func (h *AdminHandler) PurgeAuditLogs(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("olderThanDays"))
	if err != nil || days < 1 {
		return badRequest(c, "olderThanDays must be a positive integer")
	}

	deleted, err := h.recorder.PurgeOlderThan(time.Now().AddDate(0, 0, -days))
	if err != nil {
		return err
	}

	// Admin-token callers carry no JWT; their purges are attributed to
	// the zero operator id.
	actor, idErr := identity.UserID(c)
	if idErr != nil {
		actor = uuid.Nil
	}
	if err := h.recorder.Record(audit.ActionPurgeAuditLogs, "audit_log", nil, actor, nil, map[string]interface{}{
		"olderThanDays": days,
		"deleted":       deleted,
	}); err != nil {
		return err
	}

	// Expired encrypted intake and summaries beyond the same horizon are
	// the worker's to remove; replay is harmless.
	if err := h.jobs.Publish(context.Background(), queue.JobPurgeSensitive, map[string]interface{}{
		"retentionDays": days,
	}); err != nil {
		slog.Error("failed to publish purge-sensitive job", "retention_days", days, "error", err)
	}

	return c.JSON(dto.PurgeAuditLogsResponse{Deleted: deleted})
}
