package handlers

import (
	"errors"

	"github.com/churchhub/churchhub-api/internal/apperr"
	"github.com/churchhub/churchhub-api/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// respondError maps the service error taxonomy onto HTTP statuses.
// Expected outcomes (4xx) are returned without logging; anything else
// bubbles to the global error handler as a 500.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Not found",
		})
	case errors.Is(err, apperr.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: true, Message: "Access denied",
		})
	case errors.Is(err, apperr.ErrAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: true, Message: "Already exists",
		})
	case errors.Is(err, apperr.ErrBadInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: err.Error(),
		})
	}
	return err
}
