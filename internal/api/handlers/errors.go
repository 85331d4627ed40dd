package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/adstrategy/backend/internal/apperr"
)

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindMissingParameter, apperr.KindInvalidInput:
		return fiber.StatusBadRequest
	case apperr.KindNoData:
		return fiber.StatusNotFound
	case apperr.KindExternalService:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}
