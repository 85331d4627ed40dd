package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/adcopy"
	"github.com/adstrategy/backend/pkg/logger"
)

type AdCopyGenerator interface {
	Generate(ctx context.Context, req adcopy.Request) (*adcopy.Result, error)
}

type AdCopyHandler struct {
	generator AdCopyGenerator
}

func NewAdCopyHandler(generator AdCopyGenerator) *AdCopyHandler {
	return &AdCopyHandler{
		generator: generator,
	}
}

func (h *AdCopyHandler) GenerateAdCopy(c *fiber.Ctx) error {
	var req adcopy.Request
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return respondError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	result, err := h.generator.Generate(c.UserContext(), req)
	if err != nil {
		logger.Error("Failed to generate ad copy", zap.String("company", req.Company), zap.Error(err))
		return respondError(c, statusFor(err), err.Error())
	}

	return c.JSON(result)
}
