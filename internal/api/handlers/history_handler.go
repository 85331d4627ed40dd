package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/storage/models"
	"github.com/adstrategy/backend/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type HistoryReader interface {
	ListReports(ctx context.Context, limit int) ([]models.ReportRecord, error)
	ListAdCopies(ctx context.Context, limit int) ([]models.AdCopyRecord, error)
}

type HistoryHandler struct {
	history HistoryReader
}

func NewHistoryHandler(history HistoryReader) *HistoryHandler {
	return &HistoryHandler{
		history: history,
	}
}

func listLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (h *HistoryHandler) ListReports(c *fiber.Ctx) error {
	reports, err := h.history.ListReports(c.UserContext(), listLimit(c))
	if err != nil {
		logger.Error("Failed to list reports", zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "Failed to list reports")
	}

	return c.JSON(fiber.Map{
		"reports": reports,
	})
}

func (h *HistoryHandler) ListAdCopies(c *fiber.Ctx) error {
	copies, err := h.history.ListAdCopies(c.UserContext(), listLimit(c))
	if err != nil {
		logger.Error("Failed to list ad copies", zap.Error(err))
		return respondError(c, fiber.StatusInternalServerError, "Failed to list ad copies")
	}

	return c.JSON(fiber.Map{
		"ad_copies": copies,
	})
}
