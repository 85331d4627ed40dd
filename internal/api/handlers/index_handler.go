package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/pkg/logger"
)

type IndexInvalidator interface {
	Invalidate(ctx context.Context, location string) error
}

type SignalCache interface {
	InvalidateSignals(ctx context.Context) error
}

type IndexHandler struct {
	index    IndexInvalidator
	location string
	signals  SignalCache
}

// NewIndexHandler drops the interaction index at location. signals may be
// nil when no cache is configured.
func NewIndexHandler(index IndexInvalidator, location string, signals SignalCache) *IndexHandler {
	return &IndexHandler{
		index:    index,
		location: location,
		signals:  signals,
	}
}

func (h *IndexHandler) Invalidate(c *fiber.Ctx) error {
	if err := h.index.Invalidate(c.UserContext(), h.location); err != nil {
		logger.Error("Failed to invalidate index", zap.String("location", h.location), zap.Error(err))
		return respondError(c, statusFor(err), err.Error())
	}

	signalsCleared := false
	if h.signals != nil {
		if err := h.signals.InvalidateSignals(c.UserContext()); err != nil {
			logger.Warn("Failed to clear market signal cache", zap.Error(err))
		} else {
			signalsCleared = true
		}
	}

	return c.JSON(fiber.Map{
		"message":         "Index invalidated",
		"location":        h.location,
		"signals_cleared": signalsCleared,
	})
}
