package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/pipeline"
	"github.com/adstrategy/backend/pkg/logger"
)

type WebSocketHandler struct {
	strategy *StrategyHandler
}

func NewWebSocketHandler(strategy *StrategyHandler) *WebSocketHandler {
	return &WebSocketHandler{
		strategy: strategy,
	}
}

// HandleConnection accepts {"type":"strategy","domain":...} messages and
// answers each with stage events followed by the report or envelope.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type   string `json:"type"`
			Domain string `json:"domain"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "strategy" {
			continue
		}

		domain := strings.TrimSpace(msg.Domain)
		if domain == "" {
			h.sendError(c, msgMissingDomain)
			continue
		}

		logger.Info("Processing WebSocket strategy request", zap.String("domain", domain))

		if err := h.streamStrategy(c, domain); err != nil {
			logger.Error("Failed to stream strategy", zap.Error(err))
			break
		}
	}
}

// streamStrategy runs one strategy and forwards its stage events. The run is
// cancelled as soon as a write to the client fails.
func (h *WebSocketHandler) streamStrategy(c *websocket.Conn, domain string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	records, _, err := h.strategy.loadRecords(ctx)
	if err != nil {
		h.sendError(c, err.Error())
		return nil
	}

	var writeErr error
	result := h.strategy.runner.RunObserved(ctx, records, domain, h.strategy.budget, func(e pipeline.Event) {
		if writeErr != nil {
			return
		}
		writeErr = c.WriteJSON(map[string]interface{}{
			"type":  "stage",
			"event": e,
		})
		if writeErr != nil {
			logger.Warn("WebSocket client gone, cancelling strategy run", zap.String("domain", domain), zap.Error(writeErr))
			cancel()
		}
	})
	if writeErr != nil {
		return writeErr
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result *pipeline.Result) error {
	msg := map[string]interface{}{
		"type":   "complete",
		"run_id": result.ID(),
		"failed": result.Failed(),
		"result": result.Payload(),
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}
