package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/internal/pipeline"
	"github.com/adstrategy/backend/pkg/logger"
)

const (
	msgMissingDomain = "Missing required parameter: domain"
	msgNoData        = "No interaction data found in database"
	msgInvalidInput  = "Invalid input data"
)

type RecordSource interface {
	FetchAll(ctx context.Context) ([]analytics.Record, []analytics.Rejected, error)
}

type StrategyRunner interface {
	RunObserved(ctx context.Context, records []analytics.Record, domain string, totalBudget float64, observe pipeline.Observer) *pipeline.Result
}

type TrendAnalyzer interface {
	AnalyzeTrends(ctx context.Context, company string) market.TrendAnalysis
}

type StrategyHandler struct {
	records RecordSource
	runner  StrategyRunner
	trends  TrendAnalyzer
	budget  float64
}

// NewStrategyHandler serves strategy and campaign analysis. Every strategy
// run uses the configured budget; trends may be nil.
func NewStrategyHandler(records RecordSource, runner StrategyRunner, trends TrendAnalyzer, budget float64) *StrategyHandler {
	return &StrategyHandler{
		records: records,
		runner:  runner,
		trends:  trends,
		budget:  budget,
	}
}

type strategyRequest struct {
	Domain string `json:"domain"`
}

// GenerateStrategy runs the pipeline over every stored interaction record.
// A failed run still answers 200 with the error envelope.
func (h *StrategyHandler) GenerateStrategy(c *fiber.Ctx) error {
	var req strategyRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Debug("Unreadable strategy request body", zap.Error(err))
	}

	domain := strings.TrimSpace(req.Domain)
	if domain == "" {
		return respondError(c, fiber.StatusBadRequest, msgMissingDomain)
	}

	records, status, err := h.loadRecords(c.UserContext())
	if err != nil {
		return respondError(c, status, err.Error())
	}

	result := h.runner.RunObserved(c.UserContext(), records, domain, h.budget, nil)
	return c.JSON(result.Payload())
}

func (h *StrategyHandler) loadRecords(ctx context.Context) ([]analytics.Record, int, error) {
	records, rejected, err := h.records.FetchAll(ctx)
	if err != nil {
		logger.Error("Failed to fetch interaction records", zap.Error(err))
		return nil, fiber.StatusInternalServerError, err
	}
	if len(rejected) > 0 {
		logger.Warn("Interaction records quarantined", zap.Int("rejected", len(rejected)), zap.Int("accepted", len(records)))
	}
	if len(records) == 0 {
		return nil, fiber.StatusNotFound, errors.New(msgNoData)
	}
	return records, fiber.StatusOK, nil
}

type companyInfo struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type campaignAnalysis struct {
	CompanyInfo      companyInfo                        `json:"company_info"`
	BehaviorAnalysis map[string]analytics.PositionStats `json:"behavior_analysis"`
	MarketAnalysis   interface{}                        `json:"market_analysis"`
}

// AnalyzeCampaign reports per-position engagement for the posted ads and
// the market outlook for the first ad's company.
func (h *StrategyHandler) AnalyzeCampaign(c *fiber.Ctx) error {
	var ads []analytics.Record
	if err := json.Unmarshal(c.Body(), &ads); err != nil || len(ads) == 0 {
		return respondError(c, fiber.StatusBadRequest, msgInvalidInput)
	}

	for _, ad := range ads {
		if err := ad.Validate(); err != nil {
			return respondError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	derived, err := analytics.Derive(ads)
	if err != nil {
		return respondError(c, statusFor(err), err.Error())
	}

	out := campaignAnalysis{
		CompanyInfo:      companyInfo{Name: ads[0].CompanyName, Domain: ads[0].Domain},
		BehaviorAnalysis: analytics.ByPosition(derived),
		MarketAnalysis:   fiber.Map{},
	}
	if h.trends != nil {
		out.MarketAnalysis = h.trends.AnalyzeTrends(c.UserContext(), out.CompanyInfo.Name)
	}

	return c.JSON(out)
}
