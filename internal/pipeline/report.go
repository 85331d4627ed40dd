package pipeline

import (
	"encoding/json"
	"time"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/internal/storage/models"
)

const timestampLayout = "2006-01-02 15:04:05"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Report struct {
	ID                string                    `json:"id"`
	Timestamp         string                    `json:"timestamp"`
	Domain            string                    `json:"domain"`
	TotalBudget       float64                   `json:"total_budget"`
	MarketResearch    []market.Signal           `json:"market_research"`
	DataAnalysis      string                    `json:"data_analysis"`
	BudgetAllocation  map[string]float64        `json:"budget_allocation"`
	AllocationPolicy  string                    `json:"allocation_policy"`
	AllocationWarning string                    `json:"allocation_warning,omitempty"`
	ExcludedAds       []string                  `json:"excluded_ads,omitempty"`
	FinalStrategy     string                    `json:"final_strategy"`
	Metrics           analytics.Summary         `json:"metrics"`
	PositionStats     []analytics.PositionStats `json:"position_stats"`
}

// ErrorEnvelope replaces the report when any required stage fails.
type ErrorEnvelope struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// Result carries exactly one of Report or Envelope. Err keeps the
// underlying error for callers that need its kind.
type Result struct {
	Report   *Report
	Envelope *ErrorEnvelope
	Err      error `json:"-"`

	domain    string
	createdAt time.Time
}

func (r *Result) Failed() bool {
	return r.Envelope != nil
}

// Payload is the value serialized to clients.
func (r *Result) Payload() interface{} {
	if r.Envelope != nil {
		return r.Envelope
	}
	return r.Report
}

// ID returns the run id shared by report and envelope.
func (r *Result) ID() string {
	if r.Envelope != nil {
		return r.Envelope.ID
	}
	return r.Report.ID
}

func (r *Result) toRecord() (*models.ReportRecord, error) {
	payload, err := json.Marshal(r.Payload())
	if err != nil {
		return nil, err
	}

	rec := &models.ReportRecord{
		ID:        r.ID(),
		Domain:    r.domain,
		Status:    StatusSuccess,
		Payload:   payload,
		CreatedAt: r.createdAt,
	}
	if r.Envelope != nil {
		rec.Status = StatusError
		rec.ErrorMessage = r.Envelope.ErrorMessage
	}
	return rec, nil
}
