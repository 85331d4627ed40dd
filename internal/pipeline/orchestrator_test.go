package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/corpus"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/internal/retrieval"
	"github.com/adstrategy/backend/internal/storage/models"
)

type mockRetriever struct{ mock.Mock }

func (m *mockRetriever) BuildOrLoad(ctx context.Context, docs []corpus.Document, location string) (*retrieval.Index, error) {
	args := m.Called(ctx, docs, location)
	idx, _ := args.Get(0).(*retrieval.Index)
	return idx, args.Error(1)
}

func (m *mockRetriever) Analyze(ctx context.Context, index *retrieval.Index) (string, error) {
	args := m.Called(ctx, index)
	return args.String(0), args.Error(1)
}

type mockGatherer struct{ mock.Mock }

func (m *mockGatherer) Gather(ctx context.Context, domain string, maxResults int) ([]market.Signal, error) {
	args := m.Called(ctx, domain, maxResults)
	signals, _ := args.Get(0).([]market.Signal)
	return signals, args.Error(1)
}

type mockSynthesizer struct{ mock.Mock }

func (m *mockSynthesizer) Synthesize(ctx context.Context, signals []market.Signal, insight string, budget float64) (string, error) {
	args := m.Called(ctx, signals, insight, budget)
	return args.String(0), args.Error(1)
}

type panickingSynthesizer struct{}

func (panickingSynthesizer) Synthesize(context.Context, []market.Signal, string, float64) (string, error) {
	panic("nil map write")
}

type memoryReports struct {
	mu      sync.Mutex
	records []*models.ReportRecord
}

func (m *memoryReports) InsertReport(_ context.Context, r *models.ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

var scenarioRecords = []analytics.Record{
	{AdID: "a1", CompanyName: "Onida", Domain: "electronics", Impressions: 100, Clicks: 10, HoverTime: 5.0, HoverCount: 20, Position: "top"},
}

var index = &retrieval.Index{Format: retrieval.FormatVersion}

func happyMocks() (*mockRetriever, *mockGatherer, *mockSynthesizer) {
	r := new(mockRetriever)
	r.On("BuildOrLoad", mock.Anything, mock.Anything, "./ad_storage").Return(index, nil)
	r.On("Analyze", mock.Anything, index).Return("top performs best", nil)

	g := new(mockGatherer)
	g.On("Gather", mock.Anything, "electronics", 5).Return([]market.Signal{{Title: "T", Content: "C"}}, nil)

	s := new(mockSynthesizer)
	s.On("Synthesize", mock.Anything, []market.Signal{{Title: "T", Content: "C"}}, "top performs best", 1000.0).
		Return("final plan", nil)

	return r, g, s
}

func cfg() Config {
	return Config{IndexLocation: "./ad_storage", MaxSignals: 5}
}

func TestRunProducesReport(t *testing.T) {
	r, g, s := happyMocks()
	reports := &memoryReports{}
	o := NewOrchestrator(r, g, s, reports, cfg(), nil)

	var events []Event
	result := o.RunObserved(context.Background(), scenarioRecords, "electronics", 1000, func(e Event) {
		events = append(events, e)
	})

	require.False(t, result.Failed(), "unexpected envelope: %+v", result.Envelope)
	rep := result.Report
	assert.Equal(t, map[string]float64{"a1": 1000.0}, rep.BudgetAllocation)
	assert.Equal(t, "final plan", rep.FinalStrategy)
	assert.Equal(t, "top performs best", rep.DataAnalysis)
	assert.Equal(t, "electronics", rep.Domain)
	assert.Equal(t, 1000.0, rep.TotalBudget)
	assert.InDelta(t, 10.0, rep.Metrics.AverageCTR, 1e-9)
	assert.Equal(t, 5.0, rep.Metrics.AverageHoverTime)
	assert.Equal(t, int64(100), rep.Metrics.TotalImpressions)
	assert.Equal(t, int64(10), rep.Metrics.TotalClicks)
	require.Len(t, rep.PositionStats, 1)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`, rep.Timestamp)

	r.AssertExpectations(t)
	g.AssertExpectations(t)
	s.AssertExpectations(t)

	completed := map[string]bool{}
	for _, e := range events {
		assert.Equal(t, rep.ID, e.RunID)
		if e.Status == EventCompleted {
			completed[e.Stage] = true
		}
	}
	for _, stage := range []string{StageDerive, StageAllocate, StageRetrieve, StageMarket, StageSynthesize, StageAggregate} {
		assert.True(t, completed[stage], stage)
	}

	require.Len(t, reports.records, 1)
	assert.Equal(t, StatusSuccess, reports.records[0].Status)
	assert.Equal(t, rep.ID, reports.records[0].ID)
}

func TestReportJSONShape(t *testing.T) {
	r, g, s := happyMocks()
	result := NewOrchestrator(r, g, s, nil, cfg(), nil).Run(context.Background(), scenarioRecords, "electronics", 1000)

	raw, err := json.Marshal(result.Payload())
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, key := range []string{"timestamp", "domain", "total_budget", "market_research", "data_analysis", "budget_allocation", "final_strategy", "metrics"} {
		assert.Contains(t, fields, key)
	}

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(fields["metrics"], &m))
	assert.ElementsMatch(t, []string{"average_ctr", "average_hover_time", "total_impressions", "total_clicks"}, keys(m))
}

func keys(m map[string]interface{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestRunSearchFailureDegradesToPlaceholder(t *testing.T) {
	r := new(mockRetriever)
	r.On("BuildOrLoad", mock.Anything, mock.Anything, mock.Anything).Return(index, nil)
	r.On("Analyze", mock.Anything, index).Return("insight", nil)

	g := new(mockGatherer)
	g.On("Gather", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.ExternalService("web search", errors.New("timeout")))

	s := new(mockSynthesizer)
	s.On("Synthesize", mock.Anything, market.Placeholder(), "insight", 1000.0).Return("plan", nil)

	var degraded bool
	result := NewOrchestrator(r, g, s, nil, cfg(), nil).RunObserved(context.Background(), scenarioRecords, "x", 1000, func(e Event) {
		if e.Stage == StageMarket && e.Status == EventDegraded {
			degraded = true
		}
	})

	require.False(t, result.Failed())
	assert.True(t, market.IsPlaceholder(result.Report.MarketResearch))
	assert.True(t, degraded)
}

func TestRunRetrievalFailureYieldsEnvelope(t *testing.T) {
	r := new(mockRetriever)
	r.On("BuildOrLoad", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.ExternalService("embed documents", errors.New("quota exceeded")))

	g := new(mockGatherer)
	g.On("Gather", mock.Anything, mock.Anything, mock.Anything).Return(market.Placeholder(), nil).Maybe()

	s := new(mockSynthesizer)
	reports := &memoryReports{}

	result := NewOrchestrator(r, g, s, reports, cfg(), nil).Run(context.Background(), scenarioRecords, "x", 1000)

	require.True(t, result.Failed())
	assert.Nil(t, result.Report)
	assert.Equal(t, StatusError, result.Envelope.Status)
	assert.Contains(t, result.Envelope.ErrorMessage, "quota exceeded")
	assert.NotEmpty(t, result.Envelope.Timestamp)
	s.AssertNotCalled(t, "Synthesize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.Len(t, reports.records, 1)
	assert.Equal(t, StatusError, reports.records[0].Status)

	raw, err := json.Marshal(result.Payload())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"error"`)
	assert.Contains(t, string(raw), `"error_message"`)
}

func TestRunEmptyRecordsYieldsEnvelope(t *testing.T) {
	result := NewOrchestrator(new(mockRetriever), new(mockGatherer), new(mockSynthesizer), nil, cfg(), nil).
		Run(context.Background(), nil, "x", 1000)

	require.True(t, result.Failed())
	assert.Contains(t, result.Envelope.ErrorMessage, "no interaction records to analyze")
}

func TestRunAllocationFailureYieldsEnvelope(t *testing.T) {
	r := new(mockRetriever)
	r.On("BuildOrLoad", mock.Anything, mock.Anything, mock.Anything).Return(index, nil).Maybe()
	r.On("Analyze", mock.Anything, mock.Anything).Return("insight", nil).Maybe()
	g := new(mockGatherer)
	g.On("Gather", mock.Anything, mock.Anything, mock.Anything).Return(market.Placeholder(), nil).Maybe()

	result := NewOrchestrator(r, g, new(mockSynthesizer), nil, cfg(), nil).Run(context.Background(), scenarioRecords, "x", -1)

	require.True(t, result.Failed())
	assert.Contains(t, result.Envelope.ErrorMessage, "allocate budget")
}

func TestRunWithoutImpressionsStillReports(t *testing.T) {
	records := []analytics.Record{{AdID: "dark", CompanyName: "Onida", Impressions: 0, Position: "side"}}

	r := new(mockRetriever)
	r.On("BuildOrLoad", mock.Anything, mock.Anything, "./ad_storage").Return(index, nil)
	r.On("Analyze", mock.Anything, index).Return("no engagement yet", nil)
	g := new(mockGatherer)
	g.On("Gather", mock.Anything, "electronics", 5).Return(market.Placeholder(), nil)
	s := new(mockSynthesizer)
	s.On("Synthesize", mock.Anything, market.Placeholder(), "no engagement yet", 1000.0).Return("build reach first", nil)

	result := NewOrchestrator(r, g, s, nil, cfg(), nil).Run(context.Background(), records, "electronics", 1000)

	require.False(t, result.Failed(), "unexpected envelope: %+v", result.Envelope)
	rep := result.Report
	assert.Equal(t, "none", rep.AllocationPolicy)
	assert.Empty(t, rep.BudgetAllocation)
	assert.Equal(t, []string{"dark"}, rep.ExcludedAds)
	assert.NotEmpty(t, rep.AllocationWarning)
	assert.Equal(t, "no engagement yet", rep.DataAnalysis)
	assert.Equal(t, "build reach first", rep.FinalStrategy)
	assert.Equal(t, int64(0), rep.Metrics.TotalImpressions)
	assert.Equal(t, 0.0, rep.Metrics.AverageCTR)
}

func TestRunRecoversStagePanic(t *testing.T) {
	r, g, _ := happyMocks()
	result := NewOrchestrator(r, g, panickingSynthesizer{}, nil, cfg(), nil).
		Run(context.Background(), scenarioRecords, "electronics", 1000)

	require.True(t, result.Failed())
	assert.Contains(t, result.Envelope.ErrorMessage, "panicked")
}
