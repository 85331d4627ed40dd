// Package pipeline runs the strategy workflow: derive metrics, allocate the
// budget, analyze the interaction index, gather market signals, synthesize
// the strategy and assemble the report.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adstrategy/backend/internal/analytics"
	"github.com/adstrategy/backend/internal/apperr"
	"github.com/adstrategy/backend/internal/budget"
	"github.com/adstrategy/backend/internal/corpus"
	"github.com/adstrategy/backend/internal/market"
	"github.com/adstrategy/backend/internal/metrics"
	"github.com/adstrategy/backend/internal/retrieval"
	"github.com/adstrategy/backend/internal/storage/models"
)

const (
	StageDerive     = "derive"
	StageAllocate   = "allocate"
	StageRetrieve   = "retrieve"
	StageMarket     = "market"
	StageSynthesize = "synthesize"
	StageAggregate  = "aggregate"
)

type InsightRetriever interface {
	BuildOrLoad(ctx context.Context, docs []corpus.Document, location string) (*retrieval.Index, error)
	Analyze(ctx context.Context, index *retrieval.Index) (string, error)
}

type SignalGatherer interface {
	Gather(ctx context.Context, domain string, maxResults int) ([]market.Signal, error)
}

type StrategySynthesizer interface {
	Synthesize(ctx context.Context, signals []market.Signal, insight string, budget float64) (string, error)
}

// ReportStore keeps run history. Save failures are logged only.
type ReportStore interface {
	InsertReport(ctx context.Context, r *models.ReportRecord) error
}

type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventDegraded  EventStatus = "degraded"
	EventFailed    EventStatus = "failed"
)

type Event struct {
	RunID      string      `json:"run_id"`
	Stage      string      `json:"stage"`
	Status     EventStatus `json:"status"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Observer receives stage events. Calls are serialized.
type Observer func(Event)

type Config struct {
	IndexLocation string
	MaxSignals    int
	Timeout       time.Duration
}

type Orchestrator struct {
	retriever   InsightRetriever
	gatherer    SignalGatherer
	synthesizer StrategySynthesizer
	reports     ReportStore
	cfg         Config
	log         *zap.Logger
	now         func() time.Time
}

// NewOrchestrator wires the stages. reports may be nil.
func NewOrchestrator(retriever InsightRetriever, gatherer SignalGatherer, synthesizer StrategySynthesizer, reports ReportStore, cfg Config, log *zap.Logger) *Orchestrator {
	if cfg.MaxSignals <= 0 {
		cfg.MaxSignals = market.DefaultMaxResults
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		retriever:   retriever,
		gatherer:    gatherer,
		synthesizer: synthesizer,
		reports:     reports,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// Run produces a report for records, or an error envelope if a required
// stage fails. It never panics.
func (o *Orchestrator) Run(ctx context.Context, records []analytics.Record, domain string, totalBudget float64) *Result {
	return o.RunObserved(ctx, records, domain, totalBudget, nil)
}

func (o *Orchestrator) RunObserved(ctx context.Context, records []analytics.Record, domain string, totalBudget float64, observe Observer) *Result {
	runID := uuid.New().String()
	log := o.log.With(zap.String("run_id", runID), zap.String("domain", domain))
	log.Info("pipeline: starting strategy run", zap.Int("records", len(records)), zap.Float64("budget", totalBudget))

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	var observeMu sync.Mutex
	emit := func(e Event) {
		if observe == nil {
			return
		}
		e.RunID = runID
		observeMu.Lock()
		defer observeMu.Unlock()
		observe(e)
	}

	trackStage := func(name string, fn func() error) (err error) {
		emit(Event{Stage: name, Status: EventStarted})
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				log.Error("pipeline: stage panicked",
					zap.String("stage", name),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = apperr.Computation(name, fmt.Sprintf("stage panicked: %v", r))
			}

			elapsed := time.Since(start)
			metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())

			if err != nil {
				metrics.StageFailures.WithLabelValues(name, apperr.KindOf(err).String()).Inc()
				log.Error("pipeline: stage failed",
					zap.String("stage", name),
					zap.Int64("duration_ms", elapsed.Milliseconds()),
					zap.Error(err),
				)
				emit(Event{Stage: name, Status: EventFailed, DurationMS: elapsed.Milliseconds(), Error: err.Error()})
				return
			}

			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", elapsed.Milliseconds()),
			)
			emit(Event{Stage: name, Status: EventCompleted, DurationMS: elapsed.Milliseconds()})
		}()

		return fn()
	}

	result := o.run(ctx, runID, records, domain, totalBudget, trackStage, emit, log)
	o.save(ctx, result, log)
	return result
}

func (o *Orchestrator) run(
	ctx context.Context,
	runID string,
	records []analytics.Record,
	domain string,
	totalBudget float64,
	trackStage func(string, func() error) error,
	emit func(Event),
	log *zap.Logger,
) *Result {
	var derived []analytics.Derived
	if err := trackStage(StageDerive, func() error {
		var err error
		derived, err = analytics.Derive(records)
		return err
	}); err != nil {
		return o.fail(runID, domain, eris.Wrap(err, "derive metrics"))
	}

	var (
		allocation *budget.Allocation
		insight    string
		signals    []market.Signal
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return trackStage(StageAllocate, func() error {
			var err error
			allocation, err = budget.Allocate(derived, totalBudget)
			if err != nil {
				return eris.Wrap(err, "allocate budget")
			}
			metrics.AllocationPolicy.WithLabelValues(string(allocation.Policy)).Inc()
			if allocation.Warning != "" {
				log.Warn("pipeline: allocation fell back", zap.String("warning", allocation.Warning))
			}
			return nil
		})
	})

	g.Go(func() error {
		return trackStage(StageRetrieve, func() error {
			index, err := o.retriever.BuildOrLoad(gCtx, corpus.Build(derived), o.cfg.IndexLocation)
			if err != nil {
				return eris.Wrap(err, "build or load index")
			}
			insight, err = o.retriever.Analyze(gCtx, index)
			if err != nil {
				return eris.Wrap(err, "analyze interactions")
			}
			return nil
		})
	})

	g.Go(func() error {
		// Market research is advisory: a failed search degrades to the
		// placeholder signal instead of failing the run.
		return trackStage(StageMarket, func() error {
			var err error
			signals, err = o.gatherer.Gather(gCtx, domain, o.cfg.MaxSignals)
			if err != nil {
				log.Warn("pipeline: market research unavailable, continuing with placeholder", zap.Error(err))
				emit(Event{Stage: StageMarket, Status: EventDegraded, Error: err.Error()})
				signals = market.Placeholder()
			}
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return o.fail(runID, domain, err)
	}

	var strategy string
	if err := trackStage(StageSynthesize, func() error {
		var err error
		strategy, err = o.synthesizer.Synthesize(ctx, signals, insight, totalBudget)
		return eris.Wrap(err, "synthesize strategy")
	}); err != nil {
		return o.fail(runID, domain, err)
	}

	var report *Report
	if err := trackStage(StageAggregate, func() error {
		now := o.now()
		report = &Report{
			ID:                runID,
			Timestamp:         now.Format(timestampLayout),
			Domain:            domain,
			TotalBudget:       totalBudget,
			MarketResearch:    signals,
			DataAnalysis:      insight,
			BudgetAllocation:  allocation.Shares,
			AllocationPolicy:  string(allocation.Policy),
			AllocationWarning: allocation.Warning,
			ExcludedAds:       allocation.Excluded,
			FinalStrategy:     strategy,
			Metrics:           analytics.Summarize(records),
			PositionStats:     analytics.RankPositions(analytics.ByPosition(derived)),
		}
		return nil
	}); err != nil {
		return o.fail(runID, domain, err)
	}

	metrics.PipelineRuns.WithLabelValues(StatusSuccess).Inc()
	log.Info("pipeline: strategy run complete")

	return &Result{Report: report, domain: domain, createdAt: o.now()}
}

func (o *Orchestrator) fail(runID, domain string, err error) *Result {
	metrics.PipelineRuns.WithLabelValues(StatusError).Inc()
	now := o.now()
	return &Result{
		Envelope: &ErrorEnvelope{
			ID:           runID,
			Timestamp:    now.Format(timestampLayout),
			Status:       StatusError,
			ErrorMessage: err.Error(),
		},
		Err:       err,
		domain:    domain,
		createdAt: now,
	}
}

func (o *Orchestrator) save(ctx context.Context, result *Result, log *zap.Logger) {
	if o.reports == nil {
		return
	}

	rec, err := result.toRecord()
	if err != nil {
		log.Warn("pipeline: failed to encode report for history", zap.Error(err))
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.reports.InsertReport(saveCtx, rec); err != nil {
		log.Warn("pipeline: failed to store report", zap.Error(err))
	}
}
