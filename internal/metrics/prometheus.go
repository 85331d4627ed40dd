package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adstrategy/backend/pkg/circuitbreaker"
)

var (
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_pipeline_runs_total",
			Help: "Strategy pipeline runs by outcome",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adstrategy_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	StageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_stage_failures_total",
			Help: "Pipeline stage failures",
		},
		[]string{"stage", "kind"},
	)

	IndexOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_index_operations_total",
			Help: "Retrieval index loads, builds and invalidations",
		},
		[]string{"operation", "backend"},
	)

	AllocationPolicy = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_allocation_policy_total",
			Help: "Budget allocations by policy",
		},
		[]string{"policy"},
	)

	ExternalCallErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_external_call_errors_total",
			Help: "Errors returned by external collaborators",
		},
		[]string{"service"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adstrategy_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	RecordsQuarantined = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adstrategy_records_quarantined_total",
			Help: "Interaction records rejected at ingestion",
		},
	)

	AdCopiesGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adstrategy_ad_copies_generated_total",
			Help: "Ad copy generations by parse completeness",
		},
		[]string{"complete"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PipelineRuns,
			StageDuration,
			StageFailures,
			IndexOperations,
			AllocationPolicy,
			ExternalCallErrors,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			BreakerState,
			RecordsQuarantined,
			AdCopiesGenerated,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// BreakerStateChanged matches circuitbreaker.Config.OnStateChange.
func BreakerStateChanged(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
}
