package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's instrumentation. A nil *Metrics is valid
// and turns every observation into a no-op, so callers never guard.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	roundsPerRun  prometheus.Histogram
	searchCalls   *prometheus.CounterVec
	scrapeCalls   *prometheus.CounterVec
	ragApplied    prometheus.Counter
	clampTriggers prometheus.Counter
	contextBytes  prometheus.Histogram
}

// NewMetrics builds a fresh registry with all pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hoppt_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hoppt_run_duration_seconds",
			Help:    "Wall time of a full pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		roundsPerRun: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hoppt_refinement_rounds",
			Help:    "Coverage-assessment rounds executed per run.",
			Buckets: []float64{0, 1, 2, 3},
		}),
		searchCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hoppt_search_calls_total",
			Help: "Search fan-out calls by outcome.",
		}, []string{"outcome"}),
		scrapeCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hoppt_scrape_docs_total",
			Help: "Scraped documents by outcome.",
		}, []string{"outcome"}),
		ragApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "hoppt_rag_applied_total",
			Help: "Documents compressed by the retrieval engine.",
		}),
		clampTriggers: factory.NewCounter(prometheus.CounterOpts{
			Name: "hoppt_hard_clamp_total",
			Help: "Times the absolute-ceiling clamp fired before prompt assembly.",
		}),
		contextBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hoppt_context_bytes",
			Help:    "Serialized context size handed to prompt assembly.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcomeLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// ObserveRun records one finished pipeline run.
func (m *Metrics) ObserveRun(outcome string, rounds int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	m.roundsPerRun.Observe(float64(rounds))
}

// ObserveSearch records one search fan-out.
func (m *Metrics) ObserveSearch(ok bool) {
	if m == nil {
		return
	}
	m.searchCalls.WithLabelValues(outcomeLabel(ok)).Inc()
}

// ObserveScrape records one scraped document.
func (m *Metrics) ObserveScrape(ok bool) {
	if m == nil {
		return
	}
	m.scrapeCalls.WithLabelValues(outcomeLabel(ok)).Inc()
}

// ObserveRAG records one retrieval compression.
func (m *Metrics) ObserveRAG() {
	if m == nil {
		return
	}
	m.ragApplied.Inc()
}

// ObserveHardClamp records an absolute-ceiling clamp activation.
func (m *Metrics) ObserveHardClamp() {
	if m == nil {
		return
	}
	m.clampTriggers.Inc()
}

// ObserveContextBytes records the final serialized context size.
func (m *Metrics) ObserveContextBytes(n int) {
	if m == nil {
		return
	}
	m.contextBytes.Observe(float64(n))
}
