package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geodata_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the retrieval pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram

	// Raster loading metrics.
	TilesLoaded       *prometheus.CounterVec   // labels: source
	TileErrors        *prometheus.CounterVec   // labels: source
	RetrievalDuration *prometheus.HistogramVec // labels: source
	RetrievalErrors   *prometheus.CounterVec   // labels: source

	// Reference data metrics.
	NameRepairFailures prometheus.Counter
	BoundaryCache      *prometheus.CounterVec // labels: result={hit,miss,stale}

	// Sink metrics.
	SummariesWritten *prometheus.CounterVec // labels: sink
	SinkErrors       *prometheus.CounterVec // labels: sink
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(
		m.PipelineRunning,
		m.RunDuration,
		m.TilesLoaded,
		m.TileErrors,
		m.RetrievalDuration,
		m.RetrievalErrors,
		m.NameRepairFailures,
		m.BoundaryCache,
		m.SummariesWritten,
		m.SinkErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a retrieval run is active, 0 otherwise."),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      help("Duration of a complete retrieve-summarize-load run."),
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		TilesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tiles_loaded_total",
			Help:      help("Raster files read, by data source."),
		}, []string{"source"}),
		TileErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_errors_total",
			Help:      help("Raster files that failed to read, by data source."),
		}, []string{"source"}),
		RetrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      help("Duration of a single province retrieval, by data source."),
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		RetrievalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_errors_total",
			Help:      help("Failed province retrievals, by data source."),
		}, []string{"source"}),
		NameRepairFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "name_repair_failures_total",
			Help:      help("Province name substrings that could not be repaired."),
		}),
		BoundaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "boundary_cache_total",
			Help:      help("Boundary collection cache lookups by result."),
		}, []string{"result"}),
		SummariesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_written_total",
			Help:      help("Summary records written, by sink."),
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      help("Failed summary batch writes, by sink."),
		}, []string{"sink"}),
	}
}
