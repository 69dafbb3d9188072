package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "water_quality"

// Metrics holds the Prometheus collectors for ingestion and the daily pipeline.
type Metrics struct {
	ReadingsIngested prometheus.Counter
	ReadingsRejected prometheus.Counter

	// Daily pipeline metrics.
	PipelineRuns        *prometheus.CounterVec // labels: status={completed,no_data,failed,busy}
	PipelineDuration    prometheus.Histogram
	PipelineRunning     prometheus.Gauge
	PipelineLastSuccess prometheus.Gauge

	Predictions   *prometheus.CounterVec // labels: label
	PublishErrors prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Sensor readings accepted and stored.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Sensor readings rejected by validation.",
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Daily pipeline invocations by outcome.",
		}, []string{"status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Duration of a daily pipeline run that actually started.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a daily pipeline run is in flight.",
		}),
		PipelineLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_last_success_timestamp_seconds",
			Help:      "Unix time of the last run that wrote a prediction.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions written by label.",
		}, []string{"label"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_publish_errors_total",
			Help:      "Predictions that could not be published downstream.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReadingsIngested,
		m.ReadingsRejected,
		m.PipelineRuns,
		m.PipelineDuration,
		m.PipelineRunning,
		m.PipelineLastSuccess,
		m.Predictions,
		m.PublishErrors,
	}
}
