package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers pipeline execution: run outcomes, per-stage
// timing, validation verdicts and sink deliveries.
type WorkerMetrics struct {
	registry *prometheus.Registry

	runTotal      *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runInFlight   prometheus.Gauge
	stageDuration *prometheus.HistogramVec
	queueLag      *prometheus.HistogramVec

	validationTotal *prometheus.CounterVec
	sinkWriteTotal  *prometheus.CounterVec
	correctionTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total executed pipeline runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "End-to-end run duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	runInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "runs_in_flight",
			Help:      "Number of runs currently executing.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage processing duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "stage"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between run creation and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	validationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "validations_total",
			Help:      "Total validated documents by verdict.",
		},
		[]string{"service", "verdict"},
	)
	sinkWriteTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "sink",
			Name:      "writes_total",
			Help:      "Total sink deliveries by sink and status.",
		},
		[]string{"service", "sink", "status"},
	)
	correctionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docextract",
			Subsystem: "pipeline",
			Name:      "corrections_exported_total",
			Help:      "Total documents exported for human review.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		runTotal,
		runDuration,
		runInFlight,
		stageDuration,
		queueLag,
		validationTotal,
		sinkWriteTotal,
		correctionTotal,
	)

	return &WorkerMetrics{
		registry:        registry,
		runTotal:        runTotal,
		runDuration:     runDuration,
		runInFlight:     runInFlight,
		stageDuration:   stageDuration,
		queueLag:        queueLag,
		validationTotal: validationTotal,
		sinkWriteTotal:  sinkWriteTotal,
		correctionTotal: correctionTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun(service string, duration time.Duration, err error) {
	m.runInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.runTotal.WithLabelValues(service, status).Inc()
	m.runDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveStage(service, stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(service, stage).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordValidation(service string, valid bool) {
	verdict := "valid"
	if !valid {
		verdict = "invalid"
	}
	m.validationTotal.WithLabelValues(service, verdict).Inc()
}

func (m *WorkerMetrics) RecordSinkWrite(service, sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.sinkWriteTotal.WithLabelValues(service, sink, status).Inc()
}

func (m *WorkerMetrics) RecordCorrectionExport(service string) {
	m.correctionTotal.WithLabelValues(service).Inc()
}
