package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	reconcileTotal    *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	reconcileInFlight prometheus.Gauge
	reconcileLag      *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	reconcileTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "worker",
			Name:      "reconcile_total",
			Help:      "Total reconcile attempts by status.",
		},
		[]string{"service", "status"},
	)
	reconcileDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "worker",
			Name:      "reconcile_duration_seconds",
			Help:      "Reconcile attempt duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	reconcileInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "custody",
			Subsystem: "worker",
			Name:      "reconcile_in_flight",
			Help:      "Number of in-flight reconcile attempts.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	reconcileLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "worker",
			Name:      "reconcile_lag_seconds",
			Help:      "Delay between the degraded ingest and the reconcile attempt.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(reconcileTotal, reconcileDuration, reconcileInFlight, reconcileLag)

	return &WorkerMetrics{
		registry:          registry,
		reconcileTotal:    reconcileTotal,
		reconcileDuration: reconcileDuration,
		reconcileInFlight: reconcileInFlight,
		reconcileLag:      reconcileLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartReconcile() {
	m.reconcileInFlight.Inc()
}

func (m *WorkerMetrics) FinishReconcile(service string, duration time.Duration, err error) {
	m.reconcileInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.reconcileTotal.WithLabelValues(service, status).Inc()
	m.reconcileDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveReconcileLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.reconcileLag.WithLabelValues(service).Observe(lag.Seconds())
}
