package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	ingestTotal        *prometheus.CounterVec
	ingestStageFailed  *prometheus.CounterVec
	ingestDuration     *prometheus.HistogramVec
	compensationsTotal *prometheus.CounterVec
	deleteTotal        *prometheus.CounterVec
	backendErrorsTotal *prometheus.CounterVec
	ledgerSubmitWait   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "custody",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "ingest",
			Name:      "total",
			Help:      "Completed ingest workflows by outcome.",
		},
		[]string{"service", "status"},
	)
	ingestStageFailed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "ingest",
			Name:      "stage_failures_total",
			Help:      "Ingest failures by last committed stage.",
		},
		[]string{"service", "stage"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "End-to-end ingest duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	compensationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "ingest",
			Name:      "compensations_total",
			Help:      "Content compensations after a failed ledger registration.",
		},
		[]string{"service", "outcome"},
	)
	deleteTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "delete",
			Name:      "total",
			Help:      "Completed deletion workflows by aggregated status.",
		},
		[]string{"service", "status"},
	)
	backendErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "custody",
			Subsystem: "delete",
			Name:      "backend_errors_total",
			Help:      "Per-backend failures inside deletion workflows.",
		},
		[]string{"service", "backend"},
	)
	ledgerSubmitWait := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "custody",
			Subsystem: "ledger",
			Name:      "submit_wait_seconds",
			Help:      "Time a ledger write spent queued plus settling.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		ingestTotal,
		ingestStageFailed,
		ingestDuration,
		compensationsTotal,
		deleteTotal,
		backendErrorsTotal,
		ledgerSubmitWait,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		ingestTotal:        ingestTotal,
		ingestStageFailed:  ingestStageFailed,
		ingestDuration:     ingestDuration,
		compensationsTotal: compensationsTotal,
		deleteTotal:        deleteTotal,
		backendErrorsTotal: backendErrorsTotal,
		ledgerSubmitWait:   ledgerSubmitWait,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		suffix := path[strings.LastIndex(path, "/")+1:]
		switch suffix {
		case "sign", "revoke", "restore":
			return "/v1/documents/{document_id}/" + suffix
		}
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIngest(service, status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordIngestStageFailure(service, stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.ingestStageFailed.WithLabelValues(service, stage).Inc()
}

func (m *HTTPServerMetrics) RecordCompensation(service string, succeeded bool) {
	outcome := "success"
	if !succeeded {
		outcome = "error"
	}
	m.compensationsTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordDeletion(service, status string, backendErrors []string) {
	if status == "" {
		status = "unknown"
	}
	m.deleteTotal.WithLabelValues(service, status).Inc()
	for _, backend := range backendErrors {
		m.backendErrorsTotal.WithLabelValues(service, backend).Inc()
	}
}

func (m *HTTPServerMetrics) ObserveLedgerSubmitWait(service, operation string, wait time.Duration) {
	m.ledgerSubmitWait.WithLabelValues(service, operation).Observe(wait.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
