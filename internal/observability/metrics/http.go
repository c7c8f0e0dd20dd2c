package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const namespace = "docintake"

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	analysisTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	webhookTotal     *prometheus.CounterVec
	insightsTotal    *prometheus.CounterVec
	insightsDuration *prometheus.HistogramVec
	notifyTotal      *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	analysisTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "results_total",
			Help:      "Analysis results by status and backend.",
		},
		[]string{"service", "status", "backend"},
	)
	analysisDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of analysis calls.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service", "backend"},
	)
	webhookTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Analysis callbacks by outcome.",
		},
		[]string{"service", "outcome"},
	)
	insightsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "insights",
			Name:      "jobs_total",
			Help:      "Insights generation jobs by status.",
		},
		[]string{"service", "status"},
	)
	insightsDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "insights",
			Name:      "job_duration_seconds",
			Help:      "Insights generation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	notifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "notifications_total",
			Help:      "Push notifications by message type.",
		},
		[]string{"service", "type"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		analysisTotal,
		analysisDuration,
		webhookTotal,
		insightsTotal,
		insightsDuration,
		notifyTotal,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		service:          service,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		analysisTotal:    analysisTotal,
		analysisDuration: analysisDuration,
		webhookTotal:     webhookTotal,
		insightsTotal:    insightsTotal,
		insightsDuration: insightsDuration,
		notifyTotal:      notifyTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterPushGauges exposes live push channel counts read at scrape time.
func (m *HTTPServerMetrics) RegisterPushGauges(stats func() domain.ConnectionStats) {
	if stats == nil {
		return
	}
	users := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "push",
			Name:        "users",
			Help:        "Users with at least one live push channel.",
			ConstLabels: prometheus.Labels{"service": m.service},
		},
		func() float64 { return float64(stats().TotalUsersConnected) },
	)
	channels := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "push",
			Name:        "channels",
			Help:        "Live push channels.",
			ConstLabels: prometheus.Labels{"service": m.service},
		},
		func() float64 { return float64(stats().TotalConnections) },
	)
	m.registry.MustRegister(users, channels)
}

// Middleware records request counters. It must run inside the chi router so
// the matched route pattern is available after the handler returns.
func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		path := routePattern(r)
		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/documents/"):
		return "/api/documents/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) ObserveAnalysis(result domain.AnalysisResult) {
	backend := result.Backend
	if backend == "" {
		backend = "unknown"
	}
	m.analysisTotal.WithLabelValues(m.service, string(result.Status), backend).Inc()
	m.analysisDuration.WithLabelValues(m.service, backend).Observe(result.ProcessingTimeSeconds)
}

func (m *HTTPServerMetrics) ObserveInsights(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	m.insightsTotal.WithLabelValues(m.service, status).Inc()
	m.insightsDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveNotification(kind string) {
	m.notifyTotal.WithLabelValues(m.service, kind).Inc()
}

func (m *HTTPServerMetrics) RecordWebhook(outcome string) {
	m.webhookTotal.WithLabelValues(m.service, outcome).Inc()
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
