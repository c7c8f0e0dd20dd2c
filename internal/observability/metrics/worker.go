package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsInFlight prometheus.Gauge
	notifyTotal  *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "insights_jobs_total",
			Help:      "Total insights jobs consumed by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "insights_job_duration_seconds",
			Help:      "Insights job duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "insights_jobs_in_flight",
			Help:      "Number of in-flight insights jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	notifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "notifications_relayed_total",
			Help:      "Notifications published for relay by message type.",
		},
		[]string{"service", "type"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, notifyTotal)

	return &WorkerMetrics{
		registry:     registry,
		service:      service,
		jobsTotal:    jobsTotal,
		jobDuration:  jobDuration,
		jobsInFlight: jobsInFlight,
		notifyTotal:  notifyTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(duration time.Duration, err error) {
	m.jobsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// The worker never runs analysis; these satisfy the pipeline observer.
func (m *WorkerMetrics) ObserveAnalysis(domain.AnalysisResult) {}

func (m *WorkerMetrics) ObserveInsights(string, time.Duration) {}

func (m *WorkerMetrics) ObserveNotification(kind string) {
	m.notifyTotal.WithLabelValues(m.service, kind).Inc()
}
