package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/documents/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/documents/abc", nil))

	out := scrape(t, m.Handler())
	want := `docintake_http_requests_total{method="GET",path="/api/documents/{id}",service="api",status="404"} 1`
	if !strings.Contains(out, want) {
		t.Fatalf("expected %s in:\n%s", want, out)
	}
}

func TestNormalizePathCollapsesDocumentIDs(t *testing.T) {
	if got := normalizePath("/api/documents/123/insights"); got != "/api/documents/{id}" {
		t.Fatalf("unexpected path %q", got)
	}
	if got := normalizePath("/healthz"); got != "/healthz" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestPipelineObservationsAreExported(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveAnalysis(domain.AnalysisResult{Status: domain.StatusComplete, ProcessingTimeSeconds: 1.5})
	m.ObserveInsights("complete", 2*time.Second)
	m.ObserveNotification(domain.MessageDocumentProcessed)
	m.RecordWebhook("applied")
	m.RegisterPushGauges(func() domain.ConnectionStats {
		return domain.ConnectionStats{TotalUsersConnected: 2, TotalConnections: 3}
	})

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`docintake_analysis_results_total{backend="unknown",service="api",status="complete"} 1`,
		`docintake_insights_jobs_total{service="api",status="complete"} 1`,
		`docintake_push_notifications_total{service="api",type="document_processed"} 1`,
		`docintake_webhook_events_total{outcome="applied",service="api"} 1`,
		`docintake_push_users{service="api"} 2`,
		`docintake_push_channels{service="api"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in:\n%s", want, out)
		}
	}
}

func TestWorkerJobAccounting(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartJob()
	m.FinishJob(time.Second, nil)
	m.StartJob()
	m.FinishJob(time.Second, errors.New("boom"))
	m.ObserveNotification(domain.MessageInsightsReady)

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`docintake_worker_insights_jobs_total{service="worker",status="success"} 1`,
		`docintake_worker_insights_jobs_total{service="worker",status="error"} 1`,
		`docintake_worker_insights_jobs_in_flight{service="worker"} 0`,
		`docintake_worker_notifications_relayed_total{service="worker",type="insights_ready"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in:\n%s", want, out)
		}
	}
}
