package httpadapter

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/usecase"
	"github.com/kirillkom/document-intake/internal/infrastructure/analysis"
	"github.com/kirillkom/document-intake/internal/infrastructure/catalog"
	"github.com/kirillkom/document-intake/internal/infrastructure/export"
	"github.com/kirillkom/document-intake/internal/infrastructure/llm/openai"
	"github.com/kirillkom/document-intake/internal/infrastructure/realtime"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/memory"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-intake/internal/infrastructure/tasks"
	"github.com/kirillkom/document-intake/internal/infrastructure/webhook"
	"github.com/kirillkom/document-intake/internal/observability/logging"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "test-webhook-secret"
	// httptest.NewRequest uses 192.0.2.1 as the peer address.
	testWebhookIP = "192.0.2.1"
)

type testStack struct {
	handler  http.Handler
	repo     *memory.DocumentRepository
	registry *realtime.Registry
	runner   *tasks.Runner
	metrics  *metrics.HTTPServerMetrics
}

func testConfig() config.Config {
	return config.Config{
		Environment:        config.EnvDevelopment,
		MaxUploadMB:        5,
		WSSendBuffer:       8,
		InsightsBatchLimit: 5,
		RateLimitBurst:     10,
	}
}

func newTestStack(t *testing.T, cfg config.Config) *testStack {
	t.Helper()
	logger := logging.Discard()

	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	docCatalog, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}

	repo := memory.NewDocumentRepository()
	registry := realtime.NewRegistry(logger)
	analyzer := analysis.New(storage, analysis.Options{
		Fallback: analysis.NewFallbackGenerator(0),
		Logger:   logger,
	})
	generator := openai.New(openai.Options{Enabled: true, Logger: logger})
	m := metrics.NewHTTPServerMetrics("api-test")

	runner := tasks.NewRunner(logger, 5*time.Second)
	insightsUC := usecase.NewInsightsUseCase(repo, generator, registry, m, cfg.InsightsBatchLimit)
	dispatcher := tasks.NewLocalDispatcher(runner, insightsUC)
	insightsUC.SetDispatcher(dispatcher)

	verifier := webhook.NewVerifier(webhook.Options{
		Secret:     testWebhookSecret,
		AllowedIPs: []string{testWebhookIP},
		EnforceIP:  true,
		Logger:     logger,
	})

	handler := NewRouter(cfg, Services{
		Uploader: usecase.NewUploadUseCase(repo, storage, analyzer, docCatalog, registry, dispatcher, m, true),
		Reader:   usecase.NewQueryUseCase(repo, export.NewXLSXExporter()),
		Insights: insightsUC,
		Webhooks: usecase.NewWebhookUseCase(verifier, repo, registry, m),
		Catalog:  docCatalog,
		Registry: registry,
		Analyzer: analyzer,
		Auth:     NewHMACAuthenticator([]byte(testJWTSecret), ""),
		Metrics:  m,
		Logger:   logger,
	}).Handler()

	return &testStack{handler: handler, repo: repo, registry: registry, runner: runner, metrics: m}
}

func signToken(t *testing.T, subject, role string, ttl time.Duration) string {
	t.Helper()
	claims := principalClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (s *testStack) do(t *testing.T, req *http.Request, token string) *httptest.ResponseRecorder {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	s.handler.ServeHTTP(res, req)
	return res
}

func uploadRequest(t *testing.T, filename, documentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if documentType != "" {
		if err := writer.WriteField("document_type", documentType); err != nil {
			t.Fatalf("write document_type: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeBody[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func seedProcessingDocument(t *testing.T, repo *memory.DocumentRepository, id, owner string) {
	t.Helper()
	now := time.Now().UTC()
	if err := repo.Create(t.Context(), &domain.Document{
		ID:               id,
		OwnerID:          owner,
		DocumentType:     "invoice",
		OriginalFilename: "invoice.pdf",
		Status:           domain.StatusProcessing,
		InsightsStatus:   domain.InsightsPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}
