package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intake/internal/observability/logging"
)

type storageFake struct {
	files map[string][]byte
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.files[key] = raw
	return nil
}

func (s *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := s.files[key]
	if !ok {
		return nil, errors.New("missing file")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *storageFake) Delete(_ context.Context, key string) error {
	delete(s.files, key)
	return nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestClient(t *testing.T, baseURL, apiKey string, rec *sleepRecorder) *Client {
	t.Helper()
	storage := &storageFake{files: map[string][]byte{"doc-1_contract.pdf": []byte("%PDF-1.4 fake")}}
	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 2 * time.Second,
		RetryMaxBackoff:     time.Minute,
		RetryMultiplier:     2,
	}, resilience.WithSleep(rec.sleep), resilience.WithLogger(logging.Discard()))
	return New(storage, Options{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		Executor: exec,
		Fallback: NewFallbackGenerator(0),
		Logger:   logging.Discard(),
	})
}

var contractRequest = domain.AnalysisRequest{
	DocumentID:   "doc-1",
	DocumentType: "contract",
	Filename:     "contract.pdf",
	StoragePath:  "doc-1_contract.pdf",
}

func TestProcessRetriesRateLimitWithExponentialBackoff(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"status":"complete","document_id":"ext-9","request_id":"req-9","extracted_data":{"cnpj":"12.345.678/0001-90"},"confidence_score":0.93,"model_version":"v3"}`))
	}))
	defer server.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, server.URL, "live-key", rec)
	result := client.Process(context.Background(), contractRequest)

	if result.Status != domain.StatusComplete {
		t.Fatalf("expected complete, got %s (%s)", result.Status, result.ErrorMessage)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if len(rec.waits) != 2 || rec.waits[0] != 2*time.Second || rec.waits[1] != 4*time.Second {
		t.Fatalf("expected exponential waits 2s,4s, got %v", rec.waits)
	}
	if result.ExternalDocumentID != "ext-9" || result.ExternalRequestID != "req-9" || result.ExternalVersion != "v3" {
		t.Fatalf("unexpected correlation fields: %+v", result)
	}
	if result.ExtractedData["cnpj"] != "12.345.678/0001-90" || result.ConfidenceScore != 0.93 {
		t.Fatalf("unexpected extracted data: %+v", result)
	}
}

func TestProcessRateLimitExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "live-key", &sleepRecorder{})
	result := client.Process(context.Background(), contractRequest)

	if result.Status != domain.StatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if result.ErrorMessage != "rate limit exceeded after 3 attempts" {
		t.Fatalf("unexpected error message %q", result.ErrorMessage)
	}
}

func TestProcessDoesNotRetryPermanentStatuses(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   string
	}{
		{http.StatusUnauthorized, "bad token", "credential"},
		{http.StatusRequestEntityTooLarge, "", "too large"},
		{http.StatusInternalServerError, "boom from backend", "boom from backend"},
	}
	for _, tc := range cases {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, tc.body, tc.status)
		}))

		rec := &sleepRecorder{}
		client := newTestClient(t, server.URL, "live-key", rec)
		result := client.Process(context.Background(), contractRequest)
		server.Close()

		if result.Status != domain.StatusFailed {
			t.Fatalf("status %d: expected failed, got %s", tc.status, result.Status)
		}
		if calls.Load() != 1 || len(rec.waits) != 0 {
			t.Fatalf("status %d: expected a single attempt, got %d calls %v waits", tc.status, calls.Load(), rec.waits)
		}
		if !strings.Contains(result.ErrorMessage, tc.want) {
			t.Fatalf("status %d: expected %q in %q", tc.status, tc.want, result.ErrorMessage)
		}
		if len(result.ExtractedData) != 0 || result.ConfidenceScore != 0 {
			t.Fatalf("status %d: failed result must be empty, got %+v", tc.status, result)
		}
	}
}

func TestProcessNetworkErrorYieldsFailedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	rec := &sleepRecorder{}
	client := newTestClient(t, url, "live-key", rec)
	result := client.Process(context.Background(), contractRequest)

	if result.Status != domain.StatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if !strings.HasPrefix(result.ErrorMessage, "connection error after 3 attempts") {
		t.Fatalf("unexpected error message %q", result.ErrorMessage)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 2*time.Second || rec.waits[1] != 2*time.Second {
		t.Fatalf("expected fixed waits, got %v", rec.waits)
	}
	if result.ExternalVersion != "error" {
		t.Fatalf("expected error version, got %q", result.ExternalVersion)
	}
}

func TestProcessSendsMultipartPayload(t *testing.T) {
	var (
		auth, docType, docID, clientID, fileBody, fileName string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		docType = r.FormValue("document_type")
		docID = r.FormValue("document_id")
		clientID = r.FormValue("client_id")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		raw, _ := io.ReadAll(file)
		fileBody = string(raw)
		fileName = header.Filename
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, "live-key", &sleepRecorder{})
	result := client.Process(context.Background(), contractRequest)

	if auth != "Bearer live-key" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	if docType != "contract" || docID != "doc-1" || clientID != "document-intake" {
		t.Fatalf("unexpected form fields: %q %q %q", docType, docID, clientID)
	}
	if fileBody != "%PDF-1.4 fake" || fileName != "contract.pdf" {
		t.Fatalf("unexpected file part %q %q", fileName, fileBody)
	}
	if result.Status != domain.StatusComplete || result.ExternalVersion != "unknown" || result.ConfidenceScore != 0 {
		t.Fatalf("expected normalized defaults, got %+v", result)
	}
	if result.ExternalDocumentID != "analysis_doc-1" || !strings.HasPrefix(result.ExternalRequestID, "req_") {
		t.Fatalf("expected default correlation ids, got %+v", result)
	}
}

func TestProcessUsesFallbackWithoutCredential(t *testing.T) {
	for _, key := range []string{"", "changeme"} {
		client := newTestClient(t, "http://127.0.0.1:1", key, &sleepRecorder{})
		result := client.Process(context.Background(), contractRequest)

		if result.Status != domain.StatusComplete || result.Backend != BackendFallback {
			t.Fatalf("key %q: expected fallback completion, got %+v", key, result)
		}
		if result.ExternalVersion != FallbackVersion {
			t.Fatalf("key %q: unexpected version %q", key, result.ExternalVersion)
		}
		if _, ok := result.ExtractedData["cnpj"].(string); !ok {
			t.Fatalf("key %q: expected cnpj in contract payload, got %+v", key, result.ExtractedData)
		}
		if result.ProcessingTimeSeconds < 0 {
			t.Fatalf("key %q: negative processing time", key)
		}
	}
}

func TestValidateConfiguration(t *testing.T) {
	cases := []struct {
		url, key string
		valid    bool
	}{
		{"", "k", false},
		{"http://backend", "", false},
		{"http://backend", "changeme", false},
		{"http://backend", "live", true},
	}
	for _, tc := range cases {
		client := newTestClient(t, tc.url, tc.key, &sleepRecorder{})
		valid, msg := client.ValidateConfiguration()
		if valid != tc.valid || msg == "" {
			t.Fatalf("ValidateConfiguration(%q,%q) = %v %q", tc.url, tc.key, valid, msg)
		}
	}
}

func TestNormalizeResponseFailedStatus(t *testing.T) {
	result := normalizeResponse(map[string]any{"status": "failed", "confidence_score": 4.2}, "doc-2", time.Unix(100, 0))
	if result.Status != domain.StatusFailed || result.ErrorMessage == "" {
		t.Fatalf("expected failed with message, got %+v", result)
	}
	if result.ConfidenceScore != 1 {
		t.Fatalf("expected clamped confidence, got %v", result.ConfidenceScore)
	}
	if result.ExternalRequestID != "req_100" {
		t.Fatalf("unexpected request id %q", result.ExternalRequestID)
	}
}
