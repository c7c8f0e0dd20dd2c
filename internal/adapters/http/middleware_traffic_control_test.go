package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 1
	cfg.RateLimitBurst = 1
	stack := newTestStack(t, cfg)

	res1 := stack.do(t, webhookRequest("{}", "", ""), "")
	if res1.Code != http.StatusUnauthorized {
		t.Fatalf("first request expected 401, got %d", res1.Code)
	}

	res2 := stack.do(t, webhookRequest("{}", "", ""), "")
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}

	res3 := stack.do(t, webhookRequest("{}", "", "198.51.100.7"), "")
	if res3.Code == http.StatusTooManyRequests {
		t.Fatalf("limits must be tracked per client ip")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()

	<-started

	req2 := httptest.NewRequest(http.MethodPost, "/api/documents/upload", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(bytes.NewReader(res2.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("first request expected 204, got %d", code)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("timed out waiting for first request completion")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	stack := newTestStack(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := stack.do(t, req, "")
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	res = stack.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: &http.MaxBytesError{Limit: 1}, want: http.StatusRequestEntityTooLarge},
		{err: domain.WrapError(domain.ErrUnsupportedFileType, "upload", errors.New("exe")), want: http.StatusBadRequest},
		{err: domain.WrapError(domain.ErrInvalidInput, "upload", errors.New("type")), want: http.StatusBadRequest},
		{err: domain.WrapError(domain.ErrUnauthorized, "auth", errors.New("token")), want: http.StatusUnauthorized},
		{err: domain.WrapError(domain.ErrForbidden, "read", errors.New("owner")), want: http.StatusForbidden},
		{err: domain.WrapError(domain.ErrDocumentNotFound, "read", errors.New("id")), want: http.StatusNotFound},
		{err: domain.WrapError(domain.ErrConflict, "insights", errors.New("status")), want: http.StatusConflict},
		{err: domain.WrapError(domain.ErrTemporary, "batch", errors.New("queue")), want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := mapErrorToHTTPStatus(c.err); got != c.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
