package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestHMACAuthenticator(t *testing.T) {
	auth := NewHMACAuthenticator([]byte(testJWTSecret), "")

	principal, err := auth.Authenticate(context.Background(), signToken(t, "user-1", "Admin", time.Hour))
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if principal.UserID != "user-1" || principal.Role != domain.RoleAdmin {
		t.Fatalf("unexpected principal %+v", principal)
	}

	principal, err = auth.Authenticate(context.Background(), signToken(t, "user-2", "", time.Hour))
	if err != nil || principal.Role != domain.RoleClient {
		t.Fatalf("expected client role by default, got %+v %v", principal, err)
	}

	if _, err := auth.Authenticate(context.Background(), signToken(t, "user-1", "", -time.Hour)); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("other-secret"))
	if _, err := auth.Authenticate(context.Background(), forged); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected forged token to be rejected, got %v", err)
	}

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := auth.Authenticate(context.Background(), unsigned); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unsigned token to be rejected, got %v", err)
	}
}

func TestHMACAuthenticatorChecksIssuer(t *testing.T) {
	auth := NewHMACAuthenticator([]byte(testJWTSecret), "https://issuer.example")
	if _, err := auth.Authenticate(context.Background(), signToken(t, "user-1", "", time.Hour)); err == nil {
		t.Fatalf("expected token without issuer to be rejected")
	}
}

func TestDevAuthenticator(t *testing.T) {
	principal, err := DevAuthenticator{}.Authenticate(context.Background(), "ops:backoffice")
	if err != nil || principal.UserID != "ops" || !principal.Elevated() {
		t.Fatalf("unexpected principal %+v %v", principal, err)
	}
	if _, err := (DevAuthenticator{}).Authenticate(context.Background(), " "); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected empty token to be rejected, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"abc":          "",
		"":             "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Fatalf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestDocumentAccessAndStatsRoles(t *testing.T) {
	stack := newTestStack(t, testConfig())
	seedProcessingDocument(t, stack.repo, "doc-1", "owner")

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{name: "owner reads", path: "/api/documents/doc-1", token: signToken(t, "owner", "", time.Hour), want: http.StatusOK},
		{name: "stranger forbidden", path: "/api/documents/doc-1", token: signToken(t, "other", "", time.Hour), want: http.StatusForbidden},
		{name: "backoffice reads", path: "/api/documents/doc-1", token: signToken(t, "ops", domain.RoleBackoffice, time.Hour), want: http.StatusOK},
		{name: "missing document", path: "/api/documents/nope", token: signToken(t, "owner", "", time.Hour), want: http.StatusNotFound},
		{name: "stats need elevation", path: "/api/notifications/stats", token: signToken(t, "owner", "", time.Hour), want: http.StatusForbidden},
		{name: "admin stats", path: "/api/notifications/stats", token: signToken(t, "root", domain.RoleAdmin, time.Hour), want: http.StatusOK},
		{name: "no token", path: "/api/documents", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := stack.do(t, httptest.NewRequest(http.MethodGet, tt.path, nil), tt.token)
			if res.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, res.Code, res.Body.String())
			}
		})
	}
}

func TestGenerateInsightsRequiresCompleteDocument(t *testing.T) {
	stack := newTestStack(t, testConfig())
	seedProcessingDocument(t, stack.repo, "doc-1", "owner")
	token := signToken(t, "owner", "", time.Hour)

	res := stack.do(t, httptest.NewRequest(http.MethodPost, "/api/documents/doc-1/generate-insights", nil), token)
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}

	res = stack.do(t, httptest.NewRequest(http.MethodPost, "/api/documents/insights/batch?limit=abc", nil), token)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}

	res = stack.do(t, httptest.NewRequest(http.MethodPost, "/api/documents/insights/batch?limit=2", nil), token)
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	outcome := decodeBody[domain.BatchOutcome](t, res.Body)
	if outcome.Limit != 2 || len(outcome.Scheduled) != 0 {
		t.Fatalf("unexpected batch outcome %+v", outcome)
	}
}
