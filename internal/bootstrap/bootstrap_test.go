package bootstrap

import (
	"testing"

	httpadapter "github.com/kirillkom/document-intake/internal/adapters/http"
	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/memory"
	"github.com/kirillkom/document-intake/internal/observability/logging"
)

func devConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Environment:            config.EnvDevelopment,
		StorageBackend:         "local",
		StoragePath:            t.TempDir(),
		InsightsDispatch:       dispatchLocal,
		InsightsEnabled:        true,
		InsightsBatchLimit:     5,
		InsightsTimeoutSeconds: 5,
		AnalysisTimeoutSeconds: 5,
	}
}

func TestNewWiresInMemoryAPI(t *testing.T) {
	app, err := New(t.Context(), devConfig(t), RoleAPI, logging.Discard(), nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer app.Close()

	if _, ok := app.Repo.(*memory.DocumentRepository); !ok {
		t.Fatalf("expected in-memory repository, got %T", app.Repo)
	}
	if app.Queue != nil {
		t.Fatalf("expected no queue in local dispatch mode")
	}
	if app.UploadUC == nil || app.QueryUC == nil || app.InsightsUC == nil || app.WebhookUC == nil {
		t.Fatalf("use cases not wired")
	}
	if app.Registry == nil || app.Runner == nil || app.Analyzer == nil || app.Catalog == nil {
		t.Fatalf("infrastructure not wired")
	}
	if err := app.RelayNotifications(t.Context()); err != nil {
		t.Fatalf("relay without queue should be a no-op, got %v", err)
	}
	if err := app.Shutdown(t.Context()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestNewWorkerRequiresQueue(t *testing.T) {
	if _, err := New(t.Context(), devConfig(t), RoleWorker, logging.Discard(), nil); err == nil {
		t.Fatalf("expected worker bootstrap to fail without nats dispatch")
	}
}

func TestNewRejectsBrokenCatalog(t *testing.T) {
	cfg := devConfig(t)
	cfg.DocumentCatalogPath = cfg.StoragePath + "/missing.yaml"
	if _, err := New(t.Context(), cfg, RoleAPI, logging.Discard(), nil); err == nil {
		t.Fatalf("expected error for missing catalog file")
	}
}

func TestNewAuthenticatorSelection(t *testing.T) {
	logger := logging.Discard()

	cfg := devConfig(t)
	auth, err := NewAuthenticator(t.Context(), cfg, logger)
	if err != nil {
		t.Fatalf("dev auth: %v", err)
	}
	if _, ok := auth.(httpadapter.DevAuthenticator); !ok {
		t.Fatalf("expected dev authenticator, got %T", auth)
	}

	cfg.AuthJWTSecret = "secret"
	auth, err = NewAuthenticator(t.Context(), cfg, logger)
	if err != nil {
		t.Fatalf("hmac auth: %v", err)
	}
	if _, ok := auth.(*httpadapter.JWTAuthenticator); !ok {
		t.Fatalf("expected jwt authenticator, got %T", auth)
	}

	cfg = devConfig(t)
	cfg.Environment = config.EnvProduction
	if _, err := NewAuthenticator(t.Context(), cfg, logger); err == nil {
		t.Fatalf("expected production without credentials to fail")
	}
}

func TestRoleString(t *testing.T) {
	if RoleAPI.String() != "api" || RoleWorker.String() != "worker" {
		t.Fatalf("unexpected role names %s %s", RoleAPI, RoleWorker)
	}
}
