package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	httpadapter "github.com/kirillkom/document-intake/internal/adapters/http"
	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/core/usecase"
	"github.com/kirillkom/document-intake/internal/infrastructure/analysis"
	"github.com/kirillkom/document-intake/internal/infrastructure/catalog"
	"github.com/kirillkom/document-intake/internal/infrastructure/export"
	"github.com/kirillkom/document-intake/internal/infrastructure/llm/openai"
	"github.com/kirillkom/document-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intake/internal/infrastructure/realtime"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/memory"
	"github.com/kirillkom/document-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-intake/internal/infrastructure/storage/s3"
	"github.com/kirillkom/document-intake/internal/infrastructure/tasks"
	"github.com/kirillkom/document-intake/internal/infrastructure/webhook"
)

const (
	dispatchLocal = "local"
	dispatchNATS  = "nats"
)

// Role selects which side of the pipeline a process runs.
type Role int

const (
	// RoleAPI serves HTTP and the push channel. With NATS dispatch it
	// publishes insights jobs and relays notifications from workers.
	RoleAPI Role = iota
	// RoleWorker consumes insights jobs and publishes notifications.
	RoleWorker
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Repo     ports.DocumentRepository
	Catalog  *catalog.Catalog
	Registry *realtime.Registry
	Analyzer *analysis.Client
	Queue    *nats.Queue
	Runner   *tasks.Runner

	UploadUC   *usecase.UploadUseCase
	QueryUC    *usecase.QueryUseCase
	InsightsUC *usecase.InsightsUseCase
	WebhookUC  *usecase.WebhookUseCase

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, role Role, logger *slog.Logger, observer ports.PipelineObserver) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.init(ctx, role, observer); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context, role Role, observer ports.PipelineObserver) error {
	cfg := a.Config

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	a.Repo = repo

	storage, err := openStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	a.Catalog, err = catalog.Load(cfg.DocumentCatalogPath)
	if err != nil {
		return fmt.Errorf("load document catalog: %w", err)
	}

	if cfg.InsightsDispatch == dispatchNATS {
		a.Queue, err = nats.New(cfg.NATSURL, nats.Options{
			Name:            fmt.Sprintf("document-intake-%s", role),
			InsightsSubject: cfg.NATSInsightsSubject,
			NotifySubject:   cfg.NATSNotifySubject,
			Logger:          a.Logger,
		})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.closeFns = append(a.closeFns, a.Queue.Close)
	}

	a.Registry = realtime.NewRegistry(a.Logger)
	var notifier ports.Notifier = a.Registry
	if role == RoleWorker {
		if a.Queue == nil {
			return errors.New("worker requires INSIGHTS_DISPATCH=nats")
		}
		notifier = a.Queue
	}

	a.Analyzer = analysis.New(storage, analysis.Options{
		BaseURL:        cfg.AnalysisAPIURL,
		APIKey:         cfg.AnalysisAPIKey,
		ClientID:       cfg.AnalysisClientID,
		Timeout:        time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.AnalysisMaxRetries,
		RetryDelay:     time.Duration(cfg.AnalysisRetryDelaySeconds) * time.Second,
		BreakerEnabled: cfg.AnalysisBreakerEnabled,
		Fallback:       analysis.NewFallbackGenerator(time.Duration(cfg.AnalysisFallbackDelayMS) * time.Millisecond),
		Logger:         a.Logger,
	})
	generator := openai.New(openai.Options{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.InsightsModel,
		Temperature: cfg.InsightsTemperature,
		MaxTokens:   cfg.InsightsMaxTokens,
		Timeout:     time.Duration(cfg.InsightsTimeoutSeconds) * time.Second,
		Enabled:     cfg.InsightsEnabled,
		Logger:      a.Logger,
	})

	a.InsightsUC = usecase.NewInsightsUseCase(repo, generator, notifier, observer, cfg.InsightsBatchLimit)

	// Insights run well past the request that scheduled them; the runner
	// bounds each task by the enrichment timeout plus persistence headroom.
	a.Runner = tasks.NewRunner(a.Logger, time.Duration(cfg.InsightsTimeoutSeconds)*time.Second+30*time.Second)
	var dispatcher ports.InsightsDispatcher
	switch {
	case a.Queue != nil:
		dispatcher = a.Queue
	default:
		dispatcher = tasks.NewLocalDispatcher(a.Runner, a.InsightsUC)
	}
	a.InsightsUC.SetDispatcher(dispatcher)

	a.UploadUC = usecase.NewUploadUseCase(repo, storage, a.Analyzer, a.Catalog, notifier, dispatcher, observer, cfg.InsightsEnabled)
	a.QueryUC = usecase.NewQueryUseCase(repo, export.NewXLSXExporter())

	verifier := webhook.NewVerifier(webhook.Options{
		Secret:     cfg.WebhookSecret,
		AllowedIPs: cfg.WebhookAllowedIPs,
		EnforceIP:  !cfg.IsDevelopment(),
		Logger:     a.Logger,
	})
	a.WebhookUC = usecase.NewWebhookUseCase(verifier, repo, notifier, observer)
	return nil
}

func (a *App) openRepository(ctx context.Context) (ports.DocumentRepository, error) {
	if a.Config.PostgresDSN == "" {
		a.Logger.Warn("repository_in_memory", "reason", "POSTGRES_DSN is empty", "effect", "documents are lost on restart")
		return memory.NewDocumentRepository(), nil
	}

	db, err := postgres.OpenDB(a.Config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	a.closeFns = append(a.closeFns, func() { _ = db.Close() })

	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

func openStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return localfs.New(cfg.StoragePath)
	}
}

// NewAuthenticator picks JWKS, then a shared secret, and in development
// falls back to trusting the bearer value as the user id.
func NewAuthenticator(ctx context.Context, cfg config.Config, logger *slog.Logger) (httpadapter.Authenticator, error) {
	switch {
	case cfg.AuthJWKSURL != "":
		return httpadapter.NewJWKSAuthenticator(ctx, cfg.AuthJWKSURL, cfg.AuthIssuer, logger)
	case cfg.AuthJWTSecret != "":
		return httpadapter.NewHMACAuthenticator([]byte(cfg.AuthJWTSecret), cfg.AuthIssuer), nil
	case cfg.IsDevelopment():
		logger.Warn("auth_development_mode", "effect", "bearer tokens are trusted as user ids")
		return httpadapter.DevAuthenticator{}, nil
	default:
		return nil, errors.New("no authentication configured")
	}
}

// RelayNotifications forwards notifications published by workers to the
// local push registry. It blocks until ctx is done.
func (a *App) RelayNotifications(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	return a.Queue.SubscribeNotifications(ctx, func(ctx context.Context, userID string, msg domain.Notification) error {
		a.Registry.SendToUser(ctx, userID, msg)
		return nil
	})
}

// Shutdown waits for detached insights tasks before releasing connections.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.Runner != nil {
		err = a.Runner.Shutdown(ctx)
	}
	a.Close()
	return err
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (r Role) String() string {
	if r == RoleWorker {
		return "worker"
	}
	return "api"
}
