package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/document-intake/internal/adapters/http"
	"github.com/kirillkom/document-intake/internal/bootstrap"
	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/observability/logging"
	"github.com/kirillkom/document-intake/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.RoleAPI, logger, httpMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	httpMetrics.RegisterPushGauges(app.Registry.Stats)

	auth, err := bootstrap.NewAuthenticator(ctx, cfg, logger)
	if err != nil {
		logger.Error("auth_init_failed", "error", err)
		app.Close()
		os.Exit(1)
	}

	if app.Queue != nil {
		go func() {
			if err := app.RelayNotifications(ctx); err != nil {
				logger.Error("notification_relay_stopped", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Uploader: app.UploadUC,
		Reader:   app.QueryUC,
		Insights: app.InsightsUC,
		Webhooks: app.WebhookUC,
		Catalog:  app.Catalog,
		Registry: app.Registry,
		Analyzer: app.Analyzer,
		Auth:     auth,
		Metrics:  httpMetrics,
		Logger:   logger,
		Lifetime: ctx,
	}).Handler()

	// Uploads wait on the analysis backend, so the write timeout covers
	// the whole retry budget.
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "environment", cfg.Environment, "insights_dispatch", cfg.InsightsDispatch)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Warn("insights_tasks_abandoned", "error", err)
	}
	logger.Info("api_stopped")
}
