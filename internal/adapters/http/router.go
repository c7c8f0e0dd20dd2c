package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/document-intake/internal/config"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/infrastructure/realtime"
)

// Metrics is the HTTP-facing part of the metrics registry.
type Metrics interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordWebhook(outcome string)
}

// Services groups everything the router dispatches to. Lifetime bounds
// long-lived websocket sessions; it defaults to context.Background.
type Services struct {
	Uploader ports.DocumentUploader
	Reader   ports.DocumentReader
	Insights ports.InsightsService
	Webhooks ports.WebhookIntake
	Catalog  ports.DocumentCatalog
	Registry ports.ConnectionRegistry
	Analyzer ports.DocumentAnalyzer
	Auth     Authenticator
	Metrics  Metrics
	Logger   *slog.Logger
	Lifetime context.Context
}

type Router struct {
	cfg      config.Config
	svc      Services
	logger   *slog.Logger
	session  *realtime.Session
	lifetime context.Context
}

func NewRouter(cfg config.Config, svc Services) *Router {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lifetime := svc.Lifetime
	if lifetime == nil {
		lifetime = context.Background()
	}
	if svc.Auth == nil {
		svc.Auth = DevAuthenticator{}
	}
	rt := &Router{
		cfg:      cfg,
		svc:      svc,
		logger:   logger,
		lifetime: lifetime,
	}
	if svc.Registry != nil {
		rt.session = realtime.NewSession(svc.Registry, logger, cfg.WSSendBuffer)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLogMiddleware(rt.logger), middleware.Recoverer)
	if rt.svc.Metrics != nil {
		r.Use(rt.svc.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.svc.Metrics.Handler())
	}

	limited := rateLimitMiddleware(rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	admitUpload := func(next http.Handler) http.Handler {
		return backpressureMiddleware(next, rt.cfg.UploadMaxInFlight, time.Duration(rt.cfg.UploadQueueWaitMS)*time.Millisecond)
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/api/health", rt.health)
	r.With(limited).Post("/api/webhooks/analysis", rt.analysisWebhook)
	r.With(authMiddleware(rt.svc.Auth, true)).Get("/ws", rt.pushChannel)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware(rt.svc.Auth, false))

		r.Get("/api/document-types", rt.documentTypes)
		r.With(limited, admitUpload).Post("/api/documents/upload", rt.uploadDocument)
		r.Get("/api/documents", rt.listDocuments)
		r.Get("/api/documents/export.xlsx", rt.exportDocuments)
		r.Post("/api/documents/insights/batch", rt.scheduleInsightsBatch)
		r.Get("/api/documents/{id}", rt.getDocument)
		r.Get("/api/documents/{id}/insights", rt.getInsights)
		r.Post("/api/documents/{id}/generate-insights", rt.generateInsights)
		r.With(requireElevated).Get("/api/notifications/stats", rt.notificationStats)
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analysisHealth struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok"}
	if rt.svc.Analyzer != nil {
		valid, message := rt.svc.Analyzer.ValidateConfiguration()
		payload["analysis"] = analysisHealth{Valid: valid, Message: message}
	}
	if rt.svc.Insights != nil {
		payload["insights"] = rt.svc.Insights.BackendStatus()
	}
	if rt.svc.Registry != nil {
		payload["push"] = rt.svc.Registry.Stats()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) notificationStats(w http.ResponseWriter, _ *http.Request) {
	if rt.svc.Registry == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "push channel disabled"})
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Registry.Stats())
}
