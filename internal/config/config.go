package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	APIPort                string
	LogLevel               string
	Environment            string
	ShutdownTimeoutSeconds int
	MaxUploadMB            int

	PostgresDSN string

	StorageBackend string
	StoragePath    string
	S3Bucket       string
	S3Prefix       string
	AWSRegion      string

	AnalysisAPIURL            string
	AnalysisAPIKey            string
	AnalysisClientID          string
	AnalysisTimeoutSeconds    int
	AnalysisMaxRetries        int
	AnalysisRetryDelaySeconds int
	AnalysisFallbackDelayMS   int
	AnalysisBreakerEnabled    bool

	OpenAIAPIKey           string
	OpenAIBaseURL          string
	InsightsModel          string
	InsightsTemperature    float64
	InsightsMaxTokens      int
	InsightsTimeoutSeconds int
	InsightsEnabled        bool
	InsightsBatchLimit     int
	InsightsDispatch       string

	WebhookSecret     string
	WebhookAllowedIPs []string

	AuthJWTSecret string
	AuthJWKSURL   string
	AuthIssuer    string

	NATSURL             string
	NATSInsightsSubject string
	NATSNotifySubject   string

	WSAllowedOrigins []string
	WSSendBuffer     int

	RateLimitRPS   float64
	RateLimitBurst int

	UploadMaxInFlight int
	UploadQueueWaitMS int

	DocumentCatalogPath string

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:                mustEnv("API_PORT", "8080"),
		LogLevel:               mustEnv("LOG_LEVEL", "info"),
		Environment:            strings.ToLower(mustEnv("ENVIRONMENT", EnvDevelopment)),
		ShutdownTimeoutSeconds: mustEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10),
		MaxUploadMB:            mustEnvInt("MAX_UPLOAD_MB", 20),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		StorageBackend: strings.ToLower(mustEnv("STORAGE_BACKEND", "local")),
		StoragePath:    mustEnv("STORAGE_PATH", "./data/uploads"),
		S3Bucket:       mustEnv("S3_BUCKET", ""),
		S3Prefix:       mustEnv("S3_PREFIX", "documents"),
		AWSRegion:      mustEnv("AWS_REGION", "us-east-1"),

		AnalysisAPIURL:            mustEnv("ANALYSIS_API_URL", "https://api.analysis.example.com/v1"),
		AnalysisAPIKey:            mustEnv("ANALYSIS_API_KEY", ""),
		AnalysisClientID:          mustEnv("ANALYSIS_CLIENT_ID", "document-intake"),
		AnalysisTimeoutSeconds:    mustEnvInt("ANALYSIS_TIMEOUT_SECONDS", 30),
		AnalysisMaxRetries:        mustEnvInt("ANALYSIS_MAX_RETRIES", 3),
		AnalysisRetryDelaySeconds: mustEnvInt("ANALYSIS_RETRY_DELAY_SECONDS", 2),
		AnalysisFallbackDelayMS:   mustEnvInt("ANALYSIS_FALLBACK_DELAY_MS", 1000),
		AnalysisBreakerEnabled:    mustEnvBool("ANALYSIS_BREAKER_ENABLED", true),

		OpenAIAPIKey:           mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:          mustEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		InsightsModel:          mustEnv("INSIGHTS_MODEL", "gpt-4"),
		InsightsTemperature:    mustEnvFloat("INSIGHTS_TEMPERATURE", 0.4),
		InsightsMaxTokens:      mustEnvInt("INSIGHTS_MAX_TOKENS", 1000),
		InsightsTimeoutSeconds: mustEnvInt("INSIGHTS_TIMEOUT_SECONDS", 30),
		InsightsEnabled:        mustEnvBool("ENABLE_AI_INSIGHTS", true),
		InsightsBatchLimit:     mustEnvInt("INSIGHTS_BATCH_LIMIT", 5),
		InsightsDispatch:       strings.ToLower(mustEnv("INSIGHTS_DISPATCH", "local")),

		WebhookSecret:     mustEnv("WEBHOOK_SECRET", ""),
		WebhookAllowedIPs: mustEnvList("WEBHOOK_ALLOWED_IPS", "127.0.0.1,::1"),

		AuthJWTSecret: mustEnv("AUTH_JWT_SECRET", ""),
		AuthJWKSURL:   mustEnv("AUTH_JWKS_URL", ""),
		AuthIssuer:    mustEnv("AUTH_ISSUER", ""),

		NATSURL:             mustEnv("NATS_URL", "nats://localhost:4222"),
		NATSInsightsSubject: mustEnv("NATS_INSIGHTS_SUBJECT", "documents.insights"),
		NATSNotifySubject:   mustEnv("NATS_NOTIFY_SUBJECT", "documents.notify"),

		WSAllowedOrigins: mustEnvList("WS_ALLOWED_ORIGINS", ""),
		WSSendBuffer:     mustEnvInt("WS_SEND_BUFFER", 16),

		RateLimitRPS:   mustEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: mustEnvInt("RATE_LIMIT_BURST", 10),

		UploadMaxInFlight: mustEnvInt("UPLOAD_MAX_IN_FLIGHT", 32),
		UploadQueueWaitMS: mustEnvInt("UPLOAD_QUEUE_WAIT_MS", 500),

		DocumentCatalogPath: mustEnv("DOCUMENT_CATALOG_PATH", ""),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

func (c Config) IsDevelopment() bool {
	return c.Environment != EnvProduction
}

// Validate rejects settings that cannot run in the configured environment.
func (c Config) Validate() error {
	var errs []error
	if !c.IsDevelopment() {
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required in production"))
		}
		if c.WebhookSecret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required in production"))
		}
		if c.AuthJWTSecret == "" && c.AuthJWKSURL == "" {
			errs = append(errs, errors.New("AUTH_JWT_SECRET or AUTH_JWKS_URL is required in production"))
		}
	}
	switch c.StorageBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend))
	}
	switch c.InsightsDispatch {
	case "local", "nats":
	default:
		errs = append(errs, fmt.Errorf("unsupported INSIGHTS_DISPATCH %q", c.InsightsDispatch))
	}
	return errors.Join(errs...)
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key, fallback string) []string {
	raw := mustEnv(key, fallback)
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
