package analysis

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const (
	BackendRemote   = "remote"
	BackendFallback = "fallback"

	versionError = "error"
)

var placeholderKeys = map[string]struct{}{
	"changeme":              {},
	"your-analysis-api-key": {},
	"your_analysis_api_key": {},
}

type Options struct {
	BaseURL    string
	APIKey     string
	ClientID   string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	BreakerEnabled bool
	Executor       *resilience.Executor
	Fallback       *FallbackGenerator
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client calls the external analysis backend. When no usable credential is
// configured it delegates to the local fallback generator.
type Client struct {
	baseURL    string
	apiKey     string
	clientID   string
	userAgent  string
	httpClient *http.Client
	executor   *resilience.Executor
	fallback   *FallbackGenerator
	storage    ports.ObjectStorage
	logger     *slog.Logger
	now        func() time.Time
}

func New(storage ports.ObjectStorage, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = "document-intake"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "document-intake/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Fallback == nil {
		opts.Fallback = NewFallbackGenerator(time.Second)
	}
	if opts.Executor == nil {
		policy := resilience.AnalysisPolicy(opts.MaxRetries, opts.RetryDelay, opts.BreakerEnabled)
		opts.Executor = resilience.NewExecutor(policy, resilience.WithLogger(opts.Logger))
	}

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		clientID:   opts.ClientID,
		userAgent:  opts.UserAgent,
		httpClient: opts.HTTPClient,
		executor:   opts.Executor,
		fallback:   opts.Fallback,
		storage:    storage,
		logger:     opts.Logger,
		now:        time.Now,
	}
}

func (c *Client) configured() bool {
	if c.baseURL == "" || c.apiKey == "" {
		return false
	}
	_, placeholder := placeholderKeys[strings.ToLower(c.apiKey)]
	return !placeholder
}

// ValidateConfiguration reports whether the remote backend will be used.
func (c *Client) ValidateConfiguration() (bool, string) {
	switch {
	case c.baseURL == "":
		return false, "ANALYSIS_API_URL is not configured"
	case c.apiKey == "":
		return false, "ANALYSIS_API_KEY is not configured, using local fallback"
	case !c.configured():
		return false, "ANALYSIS_API_KEY holds a placeholder value, using local fallback"
	default:
		return true, "configuration valid"
	}
}

// Process never returns an error: every failure becomes a failed result and
// the elapsed wall-clock time is always recorded.
func (c *Client) Process(ctx context.Context, req domain.AnalysisRequest) (result domain.AnalysisResult) {
	start := c.now()
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("analysis_panic", "document_id", req.DocumentID, "panic", rec)
			result = failedResult(req, fmt.Sprintf("analysis aborted: %v", rec))
		}
		result.ProcessingTimeSeconds = roundSeconds(c.now().Sub(start))
	}()

	if !c.configured() {
		c.logger.Info("analysis_fallback", "document_id", req.DocumentID, "document_type", req.DocumentType)
		content, err := c.readContent(ctx, req.StoragePath)
		if err != nil {
			c.logger.Warn("analysis_fallback_read_failed", "document_id", req.DocumentID, "error", err)
		}
		return c.fallback.Generate(ctx, req, content)
	}

	result, err := c.processRemote(ctx, req)
	if err != nil {
		message := describeFailure(err)
		c.logger.Error("analysis_failed", "document_id", req.DocumentID, "error", message)
		return failedResult(req, message)
	}
	return result
}

func (c *Client) processRemote(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	content, err := c.readContent(ctx, req.StoragePath)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	body, err := buildMultipart(req.Filename, content, map[string]string{
		"document_type": req.DocumentType,
		"document_id":   req.DocumentID,
		"client_id":     c.clientID,
	})
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	var raw map[string]any
	err = c.executor.Execute(ctx, "analysis_process", func(callCtx context.Context) error {
		raw = nil
		return c.postMultipart(callCtx, body, &raw)
	}, classifyAnalysisError)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return normalizeResponse(raw, req.DocumentID, c.now()), nil
}

func (c *Client) readContent(ctx context.Context, key string) ([]byte, error) {
	if c.storage == nil || key == "" {
		return nil, fmt.Errorf("no stored file for analysis")
	}
	rc, err := c.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return content, nil
}

func failedResult(req domain.AnalysisRequest, message string) domain.AnalysisResult {
	return domain.AnalysisResult{
		Status:             domain.StatusFailed,
		ExtractedData:      map[string]any{},
		ConfidenceScore:    0,
		ExternalDocumentID: req.DocumentID,
		ExternalVersion:    versionError,
		ErrorMessage:       message,
		Backend:            BackendRemote,
	}
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
