package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/resilience"
)

const placeholderKey = "sk-xxxxx-your-openai-api-key-here"

type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Enabled     bool

	HTTPClient *http.Client
	Executor   *resilience.Executor
	Logger     *slog.Logger
}

// Generator produces document insights through a chat completions backend
// and degrades to rule-based insights whenever that backend is unusable.
type Generator struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	enabled     bool

	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
	now        func() time.Time
}

func New(opts Options) *Generator {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.EnrichmentPolicy(true), resilience.WithLogger(opts.Logger))
	}

	g := &Generator{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
		httpClient:  opts.HTTPClient,
		executor:    opts.Executor,
		logger:      opts.Logger,
		now:         time.Now,
	}
	g.enabled = opts.Enabled && g.keyConfigured()
	if opts.Enabled && !g.enabled {
		g.logger.Warn("insights_backend_unconfigured", "reason", "OPENAI_API_KEY missing or placeholder")
	}
	return g
}

func (g *Generator) keyConfigured() bool {
	return g.apiKey != "" && g.apiKey != placeholderKey
}

func (g *Generator) Status() domain.InsightsBackendStatus {
	return domain.InsightsBackendStatus{
		Enabled:          g.enabled,
		APIKeyConfigured: g.keyConfigured(),
		Model:            g.model,
		Temperature:      g.temperature,
		MaxTokens:        g.maxTokens,
		TimeoutSeconds:   int(g.timeout / time.Second),
	}
}

// Generate always returns insights; backend failures fall back to rules.
func (g *Generator) Generate(ctx context.Context, req domain.InsightsRequest) domain.Insights {
	if !g.enabled {
		return RuleBased(req, g.now())
	}

	content, err := g.complete(ctx, buildInsightsPrompt(req))
	if err != nil {
		g.logger.Error("insights_backend_failed", "document_id", req.DocumentID, "error", err)
		return RuleBased(req, g.now())
	}

	insights := parseInsights(content, g.now())
	insights.ModelUsed = g.model
	g.logger.Info("insights_generated", "document_id", req.DocumentID, "source", insights.Source)
	return insights
}

func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	request := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	var response chatResponse
	err := g.executor.Execute(callCtx, "openai_chat", func(execCtx context.Context) error {
		response = chatResponse{}
		return g.postJSON(execCtx, "/chat/completions", request, &response, "chat")
	}, classifyOpenAIError)
	if err != nil {
		return "", err
	}
	if response.Error != nil {
		return "", fmt.Errorf("openai error: %s (%s)", response.Error.Message, response.Error.Type)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai response missing choices")
	}
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai response empty content")
	}
	return content, nil
}
