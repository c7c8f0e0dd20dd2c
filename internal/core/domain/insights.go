package domain

import "time"

type AttentionLevel string

const (
	AttentionLow    AttentionLevel = "low"
	AttentionMedium AttentionLevel = "medium"
	AttentionHigh   AttentionLevel = "high"
)

const (
	InsightsSourceModel         = "openai"
	InsightsSourceModelFallback = "openai_unparsed"
	InsightsSourceRules         = "rule_based"
)

// Insights is the enrichment produced for a completed document.
type Insights struct {
	Summary           string         `json:"summary"`
	KeyPoints         []string       `json:"key_points"`
	Risks             []string       `json:"risks"`
	Recommendations   []string       `json:"recommendations"`
	NextSteps         []string       `json:"next_steps"`
	AttentionLevel    AttentionLevel `json:"attention_level"`
	SuggestedDeadline string         `json:"suggested_deadline,omitempty"`
	Notes             string         `json:"notes,omitempty"`
	GeneratedAt       time.Time      `json:"generated_at"`
	ModelUsed         string         `json:"model_used"`
	Source            string         `json:"source"`
}

// InsightsRequest is the input of a single enrichment pass.
type InsightsRequest struct {
	DocumentID      string
	DocumentType    string
	Filename        string
	ExtractedData   map[string]any
	ConfidenceScore *float64
}

// InsightsBackendStatus describes how the enrichment backend is configured.
type InsightsBackendStatus struct {
	Enabled          bool    `json:"enabled"`
	APIKeyConfigured bool    `json:"api_key_configured"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TimeoutSeconds   int     `json:"timeout_seconds"`
}
