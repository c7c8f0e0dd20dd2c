package openai

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	notAvailable  = "not available"
	summaryLimit  = 200
	unparsedNotes = "The model response could not be parsed as JSON"
)

// insightsWire is the JSON object the enrichment backend is asked to return.
type insightsWire struct {
	Summary           json.RawMessage `json:"resumo"`
	KeyPoints         json.RawMessage `json:"pontos_principais"`
	Risks             json.RawMessage `json:"riscos_identificados"`
	Recommendations   json.RawMessage `json:"recomendacoes"`
	NextSteps         json.RawMessage `json:"proximos_passos"`
	AttentionLevel    json.RawMessage `json:"nivel_atencao"`
	SuggestedDeadline json.RawMessage `json:"prazo_sugerido"`
	Notes             json.RawMessage `json:"observacoes"`
}

func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// parseInsights never fails: unparseable text yields a partial result built
// from the raw response.
func parseInsights(raw string, now time.Time) domain.Insights {
	text := stripCodeFence(raw)

	var wire insightsWire
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return domain.Insights{
			Summary:         truncate(text, summaryLimit),
			KeyPoints:       []string{"Analysis available in the summary"},
			Risks:           []string{},
			Recommendations: []string{"Review the document manually"},
			NextSteps:       []string{},
			AttentionLevel:  domain.AttentionMedium,
			Notes:           unparsedNotes,
			GeneratedAt:     now.UTC(),
			Source:          domain.InsightsSourceModelFallback,
		}
	}

	return domain.Insights{
		Summary:           requiredString(wire.Summary),
		KeyPoints:         requiredList(wire.KeyPoints),
		Risks:             optionalList(wire.Risks),
		Recommendations:   requiredList(wire.Recommendations),
		NextSteps:         optionalList(wire.NextSteps),
		AttentionLevel:    attentionLevel(wire.AttentionLevel),
		SuggestedDeadline: optionalString(wire.SuggestedDeadline),
		Notes:             optionalString(wire.Notes),
		GeneratedAt:       now.UTC(),
		Source:            domain.InsightsSourceModel,
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func optionalString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func requiredString(raw json.RawMessage) string {
	if s := optionalString(raw); s != "" {
		return s
	}
	return notAvailable
}

func optionalList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err == nil {
		return items
	}
	if s := optionalString(raw); s != "" {
		return []string{s}
	}
	return []string{}
}

func requiredList(raw json.RawMessage) []string {
	if items := optionalList(raw); len(items) > 0 {
		return items
	}
	return []string{notAvailable}
}

func attentionLevel(raw json.RawMessage) domain.AttentionLevel {
	switch strings.ToLower(optionalString(raw)) {
	case "baixo", "low":
		return domain.AttentionLow
	case "alto", "high":
		return domain.AttentionHigh
	default:
		return domain.AttentionMedium
	}
}
