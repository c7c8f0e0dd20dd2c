package openai

import (
	"fmt"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const ruleModel = "rule-based"

// RuleBased builds insights from the document type and extracted fields only.
func RuleBased(req domain.InsightsRequest, now time.Time) domain.Insights {
	fields := fieldCount(req.ExtractedData)
	insights := domain.Insights{
		Summary:           fmt.Sprintf("Document %s processed: %s", req.DocumentType, req.Filename),
		Risks:             []string{},
		Recommendations:   []string{"Review extracted data", "Validate important information"},
		NextSteps:         []string{"Analyze the document manually"},
		AttentionLevel:    domain.AttentionMedium,
		SuggestedDeadline: "7 days",
		Notes:             "Insights generated automatically without the language model",
		GeneratedAt:       now.UTC(),
		ModelUsed:         ruleModel,
		Source:            domain.InsightsSourceRules,
	}

	switch req.DocumentType {
	case "contract":
		insights.KeyPoints = []string{"Contract identified", fmt.Sprintf("Extracted data: %d fields", fields)}
		if v, ok := req.ExtractedData["cnpj"]; ok {
			insights.KeyPoints = append(insights.KeyPoints, fmt.Sprintf("CNPJ: %v", v))
		}
		if v, ok := req.ExtractedData["contract_value"]; ok {
			insights.KeyPoints = append(insights.KeyPoints, fmt.Sprintf("Value: %v", v))
		}
	case "invoice":
		insights.KeyPoints = []string{"Invoice processed", fmt.Sprintf("Extracted data: %d fields", fields)}
		if v, ok := req.ExtractedData["invoice_number"]; ok {
			insights.KeyPoints = append(insights.KeyPoints, fmt.Sprintf("Number: %v", v))
		}
	case "identity":
		insights.KeyPoints = []string{"Identity document processed", "Verify the extracted personal data"}
		insights.AttentionLevel = domain.AttentionHigh
		insights.Recommendations = append(insights.Recommendations, "Protect personal data in line with data protection law")
	default:
		insights.KeyPoints = []string{
			fmt.Sprintf("Document type '%s' processed", req.DocumentType),
			fmt.Sprintf("%d fields extracted", fields),
		}
	}
	return insights
}

func fieldCount(data map[string]any) int {
	n := len(data)
	if _, ok := data["metadata"]; ok {
		n--
	}
	return n
}
