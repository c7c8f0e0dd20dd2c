package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const systemInstruction = "You are an analyst specialized in corporate documents. Always answer with valid JSON only."

func confidenceDescriptor(score *float64) string {
	if score == nil || *score <= 0 {
		return ""
	}
	pct := *score * 100
	switch {
	case pct >= 90:
		return fmt.Sprintf("The data was extracted with high confidence (%.1f%%).", pct)
	case pct >= 70:
		return fmt.Sprintf("The data was extracted with moderate confidence (%.1f%%). A review is recommended.", pct)
	default:
		return fmt.Sprintf("The data was extracted with low confidence (%.1f%%). Manual verification is required.", pct)
	}
}

func buildInsightsPrompt(req domain.InsightsRequest) string {
	data, err := json.MarshalIndent(req.ExtractedData, "", "  ")
	if err != nil {
		data = []byte("{}")
	}

	var b strings.Builder
	b.WriteString("Analyze the data extracted from the document below and provide strategic insights.\n\n")
	fmt.Fprintf(&b, "DOCUMENT: %s\n", req.Filename)
	fmt.Fprintf(&b, "TYPE: %s\n", req.DocumentType)
	if desc := confidenceDescriptor(req.ConfidenceScore); desc != "" {
		b.WriteString(desc)
		b.WriteString("\n")
	}
	b.WriteString("\nEXTRACTED DATA:\n")
	b.Write(data)
	b.WriteString(`

Answer with a JSON object with exactly these fields:

{
  "resumo": "Executive summary of the document in 2-3 sentences",
  "pontos_principais": ["3-5 most important points"],
  "riscos_identificados": ["Risks or alerts found"],
  "recomendacoes": ["2-4 recommended actions"],
  "proximos_passos": ["Suggested next steps"],
  "nivel_atencao": "baixo|medio|alto",
  "prazo_sugerido": "Suggested deadline, e.g. '30 days' or 'immediate'",
  "observacoes": "Additional relevant notes"
}

Be objective and practical. Use professional but accessible language.
`)
	return b.String()
}
