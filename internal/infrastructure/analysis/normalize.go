package analysis

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const defaultFailureMessage = "analysis backend reported a failure"

// normalizeResponse maps a backend payload of any shape onto the canonical
// result. Missing fields fall back to neutral defaults.
func normalizeResponse(raw map[string]any, documentID string, now time.Time) domain.AnalysisResult {
	result := domain.AnalysisResult{
		Status:             normalizeStatus(raw["status"]),
		ExtractedData:      map[string]any{},
		ConfidenceScore:    clampConfidence(floatValue(raw["confidence_score"])),
		ExternalDocumentID: stringValue(raw["document_id"], "analysis_"+documentID),
		ExternalRequestID:  stringValue(raw["request_id"], fmt.Sprintf("req_%d", now.Unix())),
		ExternalVersion:    stringValue(raw["model_version"], "unknown"),
		ErrorMessage:       stringValue(raw["error_message"], ""),
		Backend:            BackendRemote,
	}
	if data, ok := raw["extracted_data"].(map[string]any); ok {
		result.ExtractedData = data
	}
	if result.Status == domain.StatusFailed && result.ErrorMessage == "" {
		result.ErrorMessage = defaultFailureMessage
	}
	return result
}

func normalizeStatus(v any) domain.DocumentStatus {
	s, _ := v.(string)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "failed", "error":
		return domain.StatusFailed
	case "processing", "pending", "queued":
		return domain.StatusProcessing
	default:
		return domain.StatusComplete
	}
}

func stringValue(v any, fallback string) string {
	switch typed := v.(type) {
	case string:
		if strings.TrimSpace(typed) != "" {
			return typed
		}
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	}
	return fallback
}

func floatValue(v any) float64 {
	switch typed := v.(type) {
	case float64:
		return typed
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
