package domain

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusComplete   DocumentStatus = "complete"
	StatusFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is a final analysis outcome.
func (s DocumentStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

type InsightsStatus string

const (
	InsightsPending    InsightsStatus = "pending"
	InsightsGenerating InsightsStatus = "generating"
	InsightsComplete   InsightsStatus = "complete"
	InsightsError      InsightsStatus = "error"
)

// Document is the persisted record tracking one uploaded file.
//
// ExtractedData is non-nil exactly when Status is complete and ErrorMessage is
// non-empty exactly when Status is failed.
type Document struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"owner_id"`
	DocumentType     string         `json:"document_type"`
	OriginalFilename string         `json:"original_filename"`
	StoragePath      string         `json:"storage_path"`
	Status           DocumentStatus `json:"status"`

	ExtractedData         map[string]any `json:"extracted_data"`
	ConfidenceScore       *float64       `json:"confidence_score"`
	ExternalDocumentID    string         `json:"external_document_id,omitempty"`
	ExternalRequestID     string         `json:"external_request_id,omitempty"`
	ExternalVersion       string         `json:"external_version,omitempty"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	ProcessingTimeSeconds *float64       `json:"processing_time_seconds"`

	WebhookReceived   bool       `json:"webhook_received"`
	WebhookReceivedAt *time.Time `json:"webhook_received_at,omitempty"`

	InsightsStatus      InsightsStatus `json:"insights_status"`
	Insights            *Insights      `json:"insights,omitempty"`
	InsightsSummary     string         `json:"summary,omitempty"`
	InsightsModel       string         `json:"model_used,omitempty"`
	InsightsGeneratedAt *time.Time     `json:"generated_at,omitempty"`
	InsightsError       string         `json:"insights_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnalysisResult is the normalized outcome of one analysis backend call.
type AnalysisResult struct {
	Status                DocumentStatus `json:"status"`
	ExtractedData         map[string]any `json:"extracted_data"`
	ConfidenceScore       float64        `json:"confidence_score"`
	ExternalDocumentID    string         `json:"external_document_id"`
	ExternalRequestID     string         `json:"external_request_id"`
	ExternalVersion       string         `json:"external_version"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	Backend               string         `json:"backend"`
}

// AnalysisRequest identifies the stored file the analysis backend should read.
type AnalysisRequest struct {
	DocumentID   string
	DocumentType string
	Filename     string
	StoragePath  string
}

// WebhookUpdate carries the fields an out-of-band completion callback may set.
type WebhookUpdate struct {
	DocumentID            string
	Status                DocumentStatus
	ExtractedData         map[string]any
	ConfidenceScore       *float64
	ExternalDocumentID    string
	ExternalRequestID     string
	ExternalVersion       string
	ProcessingTimeSeconds *float64
	ErrorMessage          string
	ReceivedAt            time.Time
}

// DefaultWebhookFailure is recorded when a failed callback carries no message.
const DefaultWebhookFailure = "analysis backend reported a failure without details"
