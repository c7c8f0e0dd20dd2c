package domain

// DocumentType describes one entry of the supported document type catalog.
type DocumentType struct {
	Key              string  `json:"key" yaml:"key"`
	Name             string  `json:"name" yaml:"name"`
	Description      string  `json:"description" yaml:"description"`
	EstimatedSeconds float64 `json:"estimated_seconds" yaml:"estimated_seconds"`
}

const (
	InsightsGenerationStarted  = "started"
	InsightsGenerationDisabled = "disabled"
	InsightsGenerationSkipped  = "skipped"
)

// UploadOutcome is the synchronous result of an upload.
type UploadOutcome struct {
	Document           *Document
	InsightsGeneration string
}

// BatchOutcome reports what a bounded insights batch run scheduled.
type BatchOutcome struct {
	Scheduled []string `json:"scheduled"`
	Limit     int      `json:"limit"`
	Remaining bool     `json:"remaining"`
}
