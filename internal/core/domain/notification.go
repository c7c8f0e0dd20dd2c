package domain

import (
	"fmt"
	"time"
)

const (
	MessageConnectionEstablished = "connection_established"
	MessageDocumentProcessing    = "document_processing"
	MessageDocumentProcessed     = "document_processed"
	MessageDocumentUpdated       = "document_updated"
	MessageInsightsReady         = "insights_ready"
	MessageInsightsFailed        = "insights_failed"
	MessagePong                  = "pong"
	MessageStats                 = "stats"
)

// Notification is the server-to-client envelope of the push channel.
type Notification struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewNotification(kind string, data any, message string) Notification {
	return Notification{
		Type:      kind,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// ConnectionStats summarizes the live push channels.
type ConnectionStats struct {
	TotalUsersConnected          int     `json:"total_users_connected"`
	TotalConnections             int     `json:"total_connections"`
	UsersWithMultipleConnections int     `json:"users_with_multiple_connections"`
	AverageConnectionsPerUser    float64 `json:"average_connections_per_user"`
}

// DocumentEvent is the data payload of document status notifications.
type DocumentEvent struct {
	DocumentID            string         `json:"document_id"`
	OriginalFilename      string         `json:"original_filename"`
	Status                DocumentStatus `json:"status"`
	ConfidenceScore       *float64       `json:"confidence_score,omitempty"`
	ProcessingTimeSeconds *float64       `json:"processing_time,omitempty"`
	Source                string         `json:"source"`
}

func DocumentEventFrom(doc *Document, source string) DocumentEvent {
	return DocumentEvent{
		DocumentID:            doc.ID,
		OriginalFilename:      doc.OriginalFilename,
		Status:                doc.Status,
		ConfidenceScore:       doc.ConfidenceScore,
		ProcessingTimeSeconds: doc.ProcessingTimeSeconds,
		Source:                source,
	}
}

// StatusMessage renders the human readable text pushed with a status change.
func StatusMessage(filename string, status DocumentStatus, confidence *float64) string {
	if filename == "" {
		filename = "document"
	}
	switch status {
	case StatusComplete:
		if confidence != nil && *confidence > 0 {
			return fmt.Sprintf("✅ %s processed successfully! Confidence: %.1f%%", filename, *confidence*100)
		}
		return fmt.Sprintf("✅ %s processed successfully!", filename)
	case StatusFailed:
		return fmt.Sprintf("❌ Failed to process %s. Check the details.", filename)
	case StatusProcessing:
		return fmt.Sprintf("🔄 %s is being processed...", filename)
	default:
		return fmt.Sprintf("📄 Status of %s updated: %s", filename, status)
	}
}
