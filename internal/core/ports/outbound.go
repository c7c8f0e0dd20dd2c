package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// DocumentRepository persists and reads document state. Every mutation is a
// single atomic update scoped to one record.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	ApplyAnalysis(ctx context.Context, id string, result domain.AnalysisResult) (*domain.Document, error)
	ApplyWebhook(ctx context.Context, update domain.WebhookUpdate) (*domain.Document, error)
	MarkInsightsGenerating(ctx context.Context, id string) error
	MarkInsightsFailed(ctx context.Context, id string, errMessage string) error
	SaveInsights(ctx context.Context, id string, insights domain.Insights) (*domain.Document, error)
	ListMissingInsights(ctx context.Context, ownerID string, limit int) ([]domain.Document, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object; a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// DocumentAnalyzer extracts structured data from a stored document.
// Process never fails; problems are reported through a failed result.
type DocumentAnalyzer interface {
	Process(ctx context.Context, req domain.AnalysisRequest) domain.AnalysisResult
	ValidateConfiguration() (bool, string)
}

// InsightsGenerator summarizes extracted data. Generate always returns a value.
type InsightsGenerator interface {
	Generate(ctx context.Context, req domain.InsightsRequest) domain.Insights
	Status() domain.InsightsBackendStatus
}

// Notifier pushes a message to every live channel of a user, best effort.
type Notifier interface {
	SendToUser(ctx context.Context, userID string, msg domain.Notification)
}

// InsightsDispatcher schedules enrichment of a document out of band.
type InsightsDispatcher interface {
	Dispatch(ctx context.Context, documentID string) error
}

// MessageQueue carries insights jobs and notifications between processes.
type MessageQueue interface {
	PublishInsightsJob(ctx context.Context, documentID string) error
	SubscribeInsightsJobs(ctx context.Context, handler func(context.Context, string) error) error
	PublishNotification(ctx context.Context, userID string, msg domain.Notification) error
	SubscribeNotifications(ctx context.Context, handler func(context.Context, string, domain.Notification) error) error
}

// DocumentCatalog exposes supported document types and file extensions.
type DocumentCatalog interface {
	Types() []domain.DocumentType
	IsAllowedExtension(ext string) bool
	AllowedExtensions() []string
}

// WebhookGuard authenticates and decodes analysis backend callbacks.
type WebhookGuard interface {
	CheckIP(remoteIP string) error
	VerifySignature(body []byte, signature string) error
	ParsePayload(body []byte) (domain.WebhookUpdate, error)
}

// DocumentExporter renders a list of documents into a downloadable file.
type DocumentExporter interface {
	ContentType() string
	Export(w io.Writer, docs []domain.Document) error
}

// Channel is one live push connection.
type Channel interface {
	ID() string
	Send(ctx context.Context, msg domain.Notification) error
	Close() error
}

// ConnectionRegistry tracks live push channels per user.
type ConnectionRegistry interface {
	Notifier
	Connect(ctx context.Context, userID string, ch Channel)
	Disconnect(userID string, ch Channel)
	Broadcast(ctx context.Context, msg domain.Notification)
	Stats() domain.ConnectionStats
}

// PipelineObserver receives pipeline measurements.
type PipelineObserver interface {
	ObserveAnalysis(result domain.AnalysisResult)
	ObserveInsights(status string, duration time.Duration)
	ObserveNotification(kind string)
}
