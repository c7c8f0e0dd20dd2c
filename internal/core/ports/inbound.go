package ports

import (
	"context"
	"io"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// DocumentUploader is the inbound contract for the upload lifecycle.
type DocumentUploader interface {
	Upload(ctx context.Context, ownerID, filename, documentType string, body io.Reader) (*domain.UploadOutcome, error)
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetForPrincipal(ctx context.Context, principal domain.Principal, id string) (*domain.Document, error)
	ListForPrincipal(ctx context.Context, principal domain.Principal) ([]domain.Document, error)
	Export(ctx context.Context, principal domain.Principal, w io.Writer) error
	ExportContentType() string
}

// InsightsService is the inbound contract for on-demand and batch enrichment.
type InsightsService interface {
	GenerateForDocument(ctx context.Context, documentID string) error
	GenerateNow(ctx context.Context, principal domain.Principal, documentID string) (*domain.Document, error)
	ScheduleBatch(ctx context.Context, principal domain.Principal, limit int) (*domain.BatchOutcome, error)
	BackendStatus() domain.InsightsBackendStatus
}

// WebhookIntake validates and applies analysis backend callbacks.
type WebhookIntake interface {
	Handle(ctx context.Context, remoteIP, signature string, body []byte) (*domain.Document, error)
}
