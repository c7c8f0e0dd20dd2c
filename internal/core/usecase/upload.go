package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

const (
	sourceUpload  = "upload"
	sourceWebhook = "webhook"
)

// UploadUseCase owns the document lifecycle from upload to analysis outcome
// and hands successful documents over to insights generation.
type UploadUseCase struct {
	repo            ports.DocumentRepository
	storage         ports.ObjectStorage
	analyzer        ports.DocumentAnalyzer
	catalog         ports.DocumentCatalog
	dispatcher      ports.InsightsDispatcher
	insightsEnabled bool

	pusher   pusher
	observer ports.PipelineObserver
	now      func() time.Time
}

func NewUploadUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	analyzer ports.DocumentAnalyzer,
	catalog ports.DocumentCatalog,
	notifier ports.Notifier,
	dispatcher ports.InsightsDispatcher,
	observer ports.PipelineObserver,
	insightsEnabled bool,
) *UploadUseCase {
	observer = observerOrNoop(observer)
	return &UploadUseCase{
		repo:            repo,
		storage:         storage,
		analyzer:        analyzer,
		catalog:         catalog,
		dispatcher:      dispatcher,
		insightsEnabled: insightsEnabled,
		pusher:          pusher{notifier: notifier, observer: observer},
		observer:        observer,
		now:             time.Now,
	}
}

func (uc *UploadUseCase) Upload(
	ctx context.Context,
	ownerID, filename, documentType string,
	body io.Reader,
) (*domain.UploadOutcome, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "upload document", fmt.Errorf("missing owner"))
	}
	documentType = strings.ToLower(strings.TrimSpace(documentType))
	if documentType == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("document_type is required"))
	}
	ext := fileExtension(filename)
	if !uc.catalog.IsAllowedExtension(ext) {
		return nil, domain.WrapError(
			domain.ErrUnsupportedFileType,
			"upload document",
			fmt.Errorf("extension %q not allowed, expected one of %s", ext, strings.Join(uc.catalog.AllowedExtensions(), ", ")),
		)
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		ID:               id,
		OwnerID:          ownerID,
		DocumentType:     documentType,
		OriginalFilename: filename,
		StoragePath:      storageKey,
		Status:           domain.StatusProcessing,
		InsightsStatus:   domain.InsightsPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// From here on the record exists, so the pipeline runs to a terminal
	// status even if the uploading client goes away.
	work := context.WithoutCancel(ctx)
	if err := uc.repo.Create(work, doc); err != nil {
		if delErr := uc.storage.Delete(work, storageKey); delErr != nil {
			slog.Warn("orphaned_upload", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("create document record: %w", err)
	}
	uc.pusher.documentStatus(work, doc, domain.MessageDocumentProcessing, sourceUpload)

	result := uc.analyzer.Process(work, domain.AnalysisRequest{
		DocumentID:   id,
		DocumentType: documentType,
		Filename:     filename,
		StoragePath:  storageKey,
	})
	uc.observer.ObserveAnalysis(result)

	updated, err := uc.repo.ApplyAnalysis(work, id, result)
	if err != nil {
		return nil, fmt.Errorf("apply analysis result: %w", err)
	}
	slog.Info("document_analyzed",
		"document_id", id,
		"status", updated.Status,
		"backend", result.Backend,
		"processing_time_seconds", result.ProcessingTimeSeconds,
	)
	uc.pusher.documentStatus(work, updated, domain.MessageDocumentProcessed, sourceUpload)

	return &domain.UploadOutcome{
		Document:           updated,
		InsightsGeneration: uc.scheduleInsights(work, updated),
	}, nil
}

func (uc *UploadUseCase) scheduleInsights(ctx context.Context, doc *domain.Document) string {
	if doc.Status != domain.StatusComplete {
		return domain.InsightsGenerationSkipped
	}
	if !uc.insightsEnabled || uc.dispatcher == nil {
		return domain.InsightsGenerationDisabled
	}

	if err := uc.repo.MarkInsightsGenerating(ctx, doc.ID); err != nil {
		slog.Warn("insights_schedule_failed", "document_id", doc.ID, "error", err)
		return domain.InsightsGenerationSkipped
	}
	if err := uc.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		slog.Error("insights_dispatch_failed", "document_id", doc.ID, "error", err)
		if markErr := uc.repo.MarkInsightsFailed(ctx, doc.ID, err.Error()); markErr != nil {
			slog.Error("insights_mark_failed", "document_id", doc.ID, "error", markErr)
		}
		return domain.InsightsGenerationSkipped
	}
	doc.InsightsStatus = domain.InsightsGenerating
	return domain.InsightsGenerationStarted
}

func fileExtension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(filename)), "."))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
