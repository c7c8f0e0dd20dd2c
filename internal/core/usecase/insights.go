package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// InsightsReadyEvent is the data payload of insights notifications.
type InsightsReadyEvent struct {
	DocumentID       string                `json:"document_id"`
	OriginalFilename string                `json:"original_filename"`
	InsightsStatus   domain.InsightsStatus `json:"insights_status"`
	Summary          string                `json:"summary,omitempty"`
	AttentionLevel   domain.AttentionLevel `json:"attention_level,omitempty"`
	Error            string                `json:"error,omitempty"`
}

type InsightsUseCase struct {
	repo       ports.DocumentRepository
	generator  ports.InsightsGenerator
	dispatcher ports.InsightsDispatcher
	batchLimit int

	pusher   pusher
	observer ports.PipelineObserver
}

func NewInsightsUseCase(
	repo ports.DocumentRepository,
	generator ports.InsightsGenerator,
	notifier ports.Notifier,
	observer ports.PipelineObserver,
	batchLimit int,
) *InsightsUseCase {
	if batchLimit <= 0 {
		batchLimit = 5
	}
	observer = observerOrNoop(observer)
	return &InsightsUseCase{
		repo:       repo,
		generator:  generator,
		batchLimit: batchLimit,
		pusher:     pusher{notifier: notifier, observer: observer},
		observer:   observer,
	}
}

// SetDispatcher attaches the dispatcher used by batch scheduling. The local
// dispatcher calls back into this use case, so it is wired after construction.
func (uc *InsightsUseCase) SetDispatcher(dispatcher ports.InsightsDispatcher) {
	uc.dispatcher = dispatcher
}

func (uc *InsightsUseCase) BackendStatus() domain.InsightsBackendStatus {
	return uc.generator.Status()
}

// GenerateForDocument runs one enrichment pass and records the outcome on the
// document. Failures end in insights_status=error, never in a partial write.
func (uc *InsightsUseCase) GenerateForDocument(ctx context.Context, documentID string) (err error) {
	start := time.Now()
	var (
		doc       *domain.Document
		generated bool
	)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("insights generation panic: %v", rec)
		}
		if err == nil {
			uc.observer.ObserveInsights(string(domain.InsightsComplete), time.Since(start))
			return
		}
		uc.observer.ObserveInsights(string(domain.InsightsError), time.Since(start))
		uc.recordFailure(context.WithoutCancel(ctx), documentID, doc, generated, err)
	}()

	doc, err = uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status != domain.StatusComplete {
		return domain.WrapError(domain.ErrConflict, "generate insights", fmt.Errorf("document status is %s", doc.Status))
	}

	insights := uc.generator.Generate(ctx, domain.InsightsRequest{
		DocumentID:      doc.ID,
		DocumentType:    doc.DocumentType,
		Filename:        doc.OriginalFilename,
		ExtractedData:   doc.ExtractedData,
		ConfidenceScore: doc.ConfidenceScore,
	})
	generated = true

	saved, err := uc.repo.SaveInsights(ctx, doc.ID, insights)
	if err != nil {
		return fmt.Errorf("save insights: %w", err)
	}
	slog.Info("insights_saved", "document_id", saved.ID, "source", insights.Source, "model", insights.ModelUsed)

	uc.pusher.push(ctx, saved.OwnerID, domain.NewNotification(
		domain.MessageInsightsReady,
		InsightsReadyEvent{
			DocumentID:       saved.ID,
			OriginalFilename: saved.OriginalFilename,
			InsightsStatus:   saved.InsightsStatus,
			Summary:          insights.Summary,
			AttentionLevel:   insights.AttentionLevel,
		},
		fmt.Sprintf("💡 Insights for %s are ready", saved.OriginalFilename),
	))
	return nil
}

// recordFailure moves insights_status off generating. A conflict found before
// generation leaves an unclaimed record untouched; once the document changed
// under a running generation, or a dispatch claimed it, the pass is failed.
func (uc *InsightsUseCase) recordFailure(ctx context.Context, documentID string, doc *domain.Document, generated bool, cause error) {
	slog.Error("insights_generation_failed", "document_id", documentID, "error", cause)
	if doc == nil {
		return
	}
	if errors.Is(cause, domain.ErrConflict) && !generated && doc.InsightsStatus != domain.InsightsGenerating {
		return
	}
	if err := uc.repo.MarkInsightsFailed(ctx, documentID, cause.Error()); err != nil {
		slog.Error("insights_mark_failed", "document_id", documentID, "error", err)
	}
	uc.pusher.push(ctx, doc.OwnerID, domain.NewNotification(
		domain.MessageInsightsFailed,
		InsightsReadyEvent{
			DocumentID:       doc.ID,
			OriginalFilename: doc.OriginalFilename,
			InsightsStatus:   domain.InsightsError,
			Error:            cause.Error(),
		},
		fmt.Sprintf("⚠️ Insights for %s could not be generated", doc.OriginalFilename),
	))
}

// GenerateNow enriches a document synchronously on behalf of its reader.
func (uc *InsightsUseCase) GenerateNow(
	ctx context.Context,
	principal domain.Principal,
	documentID string,
) (*domain.Document, error) {
	doc, err := loadForPrincipal(ctx, uc.repo, principal, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusComplete {
		return nil, domain.WrapError(
			domain.ErrConflict,
			"generate insights",
			fmt.Errorf("document must be complete, current status is %s", doc.Status),
		)
	}
	if err := uc.repo.MarkInsightsGenerating(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("mark insights generating: %w", err)
	}
	if err := uc.GenerateForDocument(ctx, doc.ID); err != nil {
		return nil, err
	}
	return uc.repo.GetByID(ctx, doc.ID)
}

// ScheduleBatch dispatches enrichment for up to limit of the caller's
// completed documents that have no insights yet. It is best effort: nothing
// is retained between calls.
func (uc *InsightsUseCase) ScheduleBatch(
	ctx context.Context,
	principal domain.Principal,
	limit int,
) (*domain.BatchOutcome, error) {
	if uc.dispatcher == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "schedule insights batch", errors.New("dispatcher not configured"))
	}
	if limit <= 0 || limit > uc.batchLimit {
		limit = uc.batchLimit
	}

	candidates, err := uc.repo.ListMissingInsights(ctx, principal.UserID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list documents without insights: %w", err)
	}

	outcome := &domain.BatchOutcome{Scheduled: []string{}, Limit: limit}
	if len(candidates) > limit {
		outcome.Remaining = true
		candidates = candidates[:limit]
	}
	for _, doc := range candidates {
		if err := uc.repo.MarkInsightsGenerating(ctx, doc.ID); err != nil {
			slog.Warn("insights_batch_skip", "document_id", doc.ID, "error", err)
			continue
		}
		if err := uc.dispatcher.Dispatch(ctx, doc.ID); err != nil {
			slog.Error("insights_dispatch_failed", "document_id", doc.ID, "error", err)
			if markErr := uc.repo.MarkInsightsFailed(ctx, doc.ID, err.Error()); markErr != nil {
				slog.Error("insights_mark_failed", "document_id", doc.ID, "error", markErr)
			}
			continue
		}
		outcome.Scheduled = append(outcome.Scheduled, doc.ID)
	}
	return outcome, nil
}
