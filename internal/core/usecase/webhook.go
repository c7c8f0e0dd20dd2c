package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

// WebhookUseCase applies authenticated completion callbacks from the analysis
// backend. Checks run in a fixed order and none of them mutates state.
type WebhookUseCase struct {
	guard  ports.WebhookGuard
	repo   ports.DocumentRepository
	pusher pusher
	now    func() time.Time
}

func NewWebhookUseCase(
	guard ports.WebhookGuard,
	repo ports.DocumentRepository,
	notifier ports.Notifier,
	observer ports.PipelineObserver,
) *WebhookUseCase {
	return &WebhookUseCase{
		guard:  guard,
		repo:   repo,
		pusher: pusher{notifier: notifier, observer: observerOrNoop(observer)},
		now:    time.Now,
	}
}

func (uc *WebhookUseCase) Handle(ctx context.Context, remoteIP, signature string, body []byte) (*domain.Document, error) {
	if err := uc.guard.CheckIP(remoteIP); err != nil {
		return nil, domain.WrapError(domain.ErrForbidden, "webhook ip check", err)
	}
	if err := uc.guard.VerifySignature(body, signature); err != nil {
		return nil, domain.WrapError(domain.ErrUnauthorized, "webhook signature", err)
	}
	update, err := uc.guard.ParsePayload(body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "webhook payload", err)
	}
	update.ReceivedAt = uc.now().UTC()

	doc, err := uc.repo.ApplyWebhook(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("apply webhook: %w", err)
	}
	slog.Info("webhook_applied", "document_id", doc.ID, "status", doc.Status)

	uc.pusher.documentStatus(ctx, doc, domain.MessageDocumentUpdated, sourceWebhook)
	return doc, nil
}
