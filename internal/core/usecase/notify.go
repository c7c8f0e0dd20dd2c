package usecase

import (
	"context"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type noopObserver struct{}

func (noopObserver) ObserveAnalysis(domain.AnalysisResult) {}
func (noopObserver) ObserveInsights(string, time.Duration) {}
func (noopObserver) ObserveNotification(string)            {}

func observerOrNoop(observer ports.PipelineObserver) ports.PipelineObserver {
	if observer == nil {
		return noopObserver{}
	}
	return observer
}

// pusher sends best-effort notifications to a document owner.
type pusher struct {
	notifier ports.Notifier
	observer ports.PipelineObserver
}

func (p pusher) push(ctx context.Context, userID string, msg domain.Notification) {
	if p.notifier == nil || userID == "" {
		return
	}
	p.notifier.SendToUser(ctx, userID, msg)
	p.observer.ObserveNotification(msg.Type)
}

func (p pusher) documentStatus(ctx context.Context, doc *domain.Document, kind, source string) {
	p.push(ctx, doc.OwnerID, domain.NewNotification(
		kind,
		domain.DocumentEventFrom(doc, source),
		domain.StatusMessage(doc.OriginalFilename, doc.Status, doc.ConfidenceScore),
	))
}
