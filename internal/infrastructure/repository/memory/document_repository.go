package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

// DocumentRepository keeps documents in process memory. Every method holds
// the lock for the whole read-modify-write, so updates are atomic per record.
type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document
	now  func() time.Time
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{
		docs: make(map[string]*domain.Document),
		now:  time.Now,
	}
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "insert document", fmt.Errorf("duplicate id %s", doc.ID))
	}
	r.docs[doc.ID] = clone(doc)
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(doc), nil
}

func (r *DocumentRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if doc.OwnerID == ownerID {
			out = append(out, *clone(doc))
		}
	}
	slices.SortFunc(out, func(a, b domain.Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *DocumentRepository) ApplyAnalysis(_ context.Context, id string, result domain.AnalysisResult) (*domain.Document, error) {
	return r.mutate(id, func(doc *domain.Document, now time.Time) error {
		doc.Status = result.Status
		doc.ExternalDocumentID = result.ExternalDocumentID
		doc.ExternalRequestID = result.ExternalRequestID
		doc.ExternalVersion = result.ExternalVersion
		doc.ProcessingTimeSeconds = ptr(result.ProcessingTimeSeconds)
		doc.ConfidenceScore = ptr(result.ConfidenceScore)

		switch result.Status {
		case domain.StatusComplete:
			doc.ExtractedData = result.ExtractedData
			if doc.ExtractedData == nil {
				doc.ExtractedData = map[string]any{}
			}
			doc.ErrorMessage = ""
		case domain.StatusFailed:
			doc.ExtractedData = nil
			doc.ErrorMessage = cmp.Or(result.ErrorMessage, domain.DefaultWebhookFailure)
		default:
			doc.ExtractedData = nil
			doc.ErrorMessage = ""
		}
		return nil
	})
}

func (r *DocumentRepository) ApplyWebhook(_ context.Context, update domain.WebhookUpdate) (*domain.Document, error) {
	return r.mutate(update.DocumentID, func(doc *domain.Document, now time.Time) error {
		doc.Status = update.Status
		switch update.Status {
		case domain.StatusComplete:
			if update.ExtractedData != nil {
				doc.ExtractedData = update.ExtractedData
			} else if doc.ExtractedData == nil {
				doc.ExtractedData = map[string]any{}
			}
			if update.ConfidenceScore != nil {
				doc.ConfidenceScore = ptr(*update.ConfidenceScore)
			}
			doc.ExternalDocumentID = cmp.Or(update.ExternalDocumentID, doc.ExternalDocumentID)
			doc.ExternalRequestID = cmp.Or(update.ExternalRequestID, doc.ExternalRequestID)
			doc.ExternalVersion = cmp.Or(update.ExternalVersion, doc.ExternalVersion)
			if update.ProcessingTimeSeconds != nil {
				doc.ProcessingTimeSeconds = ptr(*update.ProcessingTimeSeconds)
			}
			doc.ErrorMessage = ""
		case domain.StatusFailed:
			doc.ExtractedData = nil
			doc.ErrorMessage = cmp.Or(update.ErrorMessage, doc.ErrorMessage, domain.DefaultWebhookFailure)
		default:
			doc.ExtractedData = nil
			doc.ErrorMessage = ""
		}
		receivedAt := update.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = now
		}
		doc.WebhookReceived = true
		doc.WebhookReceivedAt = &receivedAt
		return nil
	})
}

func (r *DocumentRepository) MarkInsightsGenerating(_ context.Context, id string) error {
	_, err := r.mutate(id, func(doc *domain.Document, _ time.Time) error {
		if doc.Status != domain.StatusComplete {
			return domain.WrapError(domain.ErrConflict, "mark insights generating", fmt.Errorf("document %s is %s", id, doc.Status))
		}
		doc.InsightsStatus = domain.InsightsGenerating
		doc.InsightsError = ""
		return nil
	})
	return err
}

func (r *DocumentRepository) MarkInsightsFailed(_ context.Context, id string, errMessage string) error {
	_, err := r.mutate(id, func(doc *domain.Document, _ time.Time) error {
		doc.InsightsStatus = domain.InsightsError
		doc.InsightsError = errMessage
		return nil
	})
	return err
}

func (r *DocumentRepository) SaveInsights(_ context.Context, id string, insights domain.Insights) (*domain.Document, error) {
	return r.mutate(id, func(doc *domain.Document, now time.Time) error {
		if doc.Status != domain.StatusComplete {
			return domain.WrapError(domain.ErrConflict, "save insights", fmt.Errorf("document %s is %s", id, doc.Status))
		}
		stored := insights
		generatedAt := cmp.Or(insights.GeneratedAt, now)
		doc.Insights = &stored
		doc.InsightsStatus = domain.InsightsComplete
		doc.InsightsSummary = insights.Summary
		doc.InsightsModel = insights.ModelUsed
		doc.InsightsGeneratedAt = &generatedAt
		doc.InsightsError = ""
		return nil
	})
}

func (r *DocumentRepository) ListMissingInsights(_ context.Context, ownerID string, limit int) ([]domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Document, 0)
	for _, doc := range r.docs {
		if doc.OwnerID != ownerID || doc.Status != domain.StatusComplete {
			continue
		}
		if doc.InsightsStatus == domain.InsightsPending || doc.InsightsStatus == domain.InsightsError {
			out = append(out, *clone(doc))
		}
	}
	slices.SortFunc(out, func(a, b domain.Document) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DocumentRepository) mutate(id string, apply func(doc *domain.Document, now time.Time) error) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	next := clone(current)
	now := r.now().UTC()
	if err := apply(next, now); err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	r.docs[id] = next
	return clone(next), nil
}

func notFound(id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
}

func clone(doc *domain.Document) *domain.Document {
	out := *doc
	if doc.ExtractedData != nil {
		out.ExtractedData = maps.Clone(doc.ExtractedData)
	}
	if doc.Insights != nil {
		insights := *doc.Insights
		out.Insights = &insights
	}
	return &out
}

func ptr[T any](v T) *T {
	return &v
}
