package httpadapter

import (
	"io"
	"net/http"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/infrastructure/webhook"
)

const maxWebhookBodyBytes = 1 << 20

type webhookResponse struct {
	Success    bool                  `json:"success"`
	DocumentID string                `json:"document_id"`
	Status     domain.DocumentStatus `json:"status"`
	Message    string                `json:"message"`
}

// analysisWebhook reads the raw body first: the signature covers the exact
// bytes the analysis backend sent.
func (rt *Router) analysisWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		rt.recordWebhook("bad_payload")
		writeError(w, err)
		return
	}

	doc, err := rt.svc.Webhooks.Handle(r.Context(), clientIP(r), r.Header.Get(webhook.SignatureHeader), body)
	if err != nil {
		outcome := webhookOutcome(err)
		rt.recordWebhook(outcome)
		rt.logger.Warn("webhook_rejected",
			"request_id", requestIDFromContext(r.Context()),
			"remote_addr", clientIP(r),
			"outcome", outcome,
			"error", err,
		)
		writeError(w, err)
		return
	}

	rt.recordWebhook("applied")
	writeJSON(w, http.StatusOK, webhookResponse{
		Success:    true,
		DocumentID: doc.ID,
		Status:     doc.Status,
		Message:    "Webhook processed successfully",
	})
}

func (rt *Router) recordWebhook(outcome string) {
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordWebhook(outcome)
	}
}

func webhookOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrForbidden):
		return "ip_rejected"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "bad_signature"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "bad_payload"
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return "unknown_document"
	default:
		return "error"
	}
}
