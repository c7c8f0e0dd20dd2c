package httpadapter

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	uploadStatusSuccess = "success"
	uploadStatusFailed  = "failed"
)

type uploadResponse struct {
	Status                string           `json:"status"`
	Message               string           `json:"message"`
	DocumentID            string           `json:"document_id"`
	Document              *domain.Document `json:"document"`
	ExtractedData         map[string]any   `json:"extracted_data"`
	ConfidenceScore       *float64         `json:"confidence_score"`
	ProcessingTimeSeconds *float64         `json:"processing_time_seconds"`
	ErrorMessage          string           `json:"error_message,omitempty"`
	InsightsGeneration    string           `json:"insights_generation"`
}

func newUploadResponse(outcome *domain.UploadOutcome) uploadResponse {
	doc := outcome.Document
	status := uploadStatusSuccess
	if doc.Status == domain.StatusFailed {
		status = uploadStatusFailed
	}
	return uploadResponse{
		Status:                status,
		Message:               domain.StatusMessage(doc.OriginalFilename, doc.Status, doc.ConfidenceScore),
		DocumentID:            doc.ID,
		Document:              doc,
		ExtractedData:         doc.ExtractedData,
		ConfidenceScore:       doc.ConfidenceScore,
		ProcessingTimeSeconds: doc.ProcessingTimeSeconds,
		ErrorMessage:          doc.ErrorMessage,
		InsightsGeneration:    outcome.InsightsGeneration,
	}
}

type insightsResponse struct {
	DocumentID     string                `json:"document_id"`
	InsightsStatus domain.InsightsStatus `json:"insights_status"`
	Insights       *domain.Insights      `json:"insights,omitempty"`
	Summary        string                `json:"summary,omitempty"`
	ModelUsed      string                `json:"model_used,omitempty"`
	GeneratedAt    *time.Time            `json:"generated_at,omitempty"`
	Error          string                `json:"error,omitempty"`
}

func newInsightsResponse(doc *domain.Document) insightsResponse {
	return insightsResponse{
		DocumentID:     doc.ID,
		InsightsStatus: doc.InsightsStatus,
		Insights:       doc.Insights,
		Summary:        doc.InsightsSummary,
		ModelUsed:      doc.InsightsModel,
		GeneratedAt:    doc.InsightsGeneratedAt,
		Error:          doc.InsightsError,
	}
}

func (rt *Router) documentTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"document_types":     rt.svc.Catalog.Types(),
		"allowed_extensions": rt.svc.Catalog.AllowedExtensions(),
	})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, int64(rt.cfg.MaxUploadMB)<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, err)
			return
		}
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("multipart field 'file' is required")))
		return
	}
	defer file.Close()

	outcome, err := rt.svc.Uploader.Upload(r.Context(), principal.UserID, header.Filename, r.FormValue("document_type"), file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUploadResponse(outcome))
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	docs, err := rt.svc.Reader.ListForPrincipal(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs, "total": len(docs)})
}

func (rt *Router) exportDocuments(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	var buf bytes.Buffer
	if err := rt.svc.Reader.Export(r.Context(), principal, &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", rt.svc.Reader.ExportContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="documents.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	doc, err := rt.svc.Reader.GetForPrincipal(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) getInsights(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	doc, err := rt.svc.Reader.GetForPrincipal(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInsightsResponse(doc))
}

func (rt *Router) generateInsights(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	doc, err := rt.svc.Insights.GenerateNow(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newInsightsResponse(doc))
}

func (rt *Router) scheduleInsightsBatch(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "schedule insights batch", errors.New("limit must be a non-negative integer")))
			return
		}
		limit = parsed
	}

	outcome, err := rt.svc.Insights.ScheduleBatch(r.Context(), principal, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, outcome)
}
