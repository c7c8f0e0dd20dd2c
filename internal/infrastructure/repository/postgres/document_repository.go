package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const documentColumns = `id, owner_id, document_type, original_filename, storage_path, status,
	extracted_data, confidence_score, external_document_id, external_request_id, external_version,
	error_message, processing_time_seconds, webhook_received, webhook_received_at,
	insights_status, insights, insights_summary, insights_model, insights_generated_at, insights_error,
	created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	document_type TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	status TEXT NOT NULL,
	extracted_data JSONB,
	confidence_score DOUBLE PRECISION,
	external_document_id TEXT NOT NULL DEFAULT '',
	external_request_id TEXT NOT NULL DEFAULT '',
	external_version TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	processing_time_seconds DOUBLE PRECISION,
	webhook_received BOOLEAN NOT NULL DEFAULT FALSE,
	webhook_received_at TIMESTAMPTZ,
	insights_status TEXT NOT NULL DEFAULT 'pending',
	insights JSONB,
	insights_summary TEXT NOT NULL DEFAULT '',
	insights_model TEXT NOT NULL DEFAULT '',
	insights_generated_at TIMESTAMPTZ,
	insights_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner_created ON documents(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_insights ON documents(owner_id, status, insights_status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	insightsStatus := doc.InsightsStatus
	if insightsStatus == "" {
		insightsStatus = domain.InsightsPending
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, owner_id, document_type, original_filename, storage_path, status, insights_status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		doc.ID, doc.OwnerID, doc.DocumentType, doc.OriginalFilename, doc.StoragePath,
		string(doc.Status), string(insightsStatus), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collect(rows)
}

// ApplyAnalysis overwrites the analysis fields in one statement; the values
// only depend on the result, so no read is needed.
func (r *DocumentRepository) ApplyAnalysis(ctx context.Context, id string, result domain.AnalysisResult) (*domain.Document, error) {
	var extracted any
	errMessage := ""
	switch result.Status {
	case domain.StatusComplete:
		raw, err := marshalJSON(result.ExtractedData, "{}")
		if err != nil {
			return nil, fmt.Errorf("marshal extracted data: %w", err)
		}
		extracted = raw
	case domain.StatusFailed:
		errMessage = result.ErrorMessage
		if errMessage == "" {
			errMessage = domain.DefaultWebhookFailure
		}
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET status = $2,
	extracted_data = $3,
	confidence_score = $4,
	external_document_id = $5,
	external_request_id = $6,
	external_version = $7,
	error_message = $8,
	processing_time_seconds = $9,
	updated_at = $10
WHERE id = $1
RETURNING `+documentColumns,
		id, string(result.Status), extracted, result.ConfidenceScore,
		result.ExternalDocumentID, result.ExternalRequestID, result.ExternalVersion,
		errMessage, result.ProcessingTimeSeconds, r.now().UTC(),
	)
	return r.scanUpdated(row, id, "apply analysis")
}

// ApplyWebhook copies fields by target status. Absent optional fields keep
// their stored values; the whole change is one atomic UPDATE.
func (r *DocumentRepository) ApplyWebhook(ctx context.Context, update domain.WebhookUpdate) (*domain.Document, error) {
	var extracted any
	if update.ExtractedData != nil {
		raw, err := marshalJSON(update.ExtractedData, "{}")
		if err != nil {
			return nil, fmt.Errorf("marshal extracted data: %w", err)
		}
		extracted = raw
	}
	receivedAt := update.ReceivedAt
	now := r.now().UTC()
	if receivedAt.IsZero() {
		receivedAt = now
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET status = $2,
	extracted_data = CASE WHEN $2 = 'complete' THEN COALESCE($3::jsonb, extracted_data, '{}'::jsonb) ELSE NULL END,
	confidence_score = CASE WHEN $2 = 'complete' THEN COALESCE($4, confidence_score) ELSE confidence_score END,
	external_document_id = CASE WHEN $2 = 'complete' AND $5 <> '' THEN $5 ELSE external_document_id END,
	external_request_id = CASE WHEN $2 = 'complete' AND $6 <> '' THEN $6 ELSE external_request_id END,
	external_version = CASE WHEN $2 = 'complete' AND $7 <> '' THEN $7 ELSE external_version END,
	processing_time_seconds = CASE WHEN $2 = 'complete' THEN COALESCE($8, processing_time_seconds) ELSE processing_time_seconds END,
	error_message = CASE WHEN $2 = 'failed' THEN COALESCE(NULLIF($9, ''), NULLIF(error_message, ''), $10) ELSE '' END,
	webhook_received = TRUE,
	webhook_received_at = $11,
	updated_at = $12
WHERE id = $1
RETURNING `+documentColumns,
		update.DocumentID, string(update.Status), extracted, nullableFloat(update.ConfidenceScore),
		update.ExternalDocumentID, update.ExternalRequestID, update.ExternalVersion,
		nullableFloat(update.ProcessingTimeSeconds), update.ErrorMessage, domain.DefaultWebhookFailure,
		receivedAt, now,
	)
	return r.scanUpdated(row, update.DocumentID, "apply webhook")
}

func (r *DocumentRepository) MarkInsightsGenerating(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET insights_status = $2, insights_error = '', updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.InsightsGenerating), r.now().UTC(), string(domain.StatusComplete))
	if err != nil {
		return fmt.Errorf("mark insights generating: %w", err)
	}
	return r.requireAffected(ctx, res, id, "mark insights generating")
}

func (r *DocumentRepository) MarkInsightsFailed(ctx context.Context, id string, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET insights_status = $2, insights_error = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.InsightsError), errMessage, r.now().UTC())
	if err != nil {
		return fmt.Errorf("mark insights failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound(id)
	}
	return nil
}

func (r *DocumentRepository) SaveInsights(ctx context.Context, id string, insights domain.Insights) (*domain.Document, error) {
	raw, err := json.Marshal(insights)
	if err != nil {
		return nil, fmt.Errorf("marshal insights: %w", err)
	}
	now := r.now().UTC()
	generatedAt := insights.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = now
	}

	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET insights = $2,
	insights_status = $3,
	insights_summary = $4,
	insights_model = $5,
	insights_generated_at = $6,
	insights_error = '',
	updated_at = $7
WHERE id = $1 AND status = $8
RETURNING `+documentColumns,
		id, raw, string(domain.InsightsComplete), insights.Summary, insights.ModelUsed,
		generatedAt, now, string(domain.StatusComplete),
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.missingOrConflict(ctx, id, "save insights")
		}
		return nil, fmt.Errorf("save insights: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListMissingInsights(ctx context.Context, ownerID string, limit int) ([]domain.Document, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1 AND status = $2 AND insights_status IN ($3, $4)
ORDER BY created_at ASC
LIMIT $5
`, ownerID, string(domain.StatusComplete), string(domain.InsightsPending), string(domain.InsightsError), limit)
	if err != nil {
		return nil, fmt.Errorf("list documents without insights: %w", err)
	}
	return collect(rows)
}

func (r *DocumentRepository) scanUpdated(row *sql.Row, id, operation string) (*domain.Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return doc, nil
}

func (r *DocumentRepository) requireAffected(ctx context.Context, res sql.Result, id, operation string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.missingOrConflict(ctx, id, operation)
	}
	return nil
}

// missingOrConflict tells an unknown id apart from a guarded update that did
// not match the document's current status.
func (r *DocumentRepository) missingOrConflict(ctx context.Context, id, operation string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s: check document: %w", operation, err)
	}
	if !exists {
		return notFound(id)
	}
	return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("document %s is not complete", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc               domain.Document
		status            string
		insightsStatus    string
		extractedRaw      []byte
		insightsRaw       []byte
		confidence        sql.NullFloat64
		processingTime    sql.NullFloat64
		webhookReceivedAt sql.NullTime
		generatedAt       sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.DocumentType, &doc.OriginalFilename, &doc.StoragePath, &status,
		&extractedRaw, &confidence, &doc.ExternalDocumentID, &doc.ExternalRequestID, &doc.ExternalVersion,
		&doc.ErrorMessage, &processingTime, &doc.WebhookReceived, &webhookReceivedAt,
		&insightsStatus, &insightsRaw, &doc.InsightsSummary, &doc.InsightsModel, &generatedAt, &doc.InsightsError,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = domain.DocumentStatus(status)
	doc.InsightsStatus = domain.InsightsStatus(insightsStatus)
	if extractedRaw != nil {
		if err := json.Unmarshal(extractedRaw, &doc.ExtractedData); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	if insightsRaw != nil {
		var insights domain.Insights
		if err := json.Unmarshal(insightsRaw, &insights); err != nil {
			return nil, fmt.Errorf("unmarshal insights: %w", err)
		}
		doc.Insights = &insights
	}
	if confidence.Valid {
		doc.ConfidenceScore = &confidence.Float64
	}
	if processingTime.Valid {
		doc.ProcessingTimeSeconds = &processingTime.Float64
	}
	if webhookReceivedAt.Valid {
		doc.WebhookReceivedAt = &webhookReceivedAt.Time
	}
	if generatedAt.Valid {
		doc.InsightsGeneratedAt = &generatedAt.Time
	}
	return &doc, nil
}

func collect(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()

	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func marshalJSON(v map[string]any, empty string) ([]byte, error) {
	if v == nil {
		return []byte(empty), nil
	}
	return json.Marshal(v)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func notFound(id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
}
