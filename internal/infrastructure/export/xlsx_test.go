package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestExportWritesOneRowPerDocument(t *testing.T) {
	score := 0.9
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	docs := []domain.Document{
		{
			ID:               "doc-1",
			OriginalFilename: "contract.pdf",
			DocumentType:     "contract",
			Status:           domain.StatusComplete,
			ConfidenceScore:  &score,
			InsightsStatus:   domain.InsightsComplete,
			InsightsSummary:  "Service agreement",
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		{
			ID:               "doc-2",
			OriginalFilename: "id.png",
			DocumentType:     "identity",
			Status:           domain.StatusFailed,
			ErrorMessage:     "file too large for analysis",
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}

	var buf bytes.Buffer
	if err := NewXLSXExporter().Export(&buf, docs); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][0] != "doc-1" || rows[2][3] != "failed" {
		t.Fatalf("unexpected rows %v", rows)
	}
	if rows[1][8] != "Service agreement" || rows[2][9] != "file too large for analysis" {
		t.Fatalf("unexpected summary/error cells %v", rows)
	}
}
