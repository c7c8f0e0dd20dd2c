package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const sheetName = "Documents"

var headers = []any{
	"ID", "Filename", "Type", "Status", "Confidence (%)", "Processing time (s)",
	"Webhook received", "Insights", "Summary", "Error", "Created at", "Updated at",
}

// XLSXExporter renders a document list as a single-sheet spreadsheet.
type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Export(w io.Writer, docs []domain.Document) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}
	if err := sw.SetColWidth(1, 1, 38); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := sw.SetRow("A1", headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, doc := range docs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := sw.SetRow(cell, row(doc)); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func row(doc domain.Document) []any {
	var confidence, processing any = "", ""
	if doc.ConfidenceScore != nil {
		confidence = *doc.ConfidenceScore * 100
	}
	if doc.ProcessingTimeSeconds != nil {
		processing = *doc.ProcessingTimeSeconds
	}
	webhook := "no"
	if doc.WebhookReceived {
		webhook = "yes"
	}
	return []any{
		doc.ID,
		doc.OriginalFilename,
		doc.DocumentType,
		string(doc.Status),
		confidence,
		processing,
		webhook,
		string(doc.InsightsStatus),
		doc.InsightsSummary,
		doc.ErrorMessage,
		doc.CreatedAt.UTC().Format(time.RFC3339),
		doc.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
