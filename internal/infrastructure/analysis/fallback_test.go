package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

func TestFallbackShapesByDocumentType(t *testing.T) {
	gen := NewFallbackGenerator(0)
	cases := map[string][]string{
		"contract":  {"cnpj", "company_name", "contract_value", "start_date", "end_date"},
		"invoice":   {"invoice_number", "issuer_cnpj", "total_amount", "due_date"},
		"identity":  {"full_name", "cpf", "rg", "birth_date"},
		"financial": {"bank", "account", "current_balance", "transactions"},
		"medical":   {"document_type", "page_count", "entities"},
	}
	bounds := map[string][2]float64{
		"contract":  {0.85, 0.98},
		"invoice":   {0.88, 0.96},
		"identity":  {0.90, 0.99},
		"financial": {0.82, 0.94},
		"medical":   {0.75, 0.90},
	}

	for docType, keys := range cases {
		result := gen.Generate(context.Background(), domain.AnalysisRequest{DocumentID: "d1", DocumentType: docType}, nil)
		if result.Status != domain.StatusComplete {
			t.Fatalf("%s: expected complete, got %s", docType, result.Status)
		}
		for _, key := range keys {
			if _, ok := result.ExtractedData[key]; !ok {
				t.Fatalf("%s: missing %q in %+v", docType, key, result.ExtractedData)
			}
		}
		if _, ok := result.ExtractedData["metadata"].(map[string]any); !ok {
			t.Fatalf("%s: missing metadata block", docType)
		}
		b := bounds[docType]
		if result.ConfidenceScore < b[0] || result.ConfidenceScore > b[1] {
			t.Fatalf("%s: confidence %v outside %v", docType, result.ConfidenceScore, b)
		}
		if result.ExternalDocumentID != "local_d1" || result.ExternalVersion != FallbackVersion {
			t.Fatalf("%s: unexpected correlation %+v", docType, result)
		}
	}
}

func TestFallbackHonoursCancellation(t *testing.T) {
	gen := NewFallbackGenerator(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := gen.Generate(ctx, domain.AnalysisRequest{DocumentID: "d1", DocumentType: "contract"}, nil)
	if result.Status != domain.StatusFailed || result.ErrorMessage == "" {
		t.Fatalf("expected failed result on cancellation, got %+v", result)
	}
}

func TestPageCountIgnoresNonPDF(t *testing.T) {
	if got := pageCount([]byte("hello")); got != 0 {
		t.Fatalf("expected 0 pages for non-pdf, got %d", got)
	}
	if got := pageCount([]byte("%PDF-1.4 truncated")); got != 0 {
		t.Fatalf("expected 0 pages for broken pdf, got %d", got)
	}
}
