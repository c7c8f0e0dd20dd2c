package analysis

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	FallbackVersion = "fallback-mock-2.1.0"
	fallbackModel   = "local-document-analyzer-v2"
)

type confidenceRange struct {
	min, max float64
}

var fallbackConfidence = map[string]confidenceRange{
	"contract":  {0.85, 0.98},
	"invoice":   {0.88, 0.96},
	"identity":  {0.90, 0.99},
	"financial": {0.82, 0.94},
}

var genericConfidence = confidenceRange{0.75, 0.90}

// FallbackGenerator produces a synthetic analysis whose shape depends on the
// document type and whose values are randomized. It keeps the pipeline usable
// without a live analysis backend.
type FallbackGenerator struct {
	delay time.Duration
	now   func() time.Time
}

func NewFallbackGenerator(delay time.Duration) *FallbackGenerator {
	if delay < 0 {
		delay = 0
	}
	return &FallbackGenerator{delay: delay, now: time.Now}
}

func (g *FallbackGenerator) Generate(ctx context.Context, req domain.AnalysisRequest, content []byte) domain.AnalysisResult {
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res := failedResult(req, fmt.Sprintf("analysis cancelled: %v", ctx.Err()))
			res.Backend = BackendFallback
			return res
		case <-timer.C:
		}
	}

	now := g.now().UTC()
	data := fallbackPayload(req.DocumentType, pageCount(content))
	data["metadata"] = map[string]any{
		"document_id":             req.DocumentID,
		"processed_at":            now.Format(time.RFC3339),
		"processing_time_seconds": math.Round(uniform(0.5, 2.0)*100) / 100,
		"analyzer_version":        "2.1.0",
		"model_used":              fallbackModel,
	}

	conf, ok := fallbackConfidence[req.DocumentType]
	if !ok {
		conf = genericConfidence
	}

	return domain.AnalysisResult{
		Status:             domain.StatusComplete,
		ExtractedData:      data,
		ConfidenceScore:    uniform(conf.min, conf.max),
		ExternalDocumentID: "local_" + req.DocumentID,
		ExternalRequestID:  fmt.Sprintf("req_%d", now.Unix()),
		ExternalVersion:    FallbackVersion,
		Backend:            BackendFallback,
	}
}

func fallbackPayload(documentType string, pages int) map[string]any {
	switch documentType {
	case "contract":
		start := randomDate(2024)
		return map[string]any{
			"cnpj":           randomCNPJ(),
			"company_name":   pick(companies),
			"trade_name":     pick(tradeNames),
			"address":        pick(addresses),
			"contract_value": randomAmount(50_000, 500_000),
			"start_date":     start.Format("2006-01-02"),
			"end_date":       start.AddDate(1, 0, -1).Format("2006-01-02"),
			"subject":        pick(contractSubjects),
			"responsible":    pick(people),
			"email":          "contact@" + pick(domains),
			"phone":          fmt.Sprintf("(11) 9%04d-%04d", rand.IntN(10000), rand.IntN(10000)),
		}
	case "invoice":
		issued := randomDate(2024)
		return map[string]any{
			"invoice_number":      fmt.Sprintf("%09d", rand.IntN(1_000_000_000)),
			"issuer_cnpj":         randomCNPJ(),
			"issuer_name":         pick(companies),
			"recipient_cnpj":      randomCNPJ(),
			"recipient_name":      pick(companies),
			"total_amount":        randomAmount(1_000, 50_000),
			"tax_amount":          randomAmount(100, 7_500),
			"issue_date":          issued.Format("2006-01-02"),
			"due_date":            issued.AddDate(0, 0, 30).Format("2006-01-02"),
			"service_description": pick(contractSubjects),
			"service_code":        fmt.Sprintf("%02d.%02d", 1+rand.IntN(40), 1+rand.IntN(20)),
		}
	case "identity":
		return map[string]any{
			"full_name":         pick(people),
			"cpf":               fmt.Sprintf("%03d.%03d.%03d-%02d", rand.IntN(1000), rand.IntN(1000), rand.IntN(1000), rand.IntN(100)),
			"rg":                fmt.Sprintf("%02d.%03d.%03d-%d", rand.IntN(100), rand.IntN(1000), rand.IntN(1000), rand.IntN(10)),
			"birth_date":        randomDate(1960 + rand.IntN(40)).Format("02/01/2006"),
			"birthplace":        pick(cities),
			"mother_name":       pick(people),
			"father_name":       pick(people),
			"address":           pick(addresses),
			"postal_code":       fmt.Sprintf("%05d-%03d", rand.IntN(100000), rand.IntN(1000)),
			"issue_date":        randomDate(2015 + rand.IntN(9)).Format("02/01/2006"),
			"issuing_authority": "SSP/SP",
		}
	case "financial":
		return map[string]any{
			"bank":            pick(banks),
			"branch":          fmt.Sprintf("%04d-%d", rand.IntN(10000), rand.IntN(10)),
			"account":         fmt.Sprintf("%05d-%d", rand.IntN(100000), rand.IntN(10)),
			"holder":          pick(companies),
			"cnpj":            randomCNPJ(),
			"current_balance": randomAmount(10_000, 900_000),
			"statement_date":  randomDate(2024).Format("2006-01-02"),
			"period":          "last 30 days",
			"transactions": []any{
				map[string]any{"description": "Wire received", "amount": randomAmount(5_000, 80_000)},
				map[string]any{"description": "Supplier payment", "amount": "-" + randomAmount(1_000, 20_000)},
				map[string]any{"description": "Sales revenue", "amount": randomAmount(5_000, 60_000)},
			},
		}
	default:
		if pages <= 0 {
			pages = 1 + rand.IntN(10)
		}
		return map[string]any{
			"document_type":     documentType,
			"extracted_text":    "Document processed by the local analyzer",
			"entities":          []any{"person", "company", "date", "amount"},
			"detected_language": "portuguese",
			"page_count":        pages,
			"image_quality":     "high",
			"notes":             "Readable and well structured document",
		}
	}
}

// pageCount returns the number of pages of a PDF payload, or 0 when the
// content is not a readable PDF.
func pageCount(content []byte) (pages int) {
	if !bytes.HasPrefix(content, []byte("%PDF")) {
		return 0
	}
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0
	}
	return reader.NumPage()
}

var (
	companies        = []string{"Digital Offshore Ltda", "BTS Vault Tecnologia S.A.", "Omega Import Export Ltda", "Atlas Engenharia S.A.", "Nova Era Servicos Ltda"}
	tradeNames       = []string{"Digital Offshore", "BTS Vault", "Omega Trade", "Atlas", "Nova Era"}
	people           = []string{"Joao Silva Santos", "Maria Fernanda Costa", "Ana Beatriz Lima", "Roberto Almeida", "Carla Souza Pereira"}
	addresses        = []string{"Rua das Tecnologias, 123 - Sao Paulo/SP", "Av. Paulista, 1000 - Sao Paulo/SP", "Rua XV de Novembro, 55 - Curitiba/PR", "Av. Atlantica, 400 - Rio de Janeiro/RJ"}
	cities           = []string{"Sao Paulo/SP", "Curitiba/PR", "Rio de Janeiro/RJ", "Belo Horizonte/MG"}
	contractSubjects = []string{"Software development services", "Security consulting and systems audit", "Cloud infrastructure maintenance", "Data migration project"}
	banks            = []string{"Banco do Brasil", "Itau Unibanco", "Bradesco", "Caixa Economica Federal"}
	domains          = []string{"digitaloffshore.com.br", "btsvault.com.br", "omegatrade.com.br", "atlas.eng.br"}
)

func pick(values []string) string {
	return values[rand.IntN(len(values))]
}

func uniform(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}

func randomCNPJ() string {
	return fmt.Sprintf("%02d.%03d.%03d/0001-%02d", rand.IntN(100), rand.IntN(1000), rand.IntN(1000), rand.IntN(100))
}

func randomAmount(lo, hi int) string {
	cents := lo*100 + rand.IntN((hi-lo)*100)
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

func randomDate(year int) time.Time {
	return time.Date(year, time.Month(1+rand.IntN(12)), 1+rand.IntN(28), 0, 0, 0, 0, time.UTC)
}
