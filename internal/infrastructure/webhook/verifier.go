package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

const (
	SignatureHeader = "X-Analysis-Signature"
	signaturePrefix = "sha256="
)

var (
	ErrIPNotAllowed     = errors.New("ip not allowed")
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
)

type Options struct {
	Secret     string
	AllowedIPs []string
	// EnforceIP is false in development, where any caller address is accepted.
	EnforceIP bool
	Logger    *slog.Logger
}

// Verifier authenticates and decodes analysis backend callbacks.
type Verifier struct {
	secret     []byte
	allowedIPs []string
	enforceIP  bool
	schema     *openapi3.Schema
	logger     *slog.Logger
}

func NewVerifier(opts Options) *Verifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	allowed := make([]string, 0, len(opts.AllowedIPs))
	for _, ip := range opts.AllowedIPs {
		if ip = strings.TrimSpace(ip); ip != "" {
			allowed = append(allowed, canonicalIP(ip))
		}
	}
	if opts.Secret == "" {
		opts.Logger.Warn("webhook_secret_missing", "effect", "every callback will be rejected")
	}
	return &Verifier{
		secret:     []byte(opts.Secret),
		allowedIPs: allowed,
		enforceIP:  opts.EnforceIP,
		schema:     payloadSchema(),
		logger:     opts.Logger,
	}
}

func (v *Verifier) CheckIP(remoteIP string) error {
	if !v.enforceIP {
		return nil
	}
	if slices.Contains(v.allowedIPs, canonicalIP(remoteIP)) {
		return nil
	}
	v.logger.Warn("webhook_rejected", "reason", "ip", "remote_ip", remoteIP)
	return fmt.Errorf("%w: %s", ErrIPNotAllowed, remoteIP)
}

func (v *Verifier) VerifySignature(body []byte, signature string) error {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	if signature == "" {
		v.logger.Warn("webhook_rejected", "reason", "missing_signature")
		return ErrMissingSignature
	}
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: webhook secret not configured", ErrBadSignature)
	}
	expected := Sign(v.secret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		v.logger.Warn("webhook_rejected", "reason", "signature_mismatch", "received_prefix", prefix(signature, 8))
		return ErrBadSignature
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body without the sha256= prefix.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type payload struct {
	DocumentID         string         `json:"document_id"`
	Status             string         `json:"status"`
	ExtractedData      map[string]any `json:"extracted_data"`
	ConfidenceScore    *float64       `json:"confidence_score"`
	ExternalDocumentID string         `json:"external_document_id"`
	ExternalRequestID  string         `json:"external_request_id"`
	ExternalVersion    string         `json:"external_version"`
	ProcessingTime     *float64       `json:"processing_time"`
	ErrorMessage       string         `json:"error_message"`
}

func (v *Verifier) ParsePayload(body []byte) (domain.WebhookUpdate, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&generic); err != nil {
		return domain.WebhookUpdate{}, fmt.Errorf("decode payload: %w", err)
	}
	if err := v.schema.VisitJSON(generic); err != nil {
		v.logger.Warn("webhook_rejected", "reason", "payload", "error", err)
		return domain.WebhookUpdate{}, fmt.Errorf("validate payload: %w", err)
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return domain.WebhookUpdate{}, fmt.Errorf("decode payload: %w", err)
	}
	return domain.WebhookUpdate{
		DocumentID:            p.DocumentID,
		Status:                domain.DocumentStatus(p.Status),
		ExtractedData:         p.ExtractedData,
		ConfidenceScore:       clampConfidence(p.ConfidenceScore),
		ExternalDocumentID:    p.ExternalDocumentID,
		ExternalRequestID:     p.ExternalRequestID,
		ExternalVersion:       p.ExternalVersion,
		ProcessingTimeSeconds: p.ProcessingTime,
		ErrorMessage:          p.ErrorMessage,
	}, nil
}

// clampConfidence pins out-of-range scores to [0,1] instead of rejecting the
// callback.
func clampConfidence(v *float64) *float64 {
	if v == nil {
		return nil
	}
	clamped := min(max(*v, 0), 1)
	return &clamped
}

func payloadSchema() *openapi3.Schema {
	schema := openapi3.NewObjectSchema().
		WithProperty("document_id", openapi3.NewStringSchema().WithMinLength(36).WithMaxLength(36)).
		WithProperty("status", openapi3.NewStringSchema().WithEnum(
			string(domain.StatusComplete),
			string(domain.StatusFailed),
			string(domain.StatusProcessing),
		)).
		WithProperty("extracted_data", openapi3.NewObjectSchema().WithNullable()).
		WithProperty("confidence_score", openapi3.NewFloat64Schema().WithNullable()).
		WithProperty("processing_time", openapi3.NewFloat64Schema().WithMin(0).WithNullable()).
		WithProperty("external_document_id", openapi3.NewStringSchema().WithNullable()).
		WithProperty("external_request_id", openapi3.NewStringSchema().WithNullable()).
		WithProperty("external_version", openapi3.NewStringSchema().WithNullable()).
		WithProperty("error_message", openapi3.NewStringSchema().WithNullable())
	schema.Required = []string{"document_id", "status"}
	return schema
}

func canonicalIP(raw string) string {
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	if ip := net.ParseIP(raw); ip != nil {
		return ip.String()
	}
	return raw
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
