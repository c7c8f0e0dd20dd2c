package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type storageFake struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func newStorageFake() *storageFake {
	return &storageFake{files: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, errors.New("missing file")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	return nil
}

type analyzerFake struct {
	result   domain.AnalysisResult
	requests []domain.AnalysisRequest
}

func (f *analyzerFake) Process(_ context.Context, req domain.AnalysisRequest) domain.AnalysisResult {
	f.requests = append(f.requests, req)
	return f.result
}

func (f *analyzerFake) ValidateConfiguration() (bool, string) {
	return true, "ok"
}

type catalogFake struct{}

func (catalogFake) Types() []domain.DocumentType { return nil }

func (catalogFake) AllowedExtensions() []string {
	return []string{"pdf", "jpg", "jpeg", "png", "docx", "doc"}
}

func (c catalogFake) IsAllowedExtension(ext string) bool {
	return slices.Contains(c.AllowedExtensions(), ext)
}

type sentNotification struct {
	userID string
	msg    domain.Notification
}

type notifierFake struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *notifierFake) SendToUser(_ context.Context, userID string, msg domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{userID: userID, msg: msg})
}

func (f *notifierFake) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.msg.Type)
	}
	return out
}

type dispatcherFake struct {
	ids []string
	err error
}

func (f *dispatcherFake) Dispatch(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, documentID)
	return nil
}

type generatorFake struct {
	insights domain.Insights
	panics   bool
	requests []domain.InsightsRequest
}

func (f *generatorFake) Generate(_ context.Context, req domain.InsightsRequest) domain.Insights {
	if f.panics {
		panic("generator exploded")
	}
	f.requests = append(f.requests, req)
	return f.insights
}

func (f *generatorFake) Status() domain.InsightsBackendStatus {
	return domain.InsightsBackendStatus{Enabled: true, Model: "fake"}
}

type guardFake struct {
	ipErr, sigErr, payloadErr error
	update                    domain.WebhookUpdate
}

func (f *guardFake) CheckIP(string) error {
	return f.ipErr
}

func (f *guardFake) VerifySignature([]byte, string) error {
	return f.sigErr
}

func (f *guardFake) ParsePayload([]byte) (domain.WebhookUpdate, error) {
	return f.update, f.payloadErr
}

type exporterFake struct {
	docs []domain.Document
}

func (f *exporterFake) ContentType() string { return "text/csv" }

func (f *exporterFake) Export(w io.Writer, docs []domain.Document) error {
	f.docs = docs
	_, err := io.WriteString(w, "ok")
	return err
}
