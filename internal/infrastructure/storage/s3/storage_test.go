package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kirillkom/document-intake/internal/core/domain"
)

type objectAPIFake struct {
	objects map[string][]byte
	put     *s3.PutObjectInput
}

func (f *objectAPIFake) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.put = in
	f.objects[aws.ToString(in.Key)] = raw
	return &s3.PutObjectOutput{}, nil
}

func (f *objectAPIFake) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	raw, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(raw))}, nil
}

func (f *objectAPIFake) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestSaveUsesPrefixAndContentType(t *testing.T) {
	fake := &objectAPIFake{objects: map[string][]byte{}}
	storage := newWithClient(fake, "bucket", "/documents/")

	if err := storage.Save(context.Background(), "doc-1_contract.pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if got := aws.ToString(fake.put.Key); got != "documents/doc-1_contract.pdf" {
		t.Fatalf("unexpected object key %q", got)
	}
	if got := aws.ToString(fake.put.ContentType); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if aws.ToInt64(fake.put.ContentLength) != 4 {
		t.Fatalf("unexpected content length %d", aws.ToInt64(fake.put.ContentLength))
	}

	rc, err := storage.Open(context.Background(), "doc-1_contract.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "%PDF" {
		t.Fatalf("unexpected content %q", raw)
	}
}

func TestOpenMissingObject(t *testing.T) {
	storage := newWithClient(&objectAPIFake{objects: map[string][]byte{}}, "bucket", "")
	_, err := storage.Open(context.Background(), "missing.pdf")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDeleteRemovesPrefixedObject(t *testing.T) {
	fake := &objectAPIFake{objects: map[string][]byte{"documents/doc-1_a.pdf": []byte("%PDF")}}
	storage := newWithClient(fake, "bucket", "documents")

	if err := storage.Delete(context.Background(), "doc-1_a.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := fake.objects["documents/doc-1_a.pdf"]; ok {
		t.Fatalf("object still present after Delete")
	}
}
