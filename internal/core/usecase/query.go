package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/document-intake/internal/core/domain"
	"github.com/kirillkom/document-intake/internal/core/ports"
)

type QueryUseCase struct {
	repo     ports.DocumentRepository
	exporter ports.DocumentExporter
}

func NewQueryUseCase(repo ports.DocumentRepository, exporter ports.DocumentExporter) *QueryUseCase {
	return &QueryUseCase{
		repo:     repo,
		exporter: exporter,
	}
}

func (uc *QueryUseCase) GetForPrincipal(ctx context.Context, principal domain.Principal, id string) (*domain.Document, error) {
	return loadForPrincipal(ctx, uc.repo, principal, id)
}

func (uc *QueryUseCase) ListForPrincipal(ctx context.Context, principal domain.Principal) ([]domain.Document, error) {
	docs, err := uc.repo.ListByOwner(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (uc *QueryUseCase) ExportContentType() string {
	if uc.exporter == nil {
		return ""
	}
	return uc.exporter.ContentType()
}

func (uc *QueryUseCase) Export(ctx context.Context, principal domain.Principal, w io.Writer) error {
	if uc.exporter == nil {
		return domain.WrapError(domain.ErrTemporary, "export documents", errors.New("exporter not configured"))
	}
	docs, err := uc.ListForPrincipal(ctx, principal)
	if err != nil {
		return err
	}
	if err := uc.exporter.Export(w, docs); err != nil {
		return fmt.Errorf("export documents: %w", err)
	}
	return nil
}

func loadForPrincipal(
	ctx context.Context,
	repo ports.DocumentRepository,
	principal domain.Principal,
	id string,
) (*domain.Document, error) {
	doc, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if !principal.CanAccess(doc) {
		return nil, domain.WrapError(domain.ErrForbidden, "read document", fmt.Errorf("user %s does not own document %s", principal.UserID, id))
	}
	return doc, nil
}
