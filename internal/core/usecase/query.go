package usecase

import (
	"context"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
)

// QueryUseCase is the read model over the metadata store. It never talks
// to the content store or the ledger.
type QueryUseCase struct {
	repo ports.DocumentRepository
}

func NewQueryUseCase(repo ports.DocumentRepository) *QueryUseCase {
	return &QueryUseCase{repo: repo}
}

func (uc *QueryUseCase) Get(ctx context.Context, id string) (*domain.Document, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *QueryUseCase) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return uc.repo.ListByOwner(ctx, ownerID)
}

func (uc *QueryUseCase) ListByOrganizationMembers(ctx context.Context, memberIDs []string) ([]domain.Document, error) {
	return uc.repo.ListByOrganizationMembers(ctx, memberIDs)
}
