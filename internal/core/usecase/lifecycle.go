package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
)

// LifecycleUseCase owns the set-once signed/revoked flags and the restore
// path that brings a soft-deleted document back to Active.
type LifecycleUseCase struct {
	repo   ports.DocumentRepository
	ledger ports.LedgerRegistrar
}

func NewLifecycleUseCase(repo ports.DocumentRepository, ledger ports.LedgerRegistrar) *LifecycleUseCase {
	return &LifecycleUseCase{repo: repo, ledger: ledger}
}

func (uc *LifecycleUseCase) Sign(ctx context.Context, documentID, requesterID string) (*domain.Document, error) {
	doc, err := uc.ownedDocument(ctx, documentID, requesterID)
	if err != nil {
		return nil, err
	}
	if doc.Signed {
		return nil, domain.WrapError(domain.ErrValidation, "sign document", fmt.Errorf("document already signed"))
	}
	now := time.Now().UTC()
	if err := uc.repo.MarkSigned(ctx, doc.ID, now); err != nil {
		return nil, err
	}
	doc.Signed = true
	doc.SignedAt = &now
	doc.UpdatedAt = now
	return doc, nil
}

func (uc *LifecycleUseCase) Revoke(ctx context.Context, documentID, requesterID string) (*domain.Document, error) {
	doc, err := uc.ownedDocument(ctx, documentID, requesterID)
	if err != nil {
		return nil, err
	}
	if doc.Revoked {
		return nil, domain.WrapError(domain.ErrValidation, "revoke document", fmt.Errorf("document already revoked"))
	}
	now := time.Now().UTC()
	if err := uc.repo.MarkRevoked(ctx, doc.ID, now); err != nil {
		return nil, err
	}
	doc.Revoked = true
	doc.RevokedAt = &now
	doc.UpdatedAt = now
	return doc, nil
}

// Restore re-activates the ledger record first: if the content hash has
// been claimed by a different active record in the meantime the ledger
// rejects the restore and the local flag stays untouched.
func (uc *LifecycleUseCase) Restore(ctx context.Context, documentID, requesterID string) (*domain.Document, error) {
	doc, err := uc.ownedDocument(ctx, documentID, requesterID)
	if err != nil {
		return nil, err
	}
	if !doc.Deleted {
		return nil, domain.WrapError(domain.ErrValidation, "restore document", fmt.Errorf("document is not deleted"))
	}
	if doc.LedgerID != 0 {
		if _, err := uc.ledger.Restore(ctx, doc.LedgerID); err != nil && !domain.IsKind(err, domain.ErrLedgerAlreadyActive) {
			return nil, err
		}
	}
	if err := uc.repo.ClearDeleted(ctx, doc.ID); err != nil {
		return nil, err
	}
	doc.Deleted = false
	doc.UpdatedAt = time.Now().UTC()
	return doc, nil
}

func (uc *LifecycleUseCase) ownedDocument(ctx context.Context, documentID, requesterID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != requesterID {
		return nil, domain.WrapError(domain.ErrForbidden, "authorize lifecycle change",
			fmt.Errorf("requester is not the document owner"))
	}
	return doc, nil
}
