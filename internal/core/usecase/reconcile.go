package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
)

// ReconcileUseCase rebuilds metadata rows for degraded ingests. The content
// store and ledger committed long ago; only the local document record is
// missing.
type ReconcileUseCase struct {
	repo ports.DocumentRepository
}

func NewReconcileUseCase(repo ports.DocumentRepository) *ReconcileUseCase {
	return &ReconcileUseCase{repo: repo}
}

// Reconcile is idempotent: a record whose ledger id is already present in
// the metadata store is treated as reconciled, so redelivered queue messages
// do not create duplicate rows.
func (uc *ReconcileUseCase) Reconcile(ctx context.Context, rec domain.ReconcileRecord) error {
	existing, err := uc.repo.ListByOwner(ctx, rec.OwnerID)
	if err != nil {
		return err
	}
	for _, doc := range existing {
		if doc.LedgerID == rec.LedgerID {
			slog.Info("reconcile_already_recorded", "ledger_id", rec.LedgerID, "document_id", doc.ID)
			return nil
		}
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		Title:          rec.Title,
		Filename:       rec.Filename,
		OwnerID:        rec.OwnerID,
		ContentHash:    rec.ContentHash,
		ContentAddress: rec.ContentAddress,
		LedgerID:       rec.LedgerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return err
	}
	slog.Info("reconcile_recorded", "ledger_id", rec.LedgerID, "document_id", doc.ID)
	return nil
}
