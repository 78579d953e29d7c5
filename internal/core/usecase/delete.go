package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
)

// localNodeOnlyNote is attached to every deletion report where content was
// reclaimed: removal happens on this node; replicas may retain the bytes.
const localNodeOnlyNote = "content removal is local-node only; the content may remain reachable via other replicas"

// DeleteDocumentUseCase runs the best-effort multi-backend deletion. The
// three backends cannot be rolled back into each other, so no failure
// aborts the attempts on the others.
type DeleteDocumentUseCase struct {
	repo   ports.DocumentRepository
	store  ports.ContentStore
	ledger ports.LedgerRegistrar
}

func NewDeleteDocumentUseCase(
	repo ports.DocumentRepository,
	store ports.ContentStore,
	ledger ports.LedgerRegistrar,
) *DeleteDocumentUseCase {
	return &DeleteDocumentUseCase{
		repo:   repo,
		store:  store,
		ledger: ledger,
	}
}

func (uc *DeleteDocumentUseCase) Delete(ctx context.Context, in ports.DeleteInput) (domain.DeletionReport, error) {
	doc, err := uc.repo.GetByID(ctx, in.DocumentID)
	if err != nil {
		return domain.DeletionReport{}, err
	}

	// Deletion is deliberately restricted to the owner acting under the
	// least-privileged role; elevated roles may not delete on behalf of
	// others.
	if in.RequesterRole != domain.RoleUser {
		return domain.DeletionReport{}, domain.WrapError(domain.ErrForbidden, "delete document",
			fmt.Errorf("role %q may not delete documents", in.RequesterRole))
	}
	if doc.OwnerID != in.RequesterID {
		return domain.DeletionReport{}, domain.WrapError(domain.ErrForbidden, "delete document",
			fmt.Errorf("requester is not the document owner"))
	}

	report := domain.DeletionReport{}

	if err := uc.repo.MarkDeleted(ctx, doc.ID); err != nil {
		report.Errors = append(report.Errors, backendError(domain.BackendMetadata, err))
	} else {
		report.Succeeded = append(report.Succeeded, domain.BackendMetadata)
	}

	uc.deleteContent(ctx, doc, &report)
	uc.deleteLedger(ctx, doc, &report)

	switch len(report.Succeeded) {
	case 3:
		report.Status = domain.DeletionComplete
	case 0:
		report.Status = domain.DeletionNone
	default:
		report.Status = domain.DeletionPartial
	}
	return report, nil
}

func (uc *DeleteDocumentUseCase) deleteContent(ctx context.Context, doc *domain.Document, report *domain.DeletionReport) {
	if doc.ContentAddress == "" {
		// Nothing was ever stored; a no-op counts as success.
		report.Succeeded = append(report.Succeeded, domain.BackendContent)
		return
	}
	if err := uc.store.Unpin(ctx, doc.ContentAddress); err != nil {
		report.Errors = append(report.Errors, backendError(domain.BackendContent,
			domain.WrapError(domain.ErrContentReclaim, "unpin content", err)))
		return
	}
	if err := uc.store.Reclaim(ctx); err != nil {
		// The pin is gone; garbage collection can run later.
		slog.Warn("delete_reclaim_failed", "address", doc.ContentAddress, "error", err)
		report.Notes = append(report.Notes, "garbage collection deferred: "+err.Error())
	}
	report.Succeeded = append(report.Succeeded, domain.BackendContent)
	report.Notes = append(report.Notes, localNodeOnlyNote)
}

func (uc *DeleteDocumentUseCase) deleteLedger(ctx context.Context, doc *domain.Document, report *domain.DeletionReport) {
	if doc.LedgerID == 0 {
		report.Succeeded = append(report.Succeeded, domain.BackendLedger)
		return
	}
	if _, err := uc.ledger.SoftDelete(ctx, doc.LedgerID); err != nil {
		report.Errors = append(report.Errors, backendError(domain.BackendLedger, err))
		return
	}
	report.Succeeded = append(report.Succeeded, domain.BackendLedger)
}

func backendError(backend string, err error) domain.BackendError {
	return domain.BackendError{Backend: backend, Err: err, Message: err.Error()}
}
