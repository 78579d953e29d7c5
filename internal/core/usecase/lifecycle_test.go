package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/trustdoc/custody/internal/core/domain"
)

func newLifecycleFixture(doc *domain.Document) (*LifecycleUseCase, *repoFake, *ledgerFake) {
	repo := &repoFake{document: doc}
	ledger := &ledgerFake{}
	return NewLifecycleUseCase(repo, ledger), repo, ledger
}

func TestSignSetsFlagOnce(t *testing.T) {
	uc, repo, _ := newLifecycleFixture(custodyDocument())

	doc, err := uc.Sign(context.Background(), "doc-1", "owner-1")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !doc.Signed || doc.SignedAt == nil {
		t.Fatalf("expected signed flag and timestamp")
	}
	if len(repo.signedIDs) != 1 {
		t.Fatalf("expected MarkSigned call")
	}
}

func TestSignRejectsSecondSignature(t *testing.T) {
	doc := custodyDocument()
	doc.Signed = true
	uc, _, _ := newLifecycleFixture(doc)

	_, err := uc.Sign(context.Background(), "doc-1", "owner-1")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation on double sign, got %v", err)
	}
}

func TestSignNonOwnerForbidden(t *testing.T) {
	uc, _, _ := newLifecycleFixture(custodyDocument())

	_, err := uc.Sign(context.Background(), "doc-1", "intruder")
	if !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRevokeSetsFlagOnce(t *testing.T) {
	uc, repo, _ := newLifecycleFixture(custodyDocument())

	doc, err := uc.Revoke(context.Background(), "doc-1", "owner-1")
	if err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if !doc.Revoked || doc.RevokedAt == nil {
		t.Fatalf("expected revoked flag and timestamp")
	}
	if len(repo.revokedIDs) != 1 {
		t.Fatalf("expected MarkRevoked call")
	}
}

func TestRestoreReactivatesLedgerThenMetadata(t *testing.T) {
	doc := custodyDocument()
	doc.Deleted = true
	uc, repo, ledger := newLifecycleFixture(doc)

	restored, err := uc.Restore(context.Background(), "doc-1", "owner-1")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Deleted {
		t.Fatalf("expected deleted flag cleared")
	}
	if len(ledger.restored) != 1 || ledger.restored[0] != 7 {
		t.Fatalf("expected ledger restore of id 7, got %v", ledger.restored)
	}
	if len(repo.clearedIDs) != 1 {
		t.Fatalf("expected ClearDeleted call")
	}
}

func TestRestoreRejectedWhenHashClaimedElsewhere(t *testing.T) {
	doc := custodyDocument()
	doc.Deleted = true
	uc, repo, ledger := newLifecycleFixture(doc)
	ledger.restoreErr = domain.WrapError(domain.ErrLedgerHashClaimed, "restore record", errors.New("claimed"))

	_, err := uc.Restore(context.Background(), "doc-1", "owner-1")
	if !domain.IsKind(err, domain.ErrLedgerHashClaimed) {
		t.Fatalf("expected ErrLedgerHashClaimed, got %v", err)
	}
	if len(repo.clearedIDs) != 0 {
		t.Fatalf("local flag must stay set when the ledger rejects the restore")
	}
}

func TestRestoreOfActiveDocumentRejected(t *testing.T) {
	uc, _, _ := newLifecycleFixture(custodyDocument())

	_, err := uc.Restore(context.Background(), "doc-1", "owner-1")
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for non-deleted document, got %v", err)
	}
}
