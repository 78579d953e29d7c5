package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
)

// IngestDocumentUseCase sequences the custody ingest across the hasher,
// content store, ledger and metadata store. It holds no state of its own;
// every invocation is independent.
type IngestDocumentUseCase struct {
	hasher      ports.IntegrityHasher
	store       ports.ContentStore
	ledger      ports.LedgerRegistrar
	repo        ports.DocumentRepository
	queue       ports.ReconcileQueue
	publishRoot string
}

// NewIngestDocumentUseCase wires the ingest workflow. queue may be nil; a
// degraded success is then only reported, not enqueued for reconciliation.
func NewIngestDocumentUseCase(
	hasher ports.IntegrityHasher,
	store ports.ContentStore,
	ledger ports.LedgerRegistrar,
	repo ports.DocumentRepository,
	queue ports.ReconcileQueue,
	publishRoot string,
) *IngestDocumentUseCase {
	if publishRoot == "" {
		publishRoot = "/custody"
	}
	return &IngestDocumentUseCase{
		hasher:      hasher,
		store:       store,
		ledger:      ledger,
		repo:        repo,
		queue:       queue,
		publishRoot: strings.TrimRight(publishRoot, "/"),
	}
}

func (uc *IngestDocumentUseCase) Ingest(ctx context.Context, in ports.IngestInput) (domain.IngestResult, error) {
	res := domain.IngestResult{Status: domain.IngestFailure, Stage: domain.StageValidated}

	if err := validateIngestInput(in); err != nil {
		res.Err = err
		return res, err
	}

	hash, err := uc.hasher.ComputeHash(ctx, in.Content)
	if err != nil {
		// Nothing has been touched yet, nothing to compensate.
		res.Err = err
		return res, err
	}
	res.ContentHash = hash
	res.Stage = domain.StageHashed

	address, err := uc.store.Add(ctx, in.Content)
	if err != nil {
		res.Err = domain.WrapError(domain.ErrContentStore, "add content", err)
		return res, res.Err
	}
	if err := uc.store.Pin(ctx, address); err != nil {
		uc.compensateContent(ctx, address)
		res.Err = domain.WrapError(domain.ErrContentStore, "pin content", err)
		return res, res.Err
	}
	if err := uc.store.Publish(ctx, address, uc.publishPath(in.OwnerID, in.Filename, hash)); err != nil {
		uc.compensateContent(ctx, address)
		res.Err = domain.WrapError(domain.ErrContentStore, "publish content", err)
		return res, res.Err
	}
	res.ContentAddress = address
	res.Stage = domain.StageStored

	receipt, err := uc.ledger.Register(ctx, in.Filename, uint64(len(in.Content)), hash)
	if err != nil {
		// The ledger rejection (duplicate or otherwise) leaves the blob
		// stored in step 2 orphaned; unpin and reclaim before failing.
		uc.compensateContent(ctx, address)
		res.Err = err
		return res, err
	}
	res.LedgerID = receipt.ID
	res.Stage = domain.StageRegistered

	now := time.Now().UTC()
	doc := &domain.Document{
		Title:          in.Title,
		Filename:       in.Filename,
		OwnerID:        in.OwnerID,
		ContentHash:    hash,
		ContentAddress: address,
		LedgerID:       receipt.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		// The content store and ledger already committed and cannot be
		// cheaply rolled back through the ledger: degrade, do not fail.
		merr := domain.WrapError(domain.ErrMetadataPersist, "create document record", err)
		res.Status = domain.IngestDegraded
		res.Err = merr
		uc.enqueueReconcile(ctx, in, hash, address, receipt.ID)
		return res, nil
	}

	res.Status = domain.IngestSuccess
	res.Document = doc
	res.Stage = domain.StageRecorded
	return res, nil
}

// compensateContent undoes a committed content-store step. It runs on a
// context detached from request cancellation so an aborted caller cannot
// leave an orphaned blob behind.
func (uc *IngestDocumentUseCase) compensateContent(ctx context.Context, address string) {
	cctx := context.WithoutCancel(ctx)
	if err := uc.store.Unpin(cctx, address); err != nil {
		slog.Warn("ingest_compensation_unpin_failed", "address", address, "error", err)
	}
	if err := uc.store.Reclaim(cctx); err != nil {
		slog.Warn("ingest_compensation_reclaim_failed", "address", address, "error", err)
	}
}

func (uc *IngestDocumentUseCase) enqueueReconcile(ctx context.Context, in ports.IngestInput, hash, address string, ledgerID uint64) {
	if uc.queue == nil {
		return
	}
	rec := domain.ReconcileRecord{
		OwnerID:        in.OwnerID,
		Title:          in.Title,
		Filename:       in.Filename,
		ContentHash:    hash,
		ContentAddress: address,
		LedgerID:       ledgerID,
		FileSize:       uint64(len(in.Content)),
		FailedAt:       time.Now().UTC(),
	}
	if err := uc.queue.PublishReconcile(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("reconcile_publish_failed", "ledger_id", ledgerID, "content_hash", hash, "error", err)
	}
}

// publishPath is deterministic per owner, content and filename so repeated
// ingests of identical content land on the same mutable path.
func (uc *IngestDocumentUseCase) publishPath(ownerID, filename, hash string) string {
	prefix := hash
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return fmt.Sprintf("%s/%s/%s_%s", uc.publishRoot, ownerID, prefix, sanitizeFilename(filename))
}

func validateIngestInput(in ports.IngestInput) error {
	switch {
	case strings.TrimSpace(in.OwnerID) == "":
		return domain.WrapError(domain.ErrValidation, "validate ingest", fmt.Errorf("owner id is required"))
	case strings.TrimSpace(in.Filename) == "":
		return domain.WrapError(domain.ErrValidation, "validate ingest", fmt.Errorf("filename is required"))
	case strings.TrimSpace(in.Title) == "":
		return domain.WrapError(domain.ErrValidation, "validate ingest", fmt.Errorf("title is required"))
	case len(in.Content) == 0:
		return domain.WrapError(domain.ErrValidation, "validate ingest", fmt.Errorf("content is empty"))
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
