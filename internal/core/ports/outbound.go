package ports

import (
	"context"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
)

// IntegrityHasher computes a content digest in an isolated facility whose
// trustworthiness is independent of this process.
type IntegrityHasher interface {
	// ComputeHash returns a 64-character lowercase hex digest or one of
	// ErrHashTimeout, ErrHashProcess, ErrHashFormat.
	ComputeHash(ctx context.Context, data []byte) (string, error)
	// IsAvailable runs a canary computation and reports health without
	// raising.
	IsAvailable(ctx context.Context) bool
}

// ContentStore is a content-addressed blob store. Adding byte-identical
// content twice yields the same address. Unpin/Reclaim delete on the local
// node only; replicas may retain the content.
type ContentStore interface {
	Add(ctx context.Context, data []byte) (string, error)
	Pin(ctx context.Context, address string) error
	// Publish exposes the content under a mutable human-browsable path.
	// Publishing to an already-existing path is not an error.
	Publish(ctx context.Context, address, path string) error
	// List returns the entries under path; an absent path yields an empty
	// result, not an error.
	List(ctx context.Context, path string) ([]domain.ContentEntry, error)
	Unpin(ctx context.Context, address string) error
	Reclaim(ctx context.Context) error
}

// LedgerRegistrar is the append-only registry with the hash-uniqueness
// invariant. Its commit step, not any preflight, is the sole authority for
// that invariant.
type LedgerRegistrar interface {
	Register(ctx context.Context, fileName string, fileSize uint64, contentHash string) (domain.LedgerReceipt, error)
	Get(ctx context.Context, id uint64) (domain.LedgerRecord, error)
	IDByHash(ctx context.Context, contentHash string) (uint64, error)
	SoftDelete(ctx context.Context, id uint64) (domain.LedgerReceipt, error)
	Restore(ctx context.Context, id uint64) (domain.LedgerReceipt, error)
	HardDelete(ctx context.Context, id uint64) (domain.LedgerReceipt, error)
}

// DocumentRepository persists document metadata. Create assigns the
// store-side id on the passed document.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListByOrganizationMembers(ctx context.Context, memberIDs []string) ([]domain.Document, error)
	MarkDeleted(ctx context.Context, id string) error
	ClearDeleted(ctx context.Context, id string) error
	MarkSigned(ctx context.Context, id string, at time.Time) error
	MarkRevoked(ctx context.Context, id string, at time.Time) error
}

// ReconcileQueue transports reconcile records for degraded ingests.
type ReconcileQueue interface {
	PublishReconcile(ctx context.Context, rec domain.ReconcileRecord) error
	SubscribeReconcile(ctx context.Context, handler func(context.Context, domain.ReconcileRecord) error) error
}
