package ports

import (
	"context"

	"github.com/trustdoc/custody/internal/core/domain"
)

// IngestInput is the raw material for one custody ingest.
type IngestInput struct {
	OwnerID  string
	Title    string
	Filename string
	Content  []byte
}

// DeleteInput identifies the document and the requester attempting removal.
type DeleteInput struct {
	DocumentID    string
	RequesterID   string
	RequesterRole domain.Role
}

// DocumentIngestor is the inbound contract for the custody ingest workflow.
// The returned error is non-nil only for full failures; degraded successes
// return a nil error and IngestResult.Status == IngestDegraded.
type DocumentIngestor interface {
	Ingest(ctx context.Context, in IngestInput) (domain.IngestResult, error)
}

// DocumentRemover is the inbound contract for best-effort multi-backend
// deletion. Precondition failures (missing document, authorization) return
// an error before any backend is touched; backend outcomes are aggregated
// in the report.
type DocumentRemover interface {
	Delete(ctx context.Context, in DeleteInput) (domain.DeletionReport, error)
}

// DocumentReader is the inbound read model over the metadata store.
type DocumentReader interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListByOrganizationMembers(ctx context.Context, memberIDs []string) ([]domain.Document, error)
}

// DocumentLifecycle exposes the owner-driven lifecycle flags and restore.
type DocumentLifecycle interface {
	Sign(ctx context.Context, documentID, requesterID string) (*domain.Document, error)
	Revoke(ctx context.Context, documentID, requesterID string) (*domain.Document, error)
	Restore(ctx context.Context, documentID, requesterID string) (*domain.Document, error)
}
