package domain

import "time"

// Role is the requester role as asserted by the authentication layer.
type Role string

const (
	RoleUser        Role = "user"
	RoleOrgAdmin    Role = "org_admin"
	RoleSystemAdmin Role = "system_admin"
)

// Document is the authoritative off-chain record of a custodied file. The
// three cross-references (ContentHash, ContentAddress, LedgerID) are filled
// in as the ingest workflow commits against each backend; a document missing
// ContentAddress or LedgerID after ingest is degraded, never silently ok.
type Document struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Filename       string     `json:"filename"`
	OwnerID        string     `json:"owner_id"`
	ContentHash    string     `json:"content_hash,omitempty"`
	ContentAddress string     `json:"content_address,omitempty"`
	LedgerID       uint64     `json:"ledger_id,omitempty"`
	Signed         bool       `json:"signed"`
	SignedAt       *time.Time `json:"signed_at,omitempty"`
	Revoked        bool       `json:"revoked"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	Deleted        bool       `json:"deleted"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Complete reports whether all three backend references are recorded.
func (d *Document) Complete() bool {
	return d.ContentHash != "" && d.ContentAddress != "" && d.LedgerID != 0
}

// IngestStage is the last workflow step that committed. It replaces
// null-checking three independent optional fields with one tagged value.
type IngestStage string

const (
	StageValidated  IngestStage = "validated"
	StageHashed     IngestStage = "hashed"
	StageStored     IngestStage = "stored"
	StageRegistered IngestStage = "registered"
	StageRecorded   IngestStage = "recorded"
)

type IngestStatus string

const (
	IngestSuccess  IngestStatus = "success"
	IngestDegraded IngestStatus = "degraded"
	IngestFailure  IngestStatus = "failure"
)

// IngestResult carries the outcome of one ingest invocation. On degraded
// success Document is nil but ContentHash, ContentAddress and LedgerID hold
// everything needed to reconstruct the metadata row later.
type IngestResult struct {
	Status         IngestStatus `json:"status"`
	Document       *Document    `json:"document,omitempty"`
	ContentHash    string       `json:"content_hash,omitempty"`
	ContentAddress string       `json:"content_address,omitempty"`
	LedgerID       uint64       `json:"ledger_id,omitempty"`
	Stage          IngestStage  `json:"stage"`
	Err            error        `json:"-"`
}

type DeletionStatus string

const (
	DeletionComplete DeletionStatus = "complete"
	DeletionPartial  DeletionStatus = "partial"
	DeletionNone     DeletionStatus = "none"
)

// Backend names used in deletion reports.
const (
	BackendMetadata = "metadata"
	BackendContent  = "content"
	BackendLedger   = "ledger"
)

type BackendError struct {
	Backend string `json:"backend"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

// DeletionReport aggregates the three independent best-effort deletions.
// Notes carries caveats that must reach the caller, such as content removal
// being local-node-only.
type DeletionReport struct {
	Status    DeletionStatus `json:"status"`
	Succeeded []string       `json:"succeeded_backends"`
	Errors    []BackendError `json:"errors,omitempty"`
	Notes     []string       `json:"notes,omitempty"`
}

// LedgerRecord mirrors one entry of the append-only registry. ID 0 is
// never assigned and means "no record".
type LedgerRecord struct {
	ID          uint64    `json:"id"`
	FileName    string    `json:"file_name"`
	FileSize    uint64    `json:"file_size"`
	ContentHash string    `json:"content_hash"`
	Uploader    string    `json:"uploader"`
	Timestamp   time.Time `json:"timestamp"`
	IsActive    bool      `json:"is_active"`
}

// LedgerReceipt is the commit metadata of a settled ledger write. The
// transaction reference is opaque to the orchestrator.
type LedgerReceipt struct {
	ID          uint64 `json:"id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// ContentEntry is one listing entry under a published content path.
type ContentEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Size    uint64 `json:"size"`
}

// ReconcileRecord is published when metadata persistence fails after the
// content store and ledger already committed. It carries everything a
// worker needs to rebuild the document row.
type ReconcileRecord struct {
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Filename       string    `json:"filename"`
	ContentHash    string    `json:"content_hash"`
	ContentAddress string    `json:"content_address"`
	LedgerID       uint64    `json:"ledger_id"`
	FileSize       uint64    `json:"file_size"`
	FailedAt       time.Time `json:"failed_at"`
}
