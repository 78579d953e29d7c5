// Package memory is an in-process ledger registrar. It implements the full
// behavioral contract of the append-only registry, including the secondary
// hash index semantics, and backs single-node deployments and tests where no
// ledger gateway is available.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trustdoc/custody/internal/core/domain"
)

// MaxFileSize bounds the registrable file size.
const MaxFileSize uint64 = 1 << 40

type record struct {
	fileName    string
	fileSize    uint64
	contentHash string
	uploader    string
	timestamp   time.Time
	active      bool
	erased      bool
}

// state is shared between all caller-bound views of one registry.
type state struct {
	mu          sync.Mutex
	records     []record
	byHash      map[string]uint64
	admin       string
	blockHeight uint64
}

type Registrar struct {
	state  *state
	caller string
}

// New creates a registry administered by admin; the returned view calls as
// the administrator.
func New(admin string) *Registrar {
	return &Registrar{
		state: &state{
			byHash: make(map[string]uint64),
			admin:  admin,
		},
		caller: admin,
	}
}

// As returns a view over the same registry acting as a different caller.
func (r *Registrar) As(caller string) *Registrar {
	return &Registrar{state: r.state, caller: caller}
}

func (r *Registrar) Register(ctx context.Context, fileName string, fileSize uint64, contentHash string) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}
	if strings.TrimSpace(fileName) == "" || strings.TrimSpace(contentHash) == "" {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrValidation, "register record",
			fmt.Errorf("file name and content hash are required"))
	}
	if fileSize == 0 {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrValidation, "register record",
			fmt.Errorf("file size must be positive"))
	}
	if fileSize > MaxFileSize {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerSizeRange, "register record",
			fmt.Errorf("file size %d exceeds bound %d", fileSize, MaxFileSize))
	}

	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := s.byHash[contentHash]; id != 0 && s.records[id-1].active {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrDuplicateHash, "register record",
			fmt.Errorf("hash already active as record %d", id))
	}

	s.records = append(s.records, record{
		fileName:    fileName,
		fileSize:    fileSize,
		contentHash: contentHash,
		uploader:    r.caller,
		timestamp:   time.Now().UTC(),
		active:      true,
	})
	id := uint64(len(s.records))
	s.byHash[contentHash] = id
	return s.receiptLocked(id), nil
}

func (r *Registrar) Get(ctx context.Context, id uint64) (domain.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerRecord{}, err
	}
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(id)
	if err != nil {
		return domain.LedgerRecord{}, err
	}
	return domain.LedgerRecord{
		ID:          id,
		FileName:    rec.fileName,
		FileSize:    rec.fileSize,
		ContentHash: rec.contentHash,
		Uploader:    rec.uploader,
		Timestamp:   rec.timestamp,
		IsActive:    rec.active,
	}, nil
}

func (r *Registrar) IDByHash(ctx context.Context, contentHash string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byHash[contentHash], nil
}

func (r *Registrar) SoftDelete(ctx context.Context, id uint64) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(id)
	if err != nil {
		return domain.LedgerReceipt{}, err
	}
	if r.caller != rec.uploader && r.caller != s.admin {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerUnauthorized, "soft delete record",
			fmt.Errorf("caller %s is neither uploader nor administrator", r.caller))
	}
	if !rec.active {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerAlreadyDeleted, "soft delete record",
			fmt.Errorf("record %d is inactive", id))
	}
	// The hash index deliberately keeps pointing at the deleted id so a
	// restore can find its way back.
	rec.active = false
	return s.receiptLocked(id), nil
}

func (r *Registrar) Restore(ctx context.Context, id uint64) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(id)
	if err != nil {
		return domain.LedgerReceipt{}, err
	}
	if rec.active {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerAlreadyActive, "restore record",
			fmt.Errorf("record %d is already active", id))
	}
	if mapped := s.byHash[rec.contentHash]; mapped != 0 && mapped != id && s.records[mapped-1].active {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerHashClaimed, "restore record",
			fmt.Errorf("hash now active as record %d", mapped))
	}
	rec.active = true
	s.byHash[rec.contentHash] = id
	return s.receiptLocked(id), nil
}

func (r *Registrar) HardDelete(ctx context.Context, id uint64) (domain.LedgerReceipt, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerReceipt{}, err
	}
	s := r.state
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookupLocked(id)
	if err != nil {
		return domain.LedgerReceipt{}, err
	}
	if r.caller != s.admin {
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerUnauthorized, "hard delete record",
			fmt.Errorf("caller %s is not the administrator", r.caller))
	}
	// Clear the hash index only when it still points here; a later record
	// may have claimed the hash in the meantime and must keep it.
	if s.byHash[rec.contentHash] == id {
		delete(s.byHash, rec.contentHash)
	}
	*rec = record{erased: true}
	return s.receiptLocked(id), nil
}

func (s *state) lookupLocked(id uint64) (*record, error) {
	if id == 0 || id > uint64(len(s.records)) {
		return nil, domain.WrapError(domain.ErrLedgerInvalidID, "lookup record",
			fmt.Errorf("id %d was never assigned", id))
	}
	rec := &s.records[id-1]
	if rec.erased {
		return nil, domain.WrapError(domain.ErrLedgerInvalidID, "lookup record",
			fmt.Errorf("record %d was erased", id))
	}
	return rec, nil
}

func (s *state) receiptLocked(id uint64) domain.LedgerReceipt {
	s.blockHeight++
	return domain.LedgerReceipt{
		ID:          id,
		TxHash:      uuid.NewString(),
		BlockNumber: s.blockHeight,
	}
}
