package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("invalid input")
	ErrNotFound   = errors.New("document not found")
	ErrForbidden  = errors.New("forbidden")
	ErrTemporary  = errors.New("temporary failure")

	ErrHashTimeout = errors.New("hash computation timed out")
	ErrHashProcess = errors.New("hash process failed")
	ErrHashFormat  = errors.New("hash digest malformed")

	ErrContentStore   = errors.New("content store unavailable")
	ErrContentReclaim = errors.New("content reclaim failed")

	ErrDuplicateHash        = errors.New("active ledger record with same content hash")
	ErrLedgerUnauthorized   = errors.New("ledger caller not authorized")
	ErrLedgerInvalidID      = errors.New("ledger id invalid")
	ErrLedgerAlreadyDeleted = errors.New("ledger record already deleted")
	ErrLedgerAlreadyActive  = errors.New("ledger record already active")
	ErrLedgerHashClaimed    = errors.New("content hash claimed by another active record")
	ErrLedgerSizeRange      = errors.New("file size out of ledger range")
	ErrLedgerTimeout        = errors.New("ledger settlement timed out")

	ErrMetadataPersist = errors.New("metadata persistence failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
