// Package gateway talks to the ledger gateway service, the HTTP front of the
// append-only registry. The gateway holds the signing key; this client owns
// transaction ordering by funneling every state-changing call through a
// single submitter goroutine, so two concurrent writes can never race for
// the signer's nonce.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/infrastructure/resilience"
)

type Options struct {
	BaseURL string
	// SignerID identifies the gateway-side signing account; sent on every
	// write so the gateway can enforce record ownership.
	SignerID string
	// SettleTimeout bounds how long one write may wait for settlement.
	SettleTimeout time.Duration
	HTTPTimeout   time.Duration
	Executor      *resilience.Executor
}

type Registrar struct {
	baseURL       string
	signerID      string
	settleTimeout time.Duration
	httpClient    *http.Client
	executor      *resilience.Executor

	submitCh chan submission
	done     chan struct{}
}

type submission struct {
	ctx    context.Context
	method string
	path   string
	body   any
	result chan submitResult
}

type submitResult struct {
	receipt domain.LedgerReceipt
	err     error
}

func New(options Options) (*Registrar, error) {
	if strings.TrimSpace(options.BaseURL) == "" {
		return nil, fmt.Errorf("ledger gateway base url is required")
	}
	settleTimeout := options.SettleTimeout
	if settleTimeout <= 0 {
		settleTimeout = 90 * time.Second
	}
	httpTimeout := options.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = settleTimeout + 10*time.Second
	}
	executor := options.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultPolicy())
	}

	r := &Registrar{
		baseURL:       strings.TrimRight(options.BaseURL, "/"),
		signerID:      options.SignerID,
		settleTimeout: settleTimeout,
		httpClient:    &http.Client{Timeout: httpTimeout},
		executor:      executor,
		submitCh:      make(chan submission),
		done:          make(chan struct{}),
	}
	go r.submitLoop()
	return r, nil
}

// Close stops the submitter. Pending submissions complete first.
func (r *Registrar) Close() {
	close(r.submitCh)
	<-r.done
}

// Register appends a record for contentHash. A cheap read-side duplicate
// check runs first to fail fast, but the gateway's commit is the sole
// authority on hash uniqueness; losing a race here still surfaces as
// ErrDuplicateHash from the commit itself.
func (r *Registrar) Register(ctx context.Context, fileName string, fileSize uint64, contentHash string) (domain.LedgerReceipt, error) {
	if id, err := r.IDByHash(ctx, contentHash); err == nil && id != 0 {
		record, err := r.Get(ctx, id)
		if err == nil && record.IsActive {
			return domain.LedgerReceipt{}, domain.WrapError(domain.ErrDuplicateHash, "register record",
				fmt.Errorf("hash already active as record %d", id))
		}
	}

	return r.submit(ctx, http.MethodPost, "/v1/records", registerRequest{
		FileName:    fileName,
		FileSize:    fileSize,
		ContentHash: contentHash,
	})
}

func (r *Registrar) Get(ctx context.Context, id uint64) (domain.LedgerRecord, error) {
	var payload recordResponse
	err := r.executor.Execute(ctx, "ledger.get", func(ctx context.Context) error {
		return r.getJSON(ctx, fmt.Sprintf("/v1/records/%d", id), &payload)
	}, classifyRead)
	if err != nil {
		return domain.LedgerRecord{}, err
	}
	return payload.toDomain(), nil
}

// IDByHash returns 0 when no record carries the hash.
func (r *Registrar) IDByHash(ctx context.Context, contentHash string) (uint64, error) {
	var payload struct {
		ID uint64 `json:"id"`
	}
	err := r.executor.Execute(ctx, "ledger.id_by_hash", func(ctx context.Context) error {
		return r.getJSON(ctx, "/v1/records/hash/"+contentHash, &payload)
	}, classifyRead)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return payload.ID, nil
}

func (r *Registrar) SoftDelete(ctx context.Context, id uint64) (domain.LedgerReceipt, error) {
	return r.submit(ctx, http.MethodPost, fmt.Sprintf("/v1/records/%d/delete", id), nil)
}

func (r *Registrar) Restore(ctx context.Context, id uint64) (domain.LedgerReceipt, error) {
	return r.submit(ctx, http.MethodPost, fmt.Sprintf("/v1/records/%d/restore", id), nil)
}

func (r *Registrar) HardDelete(ctx context.Context, id uint64) (domain.LedgerReceipt, error) {
	return r.submit(ctx, http.MethodPost, fmt.Sprintf("/v1/records/%d/hard-delete", id), nil)
}

func (r *Registrar) submit(ctx context.Context, method, path string, body any) (domain.LedgerReceipt, error) {
	sub := submission{
		ctx:    ctx,
		method: method,
		path:   path,
		body:   body,
		result: make(chan submitResult, 1),
	}
	select {
	case r.submitCh <- sub:
	case <-ctx.Done():
		return domain.LedgerReceipt{}, ctx.Err()
	}
	select {
	case res := <-sub.result:
		return res.receipt, res.err
	case <-ctx.Done():
		// The write may still settle at the gateway; the caller only loses
		// the receipt, not the record.
		return domain.LedgerReceipt{}, domain.WrapError(domain.ErrLedgerTimeout, "submit "+path,
			fmt.Errorf("abandoned wait, transaction may still settle: %w", ctx.Err()))
	}
}

func (r *Registrar) submitLoop() {
	defer close(r.done)
	for sub := range r.submitCh {
		sub.result <- r.performSubmit(sub)
	}
}

func (r *Registrar) performSubmit(sub submission) submitResult {
	// Settlement is bounded independently of the caller so an impatient
	// caller does not cancel an already-signed transaction mid-flight.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(sub.ctx), r.settleTimeout)
	defer cancel()

	var receipt receiptResponse
	err := r.doJSON(ctx, sub.method, sub.path, sub.body, &receipt)
	if errors.Is(err, context.DeadlineExceeded) {
		return submitResult{err: domain.WrapError(domain.ErrLedgerTimeout, "submit "+sub.path,
			fmt.Errorf("no settlement within %s, transaction may still settle", r.settleTimeout))}
	}
	if err != nil {
		return submitResult{err: err}
	}
	return submitResult{receipt: domain.LedgerReceipt{
		ID:          receipt.ID,
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	}}
}

func (r *Registrar) getJSON(ctx context.Context, path string, out any) error {
	return r.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (r *Registrar) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.signerID != "" {
		req.Header.Set("X-Signer-Id", r.signerID)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return context.DeadlineExceeded
		}
		return domain.WrapError(domain.ErrTemporary, method+" "+path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, method+" "+path, err)
	}

	if resp.StatusCode >= 400 {
		return mapGatewayError(method+" "+path, resp.StatusCode, payload)
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

func classifyRead(err error) resilience.Verdict {
	if domain.IsKind(err, domain.ErrTemporary) {
		return resilience.Verdict{Retry: true, CountFailure: true}
	}
	if domain.IsKind(err, domain.ErrNotFound) || domain.IsKind(err, domain.ErrLedgerInvalidID) {
		return resilience.Verdict{Retry: false, CountFailure: false}
	}
	return resilience.Verdict{Retry: false, CountFailure: true}
}

type registerRequest struct {
	FileName    string `json:"file_name"`
	FileSize    uint64 `json:"file_size"`
	ContentHash string `json:"content_hash"`
}

type receiptResponse struct {
	ID          uint64 `json:"id"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

type recordResponse struct {
	ID          uint64 `json:"id"`
	FileName    string `json:"file_name"`
	FileSize    uint64 `json:"file_size"`
	ContentHash string `json:"content_hash"`
	Uploader    string `json:"uploader"`
	Timestamp   int64  `json:"timestamp"`
	IsActive    bool   `json:"is_active"`
}

func (r recordResponse) toDomain() domain.LedgerRecord {
	return domain.LedgerRecord{
		ID:          r.ID,
		FileName:    r.FileName,
		FileSize:    r.FileSize,
		ContentHash: r.ContentHash,
		Uploader:    r.Uploader,
		Timestamp:   time.Unix(r.Timestamp, 0).UTC(),
		IsActive:    r.IsActive,
	}
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapGatewayError(operation string, status int, payload []byte) error {
	var body gatewayError
	_ = json.Unmarshal(payload, &body)
	detail := body.Message
	if detail == "" {
		detail = strings.TrimSpace(string(payload))
	}
	if detail == "" {
		detail = http.StatusText(status)
	}
	cause := fmt.Errorf("gateway responded %d: %s", status, detail)

	switch body.Code {
	case "duplicate_active_hash":
		return domain.WrapError(domain.ErrDuplicateHash, operation, cause)
	case "invalid_id":
		return domain.WrapError(domain.ErrLedgerInvalidID, operation, cause)
	case "unauthorized":
		return domain.WrapError(domain.ErrLedgerUnauthorized, operation, cause)
	case "already_deleted":
		return domain.WrapError(domain.ErrLedgerAlreadyDeleted, operation, cause)
	case "already_active":
		return domain.WrapError(domain.ErrLedgerAlreadyActive, operation, cause)
	case "hash_claimed":
		return domain.WrapError(domain.ErrLedgerHashClaimed, operation, cause)
	case "size_out_of_range":
		return domain.WrapError(domain.ErrLedgerSizeRange, operation, cause)
	case "invalid_argument":
		return domain.WrapError(domain.ErrValidation, operation, cause)
	}

	switch status {
	case http.StatusNotFound:
		return domain.WrapError(domain.ErrNotFound, operation, cause)
	case http.StatusForbidden, http.StatusUnauthorized:
		return domain.WrapError(domain.ErrLedgerUnauthorized, operation, cause)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return domain.WrapError(domain.ErrTemporary, operation, cause)
	}
	return cause
}
