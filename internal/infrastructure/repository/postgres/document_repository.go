package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/trustdoc/custody/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	filename TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	content_address TEXT NOT NULL DEFAULT '',
	ledger_id BIGINT NOT NULL DEFAULT 0,
	signed BOOLEAN NOT NULL DEFAULT FALSE,
	signed_at TIMESTAMPTZ,
	revoked BOOLEAN NOT NULL DEFAULT FALSE,
	revoked_at TIMESTAMPTZ,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_active_hash
	ON documents(content_hash) WHERE content_hash <> '' AND deleted = FALSE;
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_ledger_id
	ON documents(ledger_id) WHERE ledger_id <> 0;
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (id, title, filename, owner_id, content_hash, content_address, ledger_id,
	signed, signed_at, revoked, revoked_at, deleted, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`, doc.ID, doc.Title, doc.Filename, doc.OwnerID, doc.ContentHash, doc.ContentAddress, int64(doc.LedgerID),
		doc.Signed, doc.SignedAt, doc.Revoked, doc.RevokedAt, doc.Deleted, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return domain.WrapError(domain.ErrMetadataPersist, "create document", err)
	}
	return nil
}

const documentColumns = `id, title, filename, owner_id, content_hash, content_address, ledger_id,
	signed, signed_at, revoked, revoked_at, deleted, created_at, updated_at`

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListByOrganizationMembers(ctx context.Context, memberIDs []string) ([]domain.Document, error) {
	if len(memberIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE owner_id = ANY($1)
ORDER BY created_at DESC
`, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("list by organization members: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func (r *DocumentRepository) MarkDeleted(ctx context.Context, id string) error {
	return r.setFlag(ctx, "mark deleted", `
UPDATE documents SET deleted = TRUE, updated_at = $2 WHERE id = $1
`, id, time.Now().UTC())
}

func (r *DocumentRepository) ClearDeleted(ctx context.Context, id string) error {
	return r.setFlag(ctx, "clear deleted", `
UPDATE documents SET deleted = FALSE, updated_at = $2 WHERE id = $1
`, id, time.Now().UTC())
}

// MarkSigned sets the signed flag exactly once; a second call finds no
// matching row and reports validation failure.
func (r *DocumentRepository) MarkSigned(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents SET signed = TRUE, signed_at = $2, updated_at = $3
WHERE id = $1 AND signed = FALSE
`, id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark signed: %w", err)
	}
	return r.requireRow(ctx, result, "mark signed", id, domain.ErrValidation)
}

func (r *DocumentRepository) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE documents SET revoked = TRUE, revoked_at = $2, updated_at = $3
WHERE id = $1 AND revoked = FALSE
`, id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark revoked: %w", err)
	}
	return r.requireRow(ctx, result, "mark revoked", id, domain.ErrValidation)
}

func (r *DocumentRepository) setFlag(ctx context.Context, operation, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("no matching document"))
	}
	return nil
}

// requireRow distinguishes "document missing" from "flag already set" so a
// double sign surfaces as validation, not not-found.
func (r *DocumentRepository) requireRow(ctx context.Context, result sql.Result, operation, id string, alreadySet error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("%s existence check: %w", operation, err)
	}
	if !exists {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("id %s", id))
	}
	return domain.WrapError(alreadySet, operation, fmt.Errorf("flag already set on %s", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var ledgerID int64
	if err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Filename,
		&doc.OwnerID,
		&doc.ContentHash,
		&doc.ContentAddress,
		&ledgerID,
		&doc.Signed,
		&doc.SignedAt,
		&doc.Revoked,
		&doc.RevokedAt,
		&doc.Deleted,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	doc.LedgerID = uint64(ledgerID)
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
