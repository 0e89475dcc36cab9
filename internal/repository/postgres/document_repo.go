package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"

	"eventregistration/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_data_gin ON documents USING GIN (data jsonb_path_ops);
`

// EnsureSchema creates the documents table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

type documentStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewDocumentStore returns a domain.EntityStore backed by a single JSONB documents table.
func NewDocumentStore(db *sql.DB) domain.EntityStore {
	return &documentStore{
		DB:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *documentStore) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	query := `
		SELECT data, version, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	doc := &domain.Document{Collection: collection, ID: id}
	var data []byte
	err := r.DB.QueryRowContext(ctx, query, collection, id).
		Scan(&data, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	doc.Data = data
	return doc, nil
}

func (r *documentStore) Create(ctx context.Context, collection, id string, fields domain.Fields) (*domain.Document, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	query := `
		INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		RETURNING version, created_at, updated_at
	`
	doc := &domain.Document{Collection: collection, ID: id, Data: data}
	err = r.DB.QueryRowContext(ctx, query, collection, id, data, r.now()).
		Scan(&doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrAlreadyExists
		}
		return nil, err
	}
	return doc, nil
}

func (r *documentStore) Set(ctx context.Context, collection, id string, fields domain.Fields) (*domain.Document, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	query := `
		INSERT INTO documents (collection, id, data, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $4)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = EXCLUDED.updated_at
		RETURNING data, version, created_at, updated_at
	`
	return r.scanWrite(r.DB.QueryRowContext(ctx, query, collection, id, data, r.now()), collection, id)
}

func (r *documentStore) Update(ctx context.Context, collection, id string, fields domain.Fields) (*domain.Document, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	query := `
		UPDATE documents
		SET data = data || $3::jsonb, version = version + 1, updated_at = $4
		WHERE collection = $1 AND id = $2
		RETURNING data, version, created_at, updated_at
	`
	doc, err := r.scanWrite(r.DB.QueryRowContext(ctx, query, collection, id, patch, r.now()), collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

func (r *documentStore) UpdateIfMatch(ctx context.Context, collection, id string, version int64, fields domain.Fields) (*domain.Document, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	query := `
		UPDATE documents
		SET data = data || $3::jsonb, version = version + 1, updated_at = $4
		WHERE collection = $1 AND id = $2 AND version = $5
		RETURNING data, version, created_at, updated_at
	`
	doc, err := r.scanWrite(r.DB.QueryRowContext(ctx, query, collection, id, patch, r.now(), version), collection, id)
	if !errors.Is(err, sql.ErrNoRows) {
		return doc, err
	}

	// Nothing matched: tell a stale version apart from a missing document.
	var exists bool
	existsQuery := `SELECT EXISTS(SELECT 1 FROM documents WHERE collection = $1 AND id = $2)`
	if err := r.DB.QueryRowContext(ctx, existsQuery, collection, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrNotFound
	}
	return nil, domain.ErrPreconditionFailed
}

func (r *documentStore) Query(ctx context.Context, collection string, filter domain.Fields) ([]*domain.Document, error) {
	if filter == nil {
		filter = domain.Fields{}
	}
	match, err := json.Marshal(filter)
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}
	query := `
		SELECT id, data, version, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY created_at, id
	`
	rows, err := r.DB.QueryContext(ctx, query, collection, match)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0)
	for rows.Next() {
		doc := &domain.Document{Collection: collection}
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Data = data
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *documentStore) scanWrite(row *sql.Row, collection, id string) (*domain.Document, error) {
	doc := &domain.Document{Collection: collection, ID: id}
	var data []byte
	if err := row.Scan(&data, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	doc.Data = data
	return doc, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation
}
