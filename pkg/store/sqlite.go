package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rmax-ai/topolord/pkg/topology"
)

// Store manages the SQLite connection and the documents schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode so readers never block the importer.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		doc_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO store_meta (key, value) VALUES ('revision', 0);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	return nil
}

// ListAll returns every document ordered by id.
func (s *Store) ListAll(ctx context.Context) ([]topology.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, doc_type, payload, updated_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]topology.Document, 0)
	for rows.Next() {
		var (
			d       topology.Document
			docType string
		)
		if err := rows.Scan(&d.ID, &docType, &d.Payload, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Type = topology.DocumentType(docType)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// GetByID returns the document with the given id, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*topology.Document, error) {
	var (
		d       topology.Document
		docType string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, doc_type, payload, updated_at FROM documents WHERE id = ?`,
		strings.TrimSpace(id),
	).Scan(&d.ID, &docType, &d.Payload, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	d.Type = topology.DocumentType(docType)
	return &d, nil
}

// Put inserts or replaces a document and bumps the store revision.
func (s *Store) Put(ctx context.Context, doc topology.Document) error {
	id := strings.TrimSpace(doc.ID)
	if id == "" {
		return fmt.Errorf("document id is required")
	}
	if !doc.Type.Valid() {
		return fmt.Errorf("invalid document type %q", doc.Type)
	}
	updated := doc.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	return s.withRevision(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, doc_type, payload, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET doc_type = excluded.doc_type, payload = excluded.payload, updated_at = excluded.updated_at`,
			id, string(doc.Type), doc.Payload, updated,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert document %s: %w", id, err)
		}
		return nil
	})
}

// Delete removes a document. Deleting a missing id returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withRevision(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, strings.TrimSpace(id))
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ChangeStamp returns the current store revision.
func (s *Store) ChangeStamp(ctx context.Context) (int64, error) {
	var rev int64
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'revision'`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return rev, nil
}

func (s *Store) withRevision(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE store_meta SET value = value + 1 WHERE key = 'revision'`); err != nil {
		return fmt.Errorf("failed to bump revision: %w", err)
	}
	return tx.Commit()
}
