// Package storage persists indexed document records, including their embeddings,
// in SQLite. It is the source of truth the in-memory indexes are rebuilt from.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/coskb/internal/models"
	"github.com/hyperjump/coskb/pkg/utils"
)

// SQLiteStorage stores one row per document keyed by page_id.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		page_id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		content_preview TEXT NOT NULL,
		lexical_text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Tx is a write transaction over the documents table.
type Tx struct {
	tx *sql.Tx
}

// Begin starts a write transaction.
func (s *SQLiteStorage) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// UpsertDocument inserts doc or replaces the row with the same page_id.
func (t *Tx) UpsertDocument(ctx context.Context, doc *models.Document) error {
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO documents (page_id, title, path, content_preview, lexical_text, embedding, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(page_id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			content_preview = excluded.content_preview,
			lexical_text = excluded.lexical_text,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Title, doc.Path, doc.ContentPreview, doc.LexicalText,
		utils.EncodeFloat32s(doc.Vector), doc.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert document %d: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument removes the row for id. Missing rows are not an error.
func (t *Tx) DeleteDocument(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM documents WHERE page_id = ?`, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

const selectColumns = `SELECT page_id, title, path, content_preview, lexical_text, embedding, updated_at FROM documents`

// GetDocument returns a document by id, or an error wrapping models.ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE page_id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// idBatch bounds the ids bound into a single IN clause, well under SQLite's
// host parameter limit.
const idBatch = 500

// inBatches calls fn with consecutive slices of at most idBatch ids, along with
// the matching placeholder list and arguments.
func inBatches(ids []int64, fn func(placeholders string, args []any) error) error {
	for start := 0; start < len(ids); start += idBatch {
		batch := ids[start:min(start+idBatch, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		if err := fn(strings.TrimSuffix(strings.Repeat("?,", len(batch)), ","), args); err != nil {
			return err
		}
	}
	return nil
}

// GetDocuments returns the documents for ids that exist, keyed by id.
func (s *SQLiteStorage) GetDocuments(ctx context.Context, ids []int64) (map[int64]*models.Document, error) {
	out := make(map[int64]*models.Document, len(ids))
	err := inBatches(ids, func(placeholders string, args []any) error {
		rows, err := s.db.QueryContext(ctx, selectColumns+` WHERE page_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return fmt.Errorf("query documents: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				return err
			}
			out[doc.ID] = doc
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetTitles returns the titles for ids that exist, keyed by id. Only the title
// column is read, so it suits callers that list many documents at once.
func (s *SQLiteStorage) GetTitles(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	err := inBatches(ids, func(placeholders string, args []any) error {
		rows, err := s.db.QueryContext(ctx, `SELECT page_id, title FROM documents WHERE page_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return fmt.Errorf("query titles: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id    int64
				title string
			)
			if err := rows.Scan(&id, &title); err != nil {
				return err
			}
			out[id] = title
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ForEachDocument calls fn for every stored document in ascending id order.
// Iteration stops at the first error.
func (s *SQLiteStorage) ForEachDocument(ctx context.Context, fn func(*models.Document) error) error {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY page_id`)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// IDs returns every stored id in ascending order.
func (s *SQLiteStorage) IDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT page_id FROM documents ORDER BY page_id`)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns the number of stored documents and the most recent update time
// (nil when the table is empty).
func (s *SQLiteStorage) Stats(ctx context.Context) (int64, *time.Time, error) {
	var count int64
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(updated_at) FROM documents`).Scan(&count, &last)
	if err != nil {
		return 0, nil, fmt.Errorf("query stats: %w", err)
	}
	if !last.Valid {
		return count, nil, nil
	}
	ts := time.Unix(0, last.Int64).UTC()
	return count, &ts, nil
}

// Ping checks that the database answers queries.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(r scanner) (*models.Document, error) {
	var doc models.Document
	var blob []byte
	var updated int64
	if err := r.Scan(&doc.ID, &doc.Title, &doc.Path, &doc.ContentPreview, &doc.LexicalText, &blob, &updated); err != nil {
		return nil, err
	}
	vec, err := utils.DecodeFloat32s(blob)
	if err != nil {
		return nil, fmt.Errorf("document %d embedding: %w", doc.ID, err)
	}
	doc.Vector = vec
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return &doc, nil
}
