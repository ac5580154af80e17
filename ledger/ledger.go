// Package ledger is the local bookkeeping side of ingestion: a SQLite
// catalog of processed files, batch runs, and asked questions. The graph
// holds the story knowledge; the ledger holds the pipeline's memory of
// what it has done.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Document statuses recorded per ingestion attempt.
const (
	StatusPending          = "pending"
	StatusProcessed        = "processed"
	StatusSkipped          = "skipped"
	StatusExtractionFailed = "extraction_failed"
	StatusConflict         = "conflict"
)

// Document is a row in the documents catalog.
type Document struct {
	ID           int64  `json:"id"`
	Path         string `json:"path"`
	Filename     string `json:"filename"`
	Kind         string `json:"kind"`
	ContentHash  string `json:"content_hash"`
	Status       string `json:"status"`
	Detail       string `json:"detail,omitempty"`
	ArchivedPath string `json:"archived_path,omitempty"`
	NeedsReview  bool   `json:"needs_review"`
	BatchID      string `json:"batch_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Batch is a row in the batches table.
type Batch struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

// QueryRecord is one entry in the query log.
type QueryRecord struct {
	Question string `json:"question"`
	Cypher   string `json:"cypher,omitempty"`
	Answer   string `json:"answer,omitempty"`
	RowCount int    `json:"row_count"`
	Error    string `json:"error,omitempty"`
}

// Stats summarizes the ledger for the status report.
type Stats struct {
	Documents   int            `json:"documents"`
	ByStatus    map[string]int `json:"by_status"`
	NeedsReview int            `json:"needs_review"`
	Queries     int            `json:"queries"`
	LastBatch   *Batch         `json:"last_batch,omitempty"`
}

// Ledger wraps the SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at the given path and
// initialises the schema.
func Open(dbPath string) (*Ledger, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// HashContent returns the hex SHA-256 of the given content, the identity
// the skip check uses.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// RecordDocument inserts or updates the catalog row for a path.
func (l *Ledger) RecordDocument(ctx context.Context, doc Document) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO documents (path, filename, kind, content_hash, status, detail, archived_path, needs_review, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			kind = excluded.kind,
			content_hash = excluded.content_hash,
			status = excluded.status,
			detail = excluded.detail,
			archived_path = excluded.archived_path,
			needs_review = excluded.needs_review,
			batch_id = excluded.batch_id,
			updated_at = CURRENT_TIMESTAMP
	`, doc.Path, doc.Filename, doc.Kind, doc.ContentHash, doc.Status,
		nullable(doc.Detail), nullable(doc.ArchivedPath), boolInt(doc.NeedsReview), nullable(doc.BatchID))
	if err != nil {
		return fmt.Errorf("recording document %s: %w", doc.Path, err)
	}
	return nil
}

// GetDocumentByPath retrieves a catalog row. Returns (nil, nil) when the
// path has never been seen.
func (l *Ledger) GetDocumentByPath(ctx context.Context, path string) (*Document, error) {
	doc := &Document{}
	var detail, archived, batch sql.NullString
	var needsReview int
	err := l.db.QueryRowContext(ctx, `
		SELECT id, path, filename, kind, content_hash, status, detail, archived_path, needs_review, batch_id, created_at, updated_at
		FROM documents WHERE path = ?
	`, path).Scan(&doc.ID, &doc.Path, &doc.Filename, &doc.Kind, &doc.ContentHash,
		&doc.Status, &detail, &archived, &needsReview, &batch, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc.Detail = detail.String
	doc.ArchivedPath = archived.String
	doc.BatchID = batch.String
	doc.NeedsReview = needsReview != 0
	return doc, nil
}

// SeenUnchanged reports whether the path was already processed with the
// same content hash.
func (l *Ledger) SeenUnchanged(ctx context.Context, path, hash string) (bool, error) {
	doc, err := l.GetDocumentByPath(ctx, path)
	if err != nil {
		return false, err
	}
	return doc != nil && doc.ContentHash == hash && doc.Status == StatusProcessed, nil
}

// ListDocuments returns all catalog rows, newest first.
func (l *Ledger) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, path, filename, kind, content_hash, status, detail, archived_path, needs_review, batch_id, created_at, updated_at
		FROM documents ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var detail, archived, batch sql.NullString
		var needsReview int
		if err := rows.Scan(&d.ID, &d.Path, &d.Filename, &d.Kind, &d.ContentHash,
			&d.Status, &detail, &archived, &needsReview, &batch, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.Detail = detail.String
		d.ArchivedPath = archived.String
		d.BatchID = batch.String
		d.NeedsReview = needsReview != 0
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// StartBatch opens a new batch run and returns its ID.
func (l *Ledger) StartBatch(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if _, err := l.db.ExecContext(ctx, `INSERT INTO batches (id) VALUES (?)`, id); err != nil {
		return "", fmt.Errorf("starting batch: %w", err)
	}
	return id, nil
}

// FinishBatch closes a batch run with its final counts.
func (l *Ledger) FinishBatch(ctx context.Context, id string, processed, failed, skipped int) error {
	_, err := l.db.ExecContext(ctx, `
		UPDATE batches SET finished_at = CURRENT_TIMESTAMP, processed = ?, failed = ?, skipped = ?
		WHERE id = ?
	`, processed, failed, skipped, id)
	if err != nil {
		return fmt.Errorf("finishing batch %s: %w", id, err)
	}
	return nil
}

// LogQuery records a question and its outcome. Logging failures are the
// caller's to ignore; an answer should never fail because audit did.
func (l *Ledger) LogQuery(ctx context.Context, q QueryRecord) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO query_log (question, cypher, answer, row_count, error)
		VALUES (?, ?, ?, ?, ?)
	`, q.Question, nullable(q.Cypher), nullable(q.Answer), q.RowCount, nullable(q.Error))
	return err
}

// Stats summarizes the catalog for the status report.
func (l *Ledger) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int{}}

	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
		stats.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE needs_review = 1`).Scan(&stats.NeedsReview); err != nil {
		return nil, err
	}
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_log`).Scan(&stats.Queries); err != nil {
		return nil, err
	}

	var b Batch
	var finished sql.NullString
	err = l.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, processed, failed, skipped
		FROM batches ORDER BY started_at DESC, id DESC LIMIT 1
	`).Scan(&b.ID, &b.StartedAt, &finished, &b.Processed, &b.Failed, &b.Skipped)
	if err == nil {
		b.FinishedAt = finished.String
		stats.LastBatch = &b
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	return stats, nil
}

// Reset drops all ledger contents. Used by the destructive reset command
// after the operator confirms.
func (l *Ledger) Reset(ctx context.Context) error {
	for _, stmt := range []string{
		`DELETE FROM documents`,
		`DELETE FROM batches`,
		`DELETE FROM query_log`,
	} {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("resetting ledger: %w", err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
