// Package index loads exported record sets into a SQLite database and runs
// keyword searches over them.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Lllllllleong/lantern/internal/models"
)

// Index is a SQLite-backed search index.
type Index struct {
	db *sql.DB
}

// Open opens or creates the index at path.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS pages (
	page_id TEXT PRIMARY KEY,
	ord INTEGER NOT NULL,
	sequence_id TEXT NOT NULL,
	page_position INTEGER NOT NULL,
	sequence_order INTEGER,
	image_path TEXT,
	summary TEXT,
	doc_type TEXT,
	confidence REAL,
	ocr_backend TEXT,
	ocr_error TEXT,
	degraded INTEGER NOT NULL DEFAULT 0,
	has_text INTEGER NOT NULL DEFAULT 0,
	search_text TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS pages_sequence ON pages(sequence_id, page_position);
CREATE INDEX IF NOT EXISTS pages_doc_type ON pages(doc_type);

CREATE TABLE IF NOT EXISTS sequences (
	sequence_id TEXT PRIMARY KEY,
	ord INTEGER NOT NULL,
	summary TEXT,
	num_pages INTEGER NOT NULL,
	singleton INTEGER NOT NULL DEFAULT 0,
	order_conflict INTEGER NOT NULL DEFAULT 0,
	degraded INTEGER NOT NULL DEFAULT 0,
	page_ids TEXT NOT NULL,
	search_text TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS page_entities (
	page_id TEXT NOT NULL,
	type TEXT NOT NULL,
	text TEXT NOT NULL,
	UNIQUE(page_id, type, text),
	FOREIGN KEY(page_id) REFERENCES pages(page_id) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Load replaces the index contents with the given record sets.
func (ix *Index) Load(ctx context.Context, pages []models.PageInsight, sequences []models.SequenceInsight) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{"DELETE FROM page_entities", "DELETE FROM pages", "DELETE FROM sequences"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear index: %w", err)
		}
	}

	const pageStmt = `
INSERT INTO pages (page_id, ord, sequence_id, page_position, sequence_order, image_path, summary,
	doc_type, confidence, ocr_backend, ocr_error, degraded, has_text, search_text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, p := range pages {
		var order, ocrErr any
		if p.SequenceOrder != nil {
			order = *p.SequenceOrder
		}
		if p.OCRError != nil {
			ocrErr = *p.OCRError
		}
		_, err := tx.ExecContext(ctx, pageStmt,
			p.PageID, i, p.SequenceID, p.PagePosition, order, p.ImagePath, p.Summary,
			p.DocType, p.Confidence, p.OCRBackend, ocrErr, p.Degraded, HasText(p), p.SearchText)
		if err != nil {
			return fmt.Errorf("failed to insert page %s: %w", p.PageID, err)
		}
		for _, e := range p.Entities {
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO page_entities (page_id, type, text) VALUES (?, ?, ?)`,
				p.PageID, e.Type, e.Text)
			if err != nil {
				return fmt.Errorf("failed to insert entity for page %s: %w", p.PageID, err)
			}
		}
	}

	const seqStmt = `
INSERT INTO sequences (sequence_id, ord, summary, num_pages, singleton, order_conflict, degraded, page_ids, search_text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, s := range sequences {
		ids, err := json.Marshal(s.PageIDs)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, seqStmt,
			s.SequenceID, i, s.Summary, s.NumPages, s.Singleton, s.OrderConflict, s.Degraded, string(ids), s.SearchText)
		if err != nil {
			return fmt.Errorf("failed to insert sequence %s: %w", s.SequenceID, err)
		}
	}
	return tx.Commit()
}

// HasText reports whether a page carries text read from its image rather
// than placeholder text or nothing.
func HasText(p models.PageInsight) bool {
	return p.OCRError == nil &&
		strings.TrimSpace(p.CleanText) != "" &&
		!slices.Contains(p.DegradedReasons, models.DegradedOCRFallback)
}

// Query selects pages. Every term must occur in the page's search text.
type Query struct {
	Terms      []string
	DocType    string
	SequenceID string
	EntityType string
	TextOnly   bool
	Limit      int
}

// Hit is one matching page.
type Hit struct {
	PageID       string
	SequenceID   string
	PagePosition int
	DocType      string
	Summary      string
	Confidence   float64
	HasText      bool
}

// Search returns matching pages in export order.
func (ix *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	var (
		where []string
		args  []any
	)
	for _, term := range q.Terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		where = append(where, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if q.DocType != "" {
		where = append(where, "doc_type = ?")
		args = append(args, q.DocType)
	}
	if q.SequenceID != "" {
		where = append(where, "sequence_id = ?")
		args = append(args, q.SequenceID)
	}
	if q.EntityType != "" {
		where = append(where, "EXISTS (SELECT 1 FROM page_entities e WHERE e.page_id = pages.page_id AND e.type = ?)")
		args = append(args, strings.ToUpper(q.EntityType))
	}
	if q.TextOnly {
		where = append(where, "has_text = 1")
	}

	stmt := "SELECT page_id, sequence_id, page_position, COALESCE(doc_type, ''), COALESCE(summary, ''), COALESCE(confidence, 0), has_text FROM pages"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY ord"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := ix.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search pages: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.PageID, &h.SequenceID, &h.PagePosition, &h.DocType, &h.Summary, &h.Confidence, &h.HasText); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Sequence returns one indexed sequence, or nil when it is unknown.
func (ix *Index) Sequence(ctx context.Context, id string) (*models.SequenceInsight, error) {
	var (
		s   models.SequenceInsight
		ids string
	)
	err := ix.db.QueryRowContext(ctx,
		`SELECT sequence_id, COALESCE(summary, ''), num_pages, singleton, order_conflict, degraded, page_ids, search_text
FROM sequences WHERE sequence_id = ?`, id).
		Scan(&s.SequenceID, &s.Summary, &s.NumPages, &s.Singleton, &s.OrderConflict, &s.Degraded, &ids, &s.SearchText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sequence %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(ids), &s.PageIDs); err != nil {
		return nil, fmt.Errorf("failed to decode page ids of %s: %w", id, err)
	}
	return &s, nil
}

// Counts returns the number of indexed pages, pages with text and
// sequences.
func (ix *Index) Counts(ctx context.Context) (pages, withText, sequences int, err error) {
	err = ix.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM pages), (SELECT COUNT(*) FROM pages WHERE has_text = 1), (SELECT COUNT(*) FROM sequences)`).
		Scan(&pages, &withText, &sequences)
	return pages, withText, sequences, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
