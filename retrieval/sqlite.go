package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/abdulmalikadeyemo/email-assistant/graph/store"
)

// SQLiteIndex is an Index persisted in a SQLite database. It replaces the
// knowledge-base directory the service loads at startup.
//
// Vectors are stored as little-endian float64 blobs and ranked in process;
// a knowledge base of a few thousand chunks searches in milliseconds.
type SQLiteIndex struct {
	db   *sql.DB
	path string

	mu  sync.Mutex
	dim int
}

const sqliteIndexSchema = `CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL,
	dim INTEGER NOT NULL,
	embedding BLOB NOT NULL
)`

// OpenSQLiteIndex opens (creating if needed) the index database at path.
// Use ":memory:" for a throwaway index.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if _, err := db.ExecContext(ctx, sqliteIndexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create index schema: %w", err)
	}

	idx := &SQLiteIndex{db: db, path: path}
	err = db.QueryRowContext(ctx, `SELECT dim FROM documents LIMIT 1`).Scan(&idx.dim)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read index dimension: %w", err)
	}
	return idx, nil
}

// Path returns the database file path.
func (s *SQLiteIndex) Path() string { return s.path }

// Upsert implements Index. All documents are written in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, docs []Document, vectors [][]float64) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("upsert: %d documents but %d vectors", len(docs), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for i, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("upsert: document %d has no ID", i)
		}
		if err := checkDim(&dim, len(vectors[i])); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, metadata, dim, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			dim = excluded.dim,
			embedding = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata of %s: %w", doc.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, doc.Content, string(meta), len(vectors[i]), encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", doc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	s.dim = dim
	return nil
}

// Search implements Index.
func (s *SQLiteIndex) Search(ctx context.Context, query []float64, k int) ([]Document, error) {
	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()
	if dim != 0 && len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), dim)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var candidates []entry
	for rows.Next() {
		var (
			doc  Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", doc.ID, err)
			}
		}
		candidates = append(candidates, entry{doc: doc, vector: decodeVector(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return rank(candidates, query, k), nil
}

// Count implements Index.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Close implements Index.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
