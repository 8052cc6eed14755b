package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS workflow_steps (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			state TEXT NOT NULL,
			saved_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_steps_run_id ON workflow_steps(run_id)`,
	},
	upsertStep: `
		INSERT INTO workflow_steps (run_id, step, node_id, state, saved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET
			node_id = excluded.node_id,
			state = excluded.state,
			saved_at = excluded.saved_at
	`,
}

// SQLiteStore is a SQLite implementation of Store[S].
//
// It stores run steps in a single-file database with zero setup, which makes
// it the default persistent store for a single service instance.
//
// SQLiteStore uses WAL mode for concurrent reads and a single writer
// connection.
//
// Type parameter S is the state type to persist (must be JSON-serializable).
type SQLiteStore[S any] struct {
	sqlStore[S]
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for a throwaway database.
//
// Example:
//
//	st, err := NewSQLiteStore[graph.State]("./runs.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}

	st := &SQLiteStore[S]{
		sqlStore: sqlStore[S]{db: db, dialect: sqliteDialect},
		path:     path,
	}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

// OpenSQLite opens a SQLite database with the pragmas every SQLite-backed
// component in this module uses: WAL journal, foreign keys, and a 5s busy
// timeout. SQLite supports one writer at a time, so the pool holds a single
// connection.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
