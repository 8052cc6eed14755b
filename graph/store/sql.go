package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name       string
	schema     []string
	upsertStep string
}

// sqlStore implements Store[S] on database/sql. SQLiteStore and MySQLStore
// embed it with their own dialect.
type sqlStore[S any] struct {
	db      *sql.DB
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

func (s *sqlStore[S]) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// SaveStep persists a run step. A step saved twice is replaced.
func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.upsertStep, runID, step, nodeID, string(stateJSON), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadLatest returns the highest step of runID.
func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (state S, step int, err error) {
	if err := s.checkOpen(); err != nil {
		return state, 0, err
	}

	query := `
		SELECT step, state
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step DESC
		LIMIT 1
	`

	var stateJSON string
	err = s.db.QueryRowContext(ctx, query, runID).Scan(&step, &stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return state, 0, ErrNotFound
	}
	if err != nil {
		return state, 0, fmt.Errorf("failed to load latest step: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		var zero S
		return zero, 0, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, step, nil
}

// LoadSteps returns every step of runID in order.
func (s *sqlStore[S]) LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `
		SELECT step, node_id, state, saved_at
		FROM workflow_steps
		WHERE run_id = ?
		ORDER BY step ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	var out []StepRecord[S]
	for rows.Next() {
		var (
			rec       StepRecord[S]
			stateJSON string
		)
		if err := rows.Scan(&rec.Step, &rec.NodeID, &stateJSON, &rec.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
			return nil, fmt.Errorf("failed to unmarshal state of step %d: %w", rec.Step, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// DeleteRun removes every step of runID.
func (s *sqlStore[S]) DeleteRun(ctx context.Context, runID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workflow_steps WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the database connection.
//
// After Close, all operations return ErrClosed.
// Calling Close multiple times is safe.
func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *sqlStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}
