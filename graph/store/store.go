// Package store persists the state of graph runs step by step.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run has no persisted steps.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists the merged state after each node of a run.
//
// The engine calls SaveStep once per executed node. The step trace is what
// the service exposes for failed and cancelled runs, so implementations must
// keep every step, not only the latest.
//
// Implementations must be safe for concurrent use by many runs.
//
// Type parameter S is the state type to persist (must be JSON-serializable
// for the SQL stores).
type Store[S any] interface {
	// SaveStep persists the state after step (1-indexed) of runID, produced by
	// nodeID. Saving the same (runID, step) twice replaces the first record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state of the highest step of runID.
	// Returns ErrNotFound when the run has no steps.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// LoadSteps returns every step of runID in step order.
	// Returns ErrNotFound when the run has no steps.
	LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error)
}

// StepRecord is one persisted step of a run.
type StepRecord[S any] struct {
	// Step is the 1-indexed position of the step in the run.
	Step int `json:"step"`

	// NodeID is the node that produced this state.
	NodeID string `json:"node_id"`

	// State is the merged state after the node ran.
	State S `json:"state"`

	// SavedAt is when the step was persisted.
	SavedAt time.Time `json:"saved_at"`
}
