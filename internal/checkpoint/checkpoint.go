// Package checkpoint implements the checkpoint & namespace model described
// in spec §4.3: per-(thread, checkpoint_ns) state snapshots with full
// history, opaque to this server beyond the contract below. The graph
// framework (internal/graph) writes checkpoints during execution; this
// server only reads them back for state/history endpoints and to compute
// the merged "initial values" snapshot before streaming (spec §4.7.5).
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no checkpoint exists for the given thread/namespace.
var ErrNotFound = errors.New("checkpoint: not found")

// Snapshot is a single checkpointed state, keyed by its compound identity
// so clients can resume or branch from it (spec §4.3).
type Snapshot struct {
	ThreadID     string
	CheckpointNS string
	CheckpointID string
	Values       map[string]any
	Next         []string
	Tasks        []string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Checkpointer is the contract a graph execution acquires per-request
// (spec §4.3, §5): a scoped connection obtained in a block that guarantees
// release on every exit path, never a shared pool with an internal lock.
type Checkpointer interface {
	// GetState returns the latest snapshot for (threadID, checkpointNS), or
	// ErrNotFound if no checkpoint exists yet (e.g. turn 1 of a conversation).
	GetState(ctx context.Context, threadID, checkpointNS string) (Snapshot, error)

	// GetHistory returns snapshots in descending time order. limit is used
	// as given; ClampHistoryLimit bounds a raw value to [1, 1000]. before, when
	// non-empty, restricts results to snapshots older than that checkpoint
	// ID.
	GetHistory(ctx context.Context, threadID, checkpointNS string, limit int, before string) ([]Snapshot, error)

	// Put is invoked by the graph framework as it executes; the server
	// itself never calls Put directly outside of tests, but depends on it
	// to make subsequent GetState/GetHistory calls observe the write.
	Put(ctx context.Context, snap Snapshot) error

	// Delete removes every snapshot for (threadID, checkpointNS). Used by
	// the run lifecycle engine's "rollback" multitask policy to erase the
	// artifacts of a run it is discarding (spec §4.7.1).
	Delete(ctx context.Context, threadID, checkpointNS string) error

	// Close releases the scoped connection. Safe to call multiple times.
	Close(ctx context.Context) error
}

// Factory acquires a new Checkpointer for the duration of a single request.
// Implementations must not share mutable/locked state across concurrent
// acquisitions — see spec §5's "shared pool with internal lock is a trap"
// design note.
type Factory interface {
	Acquire(ctx context.Context) (Checkpointer, error)
}

// ClampHistoryLimit enforces the boundary behavior in spec §8: 0 is
// rejected by the HTTP layer before reaching here; values above 1000 are
// clamped down to 1000.
func ClampHistoryLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
