// Package checkpoint persists GraphState snapshots keyed by session so a
// crashed or externally-cancelled run can resume from the exact node last
// completed. The store never inspects the blob it is handed; it only
// partitions by session_id and sorts by checkpoint_id within a partition.
package checkpoint

import (
	"context"
	"fmt"
	"time"
)

// Checkpoint is one persisted snapshot of a GraphState.
type Checkpoint struct {
	SessionID    string
	CheckpointID string
	NodeName     string
	StateBlob    []byte
	Metadata     map[string]interface{}
	CreatedAt    time.Time
}

// Store is the checkpoint interface every component depends on. Treat this
// richer shape — put/latest/list over a single, explicit Checkpoint value —
// as canonical; a thinner put/get/list pair exists only in the teacher's
// legacy callers, which this package has no reason to reproduce.
type Store interface {
	// Put writes a checkpoint. Idempotent on (session_id, checkpoint_id):
	// a duplicate write from a concurrent second invoker with the same
	// session_id is permitted and is a no-op.
	Put(ctx context.Context, c Checkpoint) error

	// Latest returns the highest checkpoint_id for session_id, or nil if
	// none exists.
	Latest(ctx context.Context, sessionID string) (*Checkpoint, error)

	// List returns up to limit checkpoints for session_id, descending by
	// checkpoint_id. limit <= 0 means no limit.
	List(ctx context.Context, sessionID string, limit int) ([]Checkpoint, error)
}

// NextCheckpointID formats a monotonically increasing checkpoint id that
// sorts lexicographically in the same order as numerically, per the
// external checkpoint table schema's sort-key contract.
func NextCheckpointID(n int) string {
	return fmt.Sprintf("%012d", n)
}
