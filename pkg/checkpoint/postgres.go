package checkpoint

import (
	"context"
	"encoding/json"

	"github.com/opsconsensus/orchestrator/ent"
	entcheckpoint "github.com/opsconsensus/orchestrator/ent/checkpoint"
)

// PostgresStore is the production Store, backed by the generated Checkpoint
// entity (see ent/schema/checkpoint.go and the orchestration_checkpoints
// table it maps onto).
type PostgresStore struct {
	client *ent.Client
}

// NewPostgresStore wraps an already-migrated Ent client.
func NewPostgresStore(client *ent.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

func (s *PostgresStore) Put(ctx context.Context, c Checkpoint) error {
	create := s.client.Checkpoint.Create().
		SetID(c.SessionID + ":" + c.CheckpointID).
		SetSessionID(c.SessionID).
		SetCheckpointID(c.CheckpointID).
		SetNodeName(c.NodeName).
		SetStateBlob(json.RawMessage(c.StateBlob))
	if c.Metadata != nil {
		create = create.SetMetadata(c.Metadata)
	}

	err := create.Exec(ctx)
	if err != nil && ent.IsConstraintError(err) {
		// Duplicate write from a concurrent second invoker with the same
		// (session_id, checkpoint_id) — permitted no-op, see Store.Put.
		return nil
	}
	return err
}

func (s *PostgresStore) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row, err := s.client.Checkpoint.Query().
		Where(entcheckpoint.SessionIDEQ(sessionID)).
		Order(ent.Desc(entcheckpoint.FieldCheckpointID)).
		First(ctx)
	if ent.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromEnt(row), nil
}

func (s *PostgresStore) List(ctx context.Context, sessionID string, limit int) ([]Checkpoint, error) {
	q := s.client.Checkpoint.Query().
		Where(entcheckpoint.SessionIDEQ(sessionID)).
		Order(ent.Desc(entcheckpoint.FieldCheckpointID))
	if limit > 0 {
		q = q.Limit(limit)
	}

	rows, err := q.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Checkpoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, *fromEnt(r))
	}
	return out, nil
}

func fromEnt(r *ent.Checkpoint) *Checkpoint {
	return &Checkpoint{
		SessionID:    r.SessionID,
		CheckpointID: r.CheckpointID,
		NodeName:     r.NodeName,
		StateBlob:    []byte(r.StateBlob),
		Metadata:     r.Metadata,
		CreatedAt:    r.CreatedAt,
	}
}
