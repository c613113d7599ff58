package schema

import (
	"encoding/json"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Checkpoint holds the schema definition for the Checkpoint entity.
// One row is one immutable snapshot of a GraphState taken after a node
// finishes, keyed by the session it belongs to and the monotonically
// increasing checkpoint id assigned within that session.
type Checkpoint struct {
	ent.Schema
}

// Fields of the Checkpoint.
func (Checkpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("id").
			Unique().
			Immutable().
			Comment("session_id:checkpoint_id, assigned by the caller"),
		field.String("session_id").
			Immutable(),
		field.String("checkpoint_id").
			Immutable().
			Comment("monotonic within session_id only, see NextCheckpointID"),
		field.String("node_name").
			Immutable(),
		field.JSON("state_blob", json.RawMessage{}).
			Immutable().
			Comment("the serialized GraphState"),
		field.JSON("metadata", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.Time("created_at").
			Immutable().
			Default(time.Now),
	}
}

// Annotations of the Checkpoint — keeps the pre-existing table name so the
// hand-authored migrations under pkg/database/migrations don't need renaming.
func (Checkpoint) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "orchestration_checkpoints"},
	}
}

// Indexes of the Checkpoint.
func (Checkpoint) Indexes() []ent.Index {
	return []ent.Index{
		// Defensive: the natural key the store is keyed on, even though id
		// already encodes it uniquely.
		index.Fields("session_id", "checkpoint_id").
			Unique(),
		// Backs Latest/List's descending scan within one session.
		index.Fields("session_id", "created_at"),
	}
}
