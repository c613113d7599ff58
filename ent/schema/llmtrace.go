package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LLMTrace holds the schema definition for the LLMTrace entity: one
// completed agent invocation, redacted and persisted for later audit.
type LLMTrace struct {
	ent.Schema
}

// Fields of the LLMTrace.
func (LLMTrace) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("trace_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.String("execution_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.String("model").
			Immutable(),
		field.Int64("input_tokens").
			Default(0),
		field.Int64("output_tokens").
			Default(0),
		field.Float("estimated_cost").
			Default(0),
		field.Int64("duration_ms").
			Default(0),
		field.String("status"),
		field.JSON("payload", map[string]interface{}{}).
			Optional().
			Comment("redacted event payload"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at"),
	}
}

// Annotations of the LLMTrace — keeps the pre-existing table name.
func (LLMTrace) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "llm_traces"},
	}
}

// Indexes of the LLMTrace.
func (LLMTrace) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "created_at"),
		index.Fields("expires_at"),
	}
}
