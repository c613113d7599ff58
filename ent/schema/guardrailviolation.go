package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// GuardrailViolation holds the schema definition for the GuardrailViolation
// entity: one detected guardrail hit, BLOCK or WARN.
type GuardrailViolation struct {
	ent.Schema
}

// Fields of the GuardrailViolation.
func (GuardrailViolation) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("violation_id").
			Unique().
			Immutable(),
		field.String("session_id").
			Immutable(),
		field.String("execution_id").
			Immutable(),
		field.String("agent_id").
			Immutable(),
		field.String("guardrail_id").
			Immutable(),
		field.String("guardrail_version").
			Optional(),
		field.String("action").
			Immutable(),
		field.String("reason").
			Optional(),
		field.JSON("payload", map[string]interface{}{}).
			Optional().
			Comment("redacted event payload"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("expires_at"),
	}
}

// Annotations of the GuardrailViolation — keeps the pre-existing table name.
func (GuardrailViolation) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "guardrail_violations"},
	}
}

// Indexes of the GuardrailViolation.
func (GuardrailViolation) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("session_id", "created_at"),
		index.Fields("expires_at"),
	}
}
