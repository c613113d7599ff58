package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opsconsensus/orchestrator/ent"
	"github.com/opsconsensus/orchestrator/pkg/masking"
)

// DefaultRetention is how long a trace or violation row is kept before it
// becomes eligible for cleanup by expires_at.
const DefaultRetention = 30 * 24 * time.Hour

// PostgresSink persists LLM traces and guardrail violations through the
// generated LLMTrace and GuardrailViolation entities, redacting free-text
// fields first. It never broadcasts — this control plane is plain polling
// REST, so there is no listener to notify.
type PostgresSink struct {
	client    *ent.Client
	redactor  *masking.Redactor
	retention time.Duration
	now       func() time.Time
}

// NewPostgresSink builds a Sink over client, redacting free-text fields with
// the pii pattern group before each row is written.
func NewPostgresSink(client *ent.Client) *PostgresSink {
	return &PostgresSink{
		client:    client,
		redactor:  masking.NewPIIRedactor(),
		retention: DefaultRetention,
		now:       time.Now,
	}
}

// EmitLLMTrace persists one completed agent invocation. Failures are logged,
// never returned — see the Sink contract.
func (s *PostgresSink) EmitLLMTrace(ctx context.Context, evt LLMTraceEvent) {
	evt.PromptText = s.redactor.Redact(evt.PromptText)
	evt.ResponseText = s.redactor.Redact(evt.ResponseText)

	payload, err := eventPayload(evt)
	if err != nil {
		slog.Error("observability: failed to marshal llm trace payload", "trace_id", evt.TraceID, "error", err)
		return
	}

	now := s.now()
	err = s.client.LLMTrace.Create().
		SetID(traceID(evt.TraceID)).
		SetSessionID(evt.SessionID).
		SetExecutionID(evt.ExecutionID).
		SetAgentID(evt.AgentID).
		SetModel(evt.Model).
		SetInputTokens(evt.PromptTokens).
		SetOutputTokens(evt.ResponseTokens).
		SetEstimatedCost(evt.TotalCost).
		SetDurationMs(evt.LatencyMs).
		SetStatus(evt.ValidationStatus).
		SetPayload(payload).
		SetCreatedAt(now).
		SetExpiresAt(now.Add(s.retention)).
		Exec(ctx)
	if err != nil && !ent.IsConstraintError(err) {
		slog.Error("observability: failed to persist llm trace", "trace_id", evt.TraceID, "agent_id", evt.AgentID, "error", err)
	}
}

// EmitGuardrailViolation persists one detected guardrail hit. Failures are
// logged, never returned — see the Sink contract.
func (s *PostgresSink) EmitGuardrailViolation(ctx context.Context, evt GuardrailViolationEvent) {
	evt.RedactedInput = s.redactor.Redact(evt.RedactedInput)
	evt.RedactedOutput = s.redactor.Redact(evt.RedactedOutput)

	payload, err := eventPayload(evt)
	if err != nil {
		slog.Error("observability: failed to marshal guardrail violation payload", "violation_id", evt.ViolationID, "error", err)
		return
	}

	now := s.now()
	err = s.client.GuardrailViolation.Create().
		SetID(violationID(evt.ViolationID)).
		SetSessionID(evt.SessionID).
		SetExecutionID(evt.ExecutionID).
		SetAgentID(evt.AgentID).
		SetGuardrailID(evt.Violation.Type).
		SetAction(evt.Violation.Action).
		SetReason(evt.Violation.Category).
		SetPayload(payload).
		SetCreatedAt(now).
		SetExpiresAt(now.Add(s.retention)).
		Exec(ctx)
	if err != nil && !ent.IsConstraintError(err) {
		slog.Error("observability: failed to persist guardrail violation", "violation_id", evt.ViolationID, "agent_id", evt.AgentID, "error", err)
	}
}

// eventPayload round-trips evt through JSON into a map so it can be stored
// in a JSON column via the generated client, which expects Go values rather
// than pre-encoded bytes.
func eventPayload(evt interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func traceID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func violationID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

var _ Sink = (*PostgresSink)(nil)
