// Package observability defines the two out-of-band event shapes the
// invoker emits — LLM traces and guardrail violations — and the Sink
// contract that consumes them. Every Sink implementation must be
// best-effort: a Sink method must never propagate a failure back into the
// invoker, and callers dispatch emission fire-and-forget (see
// pkg/invoker's use of a detached goroutine).
//
// Only one Sink should be constructed per process and threaded everywhere
// a component needs to emit — see DESIGN.md's resolution of the duplicate
// emission path question. A second, independently-wired emission path
// would double-count guardrail metrics.
package observability

import "context"

// LLMTraceEvent is one completed agent invocation, prior to redaction.
// Downstream Sink implementations redact PII from the free-text fields
// before persistence — see pkg/masking.
type LLMTraceEvent struct {
	TraceID          string
	SchemaVersion    string
	IncidentID       string
	ExecutionID      string
	SessionID        string
	AgentID          string
	AgentVersion     string
	Model            string
	PromptText       string
	PromptTokens     int64
	ResponseText     string
	ResponseTokens   int64
	FinishReason     string
	LatencyMs        int64
	InputCost        float64
	OutputCost       float64
	TotalCost        float64
	RetryCount       int
	AppliedGuardrails []string
	ValidationStatus string
}

// GuardrailViolation is the violation payload embedded in a
// GuardrailViolationEvent.
type GuardrailViolation struct {
	Type       string
	Action     string // "BLOCK" or "WARN"
	Category   string
	Threshold  float64
	Confidence float64
}

// GuardrailResponse describes how the agent's own response was affected.
type GuardrailResponse struct {
	Blocked      bool
	RetryAllowed bool
}

// GuardrailViolationEvent is one detected guardrail hit, BLOCK or WARN.
type GuardrailViolationEvent struct {
	ViolationID    string
	Timestamp      string
	TraceID        string
	AgentID        string
	IncidentID     string
	ExecutionID    string
	SessionID      string
	Violation      GuardrailViolation
	RedactedInput  string
	RedactedOutput string
	Response       GuardrailResponse
	Metadata       map[string]interface{}
}

// Sink is the single out-of-band emission contract for traces and guardrail
// violations. Implementations must swallow their own failures; methods
// return nothing to enforce that a Sink cannot signal an error the caller
// would feel obligated to handle.
type Sink interface {
	EmitLLMTrace(ctx context.Context, evt LLMTraceEvent)
	EmitGuardrailViolation(ctx context.Context, evt GuardrailViolationEvent)
}

// NoopSink discards every event. Used in tests and whenever an invoker is
// constructed without a wired observability plane.
type NoopSink struct{}

func (NoopSink) EmitLLMTrace(context.Context, LLMTraceEvent)                     {}
func (NoopSink) EmitGuardrailViolation(context.Context, GuardrailViolationEvent) {}

var _ Sink = NoopSink{}
