// Package invoker wraps a single remote agent call and integrates its
// verdict into the orchestration state. It is the core's most complex
// component: input validation, request assembly, guardrail enforcement,
// streamed-response parsing, output schema validation, cost extraction, a
// deterministic hash, retry classification, and failure-as-hypothesis
// synthesis on anything that cannot be salvaged.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsconsensus/orchestrator/internal/agentpb"
	"github.com/opsconsensus/orchestrator/pkg/config"
	"github.com/opsconsensus/orchestrator/pkg/masking"
	"github.com/opsconsensus/orchestrator/pkg/observability"
	"github.com/opsconsensus/orchestrator/pkg/state"
)

// Defaults: a 30s per-call timeout, two retries.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 2
)

// SchemaVersion is stamped into every AgentOutput's replay metadata.
const SchemaVersion = "1"

// Invoker drives one agent slot's invoke(state) → state transition.
type Invoker struct {
	agentID      string
	transport    agentpb.Transport
	endpoint     config.AgentEndpointConfig
	guardrailID  string
	pricing      *config.PricingRegistry
	sink         observability.Sink
	evidenceMask *masking.Redactor
	now          func() time.Time
}

// New builds an Invoker for one fixed agent slot. endpoint's Timeout and
// MaxRetries, when zero, fall back to the package defaults.
func New(agentID string, transport agentpb.Transport, endpoint config.AgentEndpointConfig, guardrailID string, pricing *config.PricingRegistry, sink observability.Sink) *Invoker {
	if sink == nil {
		sink = observability.NoopSink{}
	}
	return &Invoker{
		agentID:      agentID,
		transport:    transport,
		endpoint:     endpoint,
		guardrailID:  guardrailID,
		pricing:      pricing,
		sink:         sink,
		evidenceMask: masking.NewRedactor("kubernetes"),
		now:          time.Now,
	}
}

func (iv *Invoker) timeout() time.Duration {
	if iv.endpoint.Timeout > 0 {
		return iv.endpoint.Timeout
	}
	return DefaultTimeout
}

func (iv *Invoker) maxRetries() int {
	if iv.endpoint.MaxRetries > 0 {
		return iv.endpoint.MaxRetries
	}
	return DefaultMaxRetries
}

func (iv *Invoker) nowStr() string {
	return iv.now().UTC().Format(time.RFC3339Nano)
}

// Invoke runs the full algorithm for one agent call and returns the next
// GraphState. It never panics for reasons outside iv's own configuration
// (a deployment bug is the one case that legitimately aborts).
func (iv *Invoker) Invoke(ctx context.Context, s state.GraphState) state.GraphState {
	start := iv.now()
	attempt := s.RetryAttempt(iv.agentID)

	s = s.WithTraceEntry(state.ExecutionTraceEntry{
		NodeID: iv.agentID, Timestamp: iv.nowStr(), Status: state.TraceStarted,
		Metadata: map[string]interface{}{"retry_attempt": attempt},
	})
	slog.Info("agent invocation started", "agent_id", iv.agentID, "execution_id", s.AgentInput.ExecutionID, "session_id", s.AgentInput.SessionID, "retry_attempt", attempt)

	if iv.endpoint.Endpoint == "" || iv.endpoint.Model == "" {
		panic(fmt.Sprintf("invoker: agent %s has no configured endpoint or model — deployment bug", iv.agentID))
	}

	if err := validateInput(s.AgentInput); err != nil {
		return iv.failNonRetryable(s, attempt, ErrInvalidInput, err.Error(), state.ZeroCost, start)
	}

	reqText, err := buildRequestText(s.AgentInput)
	if err != nil {
		return iv.failNonRetryable(s, attempt, ErrInternalError, err.Error(), state.ZeroCost, start)
	}
	// Evidence bundles are assembled from live cluster state and routinely
	// embed whole Secret manifests (kubectl get -o yaml dumps); strip their
	// data before anything leaves this process for the agent.
	reqText = iv.evidenceMask.Redact(reqText)

	callCtx, cancel := context.WithTimeout(ctx, iv.timeout())
	defer cancel()

	recv, err := iv.transport.InvokeAgent(callCtx, &agentpb.InvokeAgentRequest{
		SessionID:   s.AgentInput.SessionID,
		AgentID:     iv.agentID,
		InputText:   reqText,
		GuardrailID: iv.guardrailID,
	})
	if err != nil {
		code := classifyTransportError(err)
		return iv.handleFailure(s, attempt, code, err.Error(), state.ZeroCost, start)
	}

	var text strings.Builder
	var usage *agentpb.UsageSignal
	var appliedGuardrails []string

	for {
		chunk, recvErr := recv.Recv()
		if recvErr == io.EOF {
			break
		}
		if recvErr != nil {
			code := classifyTransportError(recvErr)
			return iv.handleFailure(s, attempt, code, recvErr.Error(), iv.extractCost(usage), start)
		}

		if chunk.Error != nil {
			code := normalizeErrorCode(chunk.Error.Code)
			return iv.handleFailure(s, attempt, code, chunk.Error.Message, iv.extractCost(usage), start)
		}

		if chunk.Usage != nil {
			usage = chunk.Usage
		}

		if chunk.Guardrail != nil {
			confidence := guardrailConfidence(chunk.Guardrail)
			appliedGuardrails = append(appliedGuardrails, chunk.Guardrail.Action)

			if strings.EqualFold(chunk.Guardrail.Action, "BLOCKED") {
				iv.emitGuardrailViolation(s, "BLOCK", confidence, reqText, text.String(), true)
				return iv.handleFailure(s, attempt, ErrGuardrailBlocked, "blocked by guardrail", iv.extractCost(usage), start)
			}
			iv.emitGuardrailViolation(s, "WARN", confidence, reqText, text.String(), false)
			continue
		}

		text.WriteString(chunk.Text)
		if chunk.Final {
			break
		}
	}

	responseText := text.String()
	if responseText == "" {
		return iv.handleFailure(s, attempt, ErrOutputValidationFailed, "empty response stream", iv.extractCost(usage), start)
	}

	var parsed parsedOutput
	if err := json.Unmarshal([]byte(responseText), &parsed); err != nil {
		return iv.handleFailure(s, attempt, ErrOutputValidationFailed, "response is not valid JSON", iv.extractCost(usage), start)
	}

	confidence, status, disclaimer, err := validateOutput(parsed)
	if err != nil {
		return iv.handleFailure(s, attempt, ErrSchemaValidationFailed, err.Error(), iv.extractCost(usage), start)
	}

	cost := iv.extractCost(usage)
	findings := state.Findings(parsed.Findings)

	hash, err := state.DeterministicHash(s.AgentInput, findings, confidence)
	if err != nil {
		return iv.handleFailure(s, attempt, ErrInternalError, err.Error(), cost, start)
	}

	output := state.AgentOutput{
		AgentID:      iv.agentID,
		AgentVersion: iv.endpoint.Model,
		ExecutionID:  s.AgentInput.ExecutionID,
		Timestamp:    iv.nowStr(),
		DurationMs:   iv.now().Sub(start).Milliseconds(),
		Status:       status,
		Confidence:   confidence,
		Reasoning:    parsed.Reasoning,
		Disclaimer:   disclaimer,
		Findings:     findings,
		Citations:    parsed.Citations,
		Cost:         cost,
		ReplayMetadata: state.ReplayMetadata{
			DeterministicHash: hash,
			SchemaVersion:     SchemaVersion,
		},
	}

	iv.emitTrace(s, reqText, responseText, usage, cost, attempt, appliedGuardrails, "VALID")

	s = s.WithHypothesis(iv.agentID, output)
	slog.Info("agent invocation completed", "agent_id", iv.agentID, "execution_id", s.AgentInput.ExecutionID, "status", status, "confidence", confidence)
	return s.WithTraceEntry(state.ExecutionTraceEntry{
		NodeID: iv.agentID, Timestamp: iv.nowStr(), Status: state.TraceCompleted,
		Metadata: map[string]interface{}{"confidence": confidence, "status": status},
	})
}

// handleFailure classifies a failure and either signals a retry or
// synthesizes a failure hypothesis.
func (iv *Invoker) handleFailure(s state.GraphState, attempt int, code, message string, cost state.Cost, start time.Time) state.GraphState {
	if isRetryable(code) && attempt < iv.maxRetries() {
		slog.Warn("agent invocation retrying", "agent_id", iv.agentID, "error_code", code, "retry_attempt", attempt+1)
		s = s.WithTraceEntry(state.ExecutionTraceEntry{
			NodeID: iv.agentID, Timestamp: iv.nowStr(), Status: state.TraceRetrying,
			Metadata: map[string]interface{}{"error_code": code, "retry_attempt": attempt + 1},
		})
		return s.WithRetryIncrement(iv.agentID)
	}
	return iv.failNonRetryable(s, attempt, code, message, cost, start)
}

func (iv *Invoker) failNonRetryable(s state.GraphState, attempt int, code, message string, cost state.Cost, start time.Time) state.GraphState {
	slog.Error("agent invocation failed", "agent_id", iv.agentID, "error_code", code, "message", message)

	structuredErr := state.StructuredError{
		AgentID: iv.agentID, ErrorCode: code, Message: message,
		Retryable: isRetryable(code), Timestamp: iv.nowStr(), RetryAttempt: attempt,
	}
	failure := state.AgentOutput{
		AgentID:     iv.agentID,
		ExecutionID: s.AgentInput.ExecutionID,
		Timestamp:   iv.nowStr(),
		DurationMs:  iv.now().Sub(start).Milliseconds(),
		Status:      state.StatusFailure,
		Confidence:  0.0,
		Reasoning:   fmt.Sprintf("Agent failed: %s", message),
		Disclaimer:  state.HypothesisDisclaimer,
		Findings:    state.Findings{"error": code},
		Cost:        cost,
		ReplayMetadata: state.ReplayMetadata{
			DeterministicHash: state.FailureHash,
			SchemaVersion:     SchemaVersion,
		},
	}

	s = s.WithHypothesis(iv.agentID, failure)
	s = s.WithError(structuredErr)
	return s.WithTraceEntry(state.ExecutionTraceEntry{
		NodeID: iv.agentID, Timestamp: iv.nowStr(), Status: state.TraceFailed,
		Metadata: map[string]interface{}{"error_code": code},
	})
}

func guardrailConfidence(g *agentpb.GuardrailSignal) float64 {
	if g.Confidence != nil {
		return *g.Confidence
	}
	return 1.0
}

func (iv *Invoker) extractCost(usage *agentpb.UsageSignal) state.Cost {
	if usage == nil {
		return state.ZeroCost
	}
	entry, err := iv.pricing.Get(usage.Model)
	if err != nil {
		slog.Warn("no pricing entry for model, treating as zero cost", "model", usage.Model, "agent_id", iv.agentID)
		return state.Cost{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens, EstimatedCost: 0, Model: usage.Model}
	}
	inputCost := float64(usage.InputTokens) / 1e6 * entry.InputPricePerMillion
	outputCost := float64(usage.OutputTokens) / 1e6 * entry.OutputPricePerMillion
	return state.Cost{
		InputTokens:   usage.InputTokens,
		OutputTokens:  usage.OutputTokens,
		EstimatedCost: round6(inputCost + outputCost),
		Model:         usage.Model,
	}
}

func buildRequestText(in state.AgentInput) (string, error) {
	payload := struct {
		IncidentID      string          `json:"incidentId"`
		EvidenceBundle  json.RawMessage `json:"evidenceBundle"`
		Timestamp       string          `json:"timestamp"`
		ExecutionID     string          `json:"executionId"`
		BudgetRemaining float64         `json:"budgetRemaining"`
	}{in.IncidentID, in.EvidenceBundle, in.Timestamp, in.ExecutionID, in.BudgetRemaining}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// emitTrace and emitGuardrailViolation dispatch fire-and-forget: the
// invoker enqueues onto a detached goroutine and never waits, and any
// panic inside the sink is recovered and logged rather than propagated.
func (iv *Invoker) emitTrace(s state.GraphState, reqText, respText string, usage *agentpb.UsageSignal, cost state.Cost, retryCount int, guardrails []string, validationStatus string) {
	model := cost.Model
	var promptTokens, responseTokens int64
	if usage != nil {
		promptTokens, responseTokens = usage.InputTokens, usage.OutputTokens
	}
	evt := observability.LLMTraceEvent{
		TraceID:           uuid.NewString(),
		SchemaVersion:     SchemaVersion,
		IncidentID:        s.AgentInput.IncidentID,
		ExecutionID:       s.AgentInput.ExecutionID,
		SessionID:         s.AgentInput.SessionID,
		AgentID:           iv.agentID,
		AgentVersion:      iv.endpoint.Model,
		Model:             model,
		PromptText:        reqText,
		PromptTokens:      promptTokens,
		ResponseText:      respText,
		ResponseTokens:    responseTokens,
		FinishReason:      validationStatus,
		TotalCost:         cost.EstimatedCost,
		RetryCount:        retryCount,
		AppliedGuardrails: guardrails,
		ValidationStatus:  validationStatus,
	}
	iv.dispatch(func() { iv.sink.EmitLLMTrace(context.Background(), evt) })
}

func (iv *Invoker) emitGuardrailViolation(s state.GraphState, action string, confidence float64, reqText, respTextSoFar string, blocked bool) {
	evt := observability.GuardrailViolationEvent{
		ViolationID: uuid.NewString(),
		Timestamp:   iv.nowStr(),
		AgentID:     iv.agentID,
		IncidentID:  s.AgentInput.IncidentID,
		ExecutionID: s.AgentInput.ExecutionID,
		SessionID:   s.AgentInput.SessionID,
		Violation: observability.GuardrailViolation{
			Type:       iv.guardrailID,
			Action:     action,
			Confidence: confidence,
		},
		RedactedInput:  reqText,
		RedactedOutput: respTextSoFar,
		Response: observability.GuardrailResponse{
			Blocked:      blocked,
			RetryAllowed: false,
		},
	}
	iv.dispatch(func() { iv.sink.EmitGuardrailViolation(context.Background(), evt) })
}

func (iv *Invoker) dispatch(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("observability emission panicked", "recover", r, "agent_id", iv.agentID)
			}
		}()
		fn()
	}()
}

func round6(v float64) float64 {
	return float64(int64(v*1e6+0.5)) / 1e6
}
