// Package state defines the immutable value objects that flow through the
// orchestration graph: the evidence envelope on the way in, one verdict per
// agent, the aggregated consensus and budget accounting, and the aggregate
// GraphState that is checkpointed after every node.
//
// Every type here is a value object. Once constructed, none of its fields
// are mutated in place; every transition is expressed as a method on
// GraphState that returns a new GraphState with the relevant collection
// shallow-copied and extended. This is load-bearing for replay determinism:
// a partially-applied in-place mutation could corrupt a checkpoint taken
// mid-node.
package state

import (
	"encoding/json"
	"fmt"
)

// Agent statuses. An AgentOutput's Status is always one of these four.
const (
	StatusSuccess = "SUCCESS"
	StatusPartial = "PARTIAL"
	StatusTimeout = "TIMEOUT"
	StatusFailure = "FAILURE"
)

// Execution trace statuses.
const (
	TraceStarted   = "STARTED"
	TraceCompleted = "COMPLETED"
	TraceFailed    = "FAILED"
	TraceRetrying  = "RETRYING"
)

// HypothesisDisclaimer is the literal token every AgentOutput.Disclaimer
// must contain. Every hypothesis, real or synthesized on failure, carries it.
const HypothesisDisclaimer = "HYPOTHESIS_ONLY_NOT_AUTHORITATIVE"

// AgentInput is the immutable evidence envelope frozen once at graph entry.
// Every downstream state derived from the same run carries the identical
// value here.
type AgentInput struct {
	IncidentID      string          `json:"incident_id"`
	EvidenceBundle  json.RawMessage `json:"evidence_bundle"`
	Timestamp       string          `json:"timestamp"`
	ExecutionID     string          `json:"execution_id"`
	SessionID       string          `json:"session_id"`
	BudgetRemaining float64         `json:"budget_remaining"`
	Context         json.RawMessage `json:"context,omitempty"`
	ReplayMetadata  json.RawMessage `json:"replay_metadata,omitempty"`
}

// Cost is the per-invocation token and dollar accounting embedded in every
// AgentOutput and aggregated by the cost guardian.
type Cost struct {
	InputTokens   int64   `json:"inputTokens"`
	OutputTokens  int64   `json:"outputTokens"`
	EstimatedCost float64 `json:"estimatedCost"`
	Model         string  `json:"model"`
}

// ZeroCost is the cost value used for pre-invocation failures.
var ZeroCost = Cost{Model: "N/A"}

// Recommendation is one actionable suggestion inside an AgentOutput's
// findings.
type Recommendation struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Findings is the agent-specific structured result of one invocation.
// Arbitrary JSON object; the only field the core inspects directly is
// "recommendations".
type Findings map[string]interface{}

// Recommendations extracts and decodes the "recommendations" entry, if
// present. Returns nil if findings carries none or the shape doesn't match.
func (f Findings) Recommendations() []Recommendation {
	raw, ok := f["recommendations"]
	if !ok {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var recs []Recommendation
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil
	}
	return recs
}

// ReplayMetadata carries the deterministic hash used to verify replay.
type ReplayMetadata struct {
	DeterministicHash string `json:"deterministicHash"`
	SchemaVersion     string `json:"schemaVersion"`
}

// StructuredError is a classified failure, drawn from the fixed taxonomy
// described alongside the invoker.
type StructuredError struct {
	AgentID      string                 `json:"agent_id"`
	ErrorCode    string                 `json:"error_code"`
	Message      string                 `json:"message"`
	Retryable    bool                   `json:"retryable"`
	Timestamp    string                 `json:"timestamp"`
	RetryAttempt int                    `json:"retry_attempt"`
	Details      map[string]interface{} `json:"details,omitempty"`
}

// AgentOutput is one agent's verdict for one orchestration run.
type AgentOutput struct {
	AgentID        string          `json:"agent_id"`
	AgentVersion   string          `json:"agent_version"`
	ExecutionID    string          `json:"execution_id"`
	Timestamp      string          `json:"timestamp"`
	DurationMs     int64           `json:"duration_ms"`
	Status         string          `json:"status"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning"`
	Disclaimer     string          `json:"disclaimer"`
	Findings       Findings        `json:"findings"`
	Citations      []string        `json:"citations,omitempty"`
	Cost           Cost            `json:"cost"`
	Error          *StructuredError `json:"error,omitempty"`
	ReplayMetadata ReplayMetadata  `json:"replay_metadata"`
}

// Conflict is one detected disagreement between agent recommendations.
type Conflict struct {
	ConflictType string   `json:"conflict_type"`
	AgentIDs     []string `json:"agent_ids"`
	Resolution   string   `json:"resolution"`
	Description  string   `json:"description,omitempty"`
}

// Conflict type discriminators.
const (
	ConflictActionTypeDivergence = "ACTION_TYPE_DIVERGENCE"
	ConflictConfidenceDivergence = "CONFIDENCE_DIVERGENCE"
)

// QualityMetrics are the three [0,1] scores describing one consensus result.
type QualityMetrics struct {
	DataCompleteness   float64 `json:"data_completeness"`
	CitationQuality    float64 `json:"citation_quality"`
	ReasoningCoherence float64 `json:"reasoning_coherence"`
}

// ConsensusResult is the output of the consensus aggregator, set exactly
// once per run.
type ConsensusResult struct {
	AggregatedConfidence  float64        `json:"aggregated_confidence"`
	AgreementLevel        float64        `json:"agreement_level"`
	ConflictsDetected     []Conflict     `json:"conflicts_detected"`
	UnifiedRecommendation string         `json:"unified_recommendation"`
	MinorityOpinions      []string       `json:"minority_opinions"`
	QualityMetrics        QualityMetrics `json:"quality_metrics"`
	Timestamp             string         `json:"timestamp"`
}

// Projections are the cost guardian's forward-looking estimates.
type Projections struct {
	MonthlyBurn        float64 `json:"monthlyBurn"`
	IncidentsRemaining int64   `json:"incidentsRemaining"`
}

// CostGuardianResult is the output of the cost guardian, set exactly once
// per run.
type CostGuardianResult struct {
	TotalCost       float64         `json:"total_cost"`
	BudgetRemaining float64         `json:"budget_remaining"`
	BudgetExceeded  bool            `json:"budget_exceeded"`
	PerAgentCost    map[string]Cost `json:"per_agent_cost"`
	Projections     Projections     `json:"projections"`
	Timestamp       string          `json:"timestamp"`
}

// ExecutionTraceEntry is one entry in the append-only execution trace.
type ExecutionTraceEntry struct {
	NodeID     string                 `json:"node_id"`
	Timestamp  string                 `json:"timestamp"`
	DurationMs int64                  `json:"duration_ms"`
	Status     string                 `json:"status"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// GraphState is the aggregate, run-scoped state threaded through every
// node. It is never mutated; every node receives a GraphState and returns a
// new one via the With* methods below.
type GraphState struct {
	AgentInput      AgentInput             `json:"agent_input"`
	Hypotheses      map[string]AgentOutput `json:"hypotheses"`
	Consensus       *ConsensusResult       `json:"consensus,omitempty"`
	CostGuardian    *CostGuardianResult    `json:"cost_guardian,omitempty"`
	BudgetRemaining float64                `json:"budget_remaining"`
	RetryCount      map[string]int         `json:"retry_count"`
	ExecutionTrace  []ExecutionTraceEntry  `json:"execution_trace"`
	Errors          []StructuredError      `json:"errors"`
	SessionID       string                 `json:"session_id"`
	StartTimestamp  string                 `json:"start_timestamp"`
}

// New constructs the initial GraphState at graph entry from a validated
// input. budgetRemaining seeds both the input snapshot and the running
// balance that the cost guardian alone updates thereafter.
func New(input AgentInput, startTimestamp string) GraphState {
	return GraphState{
		AgentInput:      input,
		Hypotheses:      map[string]AgentOutput{},
		BudgetRemaining: input.BudgetRemaining,
		RetryCount:      map[string]int{},
		SessionID:       input.SessionID,
		StartTimestamp:  startTimestamp,
	}
}

// HasHypothesis reports whether agentID's slot has already been written.
func (s GraphState) HasHypothesis(agentID string) bool {
	_, ok := s.Hypotheses[agentID]
	return ok
}

// RetryAttempt returns the number of retries recorded so far for agentID.
func (s GraphState) RetryAttempt(agentID string) int {
	return s.RetryCount[agentID]
}

// WithHypothesis returns a new GraphState with hypotheses[agentID] set to
// output. Panics if the slot was already written — a second write to the
// same slot is a programming bug, not a runtime fault.
func (s GraphState) WithHypothesis(agentID string, output AgentOutput) GraphState {
	if s.HasHypothesis(agentID) {
		panic(fmt.Sprintf("state: hypotheses[%s] already written", agentID))
	}
	next := make(map[string]AgentOutput, len(s.Hypotheses)+1)
	for k, v := range s.Hypotheses {
		next[k] = v
	}
	next[agentID] = output
	s.Hypotheses = next
	return s
}

// WithRetryIncrement returns a new GraphState with retry_count[agentID]
// incremented by one.
func (s GraphState) WithRetryIncrement(agentID string) GraphState {
	next := make(map[string]int, len(s.RetryCount)+1)
	for k, v := range s.RetryCount {
		next[k] = v
	}
	next[agentID]++
	s.RetryCount = next
	return s
}

// WithTraceEntry appends an entry to the execution trace.
func (s GraphState) WithTraceEntry(entry ExecutionTraceEntry) GraphState {
	next := make([]ExecutionTraceEntry, len(s.ExecutionTrace), len(s.ExecutionTrace)+1)
	copy(next, s.ExecutionTrace)
	s.ExecutionTrace = append(next, entry)
	return s
}

// WithError appends a structured error.
func (s GraphState) WithError(err StructuredError) GraphState {
	next := make([]StructuredError, len(s.Errors), len(s.Errors)+1)
	copy(next, s.Errors)
	s.Errors = append(next, err)
	return s
}

// WithConsensus sets state.consensus. Panics if already set.
func (s GraphState) WithConsensus(result ConsensusResult) GraphState {
	if s.Consensus != nil {
		panic("state: consensus already set")
	}
	s.Consensus = &result
	return s
}

// WithCostGuardian sets state.cost_guardian and updates budget_remaining in
// the same step — the cost guardian is the only writer of
// budget_remaining after graph entry.
func (s GraphState) WithCostGuardian(result CostGuardianResult) GraphState {
	if s.CostGuardian != nil {
		panic("state: cost_guardian already set")
	}
	s.CostGuardian = &result
	s.BudgetRemaining = result.BudgetRemaining
	return s
}
