// Package graph compiles the fixed linear topology — six agent slots then
// consensus then the cost guardian — and drives it node by node,
// checkpointing after every attempt so a crashed or externally-cancelled
// run resumes from the exact node last completed. It owns no business
// logic of its own: every node function lives in pkg/invoker,
// pkg/consensus, or pkg/costguardian, and the driver's only job is
// sequencing, persistence, and backoff.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/opsconsensus/orchestrator/pkg/checkpoint"
	"github.com/opsconsensus/orchestrator/pkg/config"
	"github.com/opsconsensus/orchestrator/pkg/consensus"
	"github.com/opsconsensus/orchestrator/pkg/costguardian"
	"github.com/opsconsensus/orchestrator/pkg/invoker"
	"github.com/opsconsensus/orchestrator/pkg/state"
)

// maxBackoffSeconds caps the exponential backoff between retries.
const maxBackoffSeconds = 4

// Driver sequences the fixed topology ENTRY → six agent slots → consensus
// → cost-guardian → TERMINAL.
type Driver struct {
	agentOrder   []string
	invokers     map[string]*invoker.Invoker
	store        checkpoint.Store
	weight       consensus.WeightFunc
	costDefaults costguardian.Defaults
	now          func() time.Time
	sleep        func(time.Duration)
}

// New builds a Driver over the fixed agent slot order. invokers must carry
// one entry per slot in config.FixedAgentSlots.
func New(invokers map[string]*invoker.Invoker, store checkpoint.Store, weight consensus.WeightFunc, costDefaults costguardian.Defaults) *Driver {
	return &Driver{
		agentOrder:   config.FixedAgentSlots,
		invokers:     invokers,
		store:        store,
		weight:       weight,
		costDefaults: costDefaults,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// Recommendation is the terminal output's condensed view of the consensus
// result.
type Recommendation struct {
	Unified           string   `json:"unified"`
	Confidence        float64  `json:"confidence"`
	AgreementLevel    float64  `json:"agreement_level"`
	ConflictsDetected int      `json:"conflicts_detected"`
	MinorityOpinions  []string `json:"minority_opinions"`
}

// ExecutionSummary is the terminal output's run-level rollup.
type ExecutionSummary struct {
	DurationMs      int64 `json:"duration_ms"`
	AgentsSucceeded int   `json:"agents_succeeded"`
	AgentsFailed    int   `json:"agents_failed"`
	TotalRetries    int   `json:"total_retries"`
	ErrorsCount     int   `json:"errors_count"`
}

// TerminalOutput is the public result of a completed run.
type TerminalOutput struct {
	IncidentID       string                      `json:"incident_id"`
	Recommendation   Recommendation              `json:"recommendation"`
	AgentOutputs     map[string]state.AgentOutput `json:"agent_outputs"`
	Consensus        state.ConsensusResult       `json:"consensus"`
	Cost             state.CostGuardianResult    `json:"cost"`
	ExecutionSummary ExecutionSummary            `json:"execution_summary"`
	ExecutionTrace   []state.ExecutionTraceEntry `json:"execution_trace"`
	Errors           []state.StructuredError     `json:"errors"`
	Timestamp        string                      `json:"timestamp"`
}

// Run drives one orchestration to completion, resuming from the latest
// checkpoint if input.SessionID already has one. It returns an error only
// for two driver-level failure classes: entry validation before any
// checkpoint exists, and a missing invoker for a configured agent slot
// (a deployment bug). Every other failure is absorbed into the terminal
// output as failed hypotheses plus entries in errors.
func (d *Driver) Run(ctx context.Context, input state.AgentInput) (*TerminalOutput, error) {
	if input.SessionID == "" {
		return nil, errors.New("graph: session_id is required")
	}

	nowStr := func() string { return d.now().UTC().Format(time.RFC3339Nano) }

	existing, err := d.store.Latest(ctx, input.SessionID)
	if err != nil {
		return nil, fmt.Errorf("graph: loading checkpoint: %w", err)
	}

	var s state.GraphState
	nextCheckpoint := 0

	if existing != nil {
		if err := json.Unmarshal(existing.StateBlob, &s); err != nil {
			return nil, fmt.Errorf("graph: decoding checkpoint: %w", err)
		}
		n, err := strconv.Atoi(existing.CheckpointID)
		if err != nil {
			return nil, fmt.Errorf("graph: malformed checkpoint id %q: %w", existing.CheckpointID, err)
		}
		nextCheckpoint = n + 1
	} else {
		if err := validateEntry(&input, nowStr()); err != nil {
			return nil, fmt.Errorf("graph: %w", err)
		}
		s = state.New(input, nowStr())
		s = s.WithTraceEntry(state.ExecutionTraceEntry{NodeID: "entry", Timestamp: nowStr(), Status: state.TraceCompleted})
		if err := d.persist(ctx, input.SessionID, &nextCheckpoint, s, "entry"); err != nil {
			return nil, fmt.Errorf("graph: checkpointing entry: %w", err)
		}
	}

	for _, agentID := range d.agentOrder {
		agentInvoker, ok := d.invokers[agentID]
		if !ok {
			return nil, fmt.Errorf("graph: no invoker configured for agent slot %s — deployment bug", agentID)
		}
		for !s.HasHypothesis(agentID) {
			s = agentInvoker.Invoke(ctx, s)
			if err := d.persist(ctx, input.SessionID, &nextCheckpoint, s, agentID); err != nil {
				return nil, fmt.Errorf("graph: checkpointing %s: %w", agentID, err)
			}
			if !s.HasHypothesis(agentID) {
				attempt := s.RetryAttempt(agentID)
				d.sleep(backoff(attempt))
			}
		}
	}

	if s.Consensus == nil {
		s = consensus.Aggregate(s, d.agentOrder, d.weight, nowStr)
		if err := d.persist(ctx, input.SessionID, &nextCheckpoint, s, consensus.NodeID); err != nil {
			return nil, fmt.Errorf("graph: checkpointing consensus: %w", err)
		}
	}

	if s.CostGuardian == nil {
		s = costguardian.Assess(s, d.costDefaults, nowStr)
		if err := d.persist(ctx, input.SessionID, &nextCheckpoint, s, costguardian.NodeID); err != nil {
			return nil, fmt.Errorf("graph: checkpointing cost-guardian: %w", err)
		}
	}

	if err := validateTerminal(s, d.agentOrder); err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	return buildTerminalOutput(s, d.now()), nil
}

// ErrSessionNotFound is returned by Status when session_id has no
// checkpoint at all.
var ErrSessionNotFound = errors.New("graph: no checkpoint for session")

// ErrNotTerminal is returned by Status when the latest checkpoint has not
// yet reached the terminal node. It is not an error condition for the
// caller — a still-running or crashed-and-unresumed session is a normal
// state — just a signal to report "in progress" rather than a result.
var ErrNotTerminal = errors.New("graph: session has not reached terminal node")

// Status performs a read-only poll of session_id's latest checkpoint: it
// never invokes an agent, advances the topology, or writes a new
// checkpoint. Use Run (with the same session_id) to actually resume and
// complete an interrupted session; Status only reports where it stands.
func (d *Driver) Status(ctx context.Context, sessionID string) (*TerminalOutput, error) {
	existing, err := d.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("graph: loading checkpoint: %w", err)
	}
	if existing == nil {
		return nil, ErrSessionNotFound
	}

	var s state.GraphState
	if err := json.Unmarshal(existing.StateBlob, &s); err != nil {
		return nil, fmt.Errorf("graph: decoding checkpoint: %w", err)
	}

	if err := validateTerminal(s, d.agentOrder); err != nil {
		return nil, ErrNotTerminal
	}

	return buildTerminalOutput(s, d.now()), nil
}

func (d *Driver) persist(ctx context.Context, sessionID string, next *int, s state.GraphState, node string) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return err
	}
	err = d.store.Put(ctx, checkpoint.Checkpoint{
		SessionID:    sessionID,
		CheckpointID: checkpoint.NextCheckpointID(*next),
		NodeName:     node,
		StateBlob:    blob,
	})
	*next++
	return err
}

// backoff computes the exponential wait between retries: min(2^attempt, 4)
// seconds.
func backoff(attempt int) time.Duration {
	seconds := math.Min(math.Pow(2, float64(attempt)), maxBackoffSeconds)
	return time.Duration(seconds * float64(time.Second))
}

func validateEntry(in *state.AgentInput, nowStr string) error {
	if in.IncidentID == "" {
		return errors.New("incident_id is required")
	}
	if len(bytes.TrimSpace(in.EvidenceBundle)) == 0 || bytes.Equal(bytes.TrimSpace(in.EvidenceBundle), []byte("null")) {
		return errors.New("evidence_bundle is required")
	}
	if in.BudgetRemaining < 0 {
		return errors.New("budget_remaining must be >= 0")
	}
	if in.SessionID == "" {
		return errors.New("session_id is required")
	}
	if in.Timestamp == "" {
		in.Timestamp = nowStr
	}
	if in.ExecutionID == "" {
		in.ExecutionID = fmt.Sprintf("exec-%s-%s", in.IncidentID, in.Timestamp)
	}
	return nil
}

func validateTerminal(s state.GraphState, agentOrder []string) error {
	for _, id := range agentOrder {
		if !s.HasHypothesis(id) {
			return fmt.Errorf("terminal validation failed: agent slot %s incomplete", id)
		}
	}
	if s.Consensus == nil {
		return errors.New("terminal validation failed: consensus missing")
	}
	if s.CostGuardian == nil {
		return errors.New("terminal validation failed: cost_guardian missing")
	}
	return nil
}

func buildTerminalOutput(s state.GraphState, now time.Time) *TerminalOutput {
	succeeded, failed := 0, 0
	for _, out := range s.Hypotheses {
		if out.Status == state.StatusFailure {
			failed++
		} else {
			succeeded++
		}
	}
	totalRetries := 0
	for _, v := range s.RetryCount {
		totalRetries += v
	}

	var durationMs int64
	if start, err := time.Parse(time.RFC3339Nano, s.StartTimestamp); err == nil {
		durationMs = now.Sub(start).Milliseconds()
	}

	return &TerminalOutput{
		IncidentID: s.AgentInput.IncidentID,
		Recommendation: Recommendation{
			Unified:           s.Consensus.UnifiedRecommendation,
			Confidence:        s.Consensus.AggregatedConfidence,
			AgreementLevel:    s.Consensus.AgreementLevel,
			ConflictsDetected: len(s.Consensus.ConflictsDetected),
			MinorityOpinions:  s.Consensus.MinorityOpinions,
		},
		AgentOutputs: s.Hypotheses,
		Consensus:    *s.Consensus,
		Cost:         *s.CostGuardian,
		ExecutionSummary: ExecutionSummary{
			DurationMs:      durationMs,
			AgentsSucceeded: succeeded,
			AgentsFailed:    failed,
			TotalRetries:    totalRetries,
			ErrorsCount:     len(s.Errors),
		},
		ExecutionTrace: s.ExecutionTrace,
		Errors:         s.Errors,
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
	}
}
