package consensus_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsconsensus/orchestrator/pkg/config"
	"github.com/opsconsensus/orchestrator/pkg/consensus"
	"github.com/opsconsensus/orchestrator/pkg/state"
)

func fixedNow() string { return "2026-07-30T00:00:00Z" }

func equalWeight(string) float64 { return 0.5 }

func successOutput(agentID string, confidence float64, recType, desc string) state.AgentOutput {
	return state.AgentOutput{
		AgentID:    agentID,
		Status:     state.StatusSuccess,
		Confidence: confidence,
		Disclaimer: state.HypothesisDisclaimer,
		Findings: state.Findings{
			"recommendations": []map[string]string{{"type": recType, "description": desc}},
		},
	}
}

func baseState() state.GraphState {
	input := state.AgentInput{
		IncidentID:     "INC-T1",
		EvidenceBundle: json.RawMessage(`{}`),
		ExecutionID:    "exec-1",
		SessionID:      "sess-1",
	}
	return state.New(input, fixedNow())
}

// TestConsensusAllAgentsAgree covers six agents agreeing on one
// recommendation at 0.8 confidence.
func TestConsensusAllAgentsAgree(t *testing.T) {
	s := baseState()
	for _, id := range config.FixedAgentSlots {
		s = s.WithHypothesis(id, successOutput(id, 0.8, "INVESTIGATION", "check connection pool"))
	}

	s = consensus.Aggregate(s, config.FixedAgentSlots, equalWeight, fixedNow)

	require.NotNil(t, s.Consensus)
	assert.InDelta(t, 0.8, s.Consensus.AggregatedConfidence, 0.0001)
	assert.Equal(t, 1.0, s.Consensus.AgreementLevel)
	assert.Empty(t, s.Consensus.ConflictsDetected)
	assert.Contains(t, s.Consensus.UnifiedRecommendation, "PRIMARY: check connection pool (confidence: 0.80, agents: 6/6 agree)")
}

// TestConsensusOneAgentFailedSchemaValidation covers one agent failing
// schema validation; quality_metrics.data_completeness reflects 5/6.
func TestConsensusOneAgentFailedSchemaValidation(t *testing.T) {
	s := baseState()
	for _, id := range config.FixedAgentSlots {
		if id == config.AgentSlotKnowledgeRAG {
			s = s.WithHypothesis(id, state.AgentOutput{
				AgentID: id, Status: state.StatusFailure, Confidence: 0.0,
				Disclaimer: state.HypothesisDisclaimer,
				Findings:   state.Findings{"error": "SCHEMA_VALIDATION_FAILED"},
			})
			continue
		}
		s = s.WithHypothesis(id, successOutput(id, 0.8, "INVESTIGATION", "check connection pool"))
	}

	s = consensus.Aggregate(s, config.FixedAgentSlots, equalWeight, fixedNow)

	require.NotNil(t, s.Consensus)
	assert.InDelta(t, 5.0/6.0, s.Consensus.QualityMetrics.DataCompleteness, 0.0001)
}

// TestConsensusAgreementBoundaryCases covers the agreement-level boundary
// cases: a single agent always agrees with itself, and maximally divergent
// confidences yield zero agreement.
func TestConsensusAgreementBoundaryCases(t *testing.T) {
	t.Run("single agent agreement is 1.0", func(t *testing.T) {
		s := baseState().WithHypothesis("signal-intelligence", successOutput("signal-intelligence", 0.6, "X", "d"))
		s = consensus.Aggregate(s, config.FixedAgentSlots, equalWeight, fixedNow)
		assert.Equal(t, 1.0, s.Consensus.AgreementLevel)
		assert.GreaterOrEqual(t, s.Consensus.AggregatedConfidence, 0.0)
		assert.LessOrEqual(t, s.Consensus.AggregatedConfidence, 1.0)
	})

	t.Run("maximally divergent confidences give zero agreement", func(t *testing.T) {
		s := baseState()
		s = s.WithHypothesis("a", successOutput("a", 0.0, "X", "d"))
		s = s.WithHypothesis("b", successOutput("b", 1.0, "X", "d"))
		s = consensus.Aggregate(s, []string{"a", "b"}, equalWeight, fixedNow)
		assert.Equal(t, 0.0, s.Consensus.AgreementLevel)
	})

	t.Run("equal confidences give full agreement", func(t *testing.T) {
		s := baseState()
		s = s.WithHypothesis("a", successOutput("a", 0.7, "X", "d"))
		s = s.WithHypothesis("b", successOutput("b", 0.7, "X", "d"))
		s = consensus.Aggregate(s, []string{"a", "b"}, equalWeight, fixedNow)
		assert.Equal(t, 1.0, s.Consensus.AgreementLevel)
	})
}

func TestConsensusAllFailedYieldsInsufficientData(t *testing.T) {
	s := baseState()
	for _, id := range config.FixedAgentSlots {
		s = s.WithHypothesis(id, state.AgentOutput{AgentID: id, Status: state.StatusFailure, Confidence: 0.0, Disclaimer: state.HypothesisDisclaimer})
	}
	s = consensus.Aggregate(s, config.FixedAgentSlots, equalWeight, fixedNow)
	assert.Equal(t, "Insufficient data for recommendation. All agents failed.", s.Consensus.UnifiedRecommendation)
	assert.Equal(t, 0.0, s.Consensus.AggregatedConfidence)
}

func TestConsensusCrossTypeConflictDetected(t *testing.T) {
	s := baseState()
	s = s.WithHypothesis("a", successOutput("a", 0.9, "RESTART", "restart the pod"))
	s = s.WithHypothesis("b", successOutput("b", 0.4, "SCALE", "scale out replicas"))
	s = consensus.Aggregate(s, []string{"a", "b"}, equalWeight, fixedNow)

	require.Len(t, s.Consensus.ConflictsDetected, 1)
	assert.Equal(t, state.ConflictActionTypeDivergence, s.Consensus.ConflictsDetected[0].ConflictType)
	assert.Contains(t, s.Consensus.UnifiedRecommendation, "CONFLICTS: 1 detected")
}

func TestConsensusWithinTypeConflictDetected(t *testing.T) {
	s := baseState()
	s = s.WithHypothesis("a", successOutput("a", 0.9, "RESTART", "restart the pod"))
	s = s.WithHypothesis("b", successOutput("b", 0.5, "RESTART", "restart the pod gently"))
	s = consensus.Aggregate(s, []string{"a", "b"}, equalWeight, fixedNow)

	require.Len(t, s.Consensus.ConflictsDetected, 1)
	assert.Equal(t, state.ConflictConfidenceDivergence, s.Consensus.ConflictsDetected[0].ConflictType)
}

func TestConsensusMinorityOpinion(t *testing.T) {
	s := baseState()
	s = s.WithHypothesis("a", successOutput("a", 0.9, "RESTART", "restart the pod"))
	s = s.WithHypothesis("b", successOutput("b", 0.6, "ROLLBACK", "roll back the last deploy"))
	s = consensus.Aggregate(s, []string{"a", "b"}, equalWeight, fixedNow)

	require.NotEmpty(t, s.Consensus.MinorityOpinions)
	assert.Contains(t, s.Consensus.MinorityOpinions[0], "b suggests")
}

func TestConsensusAppendsCompletedTrace(t *testing.T) {
	s := baseState().WithHypothesis("a", successOutput("a", 0.8, "X", "d"))
	s = consensus.Aggregate(s, []string{"a"}, equalWeight, fixedNow)
	require.Len(t, s.ExecutionTrace, 1)
	assert.Equal(t, consensus.NodeID, s.ExecutionTrace[0].NodeID)
	assert.Equal(t, state.TraceCompleted, s.ExecutionTrace[0].Status)
}
