package costguardian_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsconsensus/orchestrator/pkg/costguardian"
	"github.com/opsconsensus/orchestrator/pkg/state"
)

func fixedNow() string { return "2026-07-30T00:00:00Z" }

func stateWithBudget(budget float64) state.GraphState {
	input := state.AgentInput{
		IncidentID:      "INC-T1",
		EvidenceBundle:  json.RawMessage(`{}`),
		ExecutionID:     "exec-1",
		SessionID:       "sess-1",
		BudgetRemaining: budget,
	}
	return state.New(input, fixedNow())
}

func outputWithCost(agentID string, cost float64) state.AgentOutput {
	return state.AgentOutput{
		AgentID: agentID,
		Status:  state.StatusSuccess,
		Cost:    state.Cost{InputTokens: 100, OutputTokens: 50, EstimatedCost: cost, Model: "M"},
	}
}

// TestCostGuardianComputesCostFromUsage covers total cost and remaining
// budget arithmetic across six agent outputs.
func TestCostGuardianComputesCostFromUsage(t *testing.T) {
	s := stateWithBudget(5.0)
	for i := 0; i < 6; i++ {
		agentID := string(rune('a' + i))
		s = s.WithHypothesis(agentID, outputWithCost(agentID, 0.001125))
	}

	s = costguardian.Assess(s, costguardian.DefaultDefaults(), fixedNow)

	require.NotNil(t, s.CostGuardian)
	assert.InDelta(t, 0.00675, s.CostGuardian.TotalCost, 1e-9)
	assert.InDelta(t, 4.99325, s.CostGuardian.BudgetRemaining, 1e-9)
	assert.False(t, s.CostGuardian.BudgetExceeded)
	assert.Equal(t, 4.99325, s.BudgetRemaining)
}

// TestCostGuardianFlagsBudgetExceeded covers budget_exceeded as a signal
// only, never an abort.
func TestCostGuardianFlagsBudgetExceeded(t *testing.T) {
	s := stateWithBudget(0.001)
	s = s.WithHypothesis("a", outputWithCost("a", 0.00675))

	s = costguardian.Assess(s, costguardian.DefaultDefaults(), fixedNow)

	assert.True(t, s.CostGuardian.BudgetExceeded)
	assert.InDelta(t, -0.00575, s.CostGuardian.BudgetRemaining, 1e-9)
	assert.Equal(t, int64(0), s.CostGuardian.Projections.IncidentsRemaining)
}

// TestCostGuardianArithmeticIdentities covers the cost/projection
// arithmetic identities that must hold regardless of input scale.
func TestCostGuardianArithmeticIdentities(t *testing.T) {
	s := stateWithBudget(10.0)
	s = s.WithHypothesis("a", outputWithCost("a", 1.0))
	s = s.WithHypothesis("b", outputWithCost("b", 2.0))

	before := s.BudgetRemaining
	s = costguardian.Assess(s, costguardian.DefaultDefaults(), fixedNow)

	var sumPerAgent float64
	for _, c := range s.CostGuardian.PerAgentCost {
		sumPerAgent += c.EstimatedCost
	}
	assert.InDelta(t, sumPerAgent, s.CostGuardian.TotalCost, 1e-9)
	assert.InDelta(t, before-s.CostGuardian.TotalCost, s.CostGuardian.BudgetRemaining, 1e-9)
	assert.Equal(t, before < 0 || s.CostGuardian.TotalCost > before, s.CostGuardian.BudgetExceeded)
}

func TestCostGuardianAppendsCompletedTrace(t *testing.T) {
	s := stateWithBudget(5.0).WithHypothesis("a", outputWithCost("a", 0.1))
	s = costguardian.Assess(s, costguardian.DefaultDefaults(), fixedNow)
	require.Len(t, s.ExecutionTrace, 1)
	assert.Equal(t, costguardian.NodeID, s.ExecutionTrace[0].NodeID)
}

func TestCostGuardianZeroCostYieldsNoIncidentsProjectionDivideByZero(t *testing.T) {
	s := stateWithBudget(5.0)
	s = costguardian.Assess(s, costguardian.DefaultDefaults(), fixedNow)
	assert.Equal(t, int64(0), s.CostGuardian.Projections.IncidentsRemaining)
	assert.Equal(t, 0.0, s.CostGuardian.TotalCost)
}
