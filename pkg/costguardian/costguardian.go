// Package costguardian implements the pure-arithmetic budget accountant.
// It never aborts or alters the run: budget_exceeded is signal only,
// consumed downstream by whatever policy the caller chooses to apply.
package costguardian

import (
	"math"

	"github.com/opsconsensus/orchestrator/pkg/state"
)

// NodeID is the execution-trace node name this node writes under.
const NodeID = "cost-guardian"

const (
	defaultIncidentsPerDay = 10
	defaultDaysPerMonth    = 30
)

// NowFunc supplies the result timestamp.
type NowFunc func() string

// Projection defaults, overridable via configured BudgetDefaults.
type Defaults struct {
	IncidentsPerDay int
	DaysPerMonth    int
}

// DefaultDefaults returns the fallback projection constants.
func DefaultDefaults() Defaults {
	return Defaults{IncidentsPerDay: defaultIncidentsPerDay, DaysPerMonth: defaultDaysPerMonth}
}

// Assess computes per-agent cost, total cost, remaining budget and burn
// projections from state's hypotheses, and returns a new GraphState with
// state.cost_guardian set and budget_remaining updated — the only node
// permitted to change budget_remaining.
func Assess(s state.GraphState, defaults Defaults, now NowFunc) state.GraphState {
	if defaults.IncidentsPerDay <= 0 {
		defaults.IncidentsPerDay = defaultIncidentsPerDay
	}
	if defaults.DaysPerMonth <= 0 {
		defaults.DaysPerMonth = defaultDaysPerMonth
	}

	perAgent := make(map[string]state.Cost, len(s.Hypotheses))
	var total float64
	for agentID, out := range s.Hypotheses {
		perAgent[agentID] = out.Cost
		total += out.Cost.EstimatedCost
	}
	total = round6(total)

	before := s.BudgetRemaining
	after := round6(before - total)
	exceeded := before < 0 || total > before

	var incidentsRemaining int64
	if total <= 0 || after <= 0 {
		incidentsRemaining = 0
	} else {
		incidentsRemaining = int64(math.Floor(after / total))
	}

	result := state.CostGuardianResult{
		TotalCost:       total,
		BudgetRemaining: after,
		BudgetExceeded:  exceeded,
		PerAgentCost:    perAgent,
		Projections: state.Projections{
			MonthlyBurn:        round6(total * float64(defaults.IncidentsPerDay) * float64(defaults.DaysPerMonth)),
			IncidentsRemaining: incidentsRemaining,
		},
		Timestamp: now(),
	}

	s = s.WithCostGuardian(result)
	return s.WithTraceEntry(state.ExecutionTraceEntry{
		NodeID:    NodeID,
		Timestamp: result.Timestamp,
		Status:    state.TraceCompleted,
		Metadata: map[string]interface{}{
			"total_cost":      result.TotalCost,
			"budget_exceeded": result.BudgetExceeded,
		},
	})
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
