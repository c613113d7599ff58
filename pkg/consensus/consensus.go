// Package consensus implements the deterministic aggregator: a pure
// function from the set of agent outputs collected so far to a single
// ConsensusResult. No I/O, no randomness, no wall-clock dependency beyond
// timestamping the result.
package consensus

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opsconsensus/orchestrator/pkg/state"
)

// NodeID is the execution-trace node name this aggregator writes under.
const NodeID = "consensus"

// maxPopulationStdDev is the largest population standard deviation
// achievable by values confined to [0,1] — half the mass at 0, half at 1.
// It is independent of the sample size and anchors agreement_level.
const maxPopulationStdDev = 0.5

// conflictThreshold is the confidence-gap threshold, in either direction,
// above which two competing recommendations are flagged as a conflict.
const conflictThreshold = 0.3

// WeightFunc resolves a configured agent weight, defaulting to 0.5 for
// agents with no explicit entry.
type WeightFunc func(agentID string) float64

// NowFunc supplies the result timestamp. Exists so tests can pin it.
type NowFunc func() string

// Aggregate reduces state's hypotheses to a ConsensusResult and returns a
// new GraphState with state.consensus set. agentOrder fixes the iteration
// order over hypotheses so that tie-breaks (which agent "wins" a
// cross-type conflict, which recommendation type leads) are reproducible
// across replay; callers pass the topology's fixed agent slot order.
func Aggregate(s state.GraphState, agentOrder []string, weight WeightFunc, now NowFunc) state.GraphState {
	outputs := orderedOutputs(s, agentOrder)

	aggConfidence := aggregatedConfidence(outputs, weight)
	agreement := agreementLevel(outputs)
	byType := recommendationsByType(outputs)
	conflicts := detectConflicts(byType)
	unified := unifiedRecommendation(outputs, byType, len(conflicts))
	minority := minorityOpinions(outputs, unified)
	quality := qualityMetrics(outputs, agreement)

	result := state.ConsensusResult{
		AggregatedConfidence:  round4(aggConfidence),
		AgreementLevel:        round4(agreement),
		ConflictsDetected:     conflicts,
		UnifiedRecommendation: unified,
		MinorityOpinions:      minority,
		QualityMetrics:        quality,
		Timestamp:             now(),
	}

	s = s.WithConsensus(result)
	return s.WithTraceEntry(state.ExecutionTraceEntry{
		NodeID:    NodeID,
		Timestamp: result.Timestamp,
		Status:    state.TraceCompleted,
		Metadata: map[string]interface{}{
			"aggregated_confidence": result.AggregatedConfidence,
			"conflicts_detected":    len(conflicts),
		},
	})
}

// orderedOutputs returns the hypotheses present in s, in agentOrder, then
// any remaining hypotheses (agents outside the known topology) in sorted
// key order — kept deterministic even though the fixed topology means this
// branch should never be exercised in practice.
func orderedOutputs(s state.GraphState, agentOrder []string) []state.AgentOutput {
	seen := make(map[string]bool, len(agentOrder))
	out := make([]state.AgentOutput, 0, len(s.Hypotheses))
	for _, id := range agentOrder {
		if o, ok := s.Hypotheses[id]; ok {
			out = append(out, o)
			seen[id] = true
		}
	}
	var extra []string
	for id := range s.Hypotheses {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, s.Hypotheses[id])
	}
	return out
}

func aggregatedConfidence(outputs []state.AgentOutput, weight WeightFunc) float64 {
	var sumWeighted, sumWeight float64
	for _, o := range outputs {
		w := weight(o.AgentID)
		sumWeighted += o.Confidence * w
		sumWeight += w
	}
	if sumWeight == 0 {
		return 0.0
	}
	return sumWeighted / sumWeight
}

func agreementLevel(outputs []state.AgentOutput) float64 {
	if len(outputs) < 2 {
		return 1.0
	}
	var sum float64
	for _, o := range outputs {
		sum += o.Confidence
	}
	mean := sum / float64(len(outputs))

	var variance float64
	for _, o := range outputs {
		d := o.Confidence - mean
		variance += d * d
	}
	variance /= float64(len(outputs))
	sigma := math.Sqrt(variance)
	if sigma == 0 {
		return 1.0
	}
	return math.Max(0, math.Min(1, 1-sigma/maxPopulationStdDev))
}

// typeProposal is one agent's recommendation for a single type.
type typeProposal struct {
	agentID     string
	confidence  float64
	description string
}

// recommendationsByType groups every non-FAILURE output's recommendations
// by type, in agent-order — first entries encountered win ties when
// selecting a type's top proposer.
func recommendationsByType(outputs []state.AgentOutput) map[string][]typeProposal {
	byType := map[string][]typeProposal{}
	for _, o := range outputs {
		if o.Status == state.StatusFailure {
			continue
		}
		for _, rec := range o.Findings.Recommendations() {
			byType[rec.Type] = append(byType[rec.Type], typeProposal{
				agentID:     o.AgentID,
				confidence:  o.Confidence,
				description: rec.Description,
			})
		}
	}
	return byType
}

// typeTop returns the highest-confidence proposal for a type, the first
// such proposal encountered winning ties.
func typeTop(proposals []typeProposal) typeProposal {
	top := proposals[0]
	for _, p := range proposals[1:] {
		if p.confidence > top.confidence {
			top = p
		}
	}
	return top
}

func typeMinMaxConf(proposals []typeProposal) (min, max float64) {
	min, max = proposals[0].confidence, proposals[0].confidence
	for _, p := range proposals[1:] {
		if p.confidence < min {
			min = p.confidence
		}
		if p.confidence > max {
			max = p.confidence
		}
	}
	return min, max
}

func detectConflicts(byType map[string][]typeProposal) []state.Conflict {
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var conflicts []state.Conflict

	for i := 0; i < len(types); i++ {
		for j := i + 1; j < len(types); j++ {
			topA := typeTop(byType[types[i]])
			topB := typeTop(byType[types[j]])
			if math.Abs(topA.confidence-topB.confidence) > conflictThreshold {
				conflicts = append(conflicts, state.Conflict{
					ConflictType: state.ConflictActionTypeDivergence,
					AgentIDs:     []string{topA.agentID, topB.agentID},
					Resolution:   "highest confidence wins",
					Description:  fmt.Sprintf("%s vs %s", types[i], types[j]),
				})
			}
		}
	}

	for _, t := range types {
		proposals := byType[t]
		if len(proposals) < 2 {
			continue
		}
		min, max := typeMinMaxConf(proposals)
		if max-min > conflictThreshold {
			ids := make([]string, len(proposals))
			for i, p := range proposals {
				ids[i] = p.agentID
			}
			conflicts = append(conflicts, state.Conflict{
				ConflictType: state.ConflictConfidenceDivergence,
				AgentIDs:     ids,
				Resolution:   "highest confidence wins",
				Description:  fmt.Sprintf("%s: confidence spread %.2f", t, max-min),
			})
		}
	}

	return conflicts
}

func unifiedRecommendation(outputs []state.AgentOutput, byType map[string][]typeProposal, conflictCount int) string {
	if allFailed(outputs) {
		return "Insufficient data for recommendation. All agents failed."
	}
	if len(byType) == 0 {
		return "No actionable recommendations."
	}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		maxI := maxConfidenceOf(byType[types[i]])
		maxJ := maxConfidenceOf(byType[types[j]])
		if maxI != maxJ {
			return maxI > maxJ
		}
		return types[i] < types[j]
	})

	total := len(outputs)
	var lines []string
	labels := []string{"PRIMARY", "ALTERNATIVE"}
	for i, t := range types {
		if i >= len(labels) {
			break
		}
		top := typeTop(byType[t])
		lines = append(lines, fmt.Sprintf("%s: %s (confidence: %.2f, agents: %d/%d agree)",
			labels[i], truncate(top.description, 100), top.confidence, len(byType[t]), total))
	}

	conflictsLine := "CONFLICTS: None detected"
	if conflictCount > 0 {
		conflictsLine = fmt.Sprintf("CONFLICTS: %d detected", conflictCount)
	}
	lines = append(lines, conflictsLine)

	return truncateEllipsis(strings.Join(lines, " "), 500)
}

func minorityOpinions(outputs []state.AgentOutput, unified string) []string {
	var opinions []string
	for _, o := range outputs {
		if o.Status == state.StatusFailure || o.Confidence <= 0.5 {
			continue
		}
		for _, rec := range o.Findings.Recommendations() {
			prefix := truncate(rec.Description, 50)
			if strings.Contains(unified, prefix) {
				continue
			}
			opinions = append(opinions, fmt.Sprintf("%s suggests %s (confidence: %.2f)",
				o.AgentID, truncate(rec.Description, 100), o.Confidence))
		}
	}
	return opinions
}

func qualityMetrics(outputs []state.AgentOutput, agreement float64) state.QualityMetrics {
	if len(outputs) == 0 {
		return state.QualityMetrics{}
	}
	var success, cited int
	for _, o := range outputs {
		if o.Status == state.StatusSuccess {
			success++
		}
		if len(o.Citations) > 0 {
			cited++
		}
	}
	n := float64(len(outputs))
	return state.QualityMetrics{
		DataCompleteness:   round4(float64(success) / n),
		CitationQuality:    round4(float64(cited) / n),
		ReasoningCoherence: round4(agreement),
	}
}

func allFailed(outputs []state.AgentOutput) bool {
	if len(outputs) == 0 {
		return true
	}
	for _, o := range outputs {
		if o.Status != state.StatusFailure {
			return false
		}
	}
	return true
}

func maxConfidenceOf(proposals []typeProposal) float64 {
	return typeTop(proposals).confidence
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncateEllipsis(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
