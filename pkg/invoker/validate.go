package invoker

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/opsconsensus/orchestrator/pkg/state"
)

func validateInput(in state.AgentInput) error {
	if in.IncidentID == "" {
		return errors.New("incident_id is empty")
	}
	if len(bytes.TrimSpace(in.EvidenceBundle)) == 0 || bytes.Equal(bytes.TrimSpace(in.EvidenceBundle), []byte("null")) {
		return errors.New("evidence_bundle is empty")
	}
	if in.Timestamp == "" {
		return errors.New("timestamp is empty")
	}
	if in.ExecutionID == "" {
		return errors.New("execution_id is empty")
	}
	if in.SessionID == "" {
		return errors.New("session_id is empty")
	}
	return nil
}

var validStatuses = map[string]bool{
	state.StatusSuccess: true,
	state.StatusPartial: true,
	state.StatusTimeout: true,
	state.StatusFailure: true,
}

// parsedOutput is the agent's raw JSON response, decoded loosely so each
// field can be validated individually with a field-specific error.
type parsedOutput struct {
	Confidence interface{}            `json:"confidence"`
	Findings   map[string]interface{} `json:"findings"`
	Disclaimer interface{}            `json:"disclaimer"`
	Status     interface{}            `json:"status"`
	Reasoning  string                 `json:"reasoning"`
	Citations  []string               `json:"citations"`
}

func validateOutput(p parsedOutput) (confidence float64, status, disclaimer string, err error) {
	confidence, ok := p.Confidence.(float64)
	if !ok {
		return 0, "", "", fmt.Errorf("confidence is missing or not numeric")
	}
	if confidence < 0.0 || confidence > 1.0 {
		return 0, "", "", fmt.Errorf("confidence %v out of range [0,1]", confidence)
	}
	status, ok = p.Status.(string)
	if !ok || !validStatuses[status] {
		return 0, "", "", fmt.Errorf("status %v is not one of SUCCESS, PARTIAL, TIMEOUT, FAILURE", p.Status)
	}
	disclaimer, ok = p.Disclaimer.(string)
	if !ok || !strings.Contains(disclaimer, state.HypothesisDisclaimer) {
		return 0, "", "", fmt.Errorf("disclaimer missing required token %s", state.HypothesisDisclaimer)
	}
	if len(p.Findings) == 0 {
		return 0, "", "", fmt.Errorf("findings is empty")
	}
	return confidence, status, disclaimer, nil
}
