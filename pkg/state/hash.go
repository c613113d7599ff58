package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
)

// FailureHash is the sentinel deterministic hash for synthesized failure
// hypotheses, which carry no real agent output to hash.
const FailureHash = "FAILURE"

// DeterministicHash computes the SHA-256 digest over exactly the whitelisted
// fields that determine replay equality: incident_id, evidence_bundle, and
// execution_id from the input; findings and confidence (rounded to 4
// decimals) from the output. timestamp, session_id, reasoning, disclaimer,
// citations, cost, and retry counters are deliberately excluded — including
// any of them here would silently break replay.
func DeterministicHash(input AgentInput, findings Findings, confidence float64) (string, error) {
	rounded := math.Round(confidence*10000) / 10000
	payload := struct {
		IncidentID     string          `json:"incident_id"`
		EvidenceBundle json.RawMessage `json:"evidence_bundle"`
		ExecutionID    string          `json:"execution_id"`
		Findings       Findings        `json:"findings"`
		Confidence     float64         `json:"confidence"`
	}{
		IncidentID:     input.IncidentID,
		EvidenceBundle: input.EvidenceBundle,
		ExecutionID:    input.ExecutionID,
		Findings:       findings,
		Confidence:     rounded,
	}
	b, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders v through a decode/re-encode round trip so that
// every nested map is re-marshaled with sorted keys, including maps that
// arrived as opaque json.RawMessage. encoding/json already sorts
// map[string]any keys on marshal; the round trip normalizes whitespace and
// key ordering inside embedded raw messages too.
func canonicalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
