package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentSlotName enumerates the six fixed agent slots the graph driver invokes
// in order. The set is closed: the orchestrator never discovers or calls an
// agent outside this list.
const (
	AgentSlotSignalIntelligence = "signal-intelligence"
	AgentSlotHistoricalPattern  = "historical-pattern"
	AgentSlotChangeIntelligence = "change-intelligence"
	AgentSlotRiskBlastRadius    = "risk-blast-radius"
	AgentSlotKnowledgeRAG       = "knowledge-rag"
	AgentSlotResponseStrategy   = "response-strategy"
)

// FixedAgentSlots is the closed, ordered set of agent slots the graph driver
// walks on every run.
var FixedAgentSlots = []string{
	AgentSlotSignalIntelligence,
	AgentSlotHistoricalPattern,
	AgentSlotChangeIntelligence,
	AgentSlotRiskBlastRadius,
	AgentSlotKnowledgeRAG,
	AgentSlotResponseStrategy,
}

// DefaultAgentWeight is applied to any agent slot whose weight is left unset
// in configuration.
const DefaultAgentWeight = 0.5

// AgentEndpointConfig describes how to reach one agent slot's remote model
// over the agent transport, and how heavily to weight its hypothesis during
// consensus aggregation.
type AgentEndpointConfig struct {
	Endpoint   string        `yaml:"endpoint" validate:"required"`
	Model      string        `yaml:"model" validate:"required"`
	Weight     float64       `yaml:"weight,omitempty"`
	Timeout    time.Duration `yaml:"-"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
}

// agentEndpointYAML mirrors AgentEndpointConfig but accepts Timeout as a Go
// duration string (e.g. "30s"), since yaml.v3 has no built-in support for
// decoding a scalar string directly into time.Duration.
type agentEndpointYAML struct {
	Endpoint   string  `yaml:"endpoint"`
	Model      string  `yaml:"model"`
	Weight     float64 `yaml:"weight,omitempty"`
	Timeout    string  `yaml:"timeout,omitempty"`
	MaxRetries int     `yaml:"max_retries,omitempty"`
}

// UnmarshalYAML decodes an agent endpoint entry, parsing Timeout as a Go
// duration string rather than the raw time.Duration nanosecond integer.
func (a *AgentEndpointConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw agentEndpointYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	a.Endpoint = raw.Endpoint
	a.Model = raw.Model
	a.Weight = raw.Weight
	a.MaxRetries = raw.MaxRetries

	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", raw.Timeout, err)
		}
		a.Timeout = d
	}

	return nil
}

// PricingEntry carries the per-million-token USD price for one model, used
// to convert a reported token count into an estimated cost.
type PricingEntry struct {
	InputPricePerMillion  float64 `yaml:"input_price_per_million" validate:"required"`
	OutputPricePerMillion float64 `yaml:"output_price_per_million" validate:"required"`
}

// GuardrailConfig identifies the safety guardrail attached to every agent
// request, if any. An empty ID means no guardrail is attached.
type GuardrailConfig struct {
	ID      string `yaml:"id,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// BudgetDefaults seeds the cost guardian's running budget when a session has
// no prior checkpoint to resume from.
type BudgetDefaults struct {
	BudgetRemaining float64 `yaml:"budget_remaining"`
	IncidentsPerDay int     `yaml:"incidents_per_day"`
	DaysPerMonth    int     `yaml:"days_per_month"`
}
