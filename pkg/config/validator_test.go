package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullAgentMap(overrides map[string]AgentEndpointConfig) map[string]AgentEndpointConfig {
	agents := make(map[string]AgentEndpointConfig, len(FixedAgentSlots))
	for _, slot := range FixedAgentSlots {
		agents[slot] = AgentEndpointConfig{Endpoint: "agents.internal:9000", Model: "claude-sonnet"}
	}
	for slot, cfg := range overrides {
		agents[slot] = cfg
	}
	return agents
}

func validConfig() *Config {
	return &Config{
		AgentRegistry:   NewAgentRegistry(fullAgentMap(nil)),
		PricingRegistry: NewPricingRegistry(map[string]PricingEntry{"claude-sonnet": {InputPricePerMillion: 3, OutputPricePerMillion: 15}}),
		Budget:          DefaultBudget(),
		Masking:         GetBuiltinConfig(),
	}
}

func TestValidateAllSucceedsForValidConfig(t *testing.T) {
	err := NewValidator(validConfig()).ValidateAll()
	require.NoError(t, err)
}

func TestValidateAgentsMissingSlot(t *testing.T) {
	agents := fullAgentMap(nil)
	delete(agents, AgentSlotKnowledgeRAG)

	cfg := validConfig()
	cfg.AgentRegistry = NewAgentRegistry(agents)

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent validation failed")
}

func TestValidateAgentsMissingEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.AgentRegistry = NewAgentRegistry(fullAgentMap(map[string]AgentEndpointConfig{
		AgentSlotSignalIntelligence: {Model: "claude-sonnet"},
	}))

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestValidateAgentsNegativeWeight(t *testing.T) {
	cfg := validConfig()
	cfg.AgentRegistry = NewAgentRegistry(fullAgentMap(map[string]AgentEndpointConfig{
		AgentSlotSignalIntelligence: {Endpoint: "a", Model: "claude-sonnet", Weight: -0.1},
	}))

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestValidatePricingMissingEntry(t *testing.T) {
	cfg := validConfig()
	cfg.PricingRegistry = NewPricingRegistry(map[string]PricingEntry{})

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pricing validation failed")
	assert.ErrorIs(t, err, ErrPricingNotFound)
}

func TestValidateBudgetInvalid(t *testing.T) {
	cfg := validConfig()
	cfg.Budget.IncidentsPerDay = 0

	err := NewValidator(cfg).ValidateAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget validation failed")
}
