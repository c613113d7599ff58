package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOrchestratorYAML() string {
	return `
agents:
  signal-intelligence:
    endpoint: "agents.internal:9001"
    model: "claude-sonnet"
    weight: 0.8
    timeout: 30s
    max_retries: 2
  historical-pattern:
    endpoint: "agents.internal:9002"
    model: "claude-sonnet"
  change-intelligence:
    endpoint: "agents.internal:9003"
    model: "claude-sonnet"
  risk-blast-radius:
    endpoint: "agents.internal:9004"
    model: "claude-sonnet"
  knowledge-rag:
    endpoint: "agents.internal:9005"
    model: "claude-sonnet"
  response-strategy:
    endpoint: "agents.internal:9006"
    model: "claude-sonnet"

pricing:
  claude-sonnet:
    input_price_per_million: 3.0
    output_price_per_million: 15.0

guardrail:
  id: "incident-response-guardrail"
  version: "1"

budget:
  budget_remaining: 500.0
  incidents_per_day: 20
  days_per_month: 30
`
}

func setupTestConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "orchestrator.yaml"), []byte(validOrchestratorYAML()), 0644)
	require.NoError(t, err)
	return dir
}

func TestInitialize(t *testing.T) {
	configDir := setupTestConfigDir(t)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)

	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.NotNil(t, cfg.AgentRegistry)
	assert.NotNil(t, cfg.PricingRegistry)
	assert.NotNil(t, cfg.Masking)

	for _, slot := range FixedAgentSlots {
		assert.True(t, cfg.AgentRegistry.Has(slot), "slot %s should be configured", slot)
	}

	assert.Equal(t, "incident-response-guardrail", cfg.Guardrail.ID)
	assert.Equal(t, 500.0, cfg.Budget.BudgetRemaining)

	stats := cfg.Stats()
	assert.Equal(t, 6, stats.Agents)
	assert.Greater(t, stats.PricingEntries, 0)
	assert.Greater(t, stats.MaskingPatterns, 0)
}

func TestInitializeConfigNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, "/nonexistent/directory")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeInvalidYAML(t *testing.T) {
	configDir := t.TempDir()

	err := os.WriteFile(filepath.Join(configDir, "orchestrator.yaml"), []byte("{{{"), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInitializeMissingAgentSlot(t *testing.T) {
	configDir := t.TempDir()

	incomplete := `
agents:
  signal-intelligence:
    endpoint: "agents.internal:9001"
    model: "claude-sonnet"

pricing:
  claude-sonnet:
    input_price_per_million: 3.0
    output_price_per_million: 15.0
`
	err := os.WriteFile(filepath.Join(configDir, "orchestrator.yaml"), []byte(incomplete), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestInitializeMissingPricing(t *testing.T) {
	configDir := t.TempDir()

	noPricing := `
agents:
  signal-intelligence: {endpoint: "a:1", model: "unpriced-model"}
  historical-pattern: {endpoint: "a:2", model: "unpriced-model"}
  change-intelligence: {endpoint: "a:3", model: "unpriced-model"}
  risk-blast-radius: {endpoint: "a:4", model: "unpriced-model"}
  knowledge-rag: {endpoint: "a:5", model: "unpriced-model"}
  response-strategy: {endpoint: "a:6", model: "unpriced-model"}
`
	err := os.WriteFile(filepath.Join(configDir, "orchestrator.yaml"), []byte(noPricing), 0644)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = Initialize(ctx, configDir)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pricing validation failed")
}

func TestInitializeEnvExpansion(t *testing.T) {
	configDir := t.TempDir()

	withEnv := `
agents:
  signal-intelligence: {endpoint: "{{.AGENT_HOST}}:9001", model: "claude-sonnet"}
  historical-pattern: {endpoint: "agents.internal:9002", model: "claude-sonnet"}
  change-intelligence: {endpoint: "agents.internal:9003", model: "claude-sonnet"}
  risk-blast-radius: {endpoint: "agents.internal:9004", model: "claude-sonnet"}
  knowledge-rag: {endpoint: "agents.internal:9005", model: "claude-sonnet"}
  response-strategy: {endpoint: "agents.internal:9006", model: "claude-sonnet"}

pricing:
  claude-sonnet: {input_price_per_million: 3.0, output_price_per_million: 15.0}
`
	err := os.WriteFile(filepath.Join(configDir, "orchestrator.yaml"), []byte(withEnv), 0644)
	require.NoError(t, err)

	t.Setenv("AGENT_HOST", "agents.prod.internal")

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)
	require.NoError(t, err)

	agent, err := cfg.GetAgent(AgentSlotSignalIntelligence)
	require.NoError(t, err)
	assert.Equal(t, "agents.prod.internal:9001", agent.Endpoint)
}
