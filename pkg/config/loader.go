package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// OrchestratorYAMLConfig represents the complete orchestrator.yaml file structure.
type OrchestratorYAMLConfig struct {
	Agents    map[string]AgentEndpointConfig `yaml:"agents"`
	Pricing   map[string]PricingEntry        `yaml:"pricing"`
	Guardrail *GuardrailConfig               `yaml:"guardrail"`
	Budget    *BudgetDefaults                `yaml:"budget"`
}

// DefaultBudget is applied to any field left unset in the loaded budget
// section.
func DefaultBudget() BudgetDefaults {
	return BudgetDefaults{
		BudgetRemaining: 1000.0,
		IncidentsPerDay: 50,
		DaysPerMonth:    30,
	}
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load orchestrator.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Build in-memory registries
//  5. Merge budget defaults with configured values
//  6. Validate all configuration
//  7. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"agents", stats.Agents,
		"pricing_entries", stats.PricingEntries,
		"masking_patterns", stats.MaskingPatterns)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	raw, err := loader.loadOrchestratorYAML()
	if err != nil {
		return nil, NewLoadError("orchestrator.yaml", err)
	}

	agentRegistry := NewAgentRegistry(raw.Agents)
	pricingRegistry := NewPricingRegistry(raw.Pricing)

	guardrail := GuardrailConfig{}
	if raw.Guardrail != nil {
		guardrail = *raw.Guardrail
	}

	budget := DefaultBudget()
	if raw.Budget != nil {
		if err := mergo.Merge(&budget, *raw.Budget, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge budget defaults: %w", err)
		}
	}

	return &Config{
		configDir:       configDir,
		AgentRegistry:   agentRegistry,
		PricingRegistry: pricingRegistry,
		Guardrail:       guardrail,
		Budget:          budget,
		Masking:         GetBuiltinConfig(),
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax. ExpandEnv
	// passes through the original bytes on parse/execution errors, leaving
	// the YAML parser below to surface a clearer diagnostic.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadOrchestratorYAML() (*OrchestratorYAMLConfig, error) {
	config := OrchestratorYAMLConfig{
		Agents:  make(map[string]AgentEndpointConfig),
		Pricing: make(map[string]PricingEntry),
	}

	if err := l.loadYAML("orchestrator.yaml", &config); err != nil {
		return nil, err
	}

	return &config, nil
}
