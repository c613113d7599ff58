package config

// Config is the umbrella configuration object threaded into every
// component's constructor. No package reads configuration from a
// package-level global; it all flows from this value.
type Config struct {
	configDir string

	AgentRegistry   *AgentRegistry
	PricingRegistry *PricingRegistry
	Guardrail       GuardrailConfig
	Budget          BudgetDefaults
	Masking         *BuiltinConfig
}

// ConfigStats contains statistics about loaded configuration, reported by
// the health endpoint.
type ConfigStats struct {
	Agents          int
	PricingEntries  int
	MaskingPatterns int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		Agents:          c.AgentRegistry.Len(),
		PricingEntries:  c.PricingRegistry.Len(),
		MaskingPatterns: len(c.Masking.MaskingPatterns),
	}
}

// ConfigDir returns the configuration directory path used to load this config.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// GetAgent retrieves an agent slot's configuration by name. Convenience
// wrapper around AgentRegistry.Get().
func (c *Config) GetAgent(name string) (AgentEndpointConfig, error) {
	return c.AgentRegistry.Get(name)
}

// GetPricing retrieves a model's pricing entry by id. Convenience wrapper
// around PricingRegistry.Get().
func (c *Config) GetPricing(model string) (PricingEntry, error) {
	return c.PricingRegistry.Get(model)
}
