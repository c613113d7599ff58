package config

import "fmt"

// Validator validates loaded configuration comprehensively with clear error
// messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error).
func (v *Validator) ValidateAll() error {
	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}

	if err := v.validatePricing(); err != nil {
		return fmt.Errorf("pricing validation failed: %w", err)
	}

	if err := v.validateBudget(); err != nil {
		return fmt.Errorf("budget validation failed: %w", err)
	}

	return nil
}

// validateAgents requires every one of the six fixed agent slots to be
// configured with an endpoint and model; the graph driver has nowhere else
// to look them up.
func (v *Validator) validateAgents() error {
	for _, slot := range FixedAgentSlots {
		agent, err := v.cfg.AgentRegistry.Get(slot)
		if err != nil {
			return NewValidationError("agent", slot, "", fmt.Errorf("%w: required agent slot not configured", ErrMissingRequiredField))
		}
		if agent.Endpoint == "" {
			return NewValidationError("agent", slot, "endpoint", ErrMissingRequiredField)
		}
		if agent.Model == "" {
			return NewValidationError("agent", slot, "model", ErrMissingRequiredField)
		}
		if agent.Weight < 0 {
			return NewValidationError("agent", slot, "weight", fmt.Errorf("%w: must be non-negative, got %v", ErrInvalidValue, agent.Weight))
		}
		if agent.MaxRetries < 0 {
			return NewValidationError("agent", slot, "max_retries", fmt.Errorf("%w: must be non-negative, got %d", ErrInvalidValue, agent.MaxRetries))
		}
	}
	return nil
}

// validatePricing requires a pricing entry for every model referenced by the
// agent registry, since cost extraction has no fallback price.
func (v *Validator) validatePricing() error {
	for slot, agent := range v.cfg.AgentRegistry.GetAll() {
		entry, err := v.cfg.PricingRegistry.Get(agent.Model)
		if err != nil {
			return NewValidationError("pricing", agent.Model, "", fmt.Errorf("%w: referenced by agent %q", ErrPricingNotFound, slot))
		}
		if entry.InputPricePerMillion < 0 {
			return NewValidationError("pricing", agent.Model, "input_price_per_million", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
		}
		if entry.OutputPricePerMillion < 0 {
			return NewValidationError("pricing", agent.Model, "output_price_per_million", fmt.Errorf("%w: must be non-negative", ErrInvalidValue))
		}
	}
	return nil
}

func (v *Validator) validateBudget() error {
	b := v.cfg.Budget
	if b.IncidentsPerDay <= 0 {
		return NewValidationError("budget", "", "incidents_per_day", fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, b.IncidentsPerDay))
	}
	if b.DaysPerMonth <= 0 {
		return NewValidationError("budget", "", "days_per_month", fmt.Errorf("%w: must be positive, got %d", ErrInvalidValue, b.DaysPerMonth))
	}
	return nil
}
