package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key's rough shape for provider.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates the façade provider name (§4.3).
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "anthropic", "openai", "gemini":
		return nil
	default:
		return fmt.Errorf("invalid provider: %s (must be one of: anthropic, openai, gemini)", provider)
	}
}

// ValidateMode validates the supervisor's reachability mode (§9).
func (v *Validator) ValidateMode(mode string) error {
	switch Mode(mode) {
	case ModeLocal, ModeDocker, ModeRemote:
		return nil
	default:
		return fmt.Errorf("invalid mode: %s (must be one of: local, docker, remote)", mode)
	}
}

// ValidateLogLevel validates a zerolog level name.
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive, non-fatal validation, returning
// every problem found rather than stopping at the first.
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Provider); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMode(string(cfg.Mode)); err != nil {
		errors = append(errors, err)
	}
	if cfg.Model == "" {
		errors = append(errors, fmt.Errorf("model is required"))
	}
	if cfg.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.APIKey, cfg.Provider); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.StartPort <= 0 || cfg.StartPort > 65535 {
		errors = append(errors, fmt.Errorf("start_port must be between 1 and 65535, got %d", cfg.StartPort))
	}

	return errors
}
