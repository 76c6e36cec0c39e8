package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-test123", "anthropic"))
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("invalid-key", "anthropic"))
	})

	t.Run("valid openai key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-test123", "openai"))
	})

	t.Run("invalid openai key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("invalid-key", "openai"))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "anthropic"))
	})
}

func TestValidateProvider(t *testing.T) {
	v := NewValidator()

	t.Run("valid providers", func(t *testing.T) {
		for _, p := range []string{"anthropic", "openai", "gemini"} {
			assert.NoError(t, v.ValidateProvider(p), "provider %s should be valid", p)
		}
	})

	t.Run("invalid provider", func(t *testing.T) {
		assert.Error(t, v.ValidateProvider("invalid"))
	})
}

func TestValidateMode(t *testing.T) {
	v := NewValidator()

	t.Run("valid modes", func(t *testing.T) {
		for _, m := range []string{"local", "docker", "remote"} {
			assert.NoError(t, v.ValidateMode(m), "mode %s should be valid", m)
		}
	})

	t.Run("invalid mode", func(t *testing.T) {
		assert.Error(t, v.ValidateMode("invalid"))
	})
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	t.Run("valid levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			assert.NoError(t, v.ValidateLogLevel(level), "level %s should be valid", level)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		assert.Error(t, v.ValidateLogLevel("invalid"))
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.APIKey = "sk-test123"

		assert.Empty(t, v.ValidateConfig(cfg))
	})

	t.Run("multiple errors", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider = "invalid"
		cfg.Model = ""
		cfg.Logging.Level = "invalid"

		errors := v.ValidateConfig(cfg)
		assert.GreaterOrEqual(t, len(errors), 3)
	})
}
