package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model)
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, "./.tinycrab", cfg.DataDir)
	assert.Equal(t, 9000, cfg.StartPort)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.APIKey = "sk-test123"

		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Model = ""

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "model is required")
	})

	t.Run("invalid provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider = "invalid"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("invalid mode", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = "invalid"

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid mode")
	})

	t.Run("remote mode requires url", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = ModeRemote

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "url is required")
	})

	t.Run("docker mode requires image", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Mode = ModeDocker

		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "image is required")
	})

	t.Run("malformed api key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Provider = "anthropic"
		cfg.APIKey = "not-a-key"

		err := cfg.Validate()
		assert.Error(t, err)
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "invalid"

		err := cfg.Validate()
		assert.Error(t, err)
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "sk-test123"

	str := cfg.String()
	assert.NotEmpty(t, str)
	assert.Contains(t, str, "provider")
}
