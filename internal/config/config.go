package config

import (
	"encoding/json"
	"fmt"
)

// Mode selects how the supervisor reaches an agent server process (§9
// Design Notes).
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeDocker Mode = "docker"
	ModeRemote Mode = "remote"
)

// Config is tinycrab's TinycrabOptions record: the full set of options the
// supervisor and CLI accept, loaded from file, environment, and flags.
type Config struct {
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`
	Mode     Mode   `json:"mode" mapstructure:"mode"`
	DataDir  string `json:"data_dir" mapstructure:"data_dir"`

	// URL addresses a remote supervisor when Mode is "remote".
	URL string `json:"url" mapstructure:"url"`
	// Image names the container image run when Mode is "docker".
	Image string `json:"image" mapstructure:"image"`

	// Host and StartPort configure the supervisor's serial port allocator
	// (§4.9): the first agent server binds to Host:StartPort, with every
	// later allocation incrementing from there.
	Host      string `json:"host" mapstructure:"host"`
	StartPort int    `json:"start_port" mapstructure:"start_port"`

	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// LoggingConfig mirrors internal/logger.Config on disk.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a Config with tinycrab's defaults (§9): provider
// openai, model gpt-4o, mode local, dataDir ./.tinycrab.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Model:     "gpt-4o",
		Mode:      ModeLocal,
		DataDir:   "./.tinycrab",
		Host:      "127.0.0.1",
		StartPort: 9000,
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config, for diagnostics.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that the configuration is usable by the supervisor.
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateProvider(c.Provider); err != nil {
		return err
	}
	if err := v.ValidateMode(string(c.Mode)); err != nil {
		return err
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Mode == ModeRemote && c.URL == "" {
		return fmt.Errorf("url is required when mode is remote")
	}
	if c.Mode == ModeDocker && c.Image == "" {
		return fmt.Errorf("image is required when mode is docker")
	}
	if c.APIKey != "" {
		if err := v.ValidateAPIKey(c.APIKey, c.Provider); err != nil {
			return err
		}
	}
	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}
