package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading and saving through viper, following
// the teacher's layering: JSON file, overlaid with TINYCRAB_-prefixed
// environment variables.
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader rooted at configPath. An empty
// configPath resolves to $HOME/.tinycrab/config.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load loads the configuration from file, falling back to DefaultConfig
// when the file does not exist.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("TINYCRAB")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "tinycrab.log")
	}

	return cfg, nil
}

// Save writes the configuration to file, creating its parent directory if
// needed.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("api_key", cfg.APIKey)
	v.Set("provider", cfg.Provider)
	v.Set("model", cfg.Model)
	v.Set("mode", cfg.Mode)
	v.Set("data_dir", cfg.DataDir)
	v.Set("url", cfg.URL)
	v.Set("image", cfg.Image)
	v.Set("host", cfg.Host)
	v.Set("start_port", cfg.StartPort)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the resolved config file path.
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".tinycrab", "config.json")
	}
	return filepath.Join(home, ".tinycrab", "config.json")
}

// Load is a convenience function that creates a loader and loads the config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
