package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinycrab/tinycrab/internal/config"
	"github.com/tinycrab/tinycrab/internal/logger"
	"github.com/tinycrab/tinycrab/pkg/supervisor"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd is tinycrab's supervisor-facing CLI surface: spawn, list, stop,
// chat, status, and configure. Every subcommand but configure talks to
// pkg/supervisor, never directly to an agent server.
var rootCmd = &cobra.Command{
	Use:   "tinycrab",
	Short: "tinycrab - minimal multi-agent supervisor",
	Long: `tinycrab spawns, addresses, and tears down long-running
conversational agent processes backed by an external LLM tool-calling
runtime.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tinycrab/config.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads tinycrab's on-disk config, overriding its log level
// with the --log-level flag when the flag was explicitly set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newSupervisor builds a supervisor.Supervisor from the loaded config and
// reconciles it against whatever is already on disk. Callers own closing
// the returned *logger.Logger.
func newSupervisor(cmd *cobra.Command) (*supervisor.Supervisor, *logger.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	sup, err := supervisor.New(supervisor.Config{
		DataDir:   cfg.DataDir,
		Host:      cfg.Host,
		StartPort: cfg.StartPort,
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		Logger:    log.GetZerolog(),
	})
	if err != nil {
		log.Close()
		return nil, nil, fmt.Errorf("init supervisor: %w", err)
	}
	if err := sup.Init(); err != nil {
		log.Close()
		return nil, nil, fmt.Errorf("init supervisor state: %w", err)
	}

	return sup, log, nil
}
