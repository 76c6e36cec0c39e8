package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinycrab/tinycrab/pkg/supervisor"
)

var (
	spawnProvider string
	spawnModel    string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn <id>",
	Short: "Spawn an agent server",
	Long: `Spawn starts (or reattaches to) the agent server process for id,
waiting until it answers its health check before returning.`,
	Args: cobra.ExactArgs(1),
	RunE: runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnProvider, "provider", "", "LLM provider override")
	spawnCmd.Flags().StringVar(&spawnModel, "model", "", "LLM model override")
	rootCmd.AddCommand(spawnCmd)
}

func runSpawn(cmd *cobra.Command, args []string) error {
	sup, log, err := newSupervisor(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	id := args[0]
	handle, err := sup.Spawn(cmd.Context(), id, supervisor.SpawnOptions{
		Provider: spawnProvider,
		Model:    spawnModel,
	})
	if err != nil {
		return fmt.Errorf("spawn %q: %w", id, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "agent %q is running\n", handle.ID())
	return nil
}
