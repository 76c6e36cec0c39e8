package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinycrab/tinycrab/pkg/supervisor"
)

var stopCleanup bool

var stopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop an agent",
	Long: `Stop posts to the agent's /stop endpoint and, if the process is
still alive afterward, sends it SIGTERM. With --cleanup, its data
directory is removed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVar(&stopCleanup, "cleanup", false, "also remove the agent's data directory")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	sup, log, err := newSupervisor(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	id := args[0]
	handle, ok := sup.Get(id)
	if !ok {
		return fmt.Errorf("agent %q is not running", id)
	}

	if err := handle.Destroy(cmd.Context(), supervisor.DestroyOptions{Cleanup: stopCleanup}); err != nil {
		return fmt.Errorf("stop %q: %w", id, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "agent %q stopped\n", id)
	return nil
}
