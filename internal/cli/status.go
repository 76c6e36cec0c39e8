package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show one agent's status",
	Long:  `Show whether the named agent is currently running, probed live via its health endpoint.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	sup, log, err := newSupervisor(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	id := args[0]
	handle, ok := sup.Get(id)
	if !ok {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: stopped\n", id)
		return nil
	}

	if handle.Status(cmd.Context()) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: running\n", id)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: stopped\n", id)
	}
	return nil
}
