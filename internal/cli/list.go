package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known agents",
	Long:  `List every agent the supervisor knows about, refreshing each one's status via its health endpoint first.`,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	sup, log, err := newSupervisor(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	infos := sup.List()
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no agents")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPORT\tPID")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", info.ID, info.Status, info.Port, info.PID)
	}
	return w.Flush()
}
