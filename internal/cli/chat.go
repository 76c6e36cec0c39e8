package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinycrab/tinycrab/pkg/supervisor"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat <id> <message>",
	Short: "Send a message to a running agent",
	Long:  `Chat forwards message to the named agent's /chat endpoint and prints its reply.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "session id (continues an existing conversation if it matches)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	sup, log, err := newSupervisor(cmd)
	if err != nil {
		return err
	}
	defer log.Close()

	id, message := args[0], args[1]
	handle, ok := sup.Get(id)
	if !ok {
		return fmt.Errorf("agent %q is not running", id)
	}

	result, err := handle.Chat(cmd.Context(), message, supervisor.ChatOptions{SessionID: chatSessionID})
	if err != nil {
		return fmt.Errorf("chat with %q: %w", id, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", result.SessionID)
	return nil
}
