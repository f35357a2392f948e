package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new chat session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		sess, err := a.controller.NewChat(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		fmt.Printf("Created session %s\n", sess.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session>",
	Short: "Delete a chat session",
	Long: `Delete a chat session permanently.

Deleting the last remaining session starts a fresh one.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		id, err := a.resolveSession(args[0])
		if err != nil {
			return err
		}
		sess, _ := a.store.Get(id)
		if err := a.store.DeleteSession(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		fmt.Printf("Deleted %q (%s)\n", sess.Title, id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(deleteCmd)
}
