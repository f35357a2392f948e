package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print a session transcript",
	Long: `Print every message of a session with its sources.

Examples:
  studychat show 1
  studychat show 0ccfddc4`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("# %s\n", sess.Title)
	fmt.Printf("%s · %d messages · %s\n\n", sess.ID, len(sess.Messages), sess.Timestamp.Format("Jan 2, 2006 3:04 PM"))
	for _, m := range sess.Messages {
		printMessage(m, a.client)
	}
	return nil
}
