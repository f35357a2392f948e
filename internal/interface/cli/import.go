package cli

import (
	"fmt"
	"os"

	"github.com/neilberkman/studychat/internal/core/importer"
	"github.com/neilberkman/studychat/pkg/chatsessions"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import sessions exported from the web client",
	Long: `Import chat sessions saved by the browser version of the study
assistant.

Accepts a JSON array of sessions, or a dump of the browser's local storage
(an object whose value holds the session array). Sessions that already
exist are skipped.

Examples:
  studychat import chat-sessions.json
  studychat import localstorage-dump.json`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	parsed, err := chatsessions.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var progress importer.ProgressCallback
	if isStderrTTY() {
		progress = importer.NewProgressReporter(os.Stderr, len(parsed))
	}

	res, err := importer.New(a.store).Import(ctx, parsed, progress)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d session(s), skipped %d already present (%d messages read)\n",
		res.Added, res.Skipped, res.Messages)
	return nil
}
