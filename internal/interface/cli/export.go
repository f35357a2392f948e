package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/neilberkman/studychat/internal/core/export"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <session>",
	Short: "Export a session to markdown",
	Long: `Export a chat session to a markdown file, with download links for
every cited source.

By default exports to current directory as session-<id>.md.
Use --output to specify a custom path, or - for stdout. The layout comes
from ~/.config/studychat/export_template.md when that file exists.

Examples:
  studychat export 1
  studychat export 0ccfddc4 --output ~/notes/deadlock.md
  studychat export 2 -o -`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file path (default: session-<id>.md in current directory)")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	md, err := export.Markdown(sess, cfg.ExportTemplate, a.client.DownloadURL)
	if err != nil {
		return err
	}

	if exportOutput == "-" {
		fmt.Print(md)
		return nil
	}

	outputPath := exportOutput
	if outputPath == "" {
		outputPath = export.Filename(sess)
	}
	outputPath, err = filepath.Abs(outputPath)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(md), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Printf("Exported %q to: %s\n", sess.Title, outputPath)
	fmt.Printf("Messages: %d\n", len(sess.Messages))
	return nil
}
