package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var downloadDir string

var downloadCmd = &cobra.Command{
	Use:   "download <source>",
	Short: "Download a cited source document",
	Long: `Download a document the assistant cited as a source.

Source names are printed under each RAG answer. Files are saved to the
configured download directory (default ~/Downloads).

Examples:
  studychat download "OS Unit 3.pdf"
  studychat download "OS Unit 3.pdf" -o ./notes`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadDir, "output", "o", "", "Directory to save into")
}

func runDownload(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	dir := downloadDir
	if dir == "" {
		dir = cfg.DownloadDir
	}

	spinner := NewSpinner("Downloading " + args[0] + "...")
	spinner.Start()
	path, err := a.client.Download(cmd.Context(), args[0], dir)
	spinner.Stop()
	if err != nil {
		return err
	}

	fmt.Printf("Saved to %s\n", path)
	return nil
}
