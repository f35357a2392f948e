package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/neilberkman/studychat/internal/core/config"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	backendURL  string
	dbPath      string
	verbose     bool
	versionInfo string

	cfg       *config.Config
	logCloser io.Closer
)

// SetVersion sets the version information from build-time ldflags
func SetVersion(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	rootCmd.Version = versionInfo
}

// Execute runs the CLI
func Execute() {
	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "studychat",
	Short: "Terminal client for the study assistant",
	Long: `studychat - ask your study assistant about syllabus, notes and papers

Chat sessions are kept locally and each answer links to the documents it
was grounded on. Switch between RAG answers (your uploaded files) and
general-knowledge answers at any time.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to TUI if no subcommand specified
		return tuiCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.config/studychat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr")
}

// setup loads config and logging before any command runs
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if backendURL != "" {
		loaded.BackendURL = backendURL
	}
	if dbPath != "" {
		loaded.DBPath = dbPath
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	closer, err := logging.Setup(logging.Options{Path: cfg.LogPath, Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logCloser = closer

	logging.Logger().Debug("config loaded",
		"backend", cfg.BackendURL,
		"storage", cfg.StorageBackend,
		"command", cmd.Name(),
	)
	return nil
}
