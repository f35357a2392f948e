package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/neilberkman/studychat/internal/interface/tui"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive chat",
	Long:  "Launch the terminal chat with the study assistant: ask questions, attach images and browse past sessions",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	model := tui.New(ctx, tui.Options{
		Store:       a.store,
		Controller:  a.controller,
		Sources:     a.client,
		DB:          a.storage.DB,
		DownloadDir: cfg.DownloadDir,
	})
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
