package cli

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chat history statistics",
	Long: `Display statistics about your chat history.

Shows session and message counts, the RAG/general split of answers, the
date range and storage size.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	database, err := a.storage.RequireDB()
	if err != nil {
		return err
	}

	stats, err := database.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Println("Chat History Statistics")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Printf("Total Sessions:    %d\n", stats.TotalSessions)
	fmt.Printf("Total Messages:    %d\n", stats.TotalMessages)
	fmt.Printf("  Questions:       %d\n", stats.UserMessages)
	fmt.Printf("  Answers:         %d\n", stats.Answers)
	fmt.Printf("  Failed:          %d\n", stats.ErrorMessages)
	fmt.Println()
	fmt.Printf("RAG Answers:       %d\n", stats.RAGAnswers)
	fmt.Printf("General Answers:   %d\n", stats.GeneralAnswers)
	fmt.Printf("With Sources:      %d\n", stats.SourcedAnswers)
	fmt.Println()

	if stats.TotalSessions > 0 {
		fmt.Printf("Oldest Session:    %s\n", stats.OldestSession.Format("Jan 2, 2006 3:04 PM"))
		fmt.Printf("Newest Session:    %s\n", stats.NewestSession.Format("Jan 2, 2006 3:04 PM"))
		fmt.Printf("Longest Session:   %s (%d messages)\n", truncate(stats.LongestTitle, 40), stats.LongestMsgCount)
		fmt.Println()
	}

	if info, err := os.Stat(cfg.DBPath); err == nil {
		fmt.Printf("Database Size:     %s\n", humanize.Bytes(uint64(info.Size())))
	}
	fmt.Printf("Database Path:     %s\n", cfg.DBPath)
	return nil
}
