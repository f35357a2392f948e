package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/internal/core/search"
	"github.com/spf13/cobra"
)

var (
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search chat history using full-text search",
	Long: `Search through every message of every session.

Uses FTS5 full-text search with porter stemming for natural language.
Queries with symbols such as - or _ fall back to substring matching.

Filters:
  mode:rag | mode:general   only answers given in that mode
  after:<date>  before:<date>  date:<date>
    dates may be natural language (yesterday, last-week) or 2024-11-01

Examples:
  studychat search deadlock prevention
  studychat search "mode:rag normalization"
  studychat search "after:last-week paging"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum number of matches to show")
}

func runSearch(cmd *cobra.Command, args []string) error {
	// Join all args as query
	query := strings.Join(args, " ")

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

	filters := search.ParseQuery(query, time.Now())
	filters.Limit = searchLimit

	results, err := search.Search(ctx, database, filters)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Printf("No results found for: %s\n", query)
		return nil
	}

	fmt.Printf("Found %d match(es) for: %s\n\n", len(results), query)

	lastSession := ""
	for _, r := range results {
		if r.SessionID != lastSession {
			if lastSession != "" {
				fmt.Println()
			}
			fmt.Printf("%s  (%s, %s)\n", r.SessionTitle, shortID(r.SessionID), formatTimestamp(r.CreatedAt))
			lastSession = r.SessionID
		}
		role := "Student"
		if r.Sender == models.SenderAI {
			role = "Assistant"
			if r.Mode != "" {
				role += " [" + r.Mode.Label() + "]"
			}
		}
		fmt.Printf("  %s: %s\n", role, truncate(r.Snippet, 100))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
