package cli

import (
	"fmt"
	"time"

	"github.com/neilberkman/studychat/internal/core/search"
	"github.com/spf13/cobra"
)

var (
	listLimit int
	listSince string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat sessions",
	Long: `List chat sessions, most recent first.

The number in brackets can be used wherever a session is expected.

Examples:
  studychat list
  studychat list --limit 10
  studychat list --since "last week"`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of sessions to display")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only sessions started after this date (e.g. yesterday, 2024-11-01)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var since time.Time
	if listSince != "" {
		t := search.ParseDate(search.NewDateParser(), listSince, time.Now())
		if t == nil {
			return fmt.Errorf("unrecognized date %q", listSince)
		}
		since = *t
	}

	activeID := a.store.ActiveID()
	shown := 0
	for i, s := range a.store.Sessions() {
		if !since.IsZero() && s.Timestamp.Before(since) {
			continue
		}
		if shown >= listLimit {
			break
		}
		shown++

		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		fmt.Printf("%s[%d] %s\n", marker, i+1, truncate(s.Title, 60))
		fmt.Printf("    ID:       %s\n", s.ID)
		fmt.Printf("    Messages: %d\n", len(s.Messages))
		fmt.Printf("    Started:  %s\n", formatTimestamp(s.Timestamp))
		if m, ok := s.LastAnswer(); ok && m.Text != "" && len(s.Messages) > 1 {
			fmt.Printf("    Last:     %s\n", truncate(m.Text, 70))
		}
		fmt.Println()
	}

	if shown == 0 {
		fmt.Println("No sessions found.")
	}
	return nil
}
