package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/neilberkman/studychat/internal/core/backend"
	"github.com/neilberkman/studychat/internal/core/conversation"
	"github.com/neilberkman/studychat/internal/core/db"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/search"
)

type errMsg struct {
	err error
}

type statusMsg string

// answerMsg carries the backend's reply to a pending send
type answerMsg struct {
	pending *conversation.Pending
	resp    *backend.Response
	err     error
}

type downloadedMsg struct {
	path string
	err  error
}

type searchResultsMsg struct {
	query   string
	results []search.Result
}

// askBackend runs the request off the update loop
func askBackend(ctx context.Context, c *conversation.Controller, p *conversation.Pending) tea.Cmd {
	return func() tea.Msg {
		ctx := logging.WithRequestID(ctx, uuid.NewString())
		resp, err := c.Ask(ctx, p)
		return answerMsg{pending: p, resp: resp, err: err}
	}
}

func downloadSource(ctx context.Context, src Sources, sourceID, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := src.Download(ctx, sourceID, dir)
		return downloadedMsg{path: path, err: err}
	}
}

// copyLinks puts the links on the clipboard, one per line. Without a
// clipboard the links are shown in the status line instead.
func copyLinks(links []string) tea.Cmd {
	return func() tea.Msg {
		text := strings.Join(links, "\n")
		if err := clipboard.WriteAll(text); err != nil {
			return statusMsg("No clipboard: " + strings.Join(links, " "))
		}
		if len(links) == 1 {
			return statusMsg("Copied source link")
		}
		return statusMsg(fmt.Sprintf("Copied %d source links", len(links)))
	}
}

func performSearch(ctx context.Context, database *db.DB, query string, now time.Time) tea.Cmd {
	return func() tea.Msg {
		// Minimum 2 characters to search (avoid useless single-char results)
		if len(strings.TrimSpace(query)) < 2 {
			return searchResultsMsg{query: query}
		}

		filters := search.ParseQuery(query, now)
		if strings.TrimSpace(filters.Query) == "" {
			return searchResultsMsg{query: query}
		}
		filters.Limit = 100

		results, err := search.Search(ctx, database, filters)
		if err != nil {
			return errMsg{err}
		}
		if results == nil {
			results = []search.Result{}
		}
		return searchResultsMsg{query: query, results: results}
	}
}
