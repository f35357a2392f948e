package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/internal/core/search"
)

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.String() {
	case "esc":
		m.resetSearch()
		m.openList()
		return m, nil

	case "enter":
		// Open the session holding the selected message
		if len(m.searchResults) > 0 && m.searchSelectedIdx < len(m.searchResults) {
			sessionID := m.searchResults[m.searchSelectedIdx].SessionID
			if m.store.LoadSession(sessionID) {
				m.resetSearch()
				m.backToChat()
				return m, nil
			}
			m.status = "Session no longer exists"
		}
		return m, nil

	// Navigation: ctrl+j or arrow keys, so j/k can still be typed
	case "ctrl+j", "down":
		if len(m.searchResults) > 0 {
			m.searchSelectedIdx++
			if m.searchSelectedIdx >= len(m.searchResults) {
				m.searchSelectedIdx = len(m.searchResults) - 1
			}
			return adjustSearchViewport(m), nil
		}
		return m, nil

	case "up":
		if len(m.searchResults) > 0 {
			m.searchSelectedIdx--
			if m.searchSelectedIdx < 0 {
				m.searchSelectedIdx = 0
			}
			return adjustSearchViewport(m), nil
		}
		return m, nil
	}

	m.searchInput, cmd = m.searchInput.Update(msg)

	// Live search on every keystroke
	query := m.searchInput.Value()
	m.searchSelectedIdx = 0
	m.searchViewOffset = 0
	return m, tea.Batch(cmd, performSearch(m.ctx, m.db, query, m.now()))
}

func (m *Model) resetSearch() {
	m.searchInput.SetValue("")
	m.searchResults = nil
	m.searchSelectedIdx = 0
	m.searchViewOffset = 0
}

func (m Model) viewSearch() string {
	var b strings.Builder

	b.WriteString(searchHeaderStyle.Render("Search: "))
	b.WriteString(m.searchInput.View())
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", min(m.width, 80)))
	b.WriteString("\n\n")

	if m.searchResults == nil {
		b.WriteString(searchMetaStyle.Render("Type to search (minimum 2 characters)"))
	} else if len(m.searchResults) == 0 {
		b.WriteString(searchMetaStyle.Render("No results found"))
	} else {
		b.WriteString(searchMetaStyle.Render(fmt.Sprintf("Found %d messages:", len(m.searchResults))))
		b.WriteString("\n\n")

		startIdx := m.searchViewOffset
		endIdx := startIdx + m.visibleSearchResults()
		if endIdx > len(m.searchResults) {
			endIdx = len(m.searchResults)
		}

		query := search.ParseQuery(m.searchInput.Value(), m.now()).Query
		for i := startIdx; i < endIdx; i++ {
			b.WriteString(m.renderSearchResult(m.searchResults[i], i == m.searchSelectedIdx, query))
			b.WriteString("\n\n")
		}

		if startIdx > 0 {
			b.WriteString(searchMetaStyle.Render(fmt.Sprintf("... %d results above\n", startIdx)))
		}
		if endIdx < len(m.searchResults) {
			b.WriteString(searchMetaStyle.Render(fmt.Sprintf("... %d results below\n", len(m.searchResults)-endIdx)))
		}
	}

	b.WriteString("\n\n")
	if len(m.searchResults) > 0 {
		b.WriteString("ctrl+j or ↑↓: navigate | enter: open | esc: back")
	} else {
		b.WriteString("Type to search (min 2 chars) | esc: back")
	}
	b.WriteString("\n")
	b.WriteString(searchMetaStyle.Render("Filters: mode:rag | mode:general | after:yesterday | before:2024-11-01"))
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
	}

	return b.String()
}

func (m Model) renderSearchResult(r search.Result, selected bool, query string) string {
	title := r.SessionTitle
	prefix := "  "
	if selected {
		prefix = "► "
		title = searchSelectedStyle.Render(title)
	} else {
		title = searchMatchStyle.Render(title)
	}

	who := "You"
	if r.Sender == models.SenderAI {
		who = "Assistant"
		if label := r.Mode.Label(); label != "" {
			who += " " + label
		}
	}

	meta := fmt.Sprintf("[%s] %s", who, humanize.Time(r.CreatedAt))
	snippet := runewidth.Truncate(strings.Join(strings.Fields(r.Snippet), " "), max(m.width-6, 40), "...")

	return fmt.Sprintf("%s%s %s\n    %s", prefix, title, searchMetaStyle.Render(meta), highlightQuery(snippet, query))
}

func highlightQuery(text, query string) string {
	if query == "" {
		return text
	}

	// Simple case-insensitive highlighting of the first occurrence
	lower := strings.ToLower(text)
	lowerQuery := strings.ToLower(query)

	idx := strings.Index(lower, lowerQuery)
	if idx == -1 || len(lower) != len(text) {
		return text
	}

	before := text[:idx]
	match := text[idx : idx+len(query)]
	after := text[idx+len(query):]

	return before + searchMatchStyle.Render(match) + after
}
