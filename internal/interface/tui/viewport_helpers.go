package tui

const (
	searchLinesPerResult = 3 // header, snippet, blank line
	searchReservedLines  = 9 // input, rule, counts, footer, status
)

// visibleSearchResults is how many search results fit on screen
func (m Model) visibleSearchResults() int {
	n := (m.height - searchReservedLines) / searchLinesPerResult
	if n < 2 {
		n = 2
	}
	return n
}

// adjustSearchViewport ensures the selected search result is visible
func adjustSearchViewport(m Model) Model {
	visible := m.visibleSearchResults()

	if m.searchSelectedIdx >= m.searchViewOffset+visible {
		m.searchViewOffset = m.searchSelectedIdx - visible + 1
	}
	if m.searchSelectedIdx < m.searchViewOffset {
		m.searchViewOffset = m.searchSelectedIdx
	}

	return m
}

// handleSearchMouseWheel moves the selection one result per wheel step
func handleSearchMouseWheel(m Model, wheelDown bool) Model {
	if len(m.searchResults) == 0 {
		return m
	}

	if wheelDown {
		m.searchSelectedIdx++
		if m.searchSelectedIdx >= len(m.searchResults) {
			m.searchSelectedIdx = len(m.searchResults) - 1
		}
	} else {
		m.searchSelectedIdx--
		if m.searchSelectedIdx < 0 {
			m.searchSelectedIdx = 0
		}
	}

	return adjustSearchViewport(m)
}
