package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "?":
		m.mode = m.prevMode
		if m.mode == chatView {
			m.refreshChat(false)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) viewHelp() string {
	help := `
Study Assistant - Help
══════════════════════

CHAT
────
  Enter        Send question (disabled while waiting for an answer)
  ctrl+g       Toggle RAG / General answers
  ctrl+o       Attach an image (type its path)
  ctrl+x       Remove the attachment
  ctrl+y       Copy source links of the last answer
  ctrl+d       Download the first source of the last answer
  ctrl+n       New chat
  ctrl+s       Sessions list
  ↑/↓ pgup/dn  Scroll the conversation
  ?            Show this help (when the input is empty)
  esc, ctrl+c  Quit

SESSIONS
────────
  ↑/↓, j/k     Navigate sessions
  Enter        Open session
  d            Delete session
  n            New chat
  /            Search messages
  esc          Back to chat

SEARCH
──────
  Type         Enter search query (live)
  mode:rag     Only RAG answers (also mode:general)
  after:, before:  Date filters, e.g. after:last-week
  Enter        Open the session of the selected message
  ctrl+j/↑↓    Navigate results
  esc          Back to sessions

Press esc or ? to return
`

	return helpStyle.Render(help)
}
