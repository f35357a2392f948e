package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/neilberkman/studychat/internal/core/models"
)

type sessionListItem struct {
	session models.Session
	active  bool
}

func (i sessionListItem) FilterValue() string {
	return i.session.Title
}

func (i sessionListItem) Title() string {
	return i.session.Title
}

func (i sessionListItem) Description() string {
	return fmt.Sprintf("%d messages | Started %s",
		len(i.session.Messages), humanize.Time(i.session.Timestamp))
}

// Custom delegate to highlight the active session
type sessionDelegate struct {
	list.DefaultDelegate
}

func (d sessionDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	s, ok := item.(sessionListItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, item)
		return
	}

	title := s.Title()
	desc := s.Description()

	switch {
	case index == m.Index():
		title = selectedItemStyle.Render("▸ " + title)
		desc = selectedItemStyle.Faint(true).Render("  " + desc)
	case s.active:
		title = activeItemStyle.Render(title)
		desc = itemStyle.Render(desc)
	default:
		title = itemStyle.Render(title)
		desc = itemStyle.Render(desc)
	}

	fmt.Fprintf(w, "%s\n%s", title, desc)
}

func createSessionList(sessions []models.Session, activeID string, width, height int) list.Model {
	items := make([]list.Item, len(sessions))
	selected := 0
	for i, s := range sessions {
		items[i] = sessionListItem{session: s, active: s.ID == activeID}
		if s.ID == activeID {
			selected = i
		}
	}

	delegate := sessionDelegate{DefaultDelegate: list.NewDefaultDelegate()}

	l := list.New(items, delegate, width, height-2) // Reserve lines for help and status
	l.Title = ""
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false) // Dedicated search view on /
	l.Select(selected)

	return l
}

func (m *Model) openList() {
	m.list = createSessionList(m.store.Sessions(), m.store.Active().ID, m.width, m.height)
	m.mode = listView
	m.status = ""
}

func (m *Model) backToChat() {
	m.mode = chatView
	m.refreshChat(true)
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if selected, ok := m.list.SelectedItem().(sessionListItem); ok {
			m.store.LoadSession(selected.session.ID)
		}
		m.backToChat()
		return m, nil

	case "d":
		selected, ok := m.list.SelectedItem().(sessionListItem)
		if !ok {
			return m, nil
		}
		idx := m.list.Index()
		if err := m.store.DeleteSession(m.ctx, selected.session.ID); err != nil {
			m.status = "Delete failed: " + err.Error()
		} else {
			m.status = "Deleted " + selected.session.Title
		}
		m.list = createSessionList(m.store.Sessions(), m.store.Active().ID, m.width, m.height)
		if idx >= len(m.list.Items()) {
			idx = len(m.list.Items()) - 1
		}
		m.list.Select(idx)
		return m, nil

	case "n":
		if _, err := m.controller.NewChat(m.ctx); err != nil {
			m.status = "Could not save new chat: " + err.Error()
		}
		m.input.Reset()
		m.backToChat()
		return m, nil

	case "/":
		if m.db == nil {
			m.status = "Search needs the sqlite storage backend"
			return m, nil
		}
		m.mode = searchView
		m.status = ""
		return m, m.searchInput.Focus()

	case "?":
		m.showHelp()
		return m, nil

	case "esc", "q":
		m.backToChat()
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) viewList() string {
	helpText := helpStyle.Render("↑/k up • ↓/j down • enter open • d delete • n new • / search • esc back • ? help")
	status := statusStyle.Render(m.status)

	if len(m.list.Items()) == 0 {
		return "No sessions yet. Press n to start one.\n\n" + helpText + "\n" + status
	}

	return m.list.View() + "\n" + helpText + "\n" + status
}
