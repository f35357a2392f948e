package tui

import (
	"errors"
	"net/url"
	"path"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"
	"github.com/neilberkman/studychat/internal/core/config"
	"github.com/neilberkman/studychat/internal/core/conversation"
	"github.com/neilberkman/studychat/internal/core/models"
)

func newRenderer(dark bool, width int) *glamour.TermRenderer {
	style := "light"
	if dark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// refreshChat re-renders the active session into the viewport
func (m *Model) refreshChat(toBottom bool) {
	m.viewport.SetContent(m.renderTranscript(m.store.Active()))
	if toBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderTranscript(sess models.Session) string {
	var b strings.Builder
	width := m.contentWidth()

	for i, msg := range sess.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, width))
	}

	return b.String()
}

func (m Model) renderMessage(msg models.Message, width int) string {
	var b strings.Builder

	if msg.Sender == models.SenderUser {
		b.WriteString(userStyle.Render("▸ You"))
		b.WriteString("\n")
		if msg.Text != "" {
			b.WriteString(wordwrap.String(msg.Text, width))
			b.WriteString("\n")
		}
		if msg.Image != "" {
			b.WriteString(attachmentStyle.Render("[image] " + imageName(msg.Image)))
			b.WriteString("\n")
		}
		return b.String()
	}

	b.WriteString(assistantStyle.Render("▸ Assistant"))
	if label := msg.Mode.Label(); label != "" && !msg.IsError {
		b.WriteString(" ")
		b.WriteString(modeBadgeStyle.Render("[" + label + "]"))
	}
	b.WriteString("\n")

	if msg.IsError {
		b.WriteString(errorStyle.Render(wordwrap.String(msg.Text, width)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(m.renderMarkdown(msg.Text, width))
	b.WriteString("\n")

	if msg.HasSources() {
		b.WriteString("Sources:\n")
		for _, src := range msg.Sources {
			b.WriteString("  • " + src + "\n")
			if m.sources != nil {
				b.WriteString("    " + sourceStyle.Render(m.sources.DownloadURL(src)) + "\n")
			}
		}
	}
	if msg.ShowsGeneralDisclaimer() {
		b.WriteString(disclaimerStyle.Render(models.DisclaimerText))
		b.WriteString("\n")
	}

	return b.String()
}

// renderMarkdown renders answers through glamour once the terminal size is
// known, plain wrapped text until then.
func (m Model) renderMarkdown(text string, width int) string {
	if m.renderer == nil {
		return wordwrap.String(text, width)
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return wordwrap.String(text, width)
	}
	return strings.Trim(out, "\n")
}

// imageName is the file name behind an attachment URI
func imageName(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return uri
	}
	return path.Base(u.Path)
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.attaching {
		return m.updateAttach(msg)
	}

	switch msg.String() {
	case "esc":
		return m, tea.Quit

	case "enter":
		return m.send()

	case "ctrl+n":
		if _, err := m.controller.NewChat(m.ctx); err != nil {
			m.status = "Could not save new chat: " + err.Error()
		} else {
			m.status = ""
		}
		m.input.Reset()
		m.refreshChat(true)
		return m, nil

	case "ctrl+s":
		m.openList()
		return m, nil

	case "ctrl+g":
		mode := m.controller.ToggleMode()
		m.input.Placeholder = m.controller.Placeholder()
		m.status = "Mode: " + mode.Label()
		return m, nil

	case "ctrl+o":
		m.attaching = true
		m.attachInput.Reset()
		m.input.Blur()
		return m, m.attachInput.Focus()

	case "ctrl+x":
		if m.controller.Attachment() != nil {
			m.controller.ClearAttachment()
			m.status = "Attachment removed"
		}
		return m, nil

	case "ctrl+y":
		links := m.lastSourceLinks()
		if len(links) == 0 {
			m.status = "No sources to copy"
			return m, nil
		}
		return m, copyLinks(links)

	case "ctrl+d":
		answer, ok := m.store.Active().LastAnswer()
		if !ok || !answer.HasSources() || m.sources == nil {
			m.status = "No sources to download"
			return m, nil
		}
		m.status = "Downloading " + answer.Sources[0] + "..."
		return m, downloadSource(m.ctx, m.sources, answer.Sources[0], m.downloadDir)

	case "up":
		m.viewport.LineUp(1)
		return m, nil
	case "down":
		m.viewport.LineDown(1)
		return m, nil
	case "pgup":
		m.viewport.HalfViewUp()
		return m, nil
	case "pgdown":
		m.viewport.HalfViewDown()
		return m, nil

	case "?":
		if m.input.Value() == "" {
			m.showHelp()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.controller.SetInput(m.input.Value())
	return m, cmd
}

// send hands the input to the controller. While a request is in flight
// the key does nothing.
func (m Model) send() (tea.Model, tea.Cmd) {
	if m.controller.Busy() {
		return m, nil
	}

	m.controller.SetInput(m.input.Value())
	p, err := m.controller.Begin(m.ctx)
	if err != nil {
		if !errors.Is(err, conversation.ErrRejected) {
			m.status = "Error: " + err.Error()
		}
		return m, nil
	}

	m.input.Reset()
	m.status = ""
	m.refreshChat(true)
	return m, tea.Batch(m.spinner.Tick, askBackend(m.ctx, m.controller, p))
}

func (m Model) finishAnswer(msg answerMsg) (tea.Model, tea.Cmd) {
	if _, err := m.controller.Finish(m.ctx, msg.pending, msg.resp, msg.err); err != nil {
		m.status = "Could not save reply: " + err.Error()
	}
	m.refreshChat(true)
	if m.mode == listView {
		m.list = createSessionList(m.store.Sessions(), m.store.Active().ID, m.width, m.height)
	}
	return m, nil
}

func (m Model) updateAttach(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.attaching = false
		m.attachInput.Blur()
		return m, m.input.Focus()

	case "enter":
		m.attaching = false
		m.attachInput.Blur()
		p := config.ExpandHome(strings.TrimSpace(m.attachInput.Value()))
		if p != "" {
			a, err := conversation.LoadAttachment(p)
			if err != nil {
				m.status = err.Error()
			} else {
				m.controller.Attach(a)
				m.status = "Attached " + a.Name
			}
		}
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.attachInput, cmd = m.attachInput.Update(msg)
	return m, cmd
}

// lastSourceLinks returns download links for the newest cited answer
func (m Model) lastSourceLinks() []string {
	answer, ok := m.store.Active().LastAnswer()
	if !ok || m.sources == nil {
		return nil
	}
	links := make([]string, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		links = append(links, m.sources.DownloadURL(src))
	}
	return links
}

func (m Model) viewChat() string {
	var b strings.Builder

	active := m.store.Active()
	b.WriteString(titleStyle.Render(active.Title))
	b.WriteString(" ")
	b.WriteString(modeBadgeStyle.Render("[" + m.controller.Mode().Label() + "]"))
	b.WriteString("\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.statusLine())
	b.WriteString("\n")

	if m.attaching {
		b.WriteString(m.attachInput.View())
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	if m.attaching {
		b.WriteString(helpStyle.Render("enter attach • esc cancel"))
	} else {
		b.WriteString(helpStyle.Render("enter send • ctrl+g mode • ctrl+o attach • ctrl+s sessions • ctrl+n new • ? help"))
	}

	return b.String()
}

func (m Model) statusLine() string {
	var parts []string
	if m.controller.Busy() {
		parts = append(parts, m.spinner.View()+" Thinking...")
	}
	if a := m.controller.Attachment(); a != nil {
		parts = append(parts, attachmentStyle.Render("[image] "+a.Name))
	}
	if m.status != "" {
		parts = append(parts, m.status)
	}
	return statusStyle.Render(strings.Join(parts, " | "))
}
