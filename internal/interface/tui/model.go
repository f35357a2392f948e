package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/neilberkman/studychat/internal/core/conversation"
	"github.com/neilberkman/studychat/internal/core/db"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/internal/core/search"
)

type viewMode int

const (
	chatView viewMode = iota
	listView
	searchView
	helpView
)

// chatChromeLines is the space the chat view reserves around the transcript
// (header, status, input, key hints).
const chatChromeLines = 5

// SessionStore is the session store as seen by the TUI
type SessionStore interface {
	Sessions() []models.Session
	Active() models.Session
	LoadSession(id string) bool
	DeleteSession(ctx context.Context, id string) error
}

// Sources resolves and fetches the documents an answer cites
type Sources interface {
	DownloadURL(sourceID string) string
	Download(ctx context.Context, sourceID, dir string) (string, error)
}

// Options wires the TUI to the core. DB is optional; without it the
// search view is unavailable.
type Options struct {
	Store       SessionStore
	Controller  *conversation.Controller
	Sources     Sources
	DB          *db.DB
	DownloadDir string
}

type Model struct {
	ctx         context.Context
	store       SessionStore
	controller  *conversation.Controller
	sources     Sources
	db          *db.DB
	downloadDir string
	now         func() time.Time

	mode     viewMode
	prevMode viewMode
	width    int
	height   int
	status   string

	// Chat
	viewport    viewport.Model
	input       textinput.Model
	attachInput textinput.Model
	attaching   bool
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	darkBG      bool

	// Sessions list
	list list.Model

	// Search
	searchInput       textinput.Model
	searchResults     []search.Result
	searchSelectedIdx int
	searchViewOffset  int
}

func New(ctx context.Context, opts Options) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4000
	input.Placeholder = opts.Controller.Placeholder()
	input.SetValue(opts.Controller.Input())
	input.Focus()

	attachInput := textinput.New()
	attachInput.Prompt = "Image path: "
	attachInput.CharLimit = 1024
	attachInput.Placeholder = "~/Pictures/problem.png"

	searchInput := textinput.New()
	searchInput.Placeholder = "deadlock mode:rag after:last-week"
	searchInput.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:         ctx,
		store:       opts.Store,
		controller:  opts.Controller,
		sources:     opts.Sources,
		db:          opts.DB,
		downloadDir: opts.DownloadDir,
		now:         time.Now,
		mode:        chatView,
		width:       80,
		height:      24,
		input:       input,
		attachInput: attachInput,
		searchInput: searchInput,
		spinner:     sp,
		darkBG:      lipgloss.HasDarkBackground(),
	}
	m.viewport = viewport.New(m.width, m.height-chatChromeLines)
	m.refreshChat(true)
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer = newRenderer(m.darkBG, m.contentWidth())
		m.resize()
		m.refreshChat(true)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.mode {
		case chatView:
			return m.updateChat(msg)
		case listView:
			return m.updateList(msg)
		case searchView:
			return m.updateSearch(msg)
		case helpView:
			return m.updateHelp(msg)
		}

	case tea.MouseMsg:
		switch m.mode {
		case chatView:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case searchView:
			if msg.Action == tea.MouseActionPress {
				switch msg.Button {
				case tea.MouseButtonWheelDown:
					return handleSearchMouseWheel(m, true), nil
				case tea.MouseButtonWheelUp:
					return handleSearchMouseWheel(m, false), nil
				}
			}
		}
		return m, nil

	case spinner.TickMsg:
		if !m.controller.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		return m.finishAnswer(msg)

	case downloadedMsg:
		if msg.err != nil {
			m.status = "Download failed: " + msg.err.Error()
		} else {
			m.status = "Saved " + msg.path
		}
		return m, nil

	case searchResultsMsg:
		// Drop results for a query the user has already typed past
		if msg.query == m.searchInput.Value() {
			m.searchResults = msg.results
		}
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case errMsg:
		m.status = "Error: " + msg.err.Error()
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	switch m.mode {
	case chatView:
		return m.viewChat()
	case listView:
		return m.viewList()
	case searchView:
		return m.viewSearch()
	case helpView:
		return m.viewHelp()
	}

	return ""
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	m.viewport.Height = m.height - chatChromeLines
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
	m.input.Width = m.width - 4
	if m.mode == listView {
		m.list.SetSize(m.width, m.height-2)
	}
}

// contentWidth is the wrap width for transcript text
func (m Model) contentWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	return w
}

func (m *Model) showHelp() {
	m.prevMode = m.mode
	m.mode = helpView
}
