package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/tirecode/internal/session"
)

// maxEvents bounds the event log shown under the status box.
const maxEvents = 8

// Session is the part of session.Manager the watch view drives.
type Session interface {
	Subscribe() (<-chan session.Snapshot, func())
	Refresh(ctx context.Context) error
	Logout(ctx context.Context)
}

// Model is the bubbletea model of 'tirecode auth watch'.
type Model struct {
	sess    Session
	updates <-chan session.Snapshot
	cancel  func()
	now     func() time.Time

	snap       session.Snapshot
	hasSnap    bool
	refreshing bool
	events     []event
	lastError  string

	width    int
	height   int
	quitting bool
	showHelp bool

	spinner spinner.Model
	help    help.Model
	keys    keyMap
	styles  Styles
}

type event struct {
	at   time.Time
	text string
}

// keyMap defines the watch view shortcuts.
type keyMap struct {
	Refresh key.Binding
	Logout  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Logout, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Refresh, k.Logout}, {k.Help, k.Quit}}
}

var defaultKeys = keyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh now")),
	Logout:  key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "log out")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Styles contains lipgloss styles for the TUI
type Styles struct {
	Title         lipgloss.Style
	Label         lipgloss.Style
	Value         lipgloss.Style
	Authenticated lipgloss.Style
	Anonymous     lipgloss.Style
	Pending       lipgloss.Style
	Error         lipgloss.Style
	Muted         lipgloss.Style
	Border        lipgloss.Style
}

// DefaultStyles returns the default lipgloss styles
func DefaultStyles() Styles {
	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")). // Purple
			MarginBottom(1),
		Label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")). // Gray
			Width(14),
		Value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Authenticated: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("46")), // Green
		Anonymous: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("226")), // Yellow
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")), // Cyan
		Error: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196")), // Red
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 2),
	}
}

// NewModel subscribes to sess. The subscription ends when the program quits.
func NewModel(sess Session) Model {
	updates, cancel := sess.Subscribe()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		sess:    sess,
		updates: updates,
		cancel:  cancel,
		now:     time.Now,
		spinner: sp,
		help:    help.New(),
		keys:    defaultKeys,
		styles:  DefaultStyles(),
	}
}

// SnapshotMsg carries a new session snapshot.
type SnapshotMsg struct {
	Snapshot session.Snapshot
}

// RefreshDoneMsg reports a manual refresh outcome.
type RefreshDoneMsg struct {
	Err error
}

// LoggedOutMsg follows a logout triggered from the view.
type LoggedOutMsg struct{}

type tickMsg time.Time

type closedMsg struct{}

// Init initializes the TUI model (required by Bubble Tea)
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForSnapshot(), tick(), m.spinner.Tick)
}

func (m Model) waitForSnapshot() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return closedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages and updates the model state (required by Bubble Tea)
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case SnapshotMsg:
		m.applySnapshot(msg.Snapshot)
		return m, m.waitForSnapshot()

	case RefreshDoneMsg:
		m.refreshing = false
		if msg.Err != nil {
			m.lastError = msg.Err.Error()
			m.addEvent("refresh failed")
		} else {
			m.lastError = ""
			m.addEvent("refreshed")
		}
		return m, nil

	case LoggedOutMsg:
		m.addEvent("logged out")
		return m, nil

	case closedMsg:
		return m.quit()

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp

	case key.Matches(msg, m.keys.Refresh):
		if m.refreshing || !m.snap.IsAuthenticated {
			return m, nil
		}
		m.refreshing = true
		sess := m.sess
		return m, func() tea.Msg {
			return RefreshDoneMsg{Err: sess.Refresh(context.Background())}
		}

	case key.Matches(msg, m.keys.Logout):
		if m.snap.State != session.StateAuthenticated {
			return m, nil
		}
		sess := m.sess
		return m, func() tea.Msg {
			sess.Logout(context.Background())
			return LoggedOutMsg{}
		}
	}
	return m, nil
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.cancel != nil {
		m.cancel()
	}
	return m, tea.Quit
}

func (m *Model) applySnapshot(s session.Snapshot) {
	prev := m.snap
	first := !m.hasSnap
	m.snap = s
	m.hasSnap = true

	switch {
	case first:
		m.addEvent("watching (" + s.State.String() + ")")
	case prev.State != s.State:
		m.addEvent(prev.State.String() + " → " + s.State.String())
	case !s.NextRefresh.IsZero() && !s.NextRefresh.Equal(prev.NextRefresh):
		m.addEvent("next refresh at " + s.NextRefresh.Format("15:04:05"))
	}
}

func (m *Model) addEvent(text string) {
	m.events = append(m.events, event{at: m.now(), text: text})
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

// Run starts the watch view and blocks until the user quits or ctx ends.
func Run(ctx context.Context, sess Session) error {
	p := tea.NewProgram(NewModel(sess), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
