// Package tui provides a Bubble Tea TUI that watches the daemon status live.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/afklabs/afkmon/internal/monitor"
)

// ── Styles ────────────

var (
	// Title bar at the very top
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("82")).
		Bold(true)

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// Fetch retrieves a fresh status snapshot from the daemon.
type Fetch func(ctx context.Context) (monitor.Status, error)

type statusMsg struct {
	status monitor.Status
	err    error
}

type tickMsg time.Time

// Model is the root Bubble Tea model for the status watcher.
type Model struct {
	fetch   Fetch
	spinner spinner.Model
	status  monitor.Status
	err     error
	loaded  bool
	width   int
}

// New creates a status watcher that polls via fetch.
func New(fetch Fetch) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{fetch: fetch, spinner: sp, width: 80}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case statusMsg:
		m.status = msg.status
		m.err = msg.err
		m.loaded = true
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	title := titleStyle.Width(m.width).Render("  afkmon  status watch")

	var body strings.Builder
	body.WriteString("\n")

	if !m.loaded {
		body.WriteString("  " + m.spinner.View() + " connecting to daemon…\n")
		return lipgloss.JoinVertical(lipgloss.Left, title, body.String(), m.hintBar())
	}
	if m.err != nil {
		body.WriteString("  " + badStyle.Render("✗ daemon unreachable") + "\n\n")
		body.WriteString(dimStyle.Render("  "+m.err.Error()) + "\n")
		return lipgloss.JoinVertical(lipgloss.Left, title, body.String(), m.hintBar())
	}

	st := m.status
	row := func(label, value string) {
		body.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}

	row("Enabled:", onOff(st.Enabled))
	row("Monitoring:", onOff(st.Monitoring))
	if st.Connected {
		row("Collector:", okStyle.Render("✓ connected")+dimStyle.Render("  "+st.ServerURL))
	} else {
		row("Collector:", badStyle.Render("✗ "+st.ConnectionMessage)+dimStyle.Render("  "+st.ServerURL))
	}
	row("Pending:", fmt.Sprintf("%d", st.PendingCount))

	body.WriteString("\n")
	if st.CurrentSession != nil {
		s := st.CurrentSession
		body.WriteString("  " + m.spinner.View() + " tracking " + fileStyle.Render(s.FileName) + "\n\n")
		row("Project:", s.ProjectName)
		row("Language:", s.Language)
		row("Elapsed:", timeStyle.Render(monitor.FormatDuration(st.SessionSeconds)))
		row("Edits:", fmt.Sprintf("%d", s.TotalEdits))
		row("Lines:", fmt.Sprintf("+%d  -%d  ~%d", s.LinesAdded, s.LinesDeleted, s.LinesModified))
		row("Characters:", fmt.Sprintf("+%d  -%d  ~%d", s.CharactersAdded, s.CharactersDeleted, s.CharactersModified))
	} else {
		body.WriteString(dimStyle.Render("  (no active session — focus a file to start tracking)") + "\n")
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, body.String(), m.hintBar())
}

func (m Model) hintBar() string {
	return statusBarStyle.Width(m.width).Render("  r refresh  q quit")
}

// ── Commands ───────────────

func (m Model) refresh() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		st, err := fetch(ctx)
		return statusMsg{status: st, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func onOff(v bool) string {
	if v {
		return okStyle.Render("yes")
	}
	return dimStyle.Render("no")
}

// Run starts the watcher and blocks until the user quits.
func Run(fetch Fetch) error {
	p := tea.NewProgram(New(fetch), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
