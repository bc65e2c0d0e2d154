package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/session"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	okStyle   = lipgloss.NewStyle().Foreground(successColor)
	warnStyle = lipgloss.NewStyle().Foreground(warningColor)
	errStyle  = lipgloss.NewStyle().Foreground(errorColor)
)

const helpText = "↑/↓ select • p/r pause/resume • P/R all • n switch • s stop • q quit"

// Controller is the part of the fleet coordinator the dashboard drives.
type Controller interface {
	Status() fleet.Status
	Submit(cmd fleet.Command) error
}

// statusMsg carries a fresh status snapshot.
type statusMsg fleet.Status

// Model is the dashboard bubbletea model.
type Model struct {
	ctrl     Controller
	interval time.Duration
	table    table.Model
	status   fleet.Status
	message  string
	width    int
}

// New creates a dashboard refreshing every interval.
func New(ctrl Controller, interval time.Duration) *Model {
	if interval <= 0 {
		interval = time.Second
	}
	t := table.New(
		table.WithColumns(columns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(mutedColor).
		BorderBottom(true).
		Bold(true)
	st.Selected = st.Selected.
		Foreground(fgColor).
		Background(primaryColor).
		Bold(false)
	t.SetStyles(st)

	return &Model{ctrl: ctrl, interval: interval, table: t}
}

func columns() []table.Column {
	return []table.Column{
		{Title: "Session", Width: 8},
		{Title: "Device", Width: 16},
		{Title: "Status", Width: 9},
		{Title: "Phase", Width: 9},
		{Title: "Last action", Width: 14},
		{Title: "Taps", Width: 6},
		{Title: "Runs", Width: 5},
		{Title: "Elapsed", Width: 9},
		{Title: "Left", Width: 9},
		{Title: "Note", Width: 24},
	}
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func (m *Model) Run(ctx context.Context) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-stop:
		}
	}()
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.poll(0)
}

func (m *Model) poll(after time.Duration) tea.Cmd {
	if after <= 0 {
		return func() tea.Msg { return statusMsg(m.ctrl.Status()) }
	}
	return tea.Tick(after, func(time.Time) tea.Msg {
		return statusMsg(m.ctrl.Status())
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.setStatus(fleet.Status(msg))
		return m, m.poll(m.interval)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(max(msg.Height-8, 3))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.submit(fleet.Command{Action: fleet.ActionStop})
			return m, tea.Quit
		case "s":
			m.submit(fleet.Command{Action: fleet.ActionStop})
			return m, nil
		case "P":
			m.submit(fleet.Command{Action: fleet.ActionPauseAll})
			return m, nil
		case "R":
			m.submit(fleet.Command{Action: fleet.ActionResumeAll})
			return m, nil
		case "p":
			m.submitSelected(fleet.ActionPause)
			return m, nil
		case "r":
			m.submitSelected(fleet.ActionResume)
			return m, nil
		case "n":
			m.submitSelected(fleet.ActionSwitch)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) setStatus(st fleet.Status) {
	m.status = st
	rows := make([]table.Row, len(st.Sessions))
	for i, sn := range st.Sessions {
		rows[i] = row(sn)
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

// selected returns the session under the cursor.
func (m *Model) selected() (session.Snapshot, bool) {
	c := m.table.Cursor()
	if c < 0 || c >= len(m.status.Sessions) {
		return session.Snapshot{}, false
	}
	return m.status.Sessions[c], true
}

func (m *Model) submitSelected(action fleet.Action) {
	sn, ok := m.selected()
	if !ok {
		m.message = "no session selected"
		return
	}
	m.submit(fleet.Command{Action: action, Session: sn.ID})
}

func (m *Model) submit(cmd fleet.Command) {
	if err := m.ctrl.Submit(cmd); err != nil {
		m.message = errStyle.Render(fmt.Sprintf("%s failed: %v", cmd.Action, err))
		return
	}
	target := "fleet"
	if cmd.Session != "" {
		target = shortID(cmd.Session)
	}
	m.message = okStyle.Render(fmt.Sprintf("%s queued for %s", cmd.Action, target))
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("yysbot"))
	b.WriteString(" ")
	b.WriteString(m.summary())
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(m.table.View()))
	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(m.message)
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(helpText))
	return b.String()
}

func (m *Model) summary() string {
	st := m.status
	state := warnStyle.Render("stopped")
	if st.Running {
		state = okStyle.Render("running")
	}
	parts := []string{state}
	if st.Module != "" {
		parts = append(parts, "module "+st.Module)
	}
	parts = append(parts, strconv.Itoa(len(st.Sessions))+" sessions")
	if st.Running && !st.Deadline.IsZero() {
		parts = append(parts, "ends in "+formatDuration(time.Until(st.Deadline)))
	}
	return statusBarStyle.Render(strings.Join(parts, " │ "))
}

func row(sn session.Snapshot) table.Row {
	note := sn.PauseCause
	if sn.LastError != "" {
		note = sn.LastError
	}
	if sn.EndReason != "" {
		note = string(sn.EndReason)
	}
	gate := ""
	if sn.GateArmed {
		gate = "*"
	}
	return table.Row{
		shortID(sn.ID),
		sn.Device,
		string(sn.Status),
		string(sn.Phase) + gate,
		sn.LastAction,
		strconv.Itoa(sn.Taps),
		strconv.Itoa(sn.Runs),
		formatDuration(sn.Elapsed),
		formatDuration(sn.Remaining),
		note,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatDuration renders d as h:mm:ss, or m:ss under an hour.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	mnt := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%d:%02d", mnt, s)
}
