package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/session"
)

type mockController struct {
	mu        sync.Mutex
	status    fleet.Status
	submitted []fleet.Command
	err       error
}

func (m *mockController) Status() fleet.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockController) Submit(cmd fleet.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.submitted = append(m.submitted, cmd)
	return nil
}

func testStatus() fleet.Status {
	return fleet.Status{
		Running: true,
		Module:  "yuhun",
		Sessions: []session.Snapshot{
			{ID: "aaaaaaaa-1111", Device: "emulator-5554", Status: session.StatusRunning,
				Phase: engine.PhaseDone, LastAction: "tiaozhan", Taps: 10, Runs: 2, Elapsed: 75 * time.Second},
			{ID: "bbbbbbbb-2222", Device: "emulator-5556", Status: session.StatusPaused,
				PauseCause: "capture_failures"},
		},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loaded(t *testing.T) (*Model, *mockController) {
	t.Helper()
	ctrl := &mockController{status: testStatus()}
	m := New(ctrl, time.Second)
	m.Update(statusMsg(ctrl.Status()))
	return m, ctrl
}

// ─── Status ─────────────────────────────────────────────────────

func TestInit_PollsStatus(t *testing.T) {
	ctrl := &mockController{status: testStatus()}
	m := New(ctrl, time.Second)

	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Init() returned nil cmd")
	}
	msg, ok := cmd().(statusMsg)
	if !ok {
		t.Fatalf("Init() cmd produced %T, want statusMsg", cmd())
	}
	if len(msg.Sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(msg.Sessions))
	}
}

func TestUpdate_StatusFillsTable(t *testing.T) {
	m, _ := loaded(t)

	rows := m.table.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0][0] != "aaaaaaaa" {
		t.Errorf("session cell = %q, want short ID", rows[0][0])
	}
	if rows[0][7] != "1:15" {
		t.Errorf("elapsed cell = %q, want 1:15", rows[0][7])
	}
	if rows[1][9] != "capture_failures" {
		t.Errorf("note cell = %q, want capture_failures", rows[1][9])
	}
}

func TestUpdate_ShrinkingStatusClampsCursor(t *testing.T) {
	m, ctrl := loaded(t)
	m.table.SetCursor(1)

	st := ctrl.Status()
	st.Sessions = st.Sessions[:1]
	m.Update(statusMsg(st))

	if got := m.table.Cursor(); got != 0 {
		t.Errorf("Cursor() = %d, want 0", got)
	}
}

// ─── Keys ───────────────────────────────────────────────────────

func TestKeys_SessionCommands(t *testing.T) {
	tests := []struct {
		key    string
		action fleet.Action
	}{
		{"p", fleet.ActionPause},
		{"r", fleet.ActionResume},
		{"n", fleet.ActionSwitch},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, ctrl := loaded(t)
			m.table.SetCursor(1)

			m.Update(key(tt.key))

			if len(ctrl.submitted) != 1 {
				t.Fatalf("submitted = %d, want 1", len(ctrl.submitted))
			}
			got := ctrl.submitted[0]
			if got.Action != tt.action || got.Session != "bbbbbbbb-2222" {
				t.Errorf("command = %+v, want %s for bbbbbbbb-2222", got, tt.action)
			}
		})
	}
}

func TestKeys_FleetCommands(t *testing.T) {
	tests := []struct {
		key    string
		action fleet.Action
	}{
		{"P", fleet.ActionPauseAll},
		{"R", fleet.ActionResumeAll},
		{"s", fleet.ActionStop},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			m, ctrl := loaded(t)

			_, cmd := m.Update(key(tt.key))

			if cmd != nil {
				t.Error("fleet command key returned a cmd")
			}
			if len(ctrl.submitted) != 1 || ctrl.submitted[0].Action != tt.action {
				t.Errorf("submitted = %+v, want one %s", ctrl.submitted, tt.action)
			}
		})
	}
}

func TestKeys_QuitStopsFleet(t *testing.T) {
	m, ctrl := loaded(t)

	_, cmd := m.Update(key("q"))

	if cmd == nil {
		t.Fatal("q returned nil cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q cmd produced %T, want tea.QuitMsg", cmd())
	}
	if len(ctrl.submitted) != 1 || ctrl.submitted[0].Action != fleet.ActionStop {
		t.Errorf("submitted = %+v, want stop", ctrl.submitted)
	}
}

func TestKeys_NoSessionSelected(t *testing.T) {
	ctrl := &mockController{}
	m := New(ctrl, time.Second)

	m.Update(key("p"))

	if len(ctrl.submitted) != 0 {
		t.Errorf("submitted = %d, want 0", len(ctrl.submitted))
	}
	if m.message != "no session selected" {
		t.Errorf("message = %q", m.message)
	}
}

func TestKeys_SubmitErrorShown(t *testing.T) {
	m, ctrl := loaded(t)
	ctrl.err = errors.New("queue full")

	m.Update(key("P"))

	if !strings.Contains(m.message, "queue full") {
		t.Errorf("message = %q, want the error", m.message)
	}
}

// ─── View ───────────────────────────────────────────────────────

func TestView(t *testing.T) {
	m, _ := loaded(t)

	out := m.View()
	for _, want := range []string{"yysbot", "yuhun", "2 sessions", "emulator-5554", "tiaozhan"} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{59 * time.Second, "0:59"},
		{61*time.Minute + 5*time.Second, "1:01:05"},
		{1500 * time.Millisecond, "0:02"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
