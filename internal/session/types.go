package session

import (
	"context"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

// Engine is the per-session decision engine.
type Engine interface {
	Init(ctx context.Context) error
	Tick(ctx context.Context) (engine.Outcome, error)
	Rebind(dev engine.Device) error
	Close() error
	State() engine.State
	Device() engine.Device
}

// Drawer draws random durations. The session's dispatcher implements it.
type Drawer interface {
	Duration(w catalog.Window) time.Duration
}

// Recorder persists session records.
type Recorder interface {
	SaveSession(ctx context.Context, rec *history.Record) error
}

// Observer receives every tick outcome.
type Observer interface {
	Tick(sessionID, device string, out engine.Outcome)
}

// Status is the lifecycle state of a session.
type Status string

// Session statuses.
const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusOnBreak  Status = "on_break"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)

// EndReason says why a session ended.
type EndReason string

// End reasons.
const (
	EndDeadline   EndReason = "deadline"
	EndStopped    EndReason = "stopped"
	EndCancelled  EndReason = "cancelled"
	EndAbort      EndReason = "abort"
	EndInitFailed EndReason = "init_failed"
)

// Session-level event types, emitted alongside the engine's events.
const (
	EventSessionStarted engine.EventType = "session_started"
	EventSessionEnded   engine.EventType = "session_ended"
	EventTickError      engine.EventType = "tick_error"
	EventRebound        engine.EventType = "rebound"
	EventPaused         engine.EventType = "paused"
	EventResumed        engine.EventType = "resumed"
)

// Result summarises a finished session.
type Result struct {
	ID         string        `json:"id"`
	Device     string        `json:"device"`
	Module     string        `json:"module"`
	Started    time.Time     `json:"started"`
	Elapsed    time.Duration `json:"elapsed"`
	Taps       int           `json:"taps"`
	Runs       int           `json:"runs"`
	EndReason  EndReason     `json:"end_reason"`
	AbortCause string        `json:"abort_cause,omitempty"`
	Err        error         `json:"-"`
}

// Snapshot is the live status of a session.
type Snapshot struct {
	ID         string        `json:"id"`
	Device     string        `json:"device"`
	Module     string        `json:"module"`
	Status     Status        `json:"status"`
	Started    time.Time     `json:"started"`
	Elapsed    time.Duration `json:"elapsed"`
	Remaining  time.Duration `json:"remaining"`
	LastAction string        `json:"last_action,omitempty"`
	Phase      engine.Phase  `json:"phase,omitempty"`
	Taps       int           `json:"taps"`
	Runs       int           `json:"runs"`
	GateArmed  bool          `json:"gate_armed"`
	PauseCause string        `json:"pause_cause,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	EndReason  EndReason     `json:"end_reason,omitempty"`
}

// Breaks schedules rest periods: after running for a duration drawn from
// Interval the session rests for a duration drawn from Length.
type Breaks struct {
	Enabled  bool
	Interval catalog.Window
	Length   catalog.Window
}

// Config tunes a supervisor.
type Config struct {
	// ID identifies the session. Generated when empty.
	ID     string
	Module string

	// Duration is the session's run time; the deadline is start + Duration.
	Duration time.Duration

	// PauseSleep is the re-check interval while paused.
	PauseSleep time.Duration

	// ErrorBackoff is the sleep after a failed tick.
	ErrorBackoff time.Duration

	// SlowTickWarn logs a warning when one tick takes longer.
	SlowTickWarn time.Duration

	Breaks Breaks
}

// ConfigFrom maps the session configuration section.
func ConfigFrom(c config.SessionConfig) Config {
	return Config{
		Duration:     c.Duration,
		PauseSleep:   c.PauseSleep,
		ErrorBackoff: c.ErrorBackoff,
		SlowTickWarn: c.SlowTickWarn,
		Breaks: Breaks{
			Enabled:  c.Breaks.Enabled,
			Interval: catalog.Window{Min: c.Breaks.IntervalMin, Max: c.Breaks.IntervalMax},
			Length:   catalog.Window{Min: c.Breaks.DurationMin, Max: c.Breaks.DurationMax},
		},
	}
}

func (c *Config) applyDefaults() {
	if c.ID == "" {
		c.ID = history.NewID()
	}
	if c.PauseSleep <= 0 {
		c.PauseSleep = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = time.Second
	}
	if c.SlowTickWarn <= 0 {
		c.SlowTickWarn = 30 * time.Second
	}
}

// Tagged stamps the session ID on every event before passing it on.
type Tagged struct {
	Session string
	Next    engine.EventSink
}

// Emit implements engine.EventSink.
func (t Tagged) Emit(ev engine.Event) {
	if t.Next == nil {
		return
	}
	ev.Session = t.Session
	t.Next.Emit(ev)
}
