package fleet

import (
	"fmt"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/session"
)

// Action is an operator command verb.
type Action string

// Command actions.
const (
	ActionPause     Action = "pause"
	ActionResume    Action = "resume"
	ActionPauseAll  Action = "pause_all"
	ActionResumeAll Action = "resume_all"
	ActionStop      Action = "stop"
	ActionSwitch    Action = "switch"
)

// Command is an operator request to the coordinator.
type Command struct {
	Action Action `json:"action"`

	// Session is a session ID or device serial. Required for pause,
	// resume and switch.
	Session string `json:"session,omitempty"`
}

// Validate checks the command is well formed.
func (c Command) Validate() error {
	switch c.Action {
	case ActionPause, ActionResume, ActionSwitch:
		if c.Session == "" {
			return fmt.Errorf("%w: %s needs a session", ErrInvalidCommand, c.Action)
		}
	case ActionPauseAll, ActionResumeAll, ActionStop:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, c.Action)
	}
	return nil
}

// Status is the fleet-wide status snapshot.
type Status struct {
	Running  bool               `json:"running"`
	Module   string             `json:"module,omitempty"`
	Started  time.Time          `json:"started,omitzero"`
	Deadline time.Time          `json:"deadline,omitzero"`
	Sessions []session.Snapshot `json:"sessions"`
}

// Session returns the snapshot of one session by ID or device serial.
func (s Status) Session(target string) (session.Snapshot, bool) {
	for _, sn := range s.Sessions {
		if sn.ID == target || sn.Device == target {
			return sn, true
		}
	}
	return session.Snapshot{}, false
}

// StatusListener receives status snapshots from the control loop.
// Implementations must not block.
type StatusListener interface {
	PublishStatus(Status)
}

// Report summarises a finished run. It is returned whatever the outcome.
type Report struct {
	Module   string           `json:"module"`
	Started  time.Time        `json:"started"`
	Elapsed  time.Duration    `json:"elapsed"`
	Sessions []session.Result `json:"sessions"`
}

// ByDevice returns the elapsed run time per device (the device a session
// ended on).
func (r Report) ByDevice() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.Sessions))
	for _, res := range r.Sessions {
		out[res.Device] += res.Elapsed
	}
	return out
}

// Failed returns the sessions that ended with an error.
func (r Report) Failed() []session.Result {
	var out []session.Result
	for _, res := range r.Sessions {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Config tunes the coordinator.
type Config struct {
	// MaxSessions caps concurrent sessions. 0 runs one session per device.
	MaxSessions int

	// PollInterval is the control loop period.
	PollInterval time.Duration

	// SwitchInterval is how long a session stays on one device of its group.
	SwitchInterval time.Duration

	// StatusInterval throttles status listener updates.
	StatusInterval time.Duration
}

// ConfigFrom maps the fleet configuration section.
func ConfigFrom(c config.FleetConfig) Config {
	return Config{
		MaxSessions:    c.MaxSessions,
		PollInterval:   c.PollInterval,
		SwitchInterval: c.SwitchInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.SwitchInterval <= 0 {
		c.SwitchInterval = 30 * time.Second
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = time.Second
	}
}

// Deps are the shared collaborators of every session.
type Deps struct {
	Catalog  *catalog.Catalog
	Detector engine.Detector
	Engine   engine.Config

	// Session is the per-session template; ID, Module and Duration are
	// filled in by Run.
	Session session.Config

	Events   engine.EventSink
	Frames   engine.FrameSink
	Observer session.Observer
	Recorder session.Recorder
	Clock    engine.Clock
}

// groupDevices splits devices over n sessions round-robin. n <= 0 or
// n >= len(devices) gives one device per session.
func groupDevices(devices []engine.Device, n int) [][]engine.Device {
	if n <= 0 || n >= len(devices) {
		n = len(devices)
	}
	groups := make([][]engine.Device, n)
	for i, dev := range devices {
		groups[i%n] = append(groups[i%n], dev)
	}
	return groups
}
