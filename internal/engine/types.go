package engine

import (
	"context"
	"image"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/recognizer"
)

// Device is the frame provider and input sink for one session.
type Device interface {
	// Serial identifies the device.
	Serial() string

	// Capture takes a screenshot.
	Capture(ctx context.Context) (image.Image, error)

	// Tap touches the screen at (x, y).
	Tap(ctx context.Context, x, y int) error

	// Swipe drags from (x1, y1) to (x2, y2) over d.
	Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error

	// Probe checks the device answers.
	Probe(ctx context.Context) error
}

// Detector finds controls in a frame.
type Detector interface {
	Detect(ctx context.Context, frame image.Image, names []string) ([]recognizer.Candidate, error)
}

// templateChecker is implemented by detectors that can report which
// templates they were able to load.
type templateChecker interface {
	Preload() (loaded int, missing []string)
}

// EventSink receives engine events. Implementations must not block.
type EventSink interface {
	Emit(Event)
}

// FrameSink keeps captured frames for inspection.
type FrameSink interface {
	Put(key string, img image.Image)
}

// Phase is the state of the per-tick decision machine.
type Phase string

// Tick phases. A tick starts in NORMAL, or in GATE_WAIT while an armed gate
// is still valid, and reaches DONE_TICK once it has dispatched an action or
// raised an abort. A tick that ends in NORMAL or GATE_WAIT did not act.
const (
	PhaseNormal   Phase = "NORMAL"
	PhaseGateWait Phase = "GATE_WAIT"
	PhaseDone     Phase = "DONE_TICK"
)

// ExploreAction is the Outcome.Action of a random exploration tap.
const ExploreAction = "explore"

// AbortCauseCaptureFailures is the Outcome.AbortCause after too many
// consecutive capture failures.
const AbortCauseCaptureFailures = "capture_failures"

// State is the per-session decision state. It is owned by the session
// goroutine and only changed by Tick and Rebind.
type State struct {
	LastAction                 string    `json:"last_action"`
	GateArmed                  bool      `json:"gate_armed"`
	ArmedAt                    time.Time `json:"armed_at,omitzero"`
	GateControl                string    `json:"gate_control,omitempty"`
	ConsecutiveCaptureFailures int       `json:"consecutive_capture_failures"`
	Runs                       int       `json:"runs"`

	// Taps counts dispatched input actions, swipes included.
	Taps int `json:"taps"`
}

// Outcome describes one tick.
type Outcome struct {
	Phase Phase `json:"phase"`

	// Action is the control acted on (ExploreAction for exploration taps).
	Action string      `json:"action,omitempty"`
	Point  image.Point `json:"point"`

	// Candidates is the number of controls found by normal matching.
	Candidates int `json:"candidates"`

	// Abort is set when a terminal control, the gate control or repeated
	// capture failures ask the session to pause or stop.
	Abort      catalog.AbortPolicy `json:"abort,omitempty"`
	AbortCause string              `json:"abort_cause,omitempty"`

	// BudgetExceeded is set when the tick gave up on pending work because
	// the tick budget ran out.
	BudgetExceeded bool `json:"budget_exceeded"`

	Started time.Time     `json:"started"`
	Elapsed time.Duration `json:"elapsed"`
}

// Acted reports whether the tick dispatched input.
func (o Outcome) Acted() bool { return o.Action != "" }

// EventType classifies engine events.
type EventType string

// Event types.
const (
	EventTap           EventType = "tap"
	EventSwipe         EventType = "swipe"
	EventExplore       EventType = "explore"
	EventGateArmed     EventType = "gate_armed"
	EventGateExpired   EventType = "gate_expired"
	EventAbort         EventType = "abort"
	EventCaptureFailed EventType = "capture_failed"
)

// Event is emitted for every action and abort.
type Event struct {
	Type       EventType   `json:"type"`
	Session    string      `json:"session,omitempty"`
	Device     string      `json:"device"`
	Control    string      `json:"control,omitempty"`
	Point      image.Point `json:"point"`
	Confidence float64     `json:"confidence,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	At         time.Time   `json:"at"`
}

// Config tunes the decision engine.
type Config struct {
	// TickBudget caps the wall time of one tick.
	TickBudget time.Duration

	// GatePoll is the sleep between gate captures.
	GatePoll time.Duration

	// IdleSleep is the sleep when nothing was found and no exploration tap was made.
	IdleSleep time.Duration

	// ExploreChance is the probability of a random tap near the screen centre
	// on an idle tick.
	ExploreChance float64

	// ExploreRadius bounds the exploration tap around the centre (px).
	ExploreRadius int

	// ExploreBudgetFraction: exploration only happens while less than this
	// share of the tick budget is used.
	ExploreBudgetFraction float64

	// MaxCaptureFailures is the number of consecutive capture failures
	// tolerated before the session is paused.
	MaxCaptureFailures int
}

// DefaultConfig returns the standard timing.
func DefaultConfig() Config {
	return Config{
		TickBudget:            5 * time.Second,
		GatePoll:              100 * time.Millisecond,
		IdleSleep:             200 * time.Millisecond,
		ExploreChance:         0.2,
		ExploreRadius:         100,
		ExploreBudgetFraction: 0.8,
		MaxCaptureFailures:    5,
	}
}

// ConfigFrom maps the engine configuration section, falling back to
// defaults for unset durations and limits. ExploreChance is taken as is, so
// 0 disables exploration.
func ConfigFrom(c config.EngineConfig) Config {
	cfg := DefaultConfig()
	cfg.ExploreChance = max(c.ExploreChance, 0)
	if c.TickBudget > 0 {
		cfg.TickBudget = c.TickBudget
	}
	if c.GatePoll > 0 {
		cfg.GatePoll = c.GatePoll
	}
	if c.IdleSleep > 0 {
		cfg.IdleSleep = c.IdleSleep
	}
	if c.ExploreRadius > 0 {
		cfg.ExploreRadius = c.ExploreRadius
	}
	if c.ExploreBudgetFraction > 0 {
		cfg.ExploreBudgetFraction = c.ExploreBudgetFraction
	}
	if c.MaxCaptureFailures > 0 {
		cfg.MaxCaptureFailures = c.MaxCaptureFailures
	}
	return cfg
}
