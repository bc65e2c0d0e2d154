package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/dispatch"
	"github.com/WilsonWong800686/yys-autommation/internal/recognizer"
)

// Logger defines the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Engine runs the perception, decision and action loop for one session.
//
// Each call to Tick captures one frame, decides on at most one action and
// dispatches it, all within the tick budget.
//
// Thread Safety: an Engine belongs to one session goroutine. Tick, Rebind
// and Close must not be called concurrently.
type Engine struct {
	cfg      Config
	catalog  *catalog.Catalog
	detector Detector
	device   Device
	disp     *dispatch.Dispatcher
	clock    Clock
	events   EventSink
	frames   FrameSink
	logger   Logger

	terminals []string
	matchable []string
	state     State
}

// New creates an engine.
//
// Parameters:
//   - cfg: timing and limits
//   - cat: catalog of controls (shared, read-only)
//   - det: detector matching the catalog (shared)
//   - dev: device to capture from and tap on
//   - disp: per-session dispatcher; its sink is pointed at dev
func New(cfg Config, cat *catalog.Catalog, det Detector, dev Device, disp *dispatch.Dispatcher) *Engine {
	disp.SetSink(dev)
	return &Engine{
		cfg:       cfg,
		catalog:   cat,
		detector:  det,
		device:    dev,
		disp:      disp,
		clock:     SystemClock{},
		logger:    noopLogger{},
		terminals: cat.Names(catalog.KindTerminal),
		matchable: cat.MatchableNames(),
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// SetClock replaces the wall clock.
func (e *Engine) SetClock(c Clock) { e.clock = c }

// SetEventSink sets the receiver of engine events. nil disables events.
func (e *Engine) SetEventSink(s EventSink) { e.events = s }

// SetFrameSink keeps every captured frame under the device serial. nil
// disables it.
func (e *Engine) SetFrameSink(f FrameSink) { e.frames = f }

// State returns a copy of the decision state.
func (e *Engine) State() State { return e.state }

// Device returns the bound device.
func (e *Engine) Device() Device { return e.device }

// Catalog returns the engine's catalog.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Init verifies the device answers and the catalog has at least one usable
// template. A failure here is fatal for the session.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.device.Probe(ctx); err != nil {
		return fmt.Errorf("%w: probing %s: %w", ErrInitFailed, e.device.Serial(), err)
	}
	if len(e.matchable) == 0 {
		return fmt.Errorf("%w: catalog %q has no matchable controls", ErrInitFailed, e.catalog.Module())
	}

	if tc, ok := e.detector.(templateChecker); ok {
		_, missing := tc.Preload()
		gone := make(map[string]bool, len(missing))
		for _, name := range missing {
			gone[name] = true
		}
		usable := 0
		for _, name := range e.matchable {
			if !gone[name] {
				usable++
			}
		}
		if usable == 0 {
			return fmt.Errorf("%w: %w", ErrInitFailed, catalog.ErrNoTemplates)
		}
		if len(missing) > 0 {
			e.logger.Warn("templates missing, controls disabled", "controls", missing)
		}
	}

	e.logger.Info("engine ready", "device", e.device.Serial(), "module", e.catalog.Module(),
		"controls", len(e.matchable))
	return nil
}

// Rebind switches the engine to another device between ticks. It is refused
// with ErrGateActive while an armed gate is still valid. LastAction is
// cleared because sequencing does not carry across devices.
func (e *Engine) Rebind(dev Device) error {
	if e.gateActive() {
		return ErrGateActive
	}
	e.clearGate()
	prev := e.device.Serial()
	e.device = dev
	e.disp.SetSink(dev)
	e.state.LastAction = ""
	e.logger.Info("device rebound", "from", prev, "to", dev.Serial())
	return nil
}

// Close releases the device if it holds resources.
func (e *Engine) Close() error {
	if c, ok := e.device.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Tick runs one perception, decision and action cycle.
//
// The returned error is a per-tick fault (capture failure, dispatch failure,
// cancellation). The Outcome is valid even when an error is returned; it may
// carry an Abort after repeated capture failures.
func (e *Engine) Tick(ctx context.Context) (Outcome, error) {
	t := e.newTick()

	frame, err := e.capture(ctx)
	if err != nil {
		return t.finish(), e.captureFailed(t, err)
	}
	e.state.ConsecutiveCaptureFailures = 0
	e.disp.SetBounds(frame.Bounds())
	if e.frames != nil {
		e.frames.Put(e.device.Serial(), frame)
	}

	done, err := e.checkTerminal(ctx, t, frame)
	if done || err != nil {
		return t.finish(), e.tickError(t, err)
	}

	if e.state.GateArmed {
		done, err := e.gateWait(ctx, t, frame)
		if done || err != nil {
			return t.finish(), e.tickError(t, err)
		}
	}

	err = e.normal(ctx, t, frame)
	return t.finish(), e.tickError(t, err)
}

// tick tracks the budget of one Tick call.
type tick struct {
	clock    Clock
	start    time.Time
	deadline time.Time
	out      Outcome
}

func (e *Engine) newTick() *tick {
	now := e.clock.Now()
	return &tick{
		clock:    e.clock,
		start:    now,
		deadline: now.Add(e.cfg.TickBudget),
		out:      Outcome{Phase: PhaseNormal, Started: now},
	}
}

func (t *tick) remaining() time.Duration { return t.deadline.Sub(t.clock.Now()) }

func (t *tick) used() time.Duration { return t.clock.Now().Sub(t.start) }

// overBudget marks the tick when the budget is gone.
func (t *tick) overBudget() bool {
	if t.remaining() <= 0 {
		t.out.BudgetExceeded = true
		return true
	}
	return false
}

// sleep waits d clipped to the remaining budget.
func (t *tick) sleep(ctx context.Context, d time.Duration) error {
	if t.overBudget() {
		return nil
	}
	return t.clock.Sleep(ctx, min(d, t.remaining()))
}

func (t *tick) finish() Outcome {
	t.out.Elapsed = t.clock.Now().Sub(t.start)
	return t.out
}

func (e *Engine) capture(ctx context.Context) (image.Image, error) {
	frame, err := e.device.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, recognizer.ErrInvalidFrame)
	}
	return frame, nil
}

// tickError routes frame errors surfaced by detection into the capture
// failure count.
func (e *Engine) tickError(t *tick, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, recognizer.ErrInvalidFrame) {
		return e.captureFailed(t, fmt.Errorf("%w: %w", ErrCaptureFailed, err))
	}
	return err
}

func (e *Engine) captureFailed(t *tick, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	e.state.ConsecutiveCaptureFailures++
	e.emit(Event{Type: EventCaptureFailed, Detail: err.Error()})

	if e.state.ConsecutiveCaptureFailures > e.cfg.MaxCaptureFailures {
		e.logger.Warn("too many capture failures, pausing",
			"device", e.device.Serial(), "failures", e.state.ConsecutiveCaptureFailures)
		e.state.ConsecutiveCaptureFailures = 0
		t.out.Abort = catalog.AbortPause
		t.out.AbortCause = AbortCauseCaptureFailures
		t.out.Phase = PhaseDone
		e.emit(Event{Type: EventAbort, Detail: AbortCauseCaptureFailures})
	}
	return err
}

func (e *Engine) detect(ctx context.Context, frame image.Image, names []string) ([]recognizer.Candidate, error) {
	cands, err := e.detector.Detect(ctx, frame, names)
	if err != nil {
		return nil, fmt.Errorf("detecting: %w", err)
	}
	return cands, nil
}

// checkTerminal looks for terminal controls. It runs first on every tick.
func (e *Engine) checkTerminal(ctx context.Context, t *tick, frame image.Image) (bool, error) {
	if len(e.terminals) == 0 {
		return false, nil
	}
	cands, err := e.detect(ctx, frame, e.terminals)
	if err != nil {
		return true, err
	}
	if len(cands) == 0 {
		return false, nil
	}

	c := cands[0]
	ctl, _ := e.catalog.Lookup(c.Control)
	e.clearGate()
	e.abort(t, ctl, c)
	return true, nil
}

// gateWait polls for the gate control while the gate is valid. It reports
// done when the tick was spent on the gate.
func (e *Engine) gateWait(ctx context.Context, t *tick, frame image.Image) (bool, error) {
	gate, ok := e.catalog.Lookup(e.state.GateControl)
	if !ok {
		e.clearGate()
		return false, nil
	}
	if e.clock.Now().Sub(e.state.ArmedAt) > gate.Validity {
		e.clearGate()
		e.emit(Event{Type: EventGateExpired, Control: gate.Name})
		return false, nil
	}

	t.out.Phase = PhaseGateWait
	cands, err := e.detect(ctx, frame, []string{gate.Name})
	if err != nil {
		return true, err
	}
	if len(cands) > 0 {
		e.clearGate()
		e.abort(t, gate, cands[0])
		return true, nil
	}
	return true, t.sleep(ctx, e.cfg.GatePoll)
}

func (e *Engine) gateActive() bool {
	if !e.state.GateArmed {
		return false
	}
	gate, ok := e.catalog.Lookup(e.state.GateControl)
	return ok && e.clock.Now().Sub(e.state.ArmedAt) <= gate.Validity
}

func (e *Engine) armGate(trigger catalog.Control) {
	e.state.GateArmed = true
	e.state.ArmedAt = e.clock.Now()
	e.state.GateControl = trigger.Gate
	e.state.Runs++
	e.emit(Event{Type: EventGateArmed, Control: trigger.Gate, Detail: trigger.Name})
}

func (e *Engine) clearGate() {
	e.state.GateArmed = false
	e.state.ArmedAt = time.Time{}
	e.state.GateControl = ""
}

func (e *Engine) abort(t *tick, ctl catalog.Control, c recognizer.Candidate) {
	policy := ctl.Abort
	if policy == "" {
		policy = catalog.AbortPause
	}
	t.out.Abort = policy
	t.out.AbortCause = ctl.Name
	t.out.Point = c.Center
	t.out.Phase = PhaseDone

	e.logger.Info("abort control detected", "device", e.device.Serial(), "control", ctl.Name,
		"policy", policy, "confidence", c.Confidence)
	e.emit(Event{Type: EventAbort, Control: ctl.Name, Point: c.Center, Confidence: c.Confidence, Detail: string(policy)})
}

// normal matches every playable control and acts on the best one.
func (e *Engine) normal(ctx context.Context, t *tick, frame image.Image) error {
	if t.overBudget() {
		return nil
	}
	cands, err := e.detect(ctx, frame, e.matchable)
	if err != nil {
		return err
	}
	t.out.Candidates = len(cands)

	c, ok := e.choose(cands)
	if !ok {
		return e.idle(ctx, t, frame)
	}
	ctl, ok := e.catalog.Lookup(c.Control)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownControl, c.Control)
	}
	return e.act(ctx, t, ctl, c)
}

// choose walks the ordered candidates. A sequenced control whose
// prerequisite was not the last action is replaced by the prerequisite when
// that is on screen, and skipped otherwise.
func (e *Engine) choose(cands []recognizer.Candidate) (recognizer.Candidate, bool) {
	for _, c := range cands {
		ctl, ok := e.catalog.Lookup(c.Control)
		if !ok {
			continue
		}
		if ctl.Kind == catalog.KindSequenced && e.state.LastAction != ctl.Requires {
			if pre, found := findCandidate(cands, ctl.Requires); found {
				return pre, true
			}
			continue
		}
		return c, true
	}
	return recognizer.Candidate{}, false
}

func findCandidate(cands []recognizer.Candidate, name string) (recognizer.Candidate, bool) {
	for _, c := range cands {
		if c.Control == name {
			return c, true
		}
	}
	return recognizer.Candidate{}, false
}

func (e *Engine) emit(ev Event) {
	if e.events == nil {
		return
	}
	ev.Device = e.device.Serial()
	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}
	e.events.Emit(ev)
}
