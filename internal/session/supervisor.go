package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
)

// persistTimeout bounds the history write on start and teardown.
const persistTimeout = 5 * time.Second

// Logger defines the logging interface used by the supervisor.
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

// Supervisor runs one session.
//
// Thread Safety: Run is called once from the session goroutine. Pause,
// Resume, RequestRebind and Snapshot may be called from any goroutine.
type Supervisor struct {
	cfg      Config
	eng      Engine
	draw     Drawer
	clock    engine.Clock
	logger   Logger
	events   engine.EventSink
	observer Observer
	recorder Recorder

	stop    <-chan struct{}
	stopAll func()

	paused atomic.Bool
	rebind chan engine.Device

	mu    sync.RWMutex
	snap  Snapshot
	ended time.Time
}

// New creates a supervisor for eng.
//
// Parameters:
//   - cfg: session settings; an empty ID is generated
//   - eng: the session's engine, already bound to its first device
//   - draw: random source for break durations (the session's dispatcher)
func New(cfg Config, eng Engine, draw Drawer) *Supervisor {
	cfg.applyDefaults()
	return &Supervisor{
		cfg:    cfg,
		eng:    eng,
		draw:   draw,
		clock:  engine.SystemClock{},
		logger: noopLogger{},
		rebind: make(chan engine.Device, 1),
		snap: Snapshot{
			ID:     cfg.ID,
			Device: eng.Device().Serial(),
			Module: cfg.Module,
			Status: StatusStarting,
		},
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetClock replaces the wall clock.
func (s *Supervisor) SetClock(c engine.Clock) { s.clock = c }

// SetEventSink sets the receiver of session events.
func (s *Supervisor) SetEventSink(sink engine.EventSink) { s.events = sink }

// SetObserver sets the receiver of tick outcomes.
func (s *Supervisor) SetObserver(o Observer) { s.observer = o }

// SetRecorder sets where the session record is persisted.
func (s *Supervisor) SetRecorder(r Recorder) { s.recorder = r }

// BindStop attaches the fleet's shared stop signal. stopAll fires it; the
// supervisor calls it when its own deadline passes.
func (s *Supervisor) BindStop(stop <-chan struct{}, stopAll func()) {
	s.stop = stop
	s.stopAll = stopAll
}

// ID returns the session ID.
func (s *Supervisor) ID() string { return s.cfg.ID }

// Pause pauses the session after the current tick.
func (s *Supervisor) Pause() {
	if !s.paused.Swap(true) {
		s.emit(engine.Event{Type: EventPaused})
	}
}

// Resume clears a pause, including an automatic one.
func (s *Supervisor) Resume() {
	if s.paused.Swap(false) {
		s.mu.Lock()
		s.snap.PauseCause = ""
		s.mu.Unlock()
		s.emit(engine.Event{Type: EventResumed})
	}
}

// Paused reports whether the session is paused.
func (s *Supervisor) Paused() bool { return s.paused.Load() }

// RequestRebind asks the session to switch to dev at the top of its next
// loop. It returns false when a request is already queued.
func (s *Supervisor) RequestRebind(dev engine.Device) bool {
	select {
	case s.rebind <- dev:
		return true
	default:
		return false
	}
}

// Snapshot returns the current status.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snap
	if snap.Started.IsZero() {
		return snap
	}
	ref := s.ended
	if ref.IsZero() {
		ref = s.clock.Now()
	}
	snap.Elapsed = ref.Sub(snap.Started)
	snap.Remaining = max(s.cfg.Duration-snap.Elapsed, 0)
	if snap.Status == StatusStopped || snap.Status == StatusFailed {
		snap.Remaining = 0
	}
	return snap
}

// Run drives the session until its deadline, the shared stop signal, ctx
// cancellation, an abort with the stop policy, or an init failure.
func (s *Supervisor) Run(ctx context.Context) (res Result) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.stop != nil {
		go func() {
			select {
			case <-s.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	start := s.clock.Now()
	deadline := start.Add(s.cfg.Duration)
	res = Result{
		ID:      s.cfg.ID,
		Device:  s.eng.Device().Serial(),
		Module:  s.cfg.Module,
		Started: start,
	}
	s.update(func(sn *Snapshot) { sn.Started = start })
	s.persist(ctx, &res, time.Time{})
	s.emit(engine.Event{Type: EventSessionStarted, Detail: s.cfg.Module})
	s.logger.Info("session starting", "session", s.cfg.ID, "device", res.Device,
		"module", s.cfg.Module, "duration", s.cfg.Duration)

	defer func() { s.teardown(ctx, &res) }()

	if err := s.eng.Init(ctx); err != nil {
		s.logger.Error("session init failed", "session", s.cfg.ID, "device", res.Device, "error", err)
		res.Err = err
		res.EndReason = EndInitFailed
		return res
	}

	breaks := newBreakSchedule(s.cfg.Breaks, s.draw, start)
	var pending engine.Device

	for {
		now := s.clock.Now()
		if reason, done := s.exitReason(ctx, now, deadline); done {
			res.EndReason = reason
			if reason == EndDeadline && s.stopAll != nil {
				s.stopAll()
			}
			return res
		}

		pending = s.serveRebind(pending)

		if s.paused.Load() {
			s.setStatus(StatusPaused)
			s.wait(ctx, s.cfg.PauseSleep, deadline)
			continue
		}

		if until, on := breaks.check(now); on {
			if s.setStatus(StatusOnBreak) {
				s.logger.Info("taking a break", "session", s.cfg.ID, "until", until)
			}
			s.wait(ctx, min(time.Second, until.Sub(now)), deadline)
			continue
		}

		s.setStatus(StatusRunning)
		if s.runTick(ctx, deadline, &res) {
			return res
		}
	}
}

// exitReason checks the stop conditions at the top of the loop.
func (s *Supervisor) exitReason(ctx context.Context, now, deadline time.Time) (EndReason, bool) {
	if s.stopped() {
		return EndStopped, true
	}
	if ctx.Err() != nil {
		return EndCancelled, true
	}
	if !now.Before(deadline) {
		return EndDeadline, true
	}
	return "", false
}

func (s *Supervisor) stopped() bool {
	if s.stop == nil {
		return false
	}
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// runTick runs one tick and reports whether the session must end.
func (s *Supervisor) runTick(ctx context.Context, deadline time.Time, res *Result) bool {
	before := s.clock.Now()
	out, err := s.tick(ctx)
	cost := s.clock.Now().Sub(before)

	if cost > s.cfg.SlowTickWarn {
		s.logger.Warn("slow tick", "session", s.cfg.ID, "cost", cost, "phase", out.Phase)
	}
	if s.observer != nil {
		s.observer.Tick(s.cfg.ID, s.eng.Device().Serial(), out)
	}

	st := s.eng.State()
	res.Taps, res.Runs = st.Taps, st.Runs
	s.update(func(sn *Snapshot) {
		sn.LastAction = st.LastAction
		sn.Phase = out.Phase
		sn.Taps = st.Taps
		sn.Runs = st.Runs
		sn.GateArmed = st.GateArmed
	})

	switch out.Abort {
	case catalog.AbortStop:
		s.logger.Warn("session aborted", "session", s.cfg.ID, "cause", out.AbortCause)
		res.EndReason = EndAbort
		res.AbortCause = out.AbortCause
		return true
	case catalog.AbortPause:
		s.logger.Warn("session paused", "session", s.cfg.ID, "cause", out.AbortCause)
		s.update(func(sn *Snapshot) { sn.PauseCause = out.AbortCause })
		s.Pause()
	}

	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Warn("tick failed", "session", s.cfg.ID, "device", s.eng.Device().Serial(), "error", err)
		s.update(func(sn *Snapshot) { sn.LastError = err.Error() })
		s.emit(engine.Event{Type: EventTickError, Detail: err.Error()})
		s.wait(ctx, s.cfg.ErrorBackoff, deadline)
	}
	return false
}

// tick runs one engine tick, turning a panic into an error.
func (s *Supervisor) tick(ctx context.Context) (out engine.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = engine.Outcome{}
			err = fmt.Errorf("%w: %v", ErrTickPanic, r)
		}
	}()
	return s.eng.Tick(ctx)
}

// serveRebind applies a queued device switch. A switch refused because a
// gate is armed stays pending and is retried on the next loop.
func (s *Supervisor) serveRebind(pending engine.Device) engine.Device {
	if pending == nil {
		select {
		case dev := <-s.rebind:
			pending = dev
		default:
			return nil
		}
	}

	from := s.eng.Device().Serial()
	if err := s.eng.Rebind(pending); err != nil {
		if errors.Is(err, engine.ErrGateActive) {
			s.logger.Debug("rebind deferred, gate armed", "session", s.cfg.ID)
			return pending
		}
		s.logger.Warn("rebind failed", "session", s.cfg.ID, "to", pending.Serial(), "error", err)
		return nil
	}

	to := pending.Serial()
	s.update(func(sn *Snapshot) { sn.Device = to })
	s.emit(engine.Event{Type: EventRebound, Detail: from})
	s.logger.Info("session switched device", "session", s.cfg.ID, "from", from, "to", to)
	return nil
}

// wait sleeps d without passing the deadline.
func (s *Supervisor) wait(ctx context.Context, d time.Duration, deadline time.Time) {
	d = min(d, deadline.Sub(s.clock.Now()))
	if d <= 0 {
		return
	}
	_ = s.clock.Sleep(ctx, d) //nolint:errcheck // cancellation is seen at the loop top
}

func (s *Supervisor) teardown(ctx context.Context, res *Result) {
	if err := s.eng.Close(); err != nil {
		s.logger.Warn("closing engine", "session", s.cfg.ID, "error", err)
	}

	end := s.clock.Now()
	st := s.eng.State()
	res.Elapsed = end.Sub(res.Started)
	res.Taps, res.Runs = st.Taps, st.Runs
	res.Device = s.eng.Device().Serial()

	status := StatusStopped
	if res.Err != nil {
		status = StatusFailed
	}
	s.mu.Lock()
	s.ended = end
	s.snap.Status = status
	s.snap.EndReason = res.EndReason
	if res.Err != nil {
		s.snap.LastError = res.Err.Error()
	}
	s.mu.Unlock()

	s.emit(engine.Event{Type: EventSessionEnded, Detail: string(res.EndReason)})
	s.persist(context.WithoutCancel(ctx), res, end)
	s.logger.Info("session ended", "session", s.cfg.ID, "device", res.Device,
		"reason", res.EndReason, "elapsed", res.Elapsed, "taps", res.Taps, "runs", res.Runs)
}

func (s *Supervisor) persist(ctx context.Context, res *Result, ended time.Time) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	rec := &history.Record{
		ID:        res.ID,
		Device:    res.Device,
		Module:    res.Module,
		StartedAt: res.Started,
		EndedAt:   ended,
		Elapsed:   res.Elapsed,
		Taps:      res.Taps,
		Runs:      res.Runs,
		EndReason: string(res.EndReason),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := s.recorder.SaveSession(ctx, rec); err != nil {
		s.logger.Warn("saving session record", "session", s.cfg.ID, "error", err)
	}
}

// setStatus updates the status and reports whether it changed.
func (s *Supervisor) setStatus(st Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Status == st {
		return false
	}
	s.snap.Status = st
	return true
}

func (s *Supervisor) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
}

func (s *Supervisor) emit(ev engine.Event) {
	if s.events == nil {
		return
	}
	if ev.Device == "" {
		// Pause and Resume emit from other goroutines; the engine's device
		// belongs to the session goroutine.
		s.mu.RLock()
		ev.Device = s.snap.Device
		s.mu.RUnlock()
	}
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	s.events.Emit(ev)
}
