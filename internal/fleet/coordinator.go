package fleet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/dispatch"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
	"github.com/WilsonWong800686/yys-autommation/internal/session"
)

const commandQueueSize = 64

// Logger defines the logging interface used by the coordinator.
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

// managed is one running session and its device group.
type managed struct {
	sup        *session.Supervisor
	group      []engine.Device
	idx        int
	lastSwitch time.Time
}

// Coordinator runs and controls a fleet of sessions.
//
// A Coordinator runs once: after Run returns its stop signal stays fired.
//
// Thread Safety: Submit, Stop and Status are safe for concurrent use.
type Coordinator struct {
	cfg    Config
	deps   Deps
	logger Logger

	commands chan Command
	stopOnce sync.Once
	stop     chan struct{}
	running  atomic.Bool

	mu         sync.RWMutex
	sessions   []*managed
	status     Status
	listeners  []StatusListener
	lastNotify time.Time
}

// New creates a coordinator.
func New(cfg Config, deps Deps) *Coordinator {
	cfg.applyDefaults()
	if deps.Clock == nil {
		deps.Clock = engine.SystemClock{}
	}
	return &Coordinator{
		cfg:      cfg,
		deps:     deps,
		logger:   noopLogger{},
		commands: make(chan Command, commandQueueSize),
		stop:     make(chan struct{}),
	}
}

// SetLogger sets the logger for the coordinator and its sessions.
func (c *Coordinator) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// AddListener registers a status listener.
func (c *Coordinator) AddListener(l StatusListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Submit queues a command for the control loop.
func (c *Coordinator) Submit(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	select {
	case c.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop fires the shared stop signal. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Status returns the last status snapshot.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.status
	st.Sessions = append([]session.Snapshot(nil), c.status.Sessions...)
	return st
}

// Run starts a session per device group and blocks until the shared stop
// fires, ctx is cancelled, the deadline passes or every session has ended.
//
// Parameters:
//   - ctx: cancels the whole fleet
//   - devices: devices to play on, grouped when MaxSessions is smaller
//   - module: catalog module name, recorded with every session
//   - duration: run time of the fleet and of each session
//
// Returns:
//   - Report: per-session results, always filled in
//   - error: ErrNoDevices or ErrAlreadyRunning; session failures are in the report
func (c *Coordinator) Run(ctx context.Context, devices []engine.Device, module string, duration time.Duration) (Report, error) {
	if len(devices) == 0 {
		return Report{Module: module}, ErrNoDevices
	}
	if !c.running.CompareAndSwap(false, true) {
		return Report{Module: module}, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	start := c.deps.Clock.Now()
	deadline := start.Add(duration)
	groups := groupDevices(devices, c.cfg.MaxSessions)
	results := make([]session.Result, len(groups))

	c.mu.Lock()
	c.status = Status{Running: true, Module: module, Started: start, Deadline: deadline}
	c.mu.Unlock()

	c.logger.Info("fleet starting", "devices", len(devices), "sessions", len(groups),
		"module", module, "duration", duration)

	var wg sync.WaitGroup
	for i, group := range groups {
		sup, err := c.newSession(group[0], module, duration)
		if err != nil {
			c.logger.Error("creating session", "device", group[0].Serial(), "error", err)
			results[i] = session.Result{Device: group[0].Serial(), Module: module,
				Started: start, EndReason: session.EndInitFailed, Err: err}
			continue
		}

		c.mu.Lock()
		c.sessions = append(c.sessions, &managed{sup: sup, group: group, lastSwitch: start})
		c.mu.Unlock()

		wg.Add(1)
		go func(i int, sup *session.Supervisor) {
			defer wg.Done()
			results[i] = sup.Run(ctx)
		}(i, sup)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	c.controlLoop(ctx, deadline, allDone)

	c.Stop()
	<-allDone

	c.mu.Lock()
	c.status.Running = false
	c.mu.Unlock()
	c.refresh(true)

	report := Report{
		Module:   module,
		Started:  start,
		Elapsed:  c.deps.Clock.Now().Sub(start),
		Sessions: results,
	}
	c.logger.Info("fleet stopped", "elapsed", report.Elapsed, "failed", len(report.Failed()))
	return report, nil
}

func (c *Coordinator) controlLoop(ctx context.Context, deadline time.Time, allDone <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		c.drain()
		now := c.deps.Clock.Now()
		c.rotate(now)
		c.refresh(false)

		if !now.Before(deadline) {
			c.logger.Info("fleet deadline reached")
			return
		}

		select {
		case <-c.stop:
			c.drain()
			return
		case <-ctx.Done():
			return
		case <-allDone:
			return
		case <-ticker.C:
		}
	}
}

// newSession wires an engine and supervisor for dev.
func (c *Coordinator) newSession(dev engine.Device, module string, duration time.Duration) (*session.Supervisor, error) {
	disp, err := dispatch.New(dev)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	cfg := c.deps.Session
	cfg.ID = history.NewID()
	cfg.Module = module
	cfg.Duration = duration

	sink := session.Tagged{Session: cfg.ID, Next: c.deps.Events}

	eng := engine.New(c.deps.Engine, c.deps.Catalog, c.deps.Detector, dev, disp)
	eng.SetLogger(c.logger)
	eng.SetClock(c.deps.Clock)
	if c.deps.Events != nil {
		eng.SetEventSink(sink)
	}
	if c.deps.Frames != nil {
		eng.SetFrameSink(c.deps.Frames)
	}

	sup := session.New(cfg, eng, disp)
	sup.SetLogger(c.logger)
	sup.SetClock(c.deps.Clock)
	if c.deps.Events != nil {
		sup.SetEventSink(sink)
	}
	if c.deps.Observer != nil {
		sup.SetObserver(c.deps.Observer)
	}
	if c.deps.Recorder != nil {
		sup.SetRecorder(c.deps.Recorder)
	}
	sup.BindStop(c.stop, c.Stop)
	return sup, nil
}

// drain applies every queued command.
func (c *Coordinator) drain() {
	for {
		select {
		case cmd := <-c.commands:
			c.apply(cmd)
		default:
			return
		}
	}
}

func (c *Coordinator) apply(cmd Command) {
	c.logger.Info("fleet command", "action", cmd.Action, "session", cmd.Session)

	switch cmd.Action {
	case ActionStop:
		c.Stop()
	case ActionPauseAll:
		for _, m := range c.snapshotSessions() {
			m.sup.Pause()
		}
	case ActionResumeAll:
		for _, m := range c.snapshotSessions() {
			m.sup.Resume()
		}
	case ActionPause, ActionResume, ActionSwitch:
		m := c.find(cmd.Session)
		if m == nil {
			c.logger.Warn("command for unknown session", "action", cmd.Action, "session", cmd.Session)
			return
		}
		switch cmd.Action {
		case ActionPause:
			m.sup.Pause()
		case ActionResume:
			m.sup.Resume()
		case ActionSwitch:
			c.switchNext(m, c.deps.Clock.Now())
		}
	}
}

// rotate asks every multi-device session that has stayed on its device for
// SwitchInterval to move to the next one.
func (c *Coordinator) rotate(now time.Time) {
	for _, m := range c.snapshotSessions() {
		if len(m.group) > 1 && now.Sub(m.lastSwitch) >= c.cfg.SwitchInterval {
			c.switchNext(m, now)
		}
	}
}

// switchNext queues a rebind to the next device of the session's group.
// The session defers the switch while a gate is armed.
func (c *Coordinator) switchNext(m *managed, now time.Time) {
	if len(m.group) < 2 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := (m.idx + 1) % len(m.group)
	if !m.sup.RequestRebind(m.group[next]) {
		return
	}
	m.idx = next
	m.lastSwitch = now
}

// refresh rebuilds the status snapshot and notifies listeners, at most once
// per StatusInterval unless forced.
func (c *Coordinator) refresh(force bool) {
	sessions := c.snapshotSessions()
	snaps := make([]session.Snapshot, len(sessions))
	for i, m := range sessions {
		snaps[i] = m.sup.Snapshot()
	}

	now := c.deps.Clock.Now()
	c.mu.Lock()
	c.status.Sessions = snaps
	notify := force || now.Sub(c.lastNotify) >= c.cfg.StatusInterval
	if notify {
		c.lastNotify = now
	}
	status := c.status
	listeners := append([]StatusListener(nil), c.listeners...)
	c.mu.Unlock()

	if notify {
		for _, l := range listeners {
			l.PublishStatus(status)
		}
	}
}

func (c *Coordinator) snapshotSessions() []*managed {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*managed(nil), c.sessions...)
}

func (c *Coordinator) find(target string) *managed {
	for _, m := range c.snapshotSessions() {
		if m.sup.ID() == target || m.sup.Snapshot().Device == target {
			return m
		}
	}
	return nil
}
