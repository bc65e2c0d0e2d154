package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"

	// StatusExternal means Preflight found the service already provided
	// by a process the manager does not own.
	StatusExternal Status = "external"
)

var (
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrAlreadyServing is returned by a Preflight check when something
	// else already provides the service.
	ErrAlreadyServing = errors.New("process: service already provided")
)

// healthKillAfter consecutive failed health checks kill the process.
const healthKillAfter = 3

// healthCheckTimeout bounds one health check.
const healthCheckTimeout = 5 * time.Second

// Config describes a supervised subprocess.
type Config struct {
	Name   string
	Binary string
	Args   []string
	Env    []string // appended to the parent environment

	RestartOnFailure bool

	// Restarts back off from RestartDelay, doubling per consecutive crash up
	// to MaxRestartDelay. A run that lasted StableThreshold resets the streak.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	StableThreshold time.Duration

	// MaxRestartAttempts of 0 restarts forever.
	MaxRestartAttempts int

	// GracefulTimeout is the SIGTERM to SIGKILL grace period.
	GracefulTimeout time.Duration

	HealthCheckFunc     func(ctx context.Context) error
	HealthCheckInterval time.Duration

	// Preflight runs before the first spawn. ErrAlreadyServing leaves the
	// manager in StatusExternal without starting anything.
	Preflight func(ctx context.Context) error

	OnStart func()
	OnStop  func(err error)
}

// DefaultConfig returns a restarting Config with the standard timings.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        5 * time.Second,
		MaxRestartDelay:     5 * time.Minute,
		StableThreshold:     2 * time.Minute,
		MaxRestartAttempts:  10,
		GracefulTimeout:     10 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

func (c *Config) fillDefaults() {
	def := DefaultConfig(c.Name, c.Binary, c.Args)
	for _, d := range []struct{ v, def *time.Duration }{
		{&c.RestartDelay, &def.RestartDelay},
		{&c.MaxRestartDelay, &def.MaxRestartDelay},
		{&c.StableThreshold, &def.StableThreshold},
		{&c.GracefulTimeout, &def.GracefulTimeout},
		{&c.HealthCheckInterval, &def.HealthCheckInterval},
	} {
		if *d.v == 0 {
			*d.v = *d.def
		}
	}
}

// Logger is the logging surface of the manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// run is one spawned instance of the process.
type run struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	started time.Time
	exited  chan error
}

// Manager keeps one subprocess alive.
//
// Thread Safety: all methods are safe for concurrent use.
type Manager struct {
	config Config
	logger Logger

	mu       sync.RWMutex
	status   Status
	current  *run
	restarts int
	streak   int
	lastErr  error
	stop     chan struct{}
	done     chan struct{}
}

// NewManager creates a manager; zero durations take DefaultConfig values.
func NewManager(cfg Config) *Manager {
	cfg.fillDefaults()
	return &Manager{config: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Call before Start.
func (m *Manager) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	m.logger = l
}

// Start spawns the process and supervises it until Stop or ctx ends.
// It returns once the first spawn succeeded or failed.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.supervising() {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, m.config.Name)
	}
	m.status = StatusStarting
	stop := make(chan struct{})
	m.stop = stop
	m.done = make(chan struct{})
	m.mu.Unlock()

	if m.config.Preflight != nil {
		if err := m.config.Preflight(ctx); errors.Is(err, ErrAlreadyServing) {
			m.logger.Info("process not started, service already available", "name", m.config.Name, "reason", err)
			m.finish(StatusExternal, nil)
			return nil
		}
	}

	r, err := m.spawn(ctx)
	if err != nil {
		m.finish(StatusFailed, err)
		return err
	}
	go m.supervise(ctx, r, stop)
	return nil
}

// supervising reports whether a Start is still in effect. Callers hold mu.
func (m *Manager) supervising() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// finish records a terminal state and releases Stop waiters.
func (m *Manager) finish(s Status, err error) {
	m.mu.Lock()
	m.status = s
	if err != nil {
		m.lastErr = err
	}
	done := m.done
	m.mu.Unlock()
	close(done)
}

// spawn starts one instance in its own process group. Cancelling the run
// sends SIGTERM to the group; the runtime kills the leader after
// GracefulTimeout.
func (m *Manager) spawn(ctx context.Context) (*run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, m.config.Binary, m.config.Args...) //nolint:gosec // operator-configured binary
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return signalGroup(cmd, syscall.SIGTERM) }
	cmd.WaitDelay = m.config.GracefulTimeout
	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s stdout: %w", m.config.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s stderr: %w", m.config.Name, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	r := &run{cmd: cmd, cancel: cancel, started: time.Now(), exited: make(chan error, 1)}
	go m.relay("stdout", stdout)
	go m.relay("stderr", stderr)
	go func() {
		r.exited <- cmd.Wait()
		// Reap helpers the leader left behind.
		signalGroup(cmd, syscall.SIGKILL) //nolint:errcheck // group is usually gone
		cancel()
	}()

	m.mu.Lock()
	m.current = r
	m.status = StatusRunning
	m.mu.Unlock()

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid, "args", m.config.Args)
	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return r, nil
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// relay forwards output lines to the logger. adb server lines carry a
// one-letter severity after the "adb" tag; errors and fatals log at warn.
func (m *Manager) relay(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		args := []any{"name", m.config.Name, "stream", stream, "line", line}
		if f := strings.Fields(line); len(f) > 1 && (f[1] == "E" || f[1] == "F") {
			m.logger.Warn("process output", args...)
		} else {
			m.logger.Debug("process output", args...)
		}
	}
}

// supervise waits on each run and restarts it per the restart policy.
func (m *Manager) supervise(ctx context.Context, r *run, stop <-chan struct{}) {
	for {
		err := m.watch(ctx, r, stop)

		if stopped(stop) || ctx.Err() != nil {
			m.logger.Info("process stopped", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			m.finish(StatusStopped, nil)
			return
		}

		m.logger.Warn("process exited", "name", m.config.Name, "error", err, "ran_for", time.Since(r.started))
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}
		m.mu.Lock()
		m.status = StatusFailed
		m.lastErr = err
		m.mu.Unlock()

		delay, ok := m.nextRestart(time.Since(r.started))
		if !ok {
			m.finish(StatusFailed, nil)
			return
		}

		select {
		case <-ctx.Done():
			m.finish(StatusStopped, nil)
			return
		case <-stop:
			m.finish(StatusStopped, nil)
			return
		case <-time.After(delay):
		}

		next, err := m.spawn(ctx)
		if err != nil {
			m.logger.Error("restart failed", "name", m.config.Name, "error", err)
			m.finish(StatusFailed, err)
			return
		}
		r = next
	}
}

// nextRestart counts a crash and returns the backoff before the next
// spawn, or false when restarts are off or exhausted.
func (m *Manager) nextRestart(ranFor time.Duration) (time.Duration, bool) {
	if !m.config.RestartOnFailure {
		return 0, false
	}
	m.mu.Lock()
	if ranFor >= m.config.StableThreshold {
		m.streak = 0
	}
	m.streak++
	m.restarts++
	attempt, streak := m.restarts, m.streak
	m.mu.Unlock()

	if max := m.config.MaxRestartAttempts; max > 0 && attempt > max {
		m.logger.Error("giving up on process", "name", m.config.Name, "attempts", attempt)
		return 0, false
	}
	delay := backoffDelay(m.config.RestartDelay, m.config.MaxRestartDelay, streak)
	m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)
	return delay, true
}

// watch blocks until r exits, terminating it on Stop. With a health
// check, healthKillAfter consecutive failures kill the group.
func (m *Manager) watch(ctx context.Context, r *run, stop <-chan struct{}) error {
	var healthC <-chan time.Time
	if m.config.HealthCheckFunc != nil {
		tick := time.NewTicker(m.config.HealthCheckInterval)
		defer tick.Stop()
		healthC = tick.C
	}

	failed := 0
	for {
		select {
		case err := <-r.exited:
			return err
		case <-stop:
			m.logger.Info("stopping process", "name", m.config.Name, "pid", r.cmd.Process.Pid)
			r.cancel()
			return <-r.exited
		case <-healthC:
			hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := m.config.HealthCheckFunc(hctx)
			cancel()
			if err == nil {
				failed = 0
				continue
			}
			failed++
			m.logger.Warn("health check failed", "name", m.config.Name, "error", err, "consecutive", failed)
			if failed < healthKillAfter {
				continue
			}
			m.logger.Error("process unresponsive, killing", "name", m.config.Name)
			signalGroup(r.cmd, syscall.SIGKILL) //nolint:errcheck // exit observed below
			<-r.exited
			return fmt.Errorf("killed after %d failed health checks: %w", failed, err)
		}
	}
}

// backoffDelay is base doubled per crash after the first, capped at max.
func backoffDelay(base, max time.Duration, streak int) time.Duration {
	d := base
	for i := 1; i < streak && d < max; i++ {
		d *= 2
	}
	return min(d, max)
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Stop terminates the process group and waits for supervision to end.
// It is a no-op when nothing is running.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.supervising() {
		m.mu.Unlock()
		return nil
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// Status returns the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the process is up.
func (m *Manager) IsRunning() bool { return m.Status() == StatusRunning }

// Stats is a point-in-time view of the managed process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns the current Stats.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{Name: m.config.Name, Status: m.status, RestartCount: m.restarts}
	if m.current != nil && m.current.cmd.Process != nil {
		st.PID = m.current.cmd.Process.Pid
		if m.status == StatusRunning {
			st.Uptime = time.Since(m.current.started)
		}
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}
