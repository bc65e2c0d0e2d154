package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

// Runner executes adb with the given arguments and returns its stdout.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// ExecRunner runs the adb executable.
type ExecRunner struct {
	Path       string
	ServerPort int
	Timeout    time.Duration
}

// NewExecRunner creates a runner from the adb configuration.
func NewExecRunner(cfg config.ADBConfig) *ExecRunner {
	return &ExecRunner{Path: cfg.Path, ServerPort: cfg.ServerPort, Timeout: cfg.CommandTimeout}
}

// Run executes adb. Every call is bounded by Timeout when set.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	full := args
	if r.ServerPort > 0 && r.ServerPort != DefaultServerPort {
		full = append([]string{"-P", strconv.Itoa(r.ServerPort)}, args...)
	}

	path := r.Path
	if path == "" {
		path = "adb"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, full...) //nolint:gosec // adb path comes from operator config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: adb %s: %w", ErrCommandFailed, strings.Join(args, " "), ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		return nil, fmt.Errorf("%w: adb %s: %w: %s", ErrCommandFailed, strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// DefaultServerPort is adb's standard server port.
const DefaultServerPort = 5037

// Client issues adb commands that are not bound to one device.
type Client struct {
	runner Runner
}

// NewClient creates an adb client.
func NewClient(runner Runner) *Client {
	return &Client{runner: runner}
}

// Runner returns the underlying runner.
func (c *Client) Runner() Runner { return c.runner }

// Entry is one line of "adb devices".
type Entry struct {
	Serial string
	State  string // "device", "offline", "unauthorized", ...
}

// Online reports whether adb can talk to the device.
func (e Entry) Online() bool { return e.State == "device" }

// Devices lists attached devices.
func (c *Client) Devices(ctx context.Context) ([]Entry, error) {
	out, err := c.runner.Run(ctx, "devices")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return parseDevices(out), nil
}

func parseDevices(out []byte) []Entry {
	var entries []Entry
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		entries = append(entries, Entry{Serial: fields[0], State: fields[1]})
	}
	return entries
}

// Connect asks the adb server to connect to a TCP address.
func (c *Client) Connect(ctx context.Context, addr string) error {
	out, err := c.runner.Run(ctx, "connect", addr)
	if err != nil {
		return fmt.Errorf("connecting %s: %w", addr, err)
	}
	msg := strings.ToLower(string(out))
	if strings.Contains(msg, "connected to") {
		return nil
	}
	return fmt.Errorf("%w: connect %s: %s", ErrCommandFailed, addr, strings.TrimSpace(string(out)))
}

// RestartServer kills and restarts the adb server.
func (c *Client) RestartServer(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, "kill-server"); err != nil {
		return fmt.Errorf("killing adb server: %w", err)
	}
	if _, err := c.runner.Run(ctx, "start-server"); err != nil {
		return fmt.Errorf("starting adb server: %w", err)
	}
	return nil
}

// Device opens a handle to one attached device.
func (c *Client) Device(serial string, format CaptureFormat) (*Device, error) {
	if strings.TrimSpace(serial) == "" {
		return nil, ErrInvalidSerial
	}
	if format == "" {
		format = CapturePNG
	}
	if format != CapturePNG && format != CaptureRaw {
		return nil, fmt.Errorf("%w: capture format %q", ErrCommandFailed, format)
	}
	return &Device{serial: serial, runner: c.runner, format: format}, nil
}

// Getprop reads one system property.
func (c *Client) Getprop(ctx context.Context, serial, prop string) (string, error) {
	out, err := c.runner.Run(ctx, "-s", serial, "shell", "getprop", prop)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// isOffline reports whether an adb error means the device is gone.
func isOffline(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "not found") || strings.Contains(msg, "offline") ||
		errors.Is(err, ErrDeviceOffline)
}
