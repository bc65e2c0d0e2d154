package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/device"
	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
	"github.com/WilsonWong800686/yys-autommation/internal/session"
)

// mockRunner answers adb commands from a table. Unlisted getprop calls
// return an empty value.
type mockRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	calls   []string
}

func (m *mockRunner) Run(_ context.Context, args ...string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cmd := strings.Join(args, " ")
	m.calls = append(m.calls, cmd)
	if out, ok := m.outputs[cmd]; ok {
		return []byte(out), nil
	}
	if strings.Contains(cmd, "getprop") {
		return nil, nil
	}
	return nil, errors.New("unexpected command " + cmd)
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&bytes.Buffer{}, config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// ─── Commands ──────────────────────────────────────────────────────

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "yysbot dev") {
		t.Errorf("version output = %q, want it to contain %q", out, "yysbot dev")
	}
}

func TestCatalogCommand(t *testing.T) {
	t.Setenv("YYSBOT_CONFIG", "")

	out, err := execute(t, "catalog", "--module", "yuhun")
	if err != nil {
		t.Fatalf("catalog error = %v", err)
	}
	for _, want := range []string{"yuhun (", "NAME", "lose", "terminal", "button10"} {
		if !strings.Contains(out, want) {
			t.Errorf("catalog output missing %q:\n%s", want, out)
		}
	}
}

func TestCatalogModulesCommand(t *testing.T) {
	out, err := execute(t, "catalog", "modules")
	if err != nil {
		t.Fatalf("catalog modules error = %v", err)
	}
	if got := strings.Fields(out); strings.Join(got, ",") != "baigui,yuhun" {
		t.Errorf("modules = %v, want [baigui yuhun]", got)
	}
}

func TestCatalogExportLegacy(t *testing.T) {
	t.Setenv("YYSBOT_CONFIG", "")

	out, err := execute(t, "catalog", "export-legacy", "-m", "yuhun")
	if err != nil {
		t.Fatalf("export-legacy error = %v", err)
	}
	var doc map[string]catalog.LegacyButton
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("export-legacy output is not JSON: %v", err)
	}
	if _, ok := doc["button10"]; !ok {
		t.Errorf("export-legacy missing button10; got %d entries", len(doc))
	}
}

func TestCatalogCheckMissingTemplates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "catalog:\n  module: yuhun\n  template_dir: " + filepath.Join(dir, "none") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", path, "catalog", "check")
	if !errors.Is(err, catalog.ErrNoTemplates) {
		t.Errorf("check error = %v, want ErrNoTemplates", err)
	}
	if !strings.Contains(out, "missing lose") {
		t.Errorf("check output = %q, want missing controls listed", out)
	}
}

// ─── Configuration ─────────────────────────────────────────────────

func TestGetConfigPath(t *testing.T) {
	t.Setenv("YYSBOT_CONFIG", "")
	if got := (&options{}).getConfigPath(); got != defaultConfigPath {
		t.Errorf("default path = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("YYSBOT_CONFIG", "/etc/yysbot.yaml")
	if got := (&options{}).getConfigPath(); got != "/etc/yysbot.yaml" {
		t.Errorf("env path = %q, want /etc/yysbot.yaml", got)
	}
	if got := (&options{configPath: "flag.yaml"}).getConfigPath(); got != "flag.yaml" {
		t.Errorf("flag path = %q, want flag.yaml", got)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("YYSBOT_CONFIG", "")

	t.Run("missing default falls back to defaults", func(t *testing.T) {
		cfg, err := (&options{}).loadConfig()
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Catalog.Module != "yuhun" {
			t.Errorf("Catalog.Module = %q, want yuhun", cfg.Catalog.Module)
		}
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		_, err := (&options{configPath: filepath.Join(t.TempDir(), "nope.yaml")}).loadConfig()
		if err == nil {
			t.Fatal("loadConfig() error = nil, want error")
		}
	})

	t.Run("file values are read", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		body := "catalog:\n  module: baigui\nsession:\n  duration: 15m\n"
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := (&options{configPath: path}).loadConfig()
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Catalog.Module != "baigui" {
			t.Errorf("Catalog.Module = %q, want baigui", cfg.Catalog.Module)
		}
		if cfg.Session.Duration != 15*time.Minute {
			t.Errorf("Session.Duration = %v, want 15m", cfg.Session.Duration)
		}
	})

	t.Run("log level flag overrides", func(t *testing.T) {
		cfg, err := (&options{logLevel: "debug"}).loadConfig()
		if err != nil {
			t.Fatalf("loadConfig() error = %v", err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
		}
	})
}

// ─── Wiring helpers ────────────────────────────────────────────────

func TestBuildCatalog(t *testing.T) {
	cfg := config.Default().Catalog
	cfg.TemplateDir = t.TempDir()

	cat, err := buildCatalog(cfg, testLogger())
	if err != nil {
		t.Fatalf("buildCatalog() error = %v", err)
	}
	if cat.Module() != "yuhun" {
		t.Errorf("Module() = %q, want yuhun", cat.Module())
	}

	cfg.Module = "nope"
	if _, err := buildCatalog(cfg, testLogger()); !errors.Is(err, catalog.ErrUnknownModule) {
		t.Errorf("unknown module error = %v, want ErrUnknownModule", err)
	}
}

func TestBuildCatalogDiscover(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "button99.png"), []byte("png"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default().Catalog
	cfg.TemplateDir = dir
	cfg.AutoDiscover = true

	cat, err := buildCatalog(cfg, testLogger())
	if err != nil {
		t.Fatalf("buildCatalog() error = %v", err)
	}
	if _, ok := cat.Lookup("button99"); !ok {
		t.Error("button99 was not discovered")
	}
}

func TestOpenDevices(t *testing.T) {
	cfg := config.Default().ADB

	t.Run("discovers online devices", func(t *testing.T) {
		runner := &mockRunner{outputs: map[string]string{
			"devices": "List of devices attached\n127.0.0.1:16384\tdevice\nemulator-5556\toffline\n",
		}}
		devs, err := openDevices(context.Background(), device.NewClient(runner), cfg, nil, false, nil, testLogger())
		if err != nil {
			t.Fatalf("openDevices() error = %v", err)
		}
		if len(devs) != 1 || devs[0].Serial() != "127.0.0.1:16384" {
			t.Errorf("devices = %v, want [127.0.0.1:16384]", devs)
		}
	})

	t.Run("named serials skip discovery", func(t *testing.T) {
		runner := &mockRunner{}
		devs, err := openDevices(context.Background(), device.NewClient(runner), cfg,
			[]string{"a", "b"}, false, nil, testLogger())
		if err != nil {
			t.Fatalf("openDevices() error = %v", err)
		}
		if len(devs) != 2 {
			t.Errorf("len(devices) = %d, want 2", len(devs))
		}
		if len(runner.calls) != 0 {
			t.Errorf("adb calls = %v, want none", runner.calls)
		}
	})

	t.Run("no online device", func(t *testing.T) {
		runner := &mockRunner{outputs: map[string]string{"devices": "List of devices attached\n"}}
		_, err := openDevices(context.Background(), device.NewClient(runner), cfg, nil, false, nil, testLogger())
		if !errors.Is(err, fleet.ErrNoDevices) {
			t.Errorf("error = %v, want ErrNoDevices", err)
		}
	})
}

func TestRunFlagsApply(t *testing.T) {
	rf := &runFlags{}
	cmd := &cobra.Command{Use: "run"}
	rf.register(cmd.Flags())
	if err := cmd.Flags().Parse([]string{"-m", "baigui", "-d", "20m", "--device", "a,b", "--max-sessions", "1", "--tui"}); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	rf.apply(cmd, cfg)

	if cfg.Catalog.Module != "baigui" {
		t.Errorf("Catalog.Module = %q, want baigui", cfg.Catalog.Module)
	}
	if cfg.Session.Duration != 20*time.Minute {
		t.Errorf("Session.Duration = %v, want 20m", cfg.Session.Duration)
	}
	if strings.Join(cfg.Fleet.Devices, ",") != "a,b" {
		t.Errorf("Fleet.Devices = %v, want [a b]", cfg.Fleet.Devices)
	}
	if cfg.Fleet.MaxSessions != 1 {
		t.Errorf("Fleet.MaxSessions = %d, want 1", cfg.Fleet.MaxSessions)
	}
	if cfg.Logging.Output == "stdout" {
		t.Error("dashboard run still logs to stdout")
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, fleet.Report{
		Module:  "yuhun",
		Elapsed: 90 * time.Second,
		Sessions: []session.Result{
			{Device: "emu-1", EndReason: session.EndDeadline, Elapsed: time.Minute, Taps: 12, Runs: 3},
			{Device: "emu-2", EndReason: session.EndAbort, Err: errors.New("device offline")},
		},
	})
	out := buf.String()
	for _, want := range []string{"yuhun run finished after 1m30s", "emu-1", "taps 12", "error: device offline"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
