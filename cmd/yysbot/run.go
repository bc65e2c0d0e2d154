package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/WilsonWong800686/yys-autommation/internal/api"
	"github.com/WilsonWong800686/yys-autommation/internal/device"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/framestore"
	"github.com/WilsonWong800686/yys-autommation/internal/history"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/influxdb"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/mqtt"
	"github.com/WilsonWong800686/yys-autommation/internal/process"
	"github.com/WilsonWong800686/yys-autommation/internal/session"
	"github.com/WilsonWong800686/yys-autommation/internal/telemetry"
	"github.com/WilsonWong800686/yys-autommation/internal/tui"
)

// runFlags override configuration for one run.
type runFlags struct {
	module      string
	duration    time.Duration
	devices     []string
	maxSessions int
	connect     bool
	dashboard   bool
}

func newRunCmd(opts *options) *cobra.Command {
	rf := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play on every configured or discovered device until the duration elapses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			rf.apply(cmd, cfg)
			return runFleet(cmd.Context(), cmd.OutOrStdout(), cfg, rf)
		},
	}
	rf.register(cmd.Flags())
	return cmd
}

func (rf *runFlags) register(f *pflag.FlagSet) {
	f.StringVarP(&rf.module, "module", "m", "", "builtin catalog module (yuhun, baigui)")
	f.DurationVarP(&rf.duration, "duration", "d", 0, "run time, e.g. 90m")
	f.StringSliceVar(&rf.devices, "device", nil, "adb serial to play on (repeatable)")
	f.IntVar(&rf.maxSessions, "max-sessions", 0, "concurrent sessions; devices beyond it are rotated")
	f.BoolVar(&rf.connect, "connect", true, "try common emulator ports before discovery")
	f.BoolVar(&rf.dashboard, "tui", false, "show the terminal dashboard")
}

// apply writes the flags that were set over cfg.
func (rf *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if rf.module != "" {
		cfg.Catalog.Module = rf.module
	}
	if rf.duration > 0 {
		cfg.Session.Duration = rf.duration
	}
	if len(rf.devices) > 0 {
		cfg.Fleet.Devices = rf.devices
	}
	if cmd.Flags().Changed("max-sessions") {
		cfg.Fleet.MaxSessions = rf.maxSessions
	}
	if rf.dashboard {
		switch strings.ToLower(cfg.Logging.Output) {
		case "", "stdout", "stderr":
			cfg.Logging.Output = filepath.Join(filepath.Dir(cfg.Database.Path), "yysbot.log")
		}
	}
}

// runFleet wires the infrastructure and runs the fleet to completion.
//
// Startup order: logger, database, adb server, devices, catalog, MQTT,
// InfluxDB, telemetry, control panel, coordinator. Shutdown runs in reverse
// through defers.
func runFleet(ctx context.Context, out io.Writer, cfg *config.Config, rf *runFlags) error { //nolint:gocognit,gocyclo // composition root
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("starting yysbot", "version", version, "commit", commit, "build_date", date)

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	hist := history.NewSQLiteRepository(db.DB)

	registry := device.NewRegistry(device.NewSQLiteInventory(db.DB))
	registry.SetLogger(log)
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("loading device inventory: %w", err)
	}

	if cfg.ADB.ManageServer {
		mgr := process.NewManager(process.ADBServer(cfg.ADB))
		mgr.SetLogger(log)
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("starting adb server: %w", err)
		}
		defer func() {
			if stopErr := mgr.Stop(); stopErr != nil {
				log.Error("error stopping adb server", "error", stopErr)
			}
		}()
	}

	client := newADB(cfg.ADB)
	devices, err := openDevices(ctx, client, cfg.ADB, cfg.Fleet.Devices, rf.connect, registry, log)
	if err != nil {
		return err
	}

	cat, err := buildCatalog(cfg.Catalog, log)
	if err != nil {
		return fmt.Errorf("building catalog: %w", err)
	}
	rec := newRecognizer(cat, cfg.Catalog, log)
	loaded, missing := rec.Preload()
	log.Info("catalog ready", "module", cat.Module(), "controls", cat.Len(),
		"templates", loaded, "missing", len(missing))

	targets := telemetry.Targets{Store: hist}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			log.Warn("MQTT unavailable, continuing without it", "error", err)
		} else {
			mqttClient.SetLogger(log)
			defer func() {
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			targets.MQTT = mqttClient
			log.Info("MQTT connected", "broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port))
		}
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			log.Warn("InfluxDB unavailable, continuing without metrics", "error", connErr)
		} else {
			influxClient.SetOnError(func(err error) {
				log.Error("InfluxDB write error", "error", err)
			})
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			targets.Metrics = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	// Background goroutines outlive the signal context so the last events
	// and status are still delivered during shutdown.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(bgCtx)
	targets.Hub = hub

	fan := telemetry.New(targets)
	fan.SetLogger(log)
	fanDone := make(chan struct{})
	go func() {
		fan.Run(bgCtx)
		close(fanDone)
	}()
	defer func() {
		bgCancel()
		<-fanDone
	}()

	deps := fleet.Deps{
		Catalog:  cat,
		Detector: rec,
		Engine:   engine.ConfigFrom(cfg.Engine),
		Session:  session.ConfigFrom(cfg.Session),
		Events:   fan,
		Observer: fan,
		Recorder: hist,
	}
	var frames *framestore.Store
	if cfg.Debug.KeepFrames {
		frames = framestore.New()
		deps.Frames = frames
	}

	coord := fleet.New(fleet.ConfigFrom(cfg.Fleet), deps)
	coord.SetLogger(log)
	coord.AddListener(fan)

	if mqttClient != nil {
		if err := fleet.SubscribeCommands(mqttClient, coord); err != nil {
			log.Warn("MQTT command channel unavailable", "error", err)
		}
	}

	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log,
			Fleet:   coord,
			History: hist,
			Hub:     hub,
			Version: version,
		}
		if frames != nil {
			apiDeps.Frames = frames
		}
		srv, srvErr := api.New(apiDeps)
		if srvErr != nil {
			return fmt.Errorf("creating control panel: %w", srvErr)
		}
		if err := srv.Start(bgCtx); err != nil {
			return fmt.Errorf("starting control panel: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing control panel", "error", closeErr)
			}
		}()
	}

	report, err := runCoordinator(ctx, coord, devices, cat.Module(), cfg.Session.Duration, rf.dashboard, log)
	if err != nil {
		return err
	}
	printReport(out, report)
	if failed := report.Failed(); len(failed) == len(report.Sessions) && len(failed) > 0 {
		return fmt.Errorf("all %d sessions failed: %w", len(failed), failed[0].Err)
	}
	return nil
}

// runCoordinator runs the fleet, with the dashboard in the foreground when
// requested. Leaving the dashboard stops the fleet.
func runCoordinator(ctx context.Context, coord *fleet.Coordinator, devices []engine.Device, module string,
	duration time.Duration, dashboard bool, log *logging.Logger) (fleet.Report, error) {
	if !dashboard {
		return coord.Run(ctx, devices, module, duration)
	}

	uiCtx, uiCancel := context.WithCancel(ctx)
	defer uiCancel()

	type result struct {
		report fleet.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := coord.Run(ctx, devices, module, duration)
		uiCancel()
		done <- result{report, err}
	}()

	if err := tui.New(coord, time.Second).Run(uiCtx); err != nil {
		log.Error("dashboard error", "error", err)
	}
	coord.Stop()
	res := <-done
	return res.report, res.err
}

// printReport writes the per-session summary of a run.
func printReport(w io.Writer, r fleet.Report) {
	fmt.Fprintf(w, "\n%s run finished after %s\n", r.Module, r.Elapsed.Round(time.Second))
	for _, res := range r.Sessions {
		line := fmt.Sprintf("  %-22s %-10s %8s  taps %-5d runs %-4d",
			res.Device, res.EndReason, res.Elapsed.Round(time.Second), res.Taps, res.Runs)
		if res.Err != nil {
			line += "  error: " + res.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
}
