package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/device"
	"github.com/WilsonWong800686/yys-autommation/internal/engine"
	"github.com/WilsonWong800686/yys-autommation/internal/fleet"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/database"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
	"github.com/WilsonWong800686/yys-autommation/internal/recognizer"
	"github.com/WilsonWong800686/yys-autommation/migrations"
)

// loadConfig reads the configuration file. When no path was given and the
// default file does not exist, built-in defaults are used. --log-level
// overrides the file.
func (o *options) loadConfig() (*config.Config, error) {
	path := o.getConfigPath()
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && path == defaultConfigPath:
		cfg = config.Default()
	default:
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// openDatabase opens the run-history database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// buildCatalog assembles the control catalog: a catalog file or a builtin
// module, then legacy button_config.json overrides, then auto-discovered
// button*.png templates.
func buildCatalog(cfg config.CatalogConfig, log *logging.Logger) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	if cfg.File != "" {
		cat, err = catalog.Load(cfg.File, cfg.TemplateDir)
	} else {
		cat, err = catalog.Builtin(cfg.Module, cfg.TemplateDir)
	}
	if err != nil {
		return nil, err
	}

	if cfg.LegacyFile != "" {
		if cat, err = catalog.LoadLegacy(cat, cfg.LegacyFile); err != nil {
			return nil, err
		}
		log.Info("legacy button config merged", "path", cfg.LegacyFile)
	}

	if cfg.AutoDiscover {
		var added []string
		if cat, added, err = catalog.Discover(cat); err != nil {
			return nil, err
		}
		if len(added) > 0 {
			log.Info("templates discovered", "controls", added)
		}
	}
	return cat, nil
}

// newRecognizer creates the shared detector for cat.
func newRecognizer(cat *catalog.Catalog, cfg config.CatalogConfig, log *logging.Logger) *recognizer.Recognizer {
	rec := recognizer.New(cat, recognizer.NewCache(max(cfg.MatchScale, 1)), recognizer.Options{
		Scale: cfg.MatchScale,
		Step:  cfg.MatchStep,
	})
	rec.SetLogger(log)
	return rec
}

func newADB(cfg config.ADBConfig) *device.Client {
	return device.NewClient(device.NewExecRunner(cfg))
}

// discover lists attached devices, optionally connecting common emulator
// ports first, and records them in the inventory when one is given.
func discover(ctx context.Context, client *device.Client, cfg config.ADBConfig, connect bool,
	registry *device.Registry, log *logging.Logger) ([]device.Emulator, error) {
	d := device.NewDiscoverer(client, cfg.ConnectHost, cfg.CommonPorts)
	d.SetLogger(log)
	found, err := d.Discover(ctx, connect)
	if err != nil {
		return nil, fmt.Errorf("discovering devices: %w", err)
	}
	if registry != nil {
		if err := registry.Record(ctx, found); err != nil {
			log.Warn("recording devices in inventory", "error", err)
		}
	}
	return found, nil
}

// openDevices opens the named devices, or every online discovered device
// when serials is empty.
func openDevices(ctx context.Context, client *device.Client, cfg config.ADBConfig, serials []string,
	connect bool, registry *device.Registry, log *logging.Logger) ([]engine.Device, error) {
	if len(serials) == 0 {
		found, err := discover(ctx, client, cfg, connect, registry, log)
		if err != nil {
			return nil, err
		}
		for _, em := range found {
			if em.Online {
				serials = append(serials, em.Serial)
				log.Info("device found", "device", em.DisplayName(), "model", em.Model)
			}
		}
	}
	if len(serials) == 0 {
		return nil, fleet.ErrNoDevices
	}

	devices := make([]engine.Device, 0, len(serials))
	for _, serial := range serials {
		dev, err := client.Device(serial, device.CaptureFormat(cfg.CaptureFormat))
		if err != nil {
			return nil, fmt.Errorf("opening device %s: %w", serial, err)
		}
		devices = append(devices, dev)
	}
	return devices, nil
}
