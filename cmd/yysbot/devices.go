package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/WilsonWong800686/yys-autommation/internal/device"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
)

func newDevicesCmd(opts *options) *cobra.Command {
	var (
		connect bool
		record  bool
	)
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List attached emulators and phones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version)
			ctx := cmd.Context()

			var registry *device.Registry
			if record {
				db, dbErr := openDatabase(ctx, cfg.Database)
				if dbErr != nil {
					return dbErr
				}
				defer db.Close()
				registry = device.NewRegistry(device.NewSQLiteInventory(db.DB))
				registry.SetLogger(log)
				if err := registry.RefreshCache(ctx); err != nil {
					return fmt.Errorf("loading device inventory: %w", err)
				}
			}

			found, err := discover(ctx, newADB(cfg.ADB), cfg.ADB, connect, registry, log)
			if err != nil {
				return err
			}
			printDevices(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", false, "try common emulator ports first")
	cmd.Flags().BoolVar(&record, "record", true, "record the devices in the inventory")
	return cmd
}

func printDevices(w io.Writer, found []device.Emulator) {
	if len(found) == 0 {
		fmt.Fprintln(w, "no devices found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERIAL\tKIND\tMODEL\tANDROID\tSTATE\tLAST SEEN")
	for _, em := range found {
		state := "offline"
		if em.Online {
			state = "online"
		}
		seen := "-"
		if !em.LastSeen.IsZero() {
			seen = em.LastSeen.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", em.Serial, em.Kind, em.Model, em.Android, state, seen)
	}
	tw.Flush()
}
