package main

import (
	"fmt"
	"image/png"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WilsonWong800686/yys-autommation/internal/device"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
	"github.com/WilsonWong800686/yys-autommation/internal/recognizer"
)

func newCaptureCmd(opts *options) *cobra.Command {
	var (
		serial string
		output string
		detect bool
	)
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Save a screenshot and optionally list the controls found in it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			log := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version)
			ctx := cmd.Context()

			client := newADB(cfg.ADB)
			if serial == "" {
				found, discErr := discover(ctx, client, cfg.ADB, false, nil, log)
				if discErr != nil {
					return discErr
				}
				for _, em := range found {
					if em.Online {
						serial = em.Serial
						break
					}
				}
				if serial == "" {
					return fmt.Errorf("no online device; pass --device")
				}
			}

			dev, err := client.Device(serial, device.CaptureFormat(cfg.ADB.CaptureFormat))
			if err != nil {
				return err
			}
			frame, err := dev.Capture(ctx)
			if err != nil {
				return fmt.Errorf("capturing %s: %w", serial, err)
			}

			if output != "" {
				f, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("creating %s: %w", output, createErr)
				}
				if err := png.Encode(f, frame); err != nil {
					f.Close()
					return fmt.Errorf("encoding %s: %w", output, err)
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("closing %s: %w", output, err)
				}
				b := frame.Bounds()
				fmt.Fprintf(cmd.OutOrStdout(), "saved %dx%d frame from %s to %s\n", b.Dx(), b.Dy(), serial, output)
			}

			if !detect {
				return nil
			}
			cat, err := buildCatalog(cfg.Catalog, log)
			if err != nil {
				return fmt.Errorf("building catalog: %w", err)
			}
			rec := newRecognizer(cat, cfg.Catalog, log)
			cands, err := rec.Detect(ctx, frame, cat.Names())
			if err != nil {
				return fmt.Errorf("detecting controls: %w", err)
			}
			recognizer.Sort(cands)

			w := cmd.OutOrStdout()
			if len(cands) == 0 {
				fmt.Fprintln(w, "no controls found")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CONTROL\tKIND\tX\tY\tCONFIDENCE\tPRIORITY")
			for _, c := range cands {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.3f\t%d\n",
					c.Control, c.Kind, c.Center.X, c.Center.Y, c.Confidence, c.Priority)
			}
			return tw.Flush()
		},
	}
	f := cmd.Flags()
	f.StringVar(&serial, "device", "", "adb serial; defaults to the first online device")
	f.StringVarP(&output, "output", "o", "", "write the frame to this PNG file")
	f.BoolVar(&detect, "detect", false, "list the catalog controls found in the frame")
	return cmd
}
