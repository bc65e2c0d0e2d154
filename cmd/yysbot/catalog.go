package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WilsonWong800686/yys-autommation/internal/catalog"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/logging"
)

func newCatalogCmd(opts *options) *cobra.Command {
	var module string

	// load reads the configured catalog, with --module overriding the
	// builtin module.
	load := func(cmd *cobra.Command) (*catalog.Catalog, error) {
		cfg, err := opts.loadConfig()
		if err != nil {
			return nil, err
		}
		if module != "" {
			cfg.Catalog.Module = module
		}
		return buildCatalog(cfg.Catalog, catalogLogger(cmd, cfg))
	}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the controls of a catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := load(cmd)
			if err != nil {
				return err
			}
			printControls(cmd.OutOrStdout(), cat)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&module, "module", "m", "", "builtin catalog module")

	cmd.AddCommand(&cobra.Command{
		Use:   "modules",
		Short: "List the builtin modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range catalog.Modules() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Report which control templates are missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := load(cmd)
			if err != nil {
				return err
			}
			usable, missing := cat.Usable()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d usable, %d missing (templates in %s)\n",
				cat.Module(), len(usable), len(missing), cat.TemplateDir())
			for _, name := range missing {
				fmt.Fprintf(w, "  missing %s\n", name)
			}
			return cat.ValidateTemplates()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export-legacy",
		Short: "Print the catalog as a button_config.json document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := load(cmd)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cat.ToLegacy())
		},
	})
	return cmd
}

func catalogLogger(cmd *cobra.Command, cfg *config.Config) *logging.Logger {
	return logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging, version)
}

func printControls(w io.Writer, cat *catalog.Catalog) {
	fmt.Fprintf(w, "%s (%d controls)\n", cat.Module(), cat.Len())
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tPRIORITY\tTHRESHOLD\tDELAY\tTEMPLATE")
	for _, ctl := range cat.Controls() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s-%s\t%s\n",
			ctl.Name, ctl.Kind, ctl.Priority, ctl.Threshold,
			ctl.PostDelay.Min, ctl.PostDelay.Max, ctl.Template)
	}
	tw.Flush()
}
