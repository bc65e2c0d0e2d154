// yysbot plays Onmyoji soul and demon-parade runs on Android emulators.
//
// It watches each emulator's screen over adb, recognises on-screen controls
// from template images and taps them with human-like timing. Several
// emulators are driven at once, each by its own session.
//
//	yysbot run --module yuhun --duration 90m
//	yysbot devices --connect
//	yysbot capture --device 127.0.0.1:16384 -o frame.png
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "yysbot",
		Short:         "Template-matching autoplayer for Onmyoji on Android emulators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default $YYSBOT_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(opts),
		newDevicesCmd(opts),
		newCaptureCmd(opts),
		newCatalogCmd(opts),
		newVersionCmd(),
	)
	return root
}

// getConfigPath returns the configuration file path: the flag, then
// YYSBOT_CONFIG, then the default.
func (o *options) getConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if path := os.Getenv("YYSBOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "yysbot %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
