// Bumper - local Ecovacs cloud replacement
//
// This is the main entry point for the bumper server. It answers the
// Ecovacs app's HTTPS API on the LAN and relays app commands to robots over
// the MQTT bus, so robots keep working without the vendor cloud.
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
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// configEnv names the config file when --config is not given.
const configEnv = "BUMPER_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// options holds the command-line overrides applied on top of the config file.
type options struct {
	configPath string
	listen     string
	announce   string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "bumper",
		Short:        "Local server for Ecovacs robots and the Ecovacs app",
		Long:         "bumper impersonates the Ecovacs cloud on the local network: it serves the app's login and device APIs and relays app commands to robots over MQTT.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to the YAML config file (default $"+configEnv+", else built-in defaults)")
	flags.StringVar(&opts.listen, "listen", "", "host every listener binds to")
	flags.StringVar(&opts.announce, "announce", "", "address handed to robots in service discovery")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the server (the default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "bumper %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}

// resolveConfigPath returns the --config value, falling back to $BUMPER_CONFIG.
// An empty result means built-in defaults.
func (o *options) resolveConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	return os.Getenv(configEnv)
}
