package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "photoroom",
		Short: "PhotoRoom API client - background removal and AI image editing",
		Long: `photoroom sends images to the PhotoRoom API with client-side rate limiting,
retries with exponential backoff and concurrent batch processing.

Settings are read from ~/.config/photoroom/config.toml (override with --config)
and the PHOTOROOM_API_KEY, PHOTOROOM_REDIS_ADDR and PHOTOROOM_LOG_LEVEL variables.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file path")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics, /health and /ready on this address while running")

	cmd.AddCommand(
		newRemoveBgCmd(opts),
		newEditCmd(opts),
		newAccountCmd(opts),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
