// tswrite - batching write path for InfluxDB 1.x
//
// tswrite accepts line-protocol points over HTTP, batches them per
// destination and delivers them to InfluxDB over HTTP or UDP, retrying
// transient failures from a bounded backlog. Points it gives up on are
// recorded in a local SQLite dead-letter table and optionally announced
// over MQTT.
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

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "tswrite",
		Short:         "Batching write path for InfluxDB 1.x",
		Long:          "tswrite batches line-protocol points per destination and delivers them to InfluxDB over HTTP or UDP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(),
		"configuration file (env TSWRITE_CONFIG)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tswrite %s (commit %s, built %s)\n", version, commit, date)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply dead-letter database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	})

	return rootCmd
}

// getConfigPath returns the configuration file path.
// Uses TSWRITE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TSWRITE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
