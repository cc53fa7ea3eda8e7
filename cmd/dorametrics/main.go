package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/parthraninga/DORA-Metrics/internal/config"
)

var version = "dev" // Set with -ldflags at build time.

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "dorametrics",
	Short: "DORA metrics from CI and VCS activity",
	Long: `dorametrics ingests pull requests and workflow runs per repository,
derives incidents from failing runs and reports lead time, deployment
frequency, change failure rate and mean time to recovery per team.

Configuration is read from DORAMETRICS_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		slog.SetDefault(cfg.NewLogger())
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reparseCmd)
	rootCmd.AddCommand(deriveCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}
