// Package main implements renewalctl, a command-line client for the
// ekaya-renewals HTTP API.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is injected at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by every command.
type options struct {
	serverURL  string
	timeout    time.Duration
	outputJSON bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "renewalctl",
		Short: "CLI for ekaya-renewals server operations",
		Long: `renewalctl is a command-line interface for the ekaya-renewals server.
It re-runs extraction, requests semantic analysis, inspects contract status
and alert schedules, and manages analysis credits.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("RENEWALS_SERVER", "http://localhost:3480"), "ekaya-renewals server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 3*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "output raw JSON")

	root.AddCommand(
		newReprocessCmd(opts),
		newReanalyzeCmd(opts),
		newStatusCmd(opts),
		newAlertsCmd(opts),
		newCreditsCmd(opts),
		newPurchaseCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
