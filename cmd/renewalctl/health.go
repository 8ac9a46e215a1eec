package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// pingResponse matches handlers.PingResponse
type pingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	Environment string `json:"environment"`
	AIAvailable bool   `json:"ai_available"`
	Tasks       *struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
		Running int `json:"running"`
		Failed  int `json:"failed"`
	} `json:"tasks,omitempty"`
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ekaya-renewals server health",
		Long: `Check the health status of the ekaya-renewals server.

Examples:
  renewalctl health
  renewalctl health --server http://renewals.internal:3480`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _, err := newClient(opts).do(cmd.Context(), http.MethodGet, "/ping", nil)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			var ping pingResponse
			if err := json.Unmarshal(raw, &ping); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Server Status: %s\n", ping.Status)
			fmt.Fprintf(w, "Server URL: %s\n", opts.serverURL)
			fmt.Fprintf(w, "Version: %s (%s)\n", ping.Version, ping.Environment)
			fmt.Fprintf(w, "Semantic analysis: %s\n", availability(ping.AIAvailable))
			if ping.Tasks != nil {
				fmt.Fprintf(w, "Tasks: %d running, %d pending, %d failed of %d\n",
					ping.Tasks.Running, ping.Tasks.Pending, ping.Tasks.Failed, ping.Tasks.Total)
			}
			return nil
		},
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "not configured"
}
