package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// reprocessResponse matches handlers.ReprocessResponse
type reprocessResponse struct {
	ContractID uuid.UUID `json:"contract_id"`
	Started    bool      `json:"started"`
}

// reanalyzeResult matches services.ReanalyzeResult
type reanalyzeResult struct {
	ContractID        uuid.UUID          `json:"contract_id"`
	AIStatus          models.AIStatus    `json:"ai_status"`
	Analysis          *models.AIAnalysis `json:"analysis,omitempty"`
	HasCachedAnalysis bool               `json:"has_cached_analysis"`
	CreditsRemaining  *int               `json:"credits_remaining,omitempty"`
	Committed         []string           `json:"committed,omitempty"`
}

func contractArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid contract id %q: %w", args[0], err)
	}
	return id, nil
}

func contractPath(id uuid.UUID, suffix string) string {
	return "/api/contracts/" + url.PathEscape(id.String()) + "/" + suffix
}

func newReprocessCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <contract-id>",
		Short: "Re-run text extraction for a contract",
		Long: `Re-run text extraction and pattern analysis for a contract.

A contract whose extraction is already running is left alone unless the run
is older than the server's stale processing cutoff.

Examples:
  renewalctl reprocess 3f1c2b9e-5d1a-4a57-9a86-0d9c6b1f2e11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := contractArg(args)
			if err != nil {
				return err
			}

			var out reprocessResponse
			env, _, err := newClient(opts).call(cmd.Context(), http.MethodPost, contractPath(id, "reprocess"), nil, &out)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), env.Data)
			}

			if out.Started {
				fmt.Fprintf(cmd.OutOrStdout(), "Extraction started for %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Extraction already running for %s\n", id)
			}
			return nil
		},
	}
}

func newReanalyzeCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reanalyze <contract-id>",
		Short: "Request semantic analysis of a contract",
		Long: `Request semantic analysis of a contract.

Without --force a fresh cached analysis is returned and no credit is spent.
With --force the model is always called and one credit is consumed.

Examples:
  renewalctl reanalyze 3f1c2b9e-5d1a-4a57-9a86-0d9c6b1f2e11
  renewalctl reanalyze --force 3f1c2b9e-5d1a-4a57-9a86-0d9c6b1f2e11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := contractArg(args)
			if err != nil {
				return err
			}

			path := contractPath(id, "reanalyze") + "?force=" + strconv.FormatBool(force)
			var out reanalyzeResult
			env, _, err := newClient(opts).call(cmd.Context(), http.MethodPost, path, nil, &out)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), env.Data)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Contract:   %s\n", out.ContractID)
			fmt.Fprintf(w, "AI status:  %s\n", out.AIStatus)
			fmt.Fprintf(w, "Cached:     %t\n", out.HasCachedAnalysis)
			if out.CreditsRemaining != nil {
				fmt.Fprintf(w, "Credits:    %d remaining\n", *out.CreditsRemaining)
			}
			if len(out.Committed) > 0 {
				fmt.Fprintf(w, "Committed:  %s\n", strings.Join(out.Committed, ", "))
			}
			if out.Analysis != nil && out.Analysis.Summary != "" {
				fmt.Fprintf(w, "Summary:    %s\n", out.Analysis.Summary)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the analysis cache and spend a credit")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <contract-id>",
		Short: "Show pipeline progress of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := contractArg(args)
			if err != nil {
				return err
			}

			var out models.ContractStatus
			env, _, err := newClient(opts).call(cmd.Context(), http.MethodGet, contractPath(id, "status"), nil, &out)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), env.Data)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Contract:         %s\n", out.ContractID)
			fmt.Fprintf(w, "Extraction:       %s\n", out.OCRStatus)
			fmt.Fprintf(w, "Semantic:         %s\n", out.AIStatus)
			fmt.Fprintf(w, "Processing mode:  %s\n", out.ProcessingMode)
			fmt.Fprintf(w, "Has text:         %t\n", out.HasOCRText)
			fmt.Fprintf(w, "Has analysis:     %t\n", out.HasAIAnalysis)
			if out.OCRError != "" {
				fmt.Fprintf(w, "Extraction error: %s\n", out.OCRError)
			}
			if out.AIError != "" {
				fmt.Fprintf(w, "Semantic error:   %s\n", out.AIError)
			}
			return nil
		},
	}
}

func newAlertsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts <contract-id>",
		Short: "List the alert schedule of a contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := contractArg(args)
			if err != nil {
				return err
			}

			var events []models.AlertEvent
			env, _, err := newClient(opts).call(cmd.Context(), http.MethodGet, contractPath(id, "alerts"), nil, &events)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), env.Data)
			}

			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts scheduled.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tTYPE\tOFFSET\tSTATUS\tMESSAGE")
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					e.ScheduledFor.Format("2006-01-02"), e.Type, e.OffsetDays, e.Status, e.Message)
			}
			return tw.Flush()
		},
	}
}
