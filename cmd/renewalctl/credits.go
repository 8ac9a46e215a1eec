package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

func creditsPath(args []string, suffix string) (string, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return "", fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	return "/api/users/" + url.PathEscape(id.String()) + "/credits" + suffix, nil
}

func printBalance(cmd *cobra.Command, b models.CreditBalance) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Remaining:        %d\n", b.Remaining)
	fmt.Fprintf(w, "Monthly limit:    %d\n", b.MonthlyLimit)
	fmt.Fprintf(w, "Purchased:        %d\n", b.Purchased)
	fmt.Fprintf(w, "Used this month:  %d\n", b.UsedThisMonth)
	fmt.Fprintf(w, "Resets on:        %s\n", b.ResetDate.Format("2006-01-02"))
}

func newCreditsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "credits <user-id>",
		Short: "Show a user's analysis credit balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := creditsPath(args, "")
			if err != nil {
				return err
			}

			var out models.CreditBalance
			env, _, err := newClient(opts).call(cmd.Context(), http.MethodGet, path, nil, &out)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), env.Data)
			}
			printBalance(cmd, out)
			return nil
		},
	}
}

func newPurchaseCmd(opts *options) *cobra.Command {
	var amount int

	cmd := &cobra.Command{
		Use:   "purchase <user-id>",
		Short: "Add purchased analysis credits",
		Long: `Add purchased analysis credits to a user's ledger.

Examples:
  renewalctl purchase 9b2e3c4d-1f6a-4b8e-8c7d-2a1b0c9d8e7f --amount 20`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if amount <= 0 {
				return fmt.Errorf("--amount must be positive")
			}
			path, err := creditsPath(args, "/purchase")
			if err != nil {
				return err
			}

			var out models.CreditBalance
			body := map[string]int{"amount": amount}
			env, _, err := newClient(opts).call(cmd.Context(), http.MethodPost, path, body, &out)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return printJSON(cmd.OutOrStdout(), env.Data)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d credits.\n", amount)
			printBalance(cmd, out)
			return nil
		},
	}
	cmd.Flags().IntVar(&amount, "amount", 0, "number of credits to add (required)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
