package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/cli"
	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/config"
	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/plaid"
)

const dateLayout = "2006-01-02"

func plaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Analyze payments pulled from a Plaid-linked account",
		Long: `Fetch outflows from the account behind plaid.access_token and analyze them.

Credentials come from the plaid section of the config file or from
PLAID_CLIENT_ID, PLAID_SECRET, PLAID_ACCESS_TOKEN and PLAID_ENV.

Examples:
  # Last 90 days
  leakscan plaid

  # A fixed range as JSON
  leakscan plaid --start-date 2024-01-01 --end-date 2024-12-31 --output json`,
		Args: cobra.NoArgs,
		RunE: runPlaid,
	}

	addRangeFlags(cmd)
	cmd.AddCommand(plaidAccountsCmd())
	return cmd
}

func plaidAccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts behind the configured access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newPlaidClient()
			if err != nil {
				return err
			}
			accounts, err := client.GetAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			for _, a := range accounts {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
}

func newPlaidClient() (*plaid.Client, error) {
	pcfg, err := config.LoadPlaidConfig(viper.GetViper())
	if err != nil {
		return nil, common.NewUserError("plaid is not configured", err)
	}
	return plaid.NewClient(pcfg)
}

// dateRange parses the start and end flags. Empty values default to the
// 90 days ending now.
func dateRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	endDate := now
	if end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date format: %w", err)
		}
		endDate = t
	}

	startDate := endDate.AddDate(0, 0, -90)
	if start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date format: %w", err)
		}
		startDate = t
	}

	if startDate.After(endDate) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date %s is after end date %s",
			startDate.Format(dateLayout), endDate.Format(dateLayout))
	}
	return startDate, endDate, nil
}

func runPlaid(cmd *cobra.Command, _ []string) error {
	startDate, endDate, err := dateRangeFlags(cmd)
	if err != nil {
		return err
	}
	client, err := newPlaidClient()
	if err != nil {
		return err
	}
	return analyzeRemote(cmd, plaid.NewSource(client, startDate, endDate))
}

// addRangeFlags registers the flags shared by the remote source commands.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start-date", "", "Start date (YYYY-MM-DD, default 90 days ago)")
	cmd.Flags().String("end-date", "", "End date (YYYY-MM-DD, default today)")
	cmd.Flags().StringP("output", "o", outputText, "Output format (text, json)")
}

func dateRangeFlags(cmd *cobra.Command) (time.Time, time.Time, error) {
	start, _ := cmd.Flags().GetString("start-date")
	end, _ := cmd.Flags().GetString("end-date")
	startDate, endDate, err := dateRange(start, end, time.Now())
	if err != nil {
		return time.Time{}, time.Time{}, common.NewUserError("invalid date range", err)
	}
	return startDate, endDate, nil
}

// analyzeRemote loads src and reports on it.
func analyzeRemote(cmd *cobra.Command, src ingest.Source) error {
	output, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, _, cancel := withInterrupts(cmd)
	defer cancel()

	txns, stats, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %w", err)
	}
	cmd.PrintErrln(cli.FormatInfo(fmt.Sprintf("Fetched %d transactions (%d skipped)", stats.Loaded, stats.Skipped)))

	result, err := runEngine(ctx, txns, cfg)
	if err != nil {
		return err
	}
	if err := writeResult(cmd.OutOrStdout(), result, output); err != nil {
		return err
	}
	return resultError(result)
}
