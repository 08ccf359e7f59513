package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/config"
	"github.com/Veraticus/leakscan/internal/simplefin"
)

func simplefinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simplefin",
		Short: "Analyze payments pulled from a SimpleFIN Bridge connection",
		Long: `Fetch outflows from every account behind a SimpleFIN connection and analyze them.

The first run claims the setup token from simplefin.token or SIMPLEFIN_TOKEN
and saves the access URL to simplefin.state_file. Later runs reuse it.

Examples:
  SIMPLEFIN_TOKEN=aHR0cHM6Ly9... leakscan simplefin
  leakscan simplefin --start-date 2024-01-01 --output json`,
		Args: cobra.NoArgs,
		RunE: runSimpleFIN,
	}

	addRangeFlags(cmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "accounts",
		Short: "List the connected accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := simplefin.NewClient(cmd.Context(), config.LoadSimpleFINConfig(viper.GetViper()))
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
	})
	return cmd
}

func runSimpleFIN(cmd *cobra.Command, _ []string) error {
	startDate, endDate, err := dateRangeFlags(cmd)
	if err != nil {
		return err
	}
	client, err := simplefin.NewClient(cmd.Context(), config.LoadSimpleFINConfig(viper.GetViper()))
	if err != nil {
		return err
	}
	return analyzeRemote(cmd, simplefin.NewSource(client, startDate, endDate))
}
