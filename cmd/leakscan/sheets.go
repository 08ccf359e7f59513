package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/cli"
	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/config"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/sheets"
)

func exportSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-sheets <files...>",
		Short: "Analyze files and export the result to Google Sheets",
		Long: `Analyze transaction files and write the Summary, Detections and Vendor
Ranking tabs to a Google Sheets spreadsheet.

Authenticate once with 'leakscan export-sheets auth', or configure a service
account with sheets.service_account_path.

Examples:
  # Create a new spreadsheet
  leakscan export-sheets payments.csv

  # Overwrite the tabs of an existing spreadsheet
  leakscan export-sheets payments.csv --spreadsheet-id 1AbC...`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExportSheets,
	}

	cmd.Flags().String("format", formatAuto, "Input format (csv, ofx, auto)")
	cmd.Flags().String("spreadsheet-id", "", "Existing spreadsheet to overwrite")
	_ = viper.BindPFlag("sheets.spreadsheet_id", cmd.Flags().Lookup("spreadsheet-id"))

	cmd.AddCommand(sheetsAuthCmd())
	return cmd
}

func runExportSheets(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	scfg, err := config.LoadSheetsConfig(viper.GetViper())
	if err != nil {
		return common.NewUserError("google sheets is not configured, run 'leakscan export-sheets auth' first", err)
	}

	ctx, _, cancel := withInterrupts(cmd)
	defer cancel()

	result, _, err := analyzeFiles(ctx, args, format, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := resultError(result); err != nil {
		return err
	}

	writer, err := sheets.NewWriter(ctx, *scfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create sheets writer: %w", err)
	}
	return exportResult(cmd, writer, result)
}

func exportResult(cmd *cobra.Command, writer sheets.ResultWriter, result *model.Result) error {
	id, err := writer.Write(cmd.Context(), result)
	if err != nil {
		return fmt.Errorf("failed to export to Google Sheets: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Exported to https://docs.google.com/spreadsheets/d/" + id))
	return nil
}

func sheetsAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with Google Sheets",
		Long: `Authenticate with Google Sheets using OAuth2.

This opens a consent URL, waits for the redirect on a local port and saves
the token. Requires sheets.client_id and sheets.client_secret, or the
matching flags.`,
		Args: cobra.NoArgs,
		RunE: runSheetsAuth,
	}

	cmd.Flags().String("client-id", "", "OAuth2 client ID")
	cmd.Flags().String("client-secret", "", "OAuth2 client secret")
	cmd.Flags().String("callback-addr", "localhost:8085", "Local address for the OAuth2 redirect")

	return cmd
}

func runSheetsAuth(cmd *cobra.Command, _ []string) error {
	clientID, _ := cmd.Flags().GetString("client-id")
	clientSecret, _ := cmd.Flags().GetString("client-secret")
	callback, _ := cmd.Flags().GetString("callback-addr")

	if clientID == "" {
		clientID = viper.GetString("sheets.client_id")
	}
	if clientSecret == "" {
		clientSecret = viper.GetString("sheets.client_secret")
	}
	if clientID == "" || clientSecret == "" {
		return common.NewUserError("OAuth2 credentials not found, set sheets.client_id and sheets.client_secret or pass --client-id and --client-secret", common.ErrMissingConfig)
	}

	tokenFile := config.ExpandPath(viper.GetString("sheets.token_file"))
	if tokenFile == "" {
		tokenFile = config.DefaultTokenFile()
	}
	slog.Info("Starting Google Sheets authentication", "token_file", tokenFile)

	token, err := sheets.AuthenticateOAuth2Interactive(cmd.Context(), sheets.OAuth2Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenFile:    tokenFile,
		CallbackAddr: callback,
	}, func(url string) {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Open this URL in your browser to authorize leakscan:"))
		fmt.Fprintln(cmd.OutOrStdout(), url)
	})
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Google Sheets authentication complete"))
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox("Config", fmt.Sprintf("sheets:\n  token_file: %q\n  refresh_token: %q", tokenFile, token.RefreshToken)))
	return nil
}
