package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/leakscan/internal/common"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <files...>",
		Short: "Detect payment leaks in transaction files",
		Long: `Analyze one or more CSV, OFX or QFX files for duplicate payments and
recurring charges, then rank vendors by risk.

Examples:
  # Analyze a CSV export
  leakscan analyze payments.csv

  # Mix formats and globs, emit JSON
  leakscan analyze exports/*.csv bank/*.qfx --output json

  # Force the OFX parser for files without an extension
  leakscan analyze statement --format ofx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().String("format", formatAuto, "Input format (csv, ofx, auto)")
	cmd.Flags().StringP("output", "o", outputText, "Output format (text, json)")
	cmd.Flags().Bool("no-verify", false, "Skip the determinism self-check")
	cmd.Flags().Bool("no-progress", false, "Hide the ingestion progress bar")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	noVerify, _ := cmd.Flags().GetBool("no-verify")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	if output != outputText && output != outputJSON {
		return common.NewUserError("output must be text or json", common.ErrUnsupportedFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noVerify {
		cfg.Engine.EnforceDeterminism = false
	}

	ctx, interrupts, cancel := withInterrupts(cmd)
	defer cancel()

	progressOut := cmd.ErrOrStderr()
	if noProgress || output == outputJSON {
		progressOut = nil
	}

	result, _, err := analyzeFiles(ctx, args, format, cfg, progressOut)
	if err != nil {
		if interrupts.WasInterrupted() {
			return common.NewUserError("analysis interrupted", err)
		}
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), result, output); err != nil {
		return err
	}
	return resultError(result)
}
