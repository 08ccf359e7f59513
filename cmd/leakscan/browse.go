package main

import (
	"github.com/spf13/cobra"

	"github.com/Veraticus/leakscan/internal/tui"
	"github.com/Veraticus/leakscan/internal/tui/themes"
)

func browseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <files...>",
		Short: "Explore ranked vendors and detections interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBrowse,
	}

	cmd.Flags().String("format", formatAuto, "Input format (csv, ofx, auto)")
	cmd.Flags().String("theme", "default", "Color theme (default, catppuccin)")

	return cmd
}

func runBrowse(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	theme, _ := cmd.Flags().GetString("theme")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, _, cancel := withInterrupts(cmd)
	defer cancel()

	result, _, err := analyzeFiles(ctx, args, format, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return tui.Run(ctx, result, tui.WithTheme(themes.ByName(theme)))
}
