package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/leakscan/internal/cli"
	"github.com/Veraticus/leakscan/internal/common"
	"github.com/Veraticus/leakscan/internal/config"
	"github.com/Veraticus/leakscan/internal/engine"
	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/ofx"
	"github.com/Veraticus/leakscan/internal/report"
)

// Input and output formats.
const (
	formatAuto = "auto"
	formatCSV  = "csv"
	formatOFX  = "ofx"

	outputText = "text"
	outputJSON = "json"
)

// expandFiles resolves glob patterns into file paths. A pattern that matches
// nothing is kept when it names an existing file.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			files = append(files, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			files = append(files, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}
	if len(files) == 0 {
		return nil, common.NewUserError("no input files found", common.ErrNoTransactions)
	}
	return files, nil
}

// fileFormat picks the parser for path. Auto detection goes by extension.
func fileFormat(path, format string) (string, error) {
	switch format {
	case formatCSV, formatOFX:
		return format, nil
	case formatAuto, "":
	default:
		return "", fmt.Errorf("%w: %q (use csv, ofx or auto)", common.ErrUnsupportedFormat, format)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return formatCSV, nil
	case ".ofx", ".qfx":
		return formatOFX, nil
	}
	return "", fmt.Errorf("%w: cannot tell the format of %s, pass --format", common.ErrUnsupportedFormat, path)
}

// buildSource turns files into one ingest source.
func buildSource(files []string, format string, opts *ingestOptions) (ingest.Source, error) {
	sources := make([]ingest.Source, 0, len(files))
	for _, path := range files {
		kind, err := fileFormat(path, format)
		if err != nil {
			return nil, err
		}
		switch kind {
		case formatOFX:
			sources = append(sources, ofx.NewSource(path, opts.logger))
		default:
			sources = append(sources, ingest.NewCSVFile(path, opts.csvOptions()...))
		}
	}
	return ingest.Multi(sources...), nil
}

type ingestOptions struct {
	logger   *slog.Logger
	cfg      config.Config
	progress ingest.ProgressFunc
}

func (o *ingestOptions) csvOptions() []ingest.Option {
	opts := []ingest.Option{
		ingest.WithLocation(o.cfg.Ingest.Location),
		ingest.WithLogger(o.logger),
	}
	if o.progress != nil {
		opts = append(opts, ingest.WithProgress(o.progress))
	}
	return opts
}

// withInterrupts derives a context that a SIGINT or SIGTERM cancels. The
// returned cancel releases the signal handler.
func withInterrupts(cmd *cobra.Command) (context.Context, *cli.InterruptHandler, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())
	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	return interrupts.HandleInterrupts(ctx), interrupts, cancel
}

// loadConfig reads the global configuration.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, common.NewUserError("invalid configuration", err)
	}
	return cfg, nil
}

// analyzeFiles loads files and runs the engine over them.
func analyzeFiles(ctx context.Context, patterns []string, format string, cfg config.Config, progressOut io.Writer) (*model.Result, ingest.Stats, error) {
	files, err := expandFiles(patterns)
	if err != nil {
		return nil, ingest.Stats{}, err
	}

	opts := &ingestOptions{logger: slog.Default(), cfg: cfg}
	var progress *cli.Progress
	if progressOut != nil {
		progress = cli.NewProgress(progressOut, "Loading transactions")
		opts.progress = progress.Func()
	}

	src, err := buildSource(files, format, opts)
	if err != nil {
		return nil, ingest.Stats{}, err
	}

	txns, stats, err := src.Load(ctx)
	if progress != nil {
		progress.Finish()
	}
	if err != nil {
		return nil, stats, fmt.Errorf("failed to load transactions: %w", err)
	}
	slog.Info("Loaded transactions",
		"files", len(files),
		"loaded", stats.Loaded,
		"skipped", stats.Skipped,
		"duplicates", stats.Duplicates)

	result, err := runEngine(ctx, txns, cfg)
	return result, stats, err
}

// runEngine analyzes txns unless ctx is already done.
func runEngine(ctx context.Context, txns []model.Transaction, cfg config.Config) (*model.Result, error) {
	if len(txns) == 0 {
		return nil, common.NewUserError("no valid transactions to analyze", common.ErrNoTransactions)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return engine.New(cfg.Engine, engine.WithLogger(slog.Default())).Run(txns), nil
}

// writeResult renders result in the requested output format.
func writeResult(w io.Writer, result *model.Result, output string) error {
	switch output {
	case outputJSON:
		return report.WriteJSON(w, result)
	case outputText, "":
		return report.NewTextFormatter(w).Format(result)
	}
	return fmt.Errorf("%w: output %q (use text or json)", common.ErrUnsupportedFormat, output)
}

// resultError turns a failed run into an error so the command exits non-zero.
func resultError(result *model.Result) error {
	if result.State != model.StateFailed {
		return nil
	}
	return errors.New("analysis failed: " + strings.Join(result.Diagnostics.Errors, "; "))
}
