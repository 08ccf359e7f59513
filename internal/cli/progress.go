package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/leakscan/internal/ingest"
	"github.com/schollz/progressbar/v3"
)

// Progress renders ingestion progress as a terminal spinner bar.
type Progress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewProgress creates a progress bar for a source of unknown length.
func NewProgress(w io.Writer, description string) *Progress {
	p := &Progress{writer: w}
	p.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
	return p
}

// Func returns a callback suitable for ingest.WithProgress.
func (p *Progress) Func() ingest.ProgressFunc {
	return func(rows int) {
		if err := p.bar.Set(rows); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

// Finish completes the bar.
func (p *Progress) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}
