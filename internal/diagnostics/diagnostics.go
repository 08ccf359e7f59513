// Package diagnostics collects warnings and errors raised while an engine run executes.
package diagnostics

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/leakscan/internal/model"
)

// Version identifies the diagnostics format.
const Version = "1.0.0"

// Collector is an append-only sink for run diagnostics. A Collector belongs to
// exactly one run and is not safe for concurrent use.
type Collector struct {
	logger   *slog.Logger
	version  string
	warnings []string
	errors   []string
}

// NewCollector creates an empty collector. A nil logger falls back to slog.Default().
func NewCollector(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		logger:  logger,
		version: Version,
	}
}

// Warn records a warning.
func (c *Collector) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.warnings = append(c.warnings, msg)
	c.logger.Warn("engine diagnostic", "level", "warning", "message", msg)
}

// Error records an error.
func (c *Collector) Error(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.errors = append(c.errors, msg)
	c.logger.Error("engine diagnostic", "level", "error", "message", msg)
}

// HasErrors reports whether any error has been recorded.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Snapshot returns a copy of everything recorded so far.
func (c *Collector) Snapshot() model.Diagnostics {
	warnings := make([]string, len(c.warnings))
	copy(warnings, c.warnings)
	errs := make([]string, len(c.errors))
	copy(errs, c.errors)

	return model.Diagnostics{
		Version:  c.version,
		Warnings: warnings,
		Errors:   errs,
	}
}
