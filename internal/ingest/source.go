// Package ingest turns raw payment exports into validated transactions.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/leakscan/internal/model"
)

// Source loads a batch of validated transactions.
type Source interface {
	Load(ctx context.Context) ([]model.Transaction, Stats, error)
}

// Stats describes what happened while loading a source.
type Stats struct {
	Rows       int `json:"rows"` // Data rows read, excluding headers
	Loaded     int `json:"loaded"`
	Skipped    int `json:"skipped"`    // Malformed rows
	Duplicates int `json:"duplicates"` // Rows whose id was already loaded
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Rows:       s.Rows + o.Rows,
		Loaded:     s.Loaded + o.Loaded,
		Skipped:    s.Skipped + o.Skipped,
		Duplicates: s.Duplicates + o.Duplicates,
	}
}

// ProgressFunc is called after each row with the number of rows read so far.
type ProgressFunc func(rows int)

// Option configures a source.
type Option func(*options)

type options struct {
	location *time.Location
	logger   *slog.Logger
	progress ProgressFunc
}

func defaultOptions() options {
	return options{
		location: time.UTC,
		logger:   slog.Default(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLocation sets the zone applied to timestamps that carry no offset.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger sets the logger used to report skipped rows.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithProgress registers a per-row progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) {
		o.progress = fn
	}
}

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Multi loads several sources in order as one batch. A transaction id seen in
// an earlier source wins over later ones.
func Multi(sources ...Source) Source {
	return multiSource(sources)
}

type multiSource []Source

func (m multiSource) Load(ctx context.Context) ([]model.Transaction, Stats, error) {
	var (
		all   []model.Transaction
		total Stats
	)
	seen := make(map[string]struct{})

	for i, src := range m {
		txns, stats, err := src.Load(ctx)
		if err != nil {
			return nil, total, fmt.Errorf("source %d: %w", i+1, err)
		}
		for _, tx := range txns {
			if _, dup := seen[tx.ID]; dup {
				stats.Loaded--
				stats.Duplicates++
				continue
			}
			seen[tx.ID] = struct{}{}
			all = append(all, tx)
		}
		total = total.Add(stats)
	}
	return all, total, nil
}
