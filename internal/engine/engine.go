// Package engine runs the full leak detection pipeline over a transaction batch.
package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/behavior"
	"github.com/Veraticus/leakscan/internal/detection"
	"github.com/Veraticus/leakscan/internal/diagnostics"
	"github.com/Veraticus/leakscan/internal/fingerprint"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/ranking"
	"github.com/Veraticus/leakscan/internal/scoring"
)

// Version identifies the pipeline as a whole.
const Version = "2.0.0"

// Config holds configuration for every stage of the pipeline.
type Config struct {
	Detection          detection.Config
	Scoring            scoring.Config
	Behavior           behavior.Config
	Ranking            ranking.Config
	EnforceDeterminism bool
}

// DefaultConfig returns the default configuration with the determinism
// self-check enabled.
func DefaultConfig() Config {
	return Config{
		Detection:          detection.DefaultConfig(),
		Scoring:            scoring.DefaultConfig(),
		Behavior:           behavior.DefaultConfig(),
		Ranking:            ranking.DefaultConfig(),
		EnforceDeterminism: true,
	}
}

// Engine orchestrates detection, scoring, behavior analysis and ranking.
// It holds only configuration, so one Engine may serve many runs, including
// concurrent ones.
type Engine struct {
	logger             *slog.Logger
	scorer             *scoring.Scorer
	analyzer           *behavior.Analyzer
	ranker             *ranking.Ranker
	detectors          []detection.Detector
	enforceDeterminism bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDetectors replaces the built-in detectors. They run in the given order.
func WithDetectors(detectors ...detection.Detector) Option {
	return func(e *Engine) {
		e.detectors = append([]detection.Detector(nil), detectors...)
	}
}

// WithLogger sets the logger used for run diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		logger:             slog.Default(),
		detectors:          detection.Defaults(cfg.Detection),
		enforceDeterminism: cfg.EnforceDeterminism,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "engine")
	e.scorer = scoring.New(cfg.Scoring, e.logger)
	e.analyzer = behavior.NewAnalyzer(cfg.Behavior)
	e.ranker = ranking.NewRanker(cfg.Ranking)
	return e
}

// Detectors returns the detectors in execution order.
func (e *Engine) Detectors() []detection.Detector {
	return append([]detection.Detector(nil), e.detectors...)
}

// Run analyzes txns and never panics. Problems are reported through the
// result's diagnostics; a failure that stops the pipeline yields a result in
// the failed state carrying only the engine version and diagnostics.
func (e *Engine) Run(txns []model.Transaction) (result *model.Result) {
	diag := diagnostics.NewCollector(e.logger)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("Recovered engine panic", "stack", string(debug.Stack()))
			diag.Error("engine failure: %v", r)
			result = &model.Result{
				EngineVersion: Version,
				State:         model.StateFailed,
				Diagnostics:   diag.Snapshot(),
			}
		}
	}()

	e.logger.Debug("Starting run",
		"transactions", len(txns),
		"detectors", len(e.detectors),
		"enforce_determinism", e.enforceDeterminism)

	if len(txns) == 0 {
		diag.Warn("no transactions supplied")
	}

	var replay []model.Transaction
	if e.enforceDeterminism {
		replay = model.CloneAll(txns)
	}

	result = e.execute(txns, diag)

	if e.enforceDeterminism {
		// The replay's own diagnostics are discarded; any divergence it causes
		// shows up in the comparison.
		second := e.execute(replay, diagnostics.NewCollector(e.logger))
		e.verify(result, second, diag)
	}

	result.State = model.StateCompleted
	result.Diagnostics = diag.Snapshot()

	e.logger.Debug("Run completed",
		"dataset_hash", result.DatasetHash,
		"detections", len(result.Detections),
		"errors", len(result.Diagnostics.Errors))
	return result
}

// execute runs the pipeline once.
func (e *Engine) execute(txns []model.Transaction, diag *diagnostics.Collector) *model.Result {
	result := &model.Result{
		EngineVersion: Version,
		State:         model.StateExecuting,
		DatasetHash:   fingerprint.Dataset(txns),
		Versions: model.Versions{
			Detectors:   make(map[string]string, len(e.detectors)),
			Scoring:     e.scorer.Version(),
			Behavior:    e.analyzer.Version(),
			Ranking:     e.ranker.Version(),
			Diagnostics: diagnostics.Version,
		},
	}

	var found []model.DetectionResult
	for _, d := range e.detectors {
		result.Versions.Detectors[d.Name()] = d.Version()

		detections, err := runDetector(d, txns)
		if err != nil {
			diag.Error("detector %s failed: %v", d.Name(), err)
			continue
		}
		found = append(found, detections...)
	}

	totalSpend := TotalSpend(txns)
	scored := e.scorer.Score(found, totalSpend)
	model.SortDetections(scored.Detections)

	profiles := e.analyzer.Analyze(txns)

	result.Detections = scored.Detections
	result.VendorTotals = scored.VendorTotals
	result.CurrencyTotals = scored.CurrencyTotals
	result.Summary = scored.Summary
	result.BehaviorProfiles = profiles
	result.VendorRanking = e.ranker.Rank(scored.VendorTotals, profiles, totalSpend)
	result.TotalSpend = totalSpend
	return result
}

// runDetector isolates a single detector so that neither its errors nor its
// panics reach the other detectors.
func runDetector(d detection.Detector, txns []model.Transaction) (detections []model.DetectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			detections = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Detect(txns)
}

// verify compares two runs over the same data and records any divergence.
func (e *Engine) verify(first, second *model.Result, diag *diagnostics.Collector) {
	a, err := Canonical(first)
	if err != nil {
		diag.Error("determinism check could not serialize result: %v", err)
		return
	}
	b, err := Canonical(second)
	if err != nil {
		diag.Error("determinism check could not serialize replay: %v", err)
		return
	}
	if string(a) != string(b) {
		diag.Error("determinism violation: repeated run over dataset %s produced a different result", first.DatasetHash)
	}
}

// Canonical serializes a result for comparison. Diagnostics and run state are
// excluded.
func Canonical(r *model.Result) ([]byte, error) {
	c := *r
	c.Diagnostics = model.Diagnostics{}
	c.State = ""
	return json.Marshal(c)
}

// TotalSpend sums transaction amounts per currency, sorted by currency.
func TotalSpend(txns []model.Transaction) []model.CurrencyAmount {
	totals := make(map[string]decimal.Decimal)
	for _, tx := range txns {
		totals[tx.Currency] = totals[tx.Currency].Add(tx.Amount)
	}

	out := make([]model.CurrencyAmount, 0, len(totals))
	for currency, amount := range totals {
		out = append(out, model.CurrencyAmount{Currency: currency, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Currency < out[j].Currency
	})
	return out
}
