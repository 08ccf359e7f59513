// Package model defines the core domain models used throughout the application.
package model

import "github.com/shopspring/decimal"

// RunState tracks where an engine run ended up.
type RunState string

// Run state constants.
const (
	StateIdle      RunState = "idle"
	StateExecuting RunState = "executing"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// CurrencyAmount pairs a currency with an amount.
type CurrencyAmount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// VendorTotal holds one vendor's flagged amounts, one entry per currency.
type VendorTotal struct {
	Vendor     string           `json:"vendor"`
	Currencies []CurrencyAmount `json:"currencies"`
}

// Total sums the vendor's flagged amounts across every currency.
func (v VendorTotal) Total() decimal.Decimal {
	total := decimal.Zero
	for _, c := range v.Currencies {
		total = total.Add(c.Amount)
	}
	return total
}

// CurrencySummary compares flagged spend with total spend for one currency.
type CurrencySummary struct {
	FlaggedAmount  decimal.Decimal `json:"flagged_amount"`
	TotalSpend     decimal.Decimal `json:"total_spend"`
	PercentFlagged decimal.Decimal `json:"percent_flagged"`
	Currency       string          `json:"currency"`
}

// Versions records which algorithm version produced each part of a result.
type Versions struct {
	Detectors   map[string]string `json:"detectors,omitempty"` // Detector name to version
	Scoring     string            `json:"scoring,omitempty"`
	Behavior    string            `json:"behavior,omitempty"`
	Ranking     string            `json:"ranking,omitempty"`
	Diagnostics string            `json:"diagnostics,omitempty"`
}

// Diagnostics is the snapshot of warnings and errors collected during a run.
type Diagnostics struct {
	Version  string   `json:"diagnostics_version"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// HasErrors reports whether any error was recorded.
func (d Diagnostics) HasErrors() bool {
	return len(d.Errors) > 0
}

// Result is the complete output of one engine run.
type Result struct {
	EngineVersion    string                  `json:"engine_version"`
	State            RunState                `json:"state"`
	DatasetHash      string                  `json:"dataset_hash,omitempty"`
	Versions         Versions                `json:"versions"`
	Detections       []DetectionResult       `json:"detections"`
	VendorTotals     []VendorTotal           `json:"vendor_totals"`
	CurrencyTotals   []CurrencyAmount        `json:"currency_totals"`
	Summary          []CurrencySummary       `json:"summary"`
	BehaviorProfiles []VendorBehaviorProfile `json:"vendor_behavior_profiles"`
	VendorRanking    []VendorRanking         `json:"vendor_ranking"`
	TotalSpend       []CurrencyAmount        `json:"total_spend_by_currency"`
	Diagnostics      Diagnostics             `json:"diagnostics"`
}

// Profile returns the behavior profile for vendor, if one was computed.
func (r *Result) Profile(vendor string) (VendorBehaviorProfile, bool) {
	for _, p := range r.BehaviorProfiles {
		if p.Vendor == vendor {
			return p, true
		}
	}
	return VendorBehaviorProfile{}, false
}

// DetectionsForVendor returns the detections attributed to vendor, in result order.
func (r *Result) DetectionsForVendor(vendor string) []DetectionResult {
	var out []DetectionResult
	for _, d := range r.Detections {
		if d.Vendor() == vendor {
			out = append(out, d)
		}
	}
	return out
}
