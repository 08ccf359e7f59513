package detection

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

const (
	// DuplicateVersion is the default duplicate detector revision.
	DuplicateVersion = "1.1.0"
	// DuplicateRule is the rule identifier attached to duplicate detections.
	DuplicateRule = "same_vendor_same_amount_within_time_window"

	duplicateName       = "DuplicateDetector"
	duplicateConfidence = 0.85
	// installmentDeviationDays bounds how far each gap of an installment plan
	// may stray from the plan's mean gap.
	installmentDeviationDays = 5
	minInstallmentMembers    = 3
)

var (
	duplicateMediumSeverity = decimal.NewFromInt(1000)
	duplicateHighSeverity   = decimal.NewFromInt(10000)
)

// DuplicateConfig configures the duplicate detector.
type DuplicateConfig struct {
	MinAmount      decimal.Decimal
	Version        string
	TimeWindowDays int
}

// DefaultDuplicateConfig returns a 7 day window with no amount floor.
func DefaultDuplicateConfig() DuplicateConfig {
	return DuplicateConfig{
		TimeWindowDays: 7,
		MinAmount:      decimal.Zero,
		Version:        DuplicateVersion,
	}
}

// DuplicateDetector flags repeated charges of the same amount by the same
// vendor in the same currency within a sliding time window.
type DuplicateDetector struct {
	logger *slog.Logger
	cfg    DuplicateConfig
}

// NewDuplicateDetector creates a duplicate detector.
func NewDuplicateDetector(cfg DuplicateConfig) *DuplicateDetector {
	if cfg.Version == "" {
		cfg.Version = DuplicateVersion
	}
	return &DuplicateDetector{
		cfg:    cfg,
		logger: slog.Default().With("component", "duplicate_detector"),
	}
}

// Name implements Detector.
func (d *DuplicateDetector) Name() string { return duplicateName }

// Version implements Detector.
func (d *DuplicateDetector) Version() string { return d.cfg.Version }

// Detect implements Detector.
func (d *DuplicateDetector) Detect(txns []model.Transaction) ([]model.DetectionResult, error) {
	var results []model.DetectionResult

	eligible := make([]model.Transaction, 0, len(txns))
	for _, tx := range txns {
		if tx.Amount.LessThan(d.cfg.MinAmount) {
			continue
		}
		eligible = append(eligible, tx)
	}

	window := time.Duration(d.cfg.TimeWindowDays) * 24 * time.Hour

	vendorGroups := groupBy(eligible, func(tx model.Transaction) string {
		return tx.VendorName + "\x1f" + tx.Currency
	})

	for _, vg := range vendorGroups {
		amountGroups := groupBy(vg.txns, func(tx model.Transaction) string {
			return model.AmountKey(tx.Amount)
		})

		for _, ag := range amountGroups {
			if len(ag.txns) < 2 {
				continue
			}
			members := append([]model.Transaction(nil), ag.txns...)
			sortByDate(members)

			if isInstallmentPlan(members) {
				d.logger.Debug("Suppressed installment plan",
					"vendor", members[0].VendorName,
					"currency", members[0].Currency,
					"amount", model.AmountKey(members[0].Amount),
					"payments", len(members))
				continue
			}

			found, err := d.scanWindow(members, window)
			if err != nil {
				return nil, err
			}
			results = append(results, found...)
		}
	}

	return results, nil
}

// scanWindow walks a chronologically sorted amount group with two pointers and
// pairs each transaction with the earliest one still inside the window.
func (d *DuplicateDetector) scanWindow(members []model.Transaction, window time.Duration) ([]model.DetectionResult, error) {
	var results []model.DetectionResult

	start := 0
	for end := 1; end < len(members); end++ {
		for start < end && members[end].Date.Sub(members[start].Date) > window {
			start++
		}
		if start == end {
			continue
		}

		first, second := members[start], members[end]
		impact := first.Amount

		result, err := model.NewDetection(
			model.DetectionDuplicate,
			[]string{first.ID, second.ID},
			DuplicateRule,
			model.Evidence{
				model.EvidenceVendor:     first.VendorName,
				"amount":                 model.AmountKey(impact),
				"time_window_days":       d.cfg.TimeWindowDays,
				"installment_suppressed": false,
				"detector_class":         duplicateName,
				"detector_version":       d.cfg.Version,
			},
			impact,
			duplicateConfidence,
			thresholdSeverity(impact, duplicateMediumSeverity, duplicateHighSeverity),
			first.Currency,
		)
		if err != nil {
			return nil, fmt.Errorf("build duplicate detection for %s/%s: %w", first.ID, second.ID, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// isInstallmentPlan reports whether a sorted amount group looks like a
// structured payment plan: at least three payments spaced evenly.
func isInstallmentPlan(sorted []model.Transaction) bool {
	if len(sorted) < minInstallmentMembers {
		return false
	}
	return withinMean(dayIntervals(sorted), installmentDeviationDays)
}
