package detection

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

const (
	// RecurringVersion is the default recurring detector revision.
	RecurringVersion = "1.0.1"
	// RecurringRule is the rule identifier attached to recurring detections.
	RecurringRule = "consistent_interval_recurring_pattern"

	recurringName       = "RecurringDetector"
	recurringConfidence = 0.9
	minRecurringMembers = 3
)

var (
	annualizationFactor     = decimal.NewFromInt(12)
	recurringMediumSeverity = decimal.NewFromInt(5000)
	recurringHighSeverity   = decimal.NewFromInt(20000)
)

// RecurringConfig configures the recurring detector.
type RecurringConfig struct {
	Version               string
	IntervalToleranceDays int
}

// DefaultRecurringConfig returns a 3 day interval tolerance.
func DefaultRecurringConfig() RecurringConfig {
	return RecurringConfig{
		IntervalToleranceDays: 3,
		Version:               RecurringVersion,
	}
}

// RecurringDetector flags subscription-like spend: the same amount charged by
// the same vendor at a steady interval.
type RecurringDetector struct {
	cfg RecurringConfig
}

// NewRecurringDetector creates a recurring detector.
func NewRecurringDetector(cfg RecurringConfig) *RecurringDetector {
	if cfg.Version == "" {
		cfg.Version = RecurringVersion
	}
	return &RecurringDetector{cfg: cfg}
}

// Name implements Detector.
func (r *RecurringDetector) Name() string { return recurringName }

// Version implements Detector.
func (r *RecurringDetector) Version() string { return r.cfg.Version }

// Detect implements Detector.
func (r *RecurringDetector) Detect(txns []model.Transaction) ([]model.DetectionResult, error) {
	var results []model.DetectionResult

	groups := groupBy(txns, func(tx model.Transaction) string {
		return tx.VendorName + "\x1f" + tx.Currency + "\x1f" + model.AmountKey(tx.Amount)
	})

	for _, g := range groups {
		if len(g.txns) < minRecurringMembers {
			continue
		}

		members := append([]model.Transaction(nil), g.txns...)
		sortByDate(members)

		intervals := dayIntervals(members)
		if !withinMean(intervals, r.cfg.IntervalToleranceDays) {
			continue
		}

		first := members[0]
		annualized := first.Amount.Mul(annualizationFactor)

		result, err := model.NewDetection(
			model.DetectionRecurring,
			transactionIDs(members),
			RecurringRule,
			model.Evidence{
				model.EvidenceVendor: first.VendorName,
				"amount":             model.AmountKey(first.Amount),
				"intervals_detected": intervals,
				"detector_class":     recurringName,
				"detector_version":   r.cfg.Version,
			},
			annualized,
			recurringConfidence,
			thresholdSeverity(annualized, recurringMediumSeverity, recurringHighSeverity),
			first.Currency,
		)
		if err != nil {
			return nil, fmt.Errorf("build recurring detection for %s: %w", first.VendorName, err)
		}
		results = append(results, result)
	}

	return results, nil
}
