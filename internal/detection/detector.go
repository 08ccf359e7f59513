// Package detection finds vendor-payment patterns in a batch of transactions.
//
// Each detector is one variant of the Detector capability. Detectors are
// deterministic, never mutate their input and hold only configuration, so a
// single instance can serve any number of runs.
package detection

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

// Detector turns a batch of transactions into detection results.
type Detector interface {
	// Name identifies the detector in diagnostics and evidence.
	Name() string
	// Version identifies the algorithm revision that produced a result.
	Version() string
	// Detect scans the batch. It must not mutate txns.
	Detect(txns []model.Transaction) ([]model.DetectionResult, error)
}

// Config bundles the configuration of every built-in detector.
type Config struct {
	Duplicate DuplicateConfig
	Recurring RecurringConfig
}

// DefaultConfig returns the built-in detector defaults.
func DefaultConfig() Config {
	return Config{
		Duplicate: DefaultDuplicateConfig(),
		Recurring: DefaultRecurringConfig(),
	}
}

// Defaults returns the built-in detectors in their fixed execution order.
func Defaults(cfg Config) []Detector {
	return []Detector{
		NewDuplicateDetector(cfg.Duplicate),
		NewRecurringDetector(cfg.Recurring),
	}
}

// group is a set of transactions sharing a composite key.
type group struct {
	key  string
	txns []model.Transaction
}

// groupBy partitions txns by key and returns the groups in key order.
func groupBy(txns []model.Transaction, key func(model.Transaction) string) []group {
	index := make(map[string][]model.Transaction)
	for _, tx := range txns {
		k := key(tx)
		index[k] = append(index[k], tx)
	}

	groups := make([]group, 0, len(index))
	for k, members := range index {
		groups = append(groups, group{key: k, txns: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].key < groups[j].key
	})
	return groups
}

// sortByDate orders a group chronologically, breaking ties by id.
func sortByDate(txns []model.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].ID < txns[j].ID
	})
}

// dayIntervals returns the whole-day gaps between consecutive transactions.
func dayIntervals(sorted []model.Transaction) []int {
	if len(sorted) < 2 {
		return nil
	}
	intervals := make([]int, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		intervals[i] = model.DaysBetween(sorted[i].Date, sorted[i+1].Date)
	}
	return intervals
}

// withinMean reports whether every interval lies within tolerance days of the
// arithmetic mean. The comparison is done in integers scaled by len(intervals)
// so no rounding is involved.
func withinMean(intervals []int, tolerance int) bool {
	if len(intervals) == 0 {
		return false
	}
	n := len(intervals)
	sum := 0
	for _, iv := range intervals {
		sum += iv
	}
	for _, iv := range intervals {
		diff := iv*n - sum
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance*n {
			return false
		}
	}
	return true
}

func transactionIDs(txns []model.Transaction) []string {
	ids := make([]string, len(txns))
	for i, tx := range txns {
		ids[i] = tx.ID
	}
	return ids
}

// thresholdSeverity maps an impact onto low/medium/high.
func thresholdSeverity(impact, medium, high decimal.Decimal) model.Severity {
	switch {
	case impact.GreaterThanOrEqual(high):
		return model.SeverityHigh
	case impact.GreaterThanOrEqual(medium):
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
