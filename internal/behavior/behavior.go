// Package behavior profiles how each vendor bills: how much amounts vary, how
// regular the billing cadence is and how often amounts repeat.
package behavior

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

// Version is the default analyzer revision.
const Version = "1.0.0"

// Precision is the number of decimal places kept by every computed score.
const Precision int32 = 16

// Config configures the analyzer.
type Config struct {
	Version              string
	MonthlyCenterDays    int
	MonthlyToleranceDays int
}

// DefaultConfig treats intervals of 25 to 35 days as monthly.
func DefaultConfig() Config {
	return Config{
		Version:              Version,
		MonthlyCenterDays:    30,
		MonthlyToleranceDays: 5,
	}
}

// Analyzer computes per-vendor behavior profiles.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	return &Analyzer{cfg: cfg}
}

// Version returns the configured analyzer revision.
func (a *Analyzer) Version() string { return a.cfg.Version }

// Analyze returns one profile per vendor, sorted by vendor name.
func (a *Analyzer) Analyze(txns []model.Transaction) []model.VendorBehaviorProfile {
	byVendor := make(map[string][]model.Transaction)
	for _, tx := range txns {
		byVendor[tx.VendorName] = append(byVendor[tx.VendorName], tx)
	}

	vendors := make([]string, 0, len(byVendor))
	for v := range byVendor {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)

	profiles := make([]model.VendorBehaviorProfile, 0, len(vendors))
	for _, vendor := range vendors {
		members := append([]model.Transaction(nil), byVendor[vendor]...)
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].Date.Equal(members[j].Date) {
				return members[i].Date.Before(members[j].Date)
			}
			return members[i].ID < members[j].ID
		})

		amounts := make([]decimal.Decimal, len(members))
		for i, tx := range members {
			amounts[i] = tx.Amount
		}
		intervals := make([]decimal.Decimal, 0, len(members))
		for i := 0; i+1 < len(members); i++ {
			days := model.DaysBetween(members[i].Date, members[i+1].Date)
			intervals = append(intervals, decimal.NewFromInt(int64(days)))
		}

		profiles = append(profiles, model.VendorBehaviorProfile{
			Vendor:              vendor,
			Version:             a.cfg.Version,
			TransactionCount:    len(members),
			AmountVolatility:    volatility(amounts),
			IntervalStability:   intervalStability(intervals),
			DuplicateDensity:    duplicateDensity(amounts),
			RecurringDependency: a.recurringRatio(intervals),
		})
	}
	return profiles
}

// volatility is the sample standard deviation of amounts.
func volatility(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) < 2 {
		return decimal.Zero
	}
	return Sqrt(SampleVariance(amounts), Precision)
}

// intervalStability maps interval variance onto (0, 1]; perfectly regular
// billing scores 1.
func intervalStability(intervals []decimal.Decimal) decimal.Decimal {
	if len(intervals) < 2 {
		return decimal.NewFromInt(1)
	}
	one := decimal.NewFromInt(1)
	return one.DivRound(one.Add(SampleVariance(intervals)), Precision)
}

func duplicateDensity(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	distinct := make(map[string]struct{}, len(amounts))
	for _, a := range amounts {
		distinct[model.AmountKey(a)] = struct{}{}
	}
	ratio := decimal.NewFromInt(int64(len(distinct))).DivRound(decimal.NewFromInt(int64(len(amounts))), Precision)
	return decimal.NewFromInt(1).Sub(ratio)
}

func (a *Analyzer) recurringRatio(intervals []decimal.Decimal) decimal.Decimal {
	if len(intervals) == 0 {
		return decimal.Zero
	}
	center := decimal.NewFromInt(int64(a.cfg.MonthlyCenterDays))
	tolerance := decimal.NewFromInt(int64(a.cfg.MonthlyToleranceDays))
	monthly := 0
	for _, iv := range intervals {
		if iv.Sub(center).Abs().LessThanOrEqual(tolerance) {
			monthly++
		}
	}
	return decimal.NewFromInt(int64(monthly)).DivRound(decimal.NewFromInt(int64(len(intervals))), Precision)
}

// SampleVariance returns Σ(x−mean)²/(n−1), computed as
// (nΣx² − (Σx)²) / (n(n−1)) so only the final division rounds.
// It returns zero for fewer than two values.
func SampleVariance(xs []decimal.Decimal) decimal.Decimal {
	n := int64(len(xs))
	if n < 2 {
		return decimal.Zero
	}
	sum, sumSquares := decimal.Zero, decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
		sumSquares = sumSquares.Add(x.Mul(x))
	}
	nd := decimal.NewFromInt(n)
	numerator := nd.Mul(sumSquares).Sub(sum.Mul(sum))
	return numerator.DivRound(decimal.NewFromInt(n*(n-1)), Precision)
}
