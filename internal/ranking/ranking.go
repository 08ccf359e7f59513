// Package ranking orders vendors by a weighted composite of flagged spend
// and billing behavior.
package ranking

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

// Version is the default ranker revision.
const Version = "1.0.0"

const precision int32 = 16

// Weights are the coefficients of the composite risk score.
type Weights struct {
	FlaggedRatio     decimal.Decimal
	Volatility       decimal.Decimal
	DuplicateDensity decimal.Decimal
	Recurring        decimal.Decimal
}

// DefaultWeights returns 4, 0.5, 2 and 2.
func DefaultWeights() Weights {
	return Weights{
		FlaggedRatio:     decimal.NewFromInt(4),
		Volatility:       decimal.RequireFromString("0.5"),
		DuplicateDensity: decimal.NewFromInt(2),
		Recurring:        decimal.NewFromInt(2),
	}
}

// Config configures the ranker.
type Config struct {
	Weights Weights
	Version string
}

// DefaultConfig returns the default weights.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), Version: Version}
}

// Ranker scores and orders vendors.
type Ranker struct {
	cfg Config
}

// NewRanker creates a Ranker.
func NewRanker(cfg Config) *Ranker {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	return &Ranker{cfg: cfg}
}

// Version returns the configured ranker revision.
func (r *Ranker) Version() string { return r.cfg.Version }

// Rank scores every vendor with flagged spend. The result is sorted by
// normalized score, highest first, with ties broken by vendor name. Nothing is
// ranked when total spend is zero.
func (r *Ranker) Rank(
	vendorTotals []model.VendorTotal,
	profiles []model.VendorBehaviorProfile,
	totalSpend []model.CurrencyAmount,
) []model.VendorRanking {
	// Spend in every currency is added together as plain magnitudes.
	companySpend := decimal.Zero
	for _, c := range totalSpend {
		companySpend = companySpend.Add(c.Amount)
	}
	if companySpend.IsZero() {
		return []model.VendorRanking{}
	}

	byVendor := make(map[string]model.VendorBehaviorProfile, len(profiles))
	for _, p := range profiles {
		byVendor[p.Vendor] = p
	}

	totals := append([]model.VendorTotal(nil), vendorTotals...)
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Vendor < totals[j].Vendor
	})

	w := r.cfg.Weights
	entries := make([]model.VendorRanking, 0, len(totals))
	for _, vt := range totals {
		flagged := vt.Total()
		ratio := flagged.DivRound(companySpend, precision)

		// A vendor without a profile contributes zero behavior terms.
		p := byVendor[vt.Vendor]
		raw := w.FlaggedRatio.Mul(ratio).
			Add(w.Volatility.Mul(p.AmountVolatility)).
			Add(w.DuplicateDensity.Mul(p.DuplicateDensity)).
			Add(w.Recurring.Mul(p.RecurringDependency))

		entries = append(entries, model.VendorRanking{
			Vendor:            vt.Vendor,
			RawScore:          raw,
			TotalFlaggedSpend: flagged,
			FlaggedRatio:      ratio,
			Volatility:        p.AmountVolatility,
			DuplicateDensity:  p.DuplicateDensity,
			RecurringRatio:    p.RecurringDependency,
		})
	}

	normalize(entries)

	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].NormalizedScore.Cmp(entries[j].NormalizedScore); c != 0 {
			return c > 0
		}
		return entries[i].Vendor < entries[j].Vendor
	})

	assignPercentiles(entries)
	return entries
}

// normalize min-max scales raw scores onto [0, 1]. When every score is the
// same, every vendor gets 1.
func normalize(entries []model.VendorRanking) {
	if len(entries) == 0 {
		return
	}
	lo, hi := entries[0].RawScore, entries[0].RawScore
	for _, e := range entries[1:] {
		lo = decimal.Min(lo, e.RawScore)
		hi = decimal.Max(hi, e.RawScore)
	}
	span := hi.Sub(lo)
	for i := range entries {
		if span.IsZero() {
			entries[i].NormalizedScore = decimal.NewFromInt(1)
			continue
		}
		entries[i].NormalizedScore = entries[i].RawScore.Sub(lo).DivRound(span, precision)
	}
}

func assignPercentiles(entries []model.VendorRanking) {
	n := len(entries)
	one := decimal.NewFromInt(1)
	if n == 1 {
		entries[0].RiskPercentile = one
		return
	}
	last := decimal.NewFromInt(int64(n - 1))
	for i := range entries {
		entries[i].RiskPercentile = one.Sub(decimal.NewFromInt(int64(i)).DivRound(last, precision))
	}
}
