// Package scoring assigns final severities to detections and aggregates
// flagged spend per vendor and per currency.
package scoring

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/leakscan/internal/model"
)

// Version is the default scoring revision.
const Version = "1.3.0"

// ratioPrecision is the number of decimal places kept when dividing amounts.
const ratioPrecision int32 = 16

var hundred = decimal.NewFromInt(100)

// Config holds the scoring thresholds.
type Config struct {
	MediumThreshold      decimal.Decimal
	HighThreshold        decimal.Decimal
	MaterialityThreshold decimal.Decimal // Vendor share of total spend that forces HIGH
	MinMateriality       decimal.Decimal // Impacts below this floor are dropped
	Version              string
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MediumThreshold:      decimal.NewFromInt(1000),
		HighThreshold:        decimal.NewFromInt(10000),
		MaterialityThreshold: decimal.RequireFromString("0.10"),
		MinMateriality:       decimal.RequireFromString("0.01"),
		Version:              Version,
	}
}

// Output is everything scoring produces for one run.
type Output struct {
	Detections     []model.DetectionResult
	VendorTotals   []model.VendorTotal
	CurrencyTotals []model.CurrencyAmount
	Summary        []model.CurrencySummary
	Version        string
}

// Scorer is the single source of truth for detection severity.
type Scorer struct {
	logger *slog.Logger
	cfg    Config
}

// New creates a Scorer. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Scorer {
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{cfg: cfg, logger: logger.With("component", "risk_scoring")}
}

// Version returns the configured scoring revision.
func (s *Scorer) Version() string { return s.cfg.Version }

// Score applies severity thresholds and materiality escalation. totalSpend is
// the spend per currency across the whole batch. The input slice is not
// modified; updated detections are new values.
func (s *Scorer) Score(detections []model.DetectionResult, totalSpend []model.CurrencyAmount) Output {
	vendorTotals := make(map[string]map[string]decimal.Decimal)
	currencyTotals := make(map[string]decimal.Decimal)
	retained := make([]model.DetectionResult, 0, len(detections))

	for _, d := range detections {
		impact := d.FinancialImpact
		if !impact.IsPositive() || impact.LessThan(s.cfg.MinMateriality) {
			s.logger.Debug("Dropped immaterial detection",
				"detection_id", d.ID,
				"impact", impact.String())
			continue
		}

		scored := d.WithSeverity(s.severity(impact))
		retained = append(retained, scored)

		// Vendor identity only travels through the evidence map.
		vendor := scored.Vendor()
		if vendorTotals[vendor] == nil {
			vendorTotals[vendor] = make(map[string]decimal.Decimal)
		}
		vendorTotals[vendor][d.Currency] = vendorTotals[vendor][d.Currency].Add(impact)
		currencyTotals[d.Currency] = currencyTotals[d.Currency].Add(impact)
	}

	// Amounts in different currencies are summed as plain magnitudes here.
	companySpend := decimal.Zero
	for _, c := range totalSpend {
		companySpend = companySpend.Add(c.Amount)
	}

	if companySpend.IsPositive() {
		escalated := make(map[string]bool)
		for vendor, byCurrency := range vendorTotals {
			flagged := decimal.Zero
			for _, amount := range byCurrency {
				flagged = flagged.Add(amount)
			}
			ratio := flagged.DivRound(companySpend, ratioPrecision)
			if ratio.GreaterThanOrEqual(s.cfg.MaterialityThreshold) {
				escalated[vendor] = true
			}
		}
		for i, d := range retained {
			if escalated[d.Vendor()] {
				retained[i] = d.WithSeverity(model.SeverityHigh)
			}
		}
		if len(escalated) > 0 {
			s.logger.Debug("Escalated material vendors", "vendors", len(escalated))
		}
	}

	sortedCurrencyTotals := sortedAmounts(currencyTotals)

	return Output{
		Detections:     retained,
		VendorTotals:   sortedVendorTotals(vendorTotals),
		CurrencyTotals: sortedCurrencyTotals,
		Summary:        summarize(sortedCurrencyTotals, totalSpend),
		Version:        s.cfg.Version,
	}
}

func (s *Scorer) severity(impact decimal.Decimal) model.Severity {
	switch {
	case impact.GreaterThanOrEqual(s.cfg.HighThreshold):
		return model.SeverityHigh
	case impact.GreaterThanOrEqual(s.cfg.MediumThreshold):
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func sortedAmounts(m map[string]decimal.Decimal) []model.CurrencyAmount {
	out := make([]model.CurrencyAmount, 0, len(m))
	for currency, amount := range m {
		out = append(out, model.CurrencyAmount{Currency: currency, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Currency < out[j].Currency
	})
	return out
}

func sortedVendorTotals(m map[string]map[string]decimal.Decimal) []model.VendorTotal {
	out := make([]model.VendorTotal, 0, len(m))
	for vendor, byCurrency := range m {
		out = append(out, model.VendorTotal{
			Vendor:     vendor,
			Currencies: sortedAmounts(byCurrency),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Vendor < out[j].Vendor
	})
	return out
}

// summarize builds one summary row per currency that has flagged spend.
func summarize(flagged, totalSpend []model.CurrencyAmount) []model.CurrencySummary {
	spend := make(map[string]decimal.Decimal, len(totalSpend))
	for _, c := range totalSpend {
		spend[c.Currency] = c.Amount
	}

	out := make([]model.CurrencySummary, 0, len(flagged))
	for _, f := range flagged {
		total := spend[f.Currency]
		percent := decimal.Zero
		if total.IsPositive() {
			percent = f.Amount.DivRound(total, ratioPrecision).Mul(hundred)
		}
		out = append(out, model.CurrencySummary{
			Currency:       f.Currency,
			FlaggedAmount:  f.Amount,
			TotalSpend:     total,
			PercentFlagged: percent,
		})
	}
	return out
}
