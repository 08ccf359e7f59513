// Package report turns engine results into executive summaries and renders
// them as JSON or styled terminal text.
package report

import (
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/shopspring/decimal"
)

// Version identifies the executive summary layout.
const Version = "1.0.0"

// topVendorCount bounds the top vendor and priority lists.
const topVendorCount = 5

// PriorityEntry is one vendor in the investigation queue.
type PriorityEntry struct {
	RiskPercentile decimal.Decimal `json:"risk_percentile"`
	FlaggedSpend   decimal.Decimal `json:"flagged_spend"`
	Vendor         string          `json:"vendor"`
}

// ExecutiveSummary condenses a result into the figures a reviewer looks at first.
type ExecutiveSummary struct {
	TotalFlagged          decimal.Decimal         `json:"total_flagged_amount"`
	ProjectedExposure     decimal.Decimal         `json:"projected_12_month_exposure"`
	Version               string                  `json:"summary_version"`
	TopVendors            []string                `json:"top_5_risk_vendors"`
	CurrencySummary       []model.CurrencySummary `json:"currency_summary"`
	InvestigationPriority []PriorityEntry         `json:"investigation_priority"`
}

// Summarize builds the executive summary for a result.
//
// TotalFlagged adds every detection impact regardless of currency, matching
// how the ranking pools spend; the per-currency view is CurrencySummary.
// ProjectedExposure adds the annualized impact of recurring detections only.
func Summarize(r *model.Result) ExecutiveSummary {
	s := ExecutiveSummary{
		Version:               Version,
		TotalFlagged:          decimal.Zero,
		ProjectedExposure:     decimal.Zero,
		TopVendors:            []string{},
		CurrencySummary:       []model.CurrencySummary{},
		InvestigationPriority: []PriorityEntry{},
	}
	if r == nil {
		return s
	}

	for _, d := range r.Detections {
		s.TotalFlagged = s.TotalFlagged.Add(d.FinancialImpact)
		if d.Type == model.DetectionRecurring {
			s.ProjectedExposure = s.ProjectedExposure.Add(d.FinancialImpact)
		}
	}

	if r.Summary != nil {
		s.CurrencySummary = r.Summary
	}

	for i, v := range r.VendorRanking {
		if i == topVendorCount {
			break
		}
		s.TopVendors = append(s.TopVendors, v.Vendor)
		s.InvestigationPriority = append(s.InvestigationPriority, PriorityEntry{
			Vendor:         v.Vendor,
			RiskPercentile: v.RiskPercentile,
			FlaggedSpend:   v.TotalFlaggedSpend,
		})
	}

	return s
}
