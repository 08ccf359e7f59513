package sheets

import (
	"strings"

	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/report"
)

// Tab titles, in the order they are written.
const (
	TabSummary       = "Summary"
	TabDetections    = "Detections"
	TabVendorRanking = "Vendor Ranking"
)

// Tabs lists every tab the writer manages.
var Tabs = []string{TabSummary, TabDetections, TabVendorRanking}

// Tab is one sheet's worth of rows. Row 0 is the header.
type Tab struct {
	Title string
	Rows  [][]any
}

// TabData holds all the data for the complete spreadsheet export.
type TabData struct {
	Summary       Tab
	Detections    Tab
	VendorRanking Tab
}

// All returns the tabs in write order.
func (d TabData) All() []Tab {
	return []Tab{d.Summary, d.Detections, d.VendorRanking}
}

// BuildTabData lays a result out as spreadsheet rows. Amounts are written as
// strings so the sheet sees the exact decimal value.
func BuildTabData(r *model.Result) TabData {
	return TabData{
		Summary:       buildSummary(r),
		Detections:    buildDetections(r.Detections),
		VendorRanking: buildRanking(r.VendorRanking),
	}
}

func buildSummary(r *model.Result) Tab {
	s := report.Summarize(r)
	rows := [][]any{
		{"Vendor Leak Report", r.EngineVersion},
		{"State", string(r.State)},
		{"Dataset hash", r.DatasetHash},
		{},
		{"Total flagged", s.TotalFlagged.String()},
		{"Projected 12-month exposure", s.ProjectedExposure.String()},
		{"Top risk vendors", strings.Join(s.TopVendors, ", ")},
		{},
		{"Currency", "Flagged", "Total spend", "% flagged"},
	}
	for _, c := range s.CurrencySummary {
		rows = append(rows, []any{
			c.Currency,
			c.FlaggedAmount.String(),
			c.TotalSpend.String(),
			c.PercentFlagged.StringFixed(4),
		})
	}

	rows = append(rows, []any{}, []any{"Diagnostics"})
	for _, e := range r.Diagnostics.Errors {
		rows = append(rows, []any{"error", e})
	}
	for _, w := range r.Diagnostics.Warnings {
		rows = append(rows, []any{"warning", w})
	}

	return Tab{Title: TabSummary, Rows: rows}
}

func buildDetections(ds []model.DetectionResult) Tab {
	rows := make([][]any, 0, len(ds)+1)
	rows = append(rows, []any{
		"Detection ID", "Type", "Vendor", "Severity", "Impact", "Currency",
		"Confidence", "Rule", "Transactions",
	})
	for _, d := range ds {
		rows = append(rows, []any{
			d.ID,
			string(d.Type),
			d.Vendor(),
			string(d.Severity),
			d.FinancialImpact.String(),
			d.Currency,
			d.Confidence,
			d.Rule,
			strings.Join(d.RelatedTransactionIDs, ", "),
		})
	}
	return Tab{Title: TabDetections, Rows: rows}
}

func buildRanking(rs []model.VendorRanking) Tab {
	rows := make([][]any, 0, len(rs)+1)
	rows = append(rows, []any{
		"Rank", "Vendor", "Risk Score", "Normalized", "Percentile", "Flagged Spend",
		"Flagged Ratio", "Volatility", "Duplicate Density", "Recurring Ratio",
	})
	for i, v := range rs {
		rows = append(rows, []any{
			i + 1,
			v.Vendor,
			v.RawScore.String(),
			v.NormalizedScore.String(),
			v.RiskPercentile.String(),
			v.TotalFlaggedSpend.String(),
			v.FlaggedRatio.String(),
			v.Volatility.String(),
			v.DuplicateDensity.String(),
			v.RecurringRatio.String(),
		})
	}
	return Tab{Title: TabVendorRanking, Rows: rows}
}
