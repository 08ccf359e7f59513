package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/leakscan/internal/model"
)

func detection(t *testing.T, kind model.DetectionType, vendor, impact, currency string, ids ...string) model.DetectionResult {
	t.Helper()
	d, err := model.NewDetection(kind, ids, "rule", model.Evidence{model.EvidenceVendor: vendor},
		decimal.RequireFromString(impact), 0.9, model.SeverityLow, currency)
	require.NoError(t, err)
	return d
}

func ranking(vendor, percentile, flagged string) model.VendorRanking {
	return model.VendorRanking{
		Vendor:            vendor,
		RiskPercentile:    decimal.RequireFromString(percentile),
		TotalFlaggedSpend: decimal.RequireFromString(flagged),
		NormalizedScore:   decimal.RequireFromString(percentile),
	}
}

func sampleResult(t *testing.T) *model.Result {
	t.Helper()
	r := &model.Result{
		EngineVersion: "2.0.0",
		State:         model.StateCompleted,
		DatasetHash:   "abcdef0123456789abcdef",
		Detections: []model.DetectionResult{
			detection(t, model.DetectionDuplicate, "acme", "1200", "USD", "d1", "d2"),
			detection(t, model.DetectionRecurring, "streamco", "599.88", "USD", "r1", "r2", "r3"),
			detection(t, model.DetectionRecurring, "initech", "100", "EUR", "e1", "e2", "e3"),
		},
		Summary: []model.CurrencySummary{{
			Currency:       "USD",
			FlaggedAmount:  decimal.RequireFromString("1799.88"),
			TotalSpend:     decimal.RequireFromString("10000"),
			PercentFlagged: decimal.RequireFromString("17.9988"),
		}},
		Diagnostics: model.Diagnostics{Version: "1.0.0", Warnings: []string{}, Errors: []string{}},
	}
	for i := 0; i < 7; i++ {
		r.VendorRanking = append(r.VendorRanking, ranking(fmt.Sprintf("vendor-%d", i), "1", "10"))
	}
	return r
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleResult(t))

	assert.Equal(t, Version, s.Version)
	assert.True(t, decimal.RequireFromString("1899.88").Equal(s.TotalFlagged), s.TotalFlagged.String())
	assert.True(t, decimal.RequireFromString("699.88").Equal(s.ProjectedExposure), s.ProjectedExposure.String())
	assert.Equal(t, []string{"vendor-0", "vendor-1", "vendor-2", "vendor-3", "vendor-4"}, s.TopVendors)
	require.Len(t, s.InvestigationPriority, 5)
	assert.Equal(t, "vendor-0", s.InvestigationPriority[0].Vendor)
	assert.True(t, decimal.NewFromInt(10).Equal(s.InvestigationPriority[0].FlaggedSpend))
	assert.Len(t, s.CurrencySummary, 1)
}

func TestSummarize_Empty(t *testing.T) {
	tests := []struct {
		result *model.Result
		name   string
	}{
		{name: "nil result", result: nil},
		{name: "no detections", result: &model.Result{State: model.StateCompleted}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.result)
			assert.True(t, s.TotalFlagged.IsZero())
			assert.True(t, s.ProjectedExposure.IsZero())
			assert.NotNil(t, s.TopVendors)
			assert.NotNil(t, s.InvestigationPriority)
			assert.NotNil(t, s.CurrencySummary)
		})
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleResult(t)))

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	summary := doc["executive_summary"]
	assert.Equal(t, "1899.88", summary["total_flagged_amount"])
	assert.Equal(t, "699.88", summary["projected_12_month_exposure"])
	assert.Equal(t, "1.0.0", summary["summary_version"])
	assert.Equal(t, "completed", doc["result"]["state"])
}

func TestTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(sampleResult(t)))
	out := buf.String()

	for _, want := range []string{
		"Vendor Leak Report",
		"abcdef012345",
		"No diagnostics",
		"Currency Summary",
		"18.00%",
		"Detections (3)",
		"streamco",
		"599.88 USD",
		"Vendor Risk Ranking",
		"vendor-6",
		"Executive Summary",
		"1899.88",
	} {
		assert.Contains(t, out, want)
	}
}

func TestTextFormatter_Diagnostics(t *testing.T) {
	r := &model.Result{
		State: model.StateFailed,
		Diagnostics: model.Diagnostics{
			Warnings: []string{"no transactions supplied"},
			Errors:   []string{"DuplicateDetector: boom"},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(r))
	out := buf.String()

	assert.Contains(t, out, "no transactions supplied")
	assert.Contains(t, out, "DuplicateDetector: boom")
	assert.Contains(t, out, "No leaks detected")
	assert.Contains(t, out, "dataset -")
}

func TestRenderTable_PadsColumns(t *testing.T) {
	out := renderTable([][]string{{"a", "b"}, {"long", "x"}})
	lines := bytes.Split([]byte(out), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "long  x", string(lines[1]))
}
