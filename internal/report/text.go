package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/leakscan/internal/cli"
	"github.com/Veraticus/leakscan/internal/model"
	"github.com/charmbracelet/lipgloss"
)

// maxTextDetections caps the detection table in text output.
const maxTextDetections = 25

// TextFormatter renders a result for the terminal.
type TextFormatter struct {
	w io.Writer
}

// NewTextFormatter creates a formatter writing to w.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: w}
}

// Format writes every section of the report.
func (f *TextFormatter) Format(r *model.Result) error {
	if r == nil {
		_, err := fmt.Fprintln(f.w, cli.FormatError("No result available"))
		return err
	}

	summary := Summarize(r)
	sections := []string{
		f.formatHeader(r),
		f.formatDiagnostics(r.Diagnostics),
		f.formatCurrencySummary(r.Summary),
		f.formatDetections(r.Detections),
		f.formatRanking(r.VendorRanking),
		f.formatExecutiveSummary(summary),
	}

	_, err := fmt.Fprintln(f.w, strings.Join(nonEmpty(sections), "\n\n"))
	return err
}

func (f *TextFormatter) formatHeader(r *model.Result) string {
	title := cli.FormatTitle("Vendor Leak Report")
	meta := cli.SubtleStyle.Render(fmt.Sprintf("engine %s · state %s · dataset %s",
		r.EngineVersion, r.State, shortHash(r.DatasetHash)))
	return lipgloss.JoinVertical(lipgloss.Left, title, meta)
}

func (f *TextFormatter) formatDiagnostics(d model.Diagnostics) string {
	if len(d.Warnings) == 0 && len(d.Errors) == 0 {
		return cli.FormatSuccess("No diagnostics")
	}
	lines := make([]string, 0, len(d.Warnings)+len(d.Errors))
	for _, e := range d.Errors {
		lines = append(lines, cli.FormatError(e))
	}
	for _, w := range d.Warnings {
		lines = append(lines, cli.FormatWarning(w))
	}
	return cli.RenderBox("Diagnostics", strings.Join(lines, "\n"))
}

func (f *TextFormatter) formatCurrencySummary(summary []model.CurrencySummary) string {
	if len(summary) == 0 {
		return ""
	}
	rows := [][]string{{"Currency", "Flagged", "Total spend", "% flagged"}}
	for _, s := range summary {
		rows = append(rows, []string{
			s.Currency,
			s.FlaggedAmount.StringFixed(2),
			s.TotalSpend.StringFixed(2),
			s.PercentFlagged.StringFixed(2) + "%",
		})
	}
	return section("Currency Summary", renderTable(rows))
}

func (f *TextFormatter) formatDetections(ds []model.DetectionResult) string {
	if len(ds) == 0 {
		return cli.FormatSuccess("No leaks detected")
	}
	rows := [][]string{{"Type", "Severity", "Vendor", "Impact", "Txns", "Rule"}}
	for i, d := range ds {
		if i == maxTextDetections {
			break
		}
		rows = append(rows, []string{
			string(d.Type),
			cli.FormatSeverity(d.Severity),
			d.Vendor(),
			d.FinancialImpact.StringFixed(2) + " " + d.Currency,
			fmt.Sprintf("%d", len(d.RelatedTransactionIDs)),
			d.Rule,
		})
	}
	out := renderTable(rows)
	if len(ds) > maxTextDetections {
		out += "\n" + cli.SubtleStyle.Render(fmt.Sprintf("… and %d more", len(ds)-maxTextDetections))
	}
	return section(fmt.Sprintf("Detections (%d)", len(ds)), out)
}

func (f *TextFormatter) formatRanking(rs []model.VendorRanking) string {
	if len(rs) == 0 {
		return ""
	}
	rows := [][]string{{"#", "Vendor", "Score", "Percentile", "Flagged"}}
	for i, r := range rs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			r.Vendor,
			r.NormalizedScore.StringFixed(3),
			r.RiskPercentile.StringFixed(3),
			r.TotalFlaggedSpend.StringFixed(2),
		})
	}
	return section("Vendor Risk Ranking", renderTable(rows))
}

func (f *TextFormatter) formatExecutiveSummary(s ExecutiveSummary) string {
	lines := []string{
		fmt.Sprintf("Total flagged:          %s", s.TotalFlagged.StringFixed(2)),
		fmt.Sprintf("Projected 12-month:     %s", s.ProjectedExposure.StringFixed(2)),
	}
	if len(s.TopVendors) > 0 {
		lines = append(lines, "Investigate first:      "+strings.Join(s.TopVendors, ", "))
	}
	return cli.RenderBox(cli.ChartIcon+" Executive Summary", strings.Join(lines, "\n"))
}

func section(title, body string) string {
	return lipgloss.JoinVertical(lipgloss.Left, cli.TitleStyle.Render(title), body)
}

// renderTable pads columns to their widest cell; the first row is the header.
func renderTable(rows [][]string) string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	lines := make([]string, 0, len(rows))
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			padded := cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			if r == 0 {
				padded = cli.TableHeaderStyle.Render(padded)
			}
			cells[i] = padded
		}
		lines = append(lines, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
	return strings.Join(lines, "\n")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "-"
	}
	return h
}

func nonEmpty(ss []string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
