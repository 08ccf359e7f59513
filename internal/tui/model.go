// Package tui provides an interactive terminal browser for engine results.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/leakscan/internal/model"
	"github.com/Veraticus/leakscan/internal/tui/themes"
)

// View represents the current screen.
type View int

// Screens.
const (
	ViewVendors View = iota
	ViewDetections
	ViewDetail
)

// chromeHeight is the number of lines used by the header and help footer.
const chromeHeight = 7

// Model holds the browser state.
type Model struct {
	result       *model.Result
	theme        themes.Theme
	keymap       KeyMap
	help         help.Model
	vendors      table.Model
	detections   table.Model
	vendorFilter string
	visible      []model.DetectionResult
	counts       map[string]int
	width        int
	height       int
	view         View
	quitting     bool
}

func newModel(result *model.Result, cfg Config) Model {
	if result == nil {
		result = &model.Result{}
	}
	m := Model{
		result: result,
		theme:  cfg.Theme,
		keymap: DefaultKeyMap(),
		help:   help.New(),
		counts: make(map[string]int),
		width:  cfg.Width,
		height: cfg.Height,
		view:   ViewVendors,
	}
	for _, d := range result.Detections {
		m.counts[d.Vendor()]++
	}

	styles := table.DefaultStyles()
	styles.Header = cfg.Theme.Header
	styles.Selected = cfg.Theme.Selected

	m.vendors = table.New(
		table.WithColumns([]table.Column{
			{Title: "#", Width: 4},
			{Title: "Vendor", Width: 28},
			{Title: "Score", Width: 8},
			{Title: "Percentile", Width: 10},
			{Title: "Flagged", Width: 14},
			{Title: "Detections", Width: 10},
		}),
		table.WithRows(m.vendorRows()),
		table.WithFocused(true),
		table.WithStyles(styles),
	)
	m.detections = table.New(
		table.WithColumns([]table.Column{
			{Title: "Type", Width: 10},
			{Title: "Severity", Width: 8},
			{Title: "Vendor", Width: 24},
			{Title: "Impact", Width: 14},
			{Title: "Cur", Width: 4},
			{Title: "Txns", Width: 5},
		}),
		table.WithFocused(true),
		table.WithStyles(styles),
	)
	m.setDetections("")
	m.resize()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keymap.ToggleView):
			m.toggleView()
			return m, nil
		case key.Matches(msg, m.keymap.Select):
			m.drillDown()
			return m, nil
		case key.Matches(msg, m.keymap.Back):
			m.back()
			return m, nil
		}
	}

	var cmd tea.Cmd
	switch m.view {
	case ViewVendors:
		m.vendors, cmd = m.vendors.Update(msg)
	case ViewDetections:
		m.detections, cmd = m.detections.Update(msg)
	}
	return m, cmd
}

func (m *Model) toggleView() {
	if m.view == ViewVendors {
		m.setDetections("")
		m.view = ViewDetections
		return
	}
	m.view = ViewVendors
}

func (m *Model) drillDown() {
	switch m.view {
	case ViewVendors:
		if len(m.result.VendorRanking) == 0 {
			return
		}
		m.setDetections(m.result.VendorRanking[m.vendors.Cursor()].Vendor)
		m.view = ViewDetections
	case ViewDetections:
		if len(m.visible) > 0 {
			m.view = ViewDetail
		}
	}
}

func (m *Model) back() {
	switch m.view {
	case ViewDetail:
		m.view = ViewDetections
	case ViewDetections:
		m.view = ViewVendors
	}
}

// setDetections shows the detections of vendor, or all of them when vendor is empty.
func (m *Model) setDetections(vendor string) {
	m.vendorFilter = vendor
	m.visible = make([]model.DetectionResult, 0, len(m.result.Detections))
	for _, d := range m.result.Detections {
		if vendor == "" || d.Vendor() == vendor {
			m.visible = append(m.visible, d)
		}
	}

	rows := make([]table.Row, 0, len(m.visible))
	for _, d := range m.visible {
		rows = append(rows, table.Row{
			string(d.Type),
			string(d.Severity),
			d.Vendor(),
			d.FinancialImpact.StringFixed(2),
			d.Currency,
			fmt.Sprintf("%d", len(d.RelatedTransactionIDs)),
		})
	}
	m.detections.SetRows(rows)
	m.detections.SetCursor(0)
}

func (m Model) vendorRows() []table.Row {
	rows := make([]table.Row, 0, len(m.result.VendorRanking))
	for i, v := range m.result.VendorRanking {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", i+1),
			v.Vendor,
			v.NormalizedScore.StringFixed(3),
			v.RiskPercentile.StringFixed(3),
			v.TotalFlaggedSpend.StringFixed(2),
			fmt.Sprintf("%d", m.counts[v.Vendor]),
		})
	}
	return rows
}

func (m *Model) resize() {
	h := max(m.height-chromeHeight, 3)
	m.vendors.SetHeight(h)
	m.detections.SetHeight(h)
	m.help.Width = m.width
}

// selected returns the detection under the cursor.
func (m Model) selected() (model.DetectionResult, bool) {
	i := m.detections.Cursor()
	if i < 0 || i >= len(m.visible) {
		return model.DetectionResult{}, false
	}
	return m.visible[i], true
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.view {
	case ViewVendors:
		body = m.vendorsView()
	case ViewDetections:
		body = m.detectionsView()
	case ViewDetail:
		body = m.detailView()
	}

	return strings.Join([]string{m.headerView(), body, m.help.View(m.keymap)}, "\n\n")
}

func (m Model) headerView() string {
	title := m.theme.Title.Render("Vendor Leak Browser")
	meta := m.theme.Subtitle.Render(fmt.Sprintf("%d detections · %d vendors · %s",
		len(m.result.Detections), len(m.result.VendorRanking), m.result.State))
	return title + "\n" + meta
}

func (m Model) vendorsView() string {
	if len(m.result.VendorRanking) == 0 {
		return m.theme.Subtitle.Render("No vendors were ranked.")
	}
	return m.vendors.View()
}

func (m Model) detectionsView() string {
	label := "All detections"
	if m.vendorFilter != "" {
		label = "Detections for " + m.vendorFilter
	}
	if len(m.visible) == 0 {
		return m.theme.Bold.Render(label) + "\n" + m.theme.Subtitle.Render("Nothing flagged.")
	}
	return m.theme.Bold.Render(label) + "\n" + m.detections.View()
}

func (m Model) detailView() string {
	d, ok := m.selected()
	if !ok {
		return ""
	}

	lines := []string{
		m.theme.Bold.Render(string(d.Type)+" · "+d.Vendor()) + "  " +
			m.theme.Severity(string(d.Severity)).Render(string(d.Severity)),
		fmt.Sprintf("Detection:    %s", d.ID),
		fmt.Sprintf("Rule:         %s", d.Rule),
		fmt.Sprintf("Impact:       %s %s", d.FinancialImpact.String(), d.Currency),
		fmt.Sprintf("Confidence:   %.2f", d.Confidence),
		fmt.Sprintf("Transactions: %s", strings.Join(d.RelatedTransactionIDs, ", ")),
		"",
		m.theme.Bold.Render("Evidence"),
	}

	keys := make([]string, 0, len(d.Evidence))
	for k := range d.Evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %v", k, d.Evidence[k]))
	}

	if p, ok := m.result.Profile(d.Vendor()); ok {
		lines = append(lines, "",
			m.theme.Bold.Render("Vendor behavior"),
			fmt.Sprintf("  volatility %s · interval stability %s · duplicate density %s · recurring %s",
				p.AmountVolatility.StringFixed(4),
				p.IntervalStability.StringFixed(4),
				p.DuplicateDensity.StringFixed(4),
				p.RecurringDependency.StringFixed(4)),
		)
	}

	return m.theme.RoundedBox.Render(strings.Join(lines, "\n"))
}
