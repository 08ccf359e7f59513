// Package themes holds color schemes for the result browser.
package themes

import "github.com/charmbracelet/lipgloss"

// Theme defines the visual style for the TUI.
type Theme struct {
	Title       lipgloss.Style
	Subtitle    lipgloss.Style
	Normal      lipgloss.Style
	Bold        lipgloss.Style
	Selected    lipgloss.Style
	Header      lipgloss.Style
	RoundedBox  lipgloss.Style
	StatusError lipgloss.Style
	StatusWarn  lipgloss.Style
	StatusOK    lipgloss.Style
	Primary     lipgloss.Color
	Muted       lipgloss.Color
	Border      lipgloss.Color
	Error       lipgloss.Color
	Warning     lipgloss.Color
	Success     lipgloss.Color
}

// Severity returns the style for a risk severity label.
func (t Theme) Severity(s string) lipgloss.Style {
	switch s {
	case "high":
		return t.StatusError
	case "medium":
		return t.StatusWarn
	default:
		return t.Subtitle
	}
}

func newTheme(primary, muted, border, text, errColor, warn, ok lipgloss.Color) Theme {
	return Theme{
		Primary: primary,
		Muted:   muted,
		Border:  border,
		Error:   errColor,
		Warning: warn,
		Success: ok,

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(primary),
		Subtitle: lipgloss.NewStyle().
			Foreground(muted),
		Normal: lipgloss.NewStyle().
			Foreground(text),
		Bold: lipgloss.NewStyle().
			Bold(true).
			Foreground(text),
		Selected: lipgloss.NewStyle().
			Background(primary).
			Foreground(lipgloss.Color("#1a1a1a")).
			Bold(true),
		Header: lipgloss.NewStyle().
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(border),
		RoundedBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		StatusError: lipgloss.NewStyle().
			Foreground(errColor).
			Bold(true),
		StatusWarn: lipgloss.NewStyle().
			Foreground(warn).
			Bold(true),
		StatusOK: lipgloss.NewStyle().
			Foreground(ok).
			Bold(true),
	}
}

// Default is the default theme.
var Default = newTheme(
	lipgloss.Color("#f4a261"),
	lipgloss.Color("#737373"),
	lipgloss.Color("#404040"),
	lipgloss.Color("#fafafa"),
	lipgloss.Color("#ef4444"),
	lipgloss.Color("#f59e0b"),
	lipgloss.Color("#10b981"),
)

// CatppuccinMocha is the Catppuccin Mocha theme.
var CatppuccinMocha = newTheme(
	lipgloss.Color("#cba6f7"),
	lipgloss.Color("#6c7086"),
	lipgloss.Color("#45475a"),
	lipgloss.Color("#cdd6f4"),
	lipgloss.Color("#f38ba8"),
	lipgloss.Color("#f9e2af"),
	lipgloss.Color("#a6e3a1"),
)

// ByName returns the named theme, or Default when the name is unknown.
func ByName(name string) Theme {
	switch name {
	case "catppuccin", "catppuccin-mocha":
		return CatppuccinMocha
	default:
		return Default
	}
}
