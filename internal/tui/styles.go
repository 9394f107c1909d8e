package tui

import "github.com/charmbracelet/lipgloss"

// Styles are the editor's lipgloss styles for one color scheme.
type Styles struct {
	Header        lipgloss.Style
	Section       lipgloss.Style
	Label         lipgloss.Style
	Value         lipgloss.Style
	Selected      lipgloss.Style
	Disabled      lipgloss.Style
	SwitchOn      lipgloss.Style
	SwitchOff     lipgloss.Style
	Warning       lipgloss.Style
	Error         lipgloss.Style
	Success       lipgloss.Style
	Dirty         lipgloss.Style
	Help          lipgloss.Style
	Modal         lipgloss.Style
	Notice        lipgloss.Style
	labelColWidth int
}

// NewStyles builds the styles for scheme.
func NewStyles(scheme ColorScheme) Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(scheme.Primary).
			Padding(0, 1).
			MarginBottom(1),
		Section: lipgloss.NewStyle().
			Bold(true).
			Foreground(scheme.Secondary).
			MarginTop(1),
		Label: lipgloss.NewStyle().
			Foreground(scheme.Text).
			PaddingLeft(2),
		Value: lipgloss.NewStyle().
			Foreground(scheme.Text),
		Selected: lipgloss.NewStyle().
			Foreground(scheme.Text).
			Background(scheme.Highlight).
			Bold(true).
			PaddingLeft(2),
		Disabled: lipgloss.NewStyle().
			Foreground(scheme.Disabled).
			PaddingLeft(2),
		SwitchOn: lipgloss.NewStyle().
			Foreground(scheme.Success).
			Bold(true),
		SwitchOff: lipgloss.NewStyle().
			Foreground(scheme.TextMuted),
		Warning: lipgloss.NewStyle().
			Foreground(scheme.Warning),
		Error: lipgloss.NewStyle().
			Foreground(scheme.Error).
			Bold(true),
		Success: lipgloss.NewStyle().
			Foreground(scheme.Success),
		Dirty: lipgloss.NewStyle().
			Foreground(scheme.Warning).
			Bold(true),
		Help: lipgloss.NewStyle().
			Foreground(scheme.TextMuted).
			Italic(true).
			MarginTop(1),
		Modal: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(scheme.Warning).
			Padding(1, 2),
		Notice: lipgloss.NewStyle().
			Foreground(scheme.Secondary).
			Italic(true),
		labelColWidth: 28,
	}
}
