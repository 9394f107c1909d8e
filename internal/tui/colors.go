// Package tui is the terminal settings editor.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// ColorScheme defines a complete color scheme.
type ColorScheme struct {
	Primary    lipgloss.Color
	Secondary  lipgloss.Color
	Success    lipgloss.Color
	Warning    lipgloss.Color
	Error      lipgloss.Color
	Text       lipgloss.Color
	TextMuted  lipgloss.Color
	Disabled   lipgloss.Color
	Border     lipgloss.Color
	Background lipgloss.Color
	Highlight  lipgloss.Color
}

// DarkScheme is the default dark color scheme.
var DarkScheme = ColorScheme{
	Primary:    lipgloss.Color("#7C3AED"), // Purple
	Secondary:  lipgloss.Color("#06B6D4"), // Cyan
	Success:    lipgloss.Color("#10B981"), // Green
	Warning:    lipgloss.Color("#F59E0B"), // Amber
	Error:      lipgloss.Color("#EF4444"), // Red
	Text:       lipgloss.Color("#E5E7EB"),
	TextMuted:  lipgloss.Color("#9CA3AF"),
	Disabled:   lipgloss.Color("#4B5563"),
	Border:     lipgloss.Color("#374151"),
	Background: lipgloss.Color("#1F2937"),
	Highlight:  lipgloss.Color("#374151"),
}

// LightScheme is the light color scheme.
var LightScheme = ColorScheme{
	Primary:    lipgloss.Color("#6D28D9"),
	Secondary:  lipgloss.Color("#0891B2"),
	Success:    lipgloss.Color("#059669"),
	Warning:    lipgloss.Color("#D97706"),
	Error:      lipgloss.Color("#DC2626"),
	Text:       lipgloss.Color("#1F2937"),
	TextMuted:  lipgloss.Color("#6B7280"),
	Disabled:   lipgloss.Color("#D1D5DB"),
	Border:     lipgloss.Color("#D1D5DB"),
	Background: lipgloss.Color("#F9FAFB"),
	Highlight:  lipgloss.Color("#E5E7EB"),
}

// SchemeFor picks the scheme for a theme preference. Auto follows the
// terminal background.
func SchemeFor(theme core.Theme) ColorScheme {
	switch theme {
	case core.ThemeLight:
		return LightScheme
	case core.ThemeDark:
		return DarkScheme
	}
	if lipgloss.HasDarkBackground() {
		return DarkScheme
	}
	return LightScheme
}
