package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

// SummaryMarkdown renders the form as a markdown document with one table
// per section. Secrets are masked unless reveal is set.
func SummaryMarkdown(view session.View, reveal bool) string {
	var b strings.Builder
	b.WriteString("# bsqa settings\n")

	section := ""
	for _, spec := range core.DefaultRegistry().Fields() {
		if s := sectionOf(spec); s != section {
			section = s
			title := sectionTitle(s)
			if spec.Block != "" {
				state := "disabled"
				if view.Document.Enabled(spec.Block) {
					state = "enabled"
				}
				title += " (" + state + ")"
			}
			fmt.Fprintf(&b, "\n## %s\n\n| Setting | Value |\n|---|---|\n", title)
		}
		if spec.Master {
			continue
		}
		v, err := core.DefaultRegistry().Get(view.Document, spec.ID)
		if err != nil {
			continue
		}
		value := formatValue(v)
		if spec.Secret() && !reveal {
			value = core.MaskSecret(value)
		}
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", spec.Label, escapeCell(value))
	}

	if len(view.Issues) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, issue := range view.Issues {
			fmt.Fprintf(&b, "- %s\n", issue.Message)
		}
	}
	if !view.Remote {
		b.WriteString("\n_Backend unreachable: showing the local copy._\n")
	}
	return b.String()
}

// RenderMarkdown renders md for the terminal in the colors of theme.
func RenderMarkdown(md string, theme core.Theme, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(markdownStyle(theme)),
		glamour.WithWordWrap(width),
		glamour.WithColorProfile(lipgloss.ColorProfile()),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	return r.Render(md)
}

func markdownStyle(theme core.Theme) ansi.StyleConfig {
	switch theme {
	case core.ThemeLight:
		return styles.LightStyleConfig
	case core.ThemeDark:
		return styles.DarkStyleConfig
	}
	if lipgloss.HasDarkBackground() {
		return styles.DarkStyleConfig
	}
	return styles.LightStyleConfig
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
