package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
)

func summaryView() session.View {
	doc := core.DefaultDocument()
	doc.User.Name = "Ada"
	doc.IA.OpenAI.Enabled = true
	doc.IA.OpenAI.APIKey = "sk-abcdef123456"
	return session.View{Document: doc, Remote: true}
}

func TestSummaryMarkdown(t *testing.T) {
	md := SummaryMarkdown(summaryView(), false)

	assert.Contains(t, md, "## User")
	assert.Contains(t, md, "| Name | Ada |")
	assert.Contains(t, md, "## OpenAI (enabled)")
	assert.Contains(t, md, "## Jira (disabled)")
	assert.Contains(t, md, "••••3456")
	assert.NotContains(t, md, "sk-abcdef123456")
	assert.NotContains(t, md, "Backend unreachable")
}

func TestSummaryMarkdown_Reveal(t *testing.T) {
	md := SummaryMarkdown(summaryView(), true)
	assert.Contains(t, md, "sk-abcdef123456")
}

func TestSummaryMarkdown_WarningsAndOffline(t *testing.T) {
	view := summaryView()
	view.Remote = false
	view.Issues = core.Issues{{Field: core.FieldDefaultAI, Code: core.CodeDefaultAIDisabled, Message: "default AI is disabled"}}

	md := SummaryMarkdown(view, false)
	assert.Contains(t, md, "## Warnings")
	assert.Contains(t, md, "- default AI is disabled")
	assert.Contains(t, md, "Backend unreachable")
}

func TestRenderMarkdown(t *testing.T) {
	for _, theme := range []core.Theme{core.ThemeLight, core.ThemeDark, core.ThemeAuto} {
		out, err := RenderMarkdown("# Title\n\nsome text", theme, 0)
		require.NoError(t, err)
		assert.Contains(t, out, "Title")
	}
}

func TestEscapeCell(t *testing.T) {
	assert.Equal(t, `a\|b`, escapeCell("a|b"))
}
