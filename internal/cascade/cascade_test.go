package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

func filledDoc() core.ConfigDocument {
	doc := core.DefaultDocument()
	doc.Integrations.Jira.Enabled = true
	doc.Integrations.Jira.BaseURL = "https://acme.atlassian.net"
	doc.Integrations.Jira.UserEmail = "ana@acme.com"
	doc.Integrations.Jira.APIToken = "tok"
	doc.Integrations.Jira.BugIssueTypeID = "20000"
	doc.Integrations.Jira.RequestTimeout = 45
	doc.IA.OpenAI.Enabled = true
	doc.IA.OpenAI.APIKey = "sk-abc"
	doc.IA.StackSpot.Enabled = true
	doc.IA.StackSpot.ClientID = "cid"
	doc.IA.StackSpot.Streaming = true
	return doc
}

func TestApply_DisableEnableRoundTrip(t *testing.T) {
	reg := core.DefaultRegistry()
	start := filledDoc()
	first := Apply(reg, start, nil, nil)
	require.Empty(t, first.Transitions)

	off := first.Document
	off.Integrations.Jira.Enabled = false
	disabled := Apply(reg, off, first.Enablement, first.Shadow)

	jira := disabled.Document.Integrations.Jira
	assert.Empty(t, jira.BaseURL)
	assert.Empty(t, jira.UserEmail)
	assert.Empty(t, jira.APIToken)
	assert.Empty(t, jira.SubtaskIssueTypeID)
	assert.Equal(t, core.DefaultBugIssueTypeID, jira.BugIssueTypeID)
	assert.Equal(t, core.DefaultSubBugIssueTypeID, jira.SubBugIssueTypeID)
	assert.Equal(t, core.DefaultRequestTimeout, jira.RequestTimeout)
	assert.Equal(t, []Transition{{Block: core.IntegrationJira, Enabled: false}}, disabled.Transitions)
	assert.Equal(t, "tok", disabled.Shadow[core.IntegrationJira][core.FieldJiraAPIToken])

	on := disabled.Document
	on.Integrations.Jira.Enabled = true
	restored := Apply(reg, on, disabled.Enablement, disabled.Shadow)

	assert.Equal(t, start, restored.Document)
	assert.NotContains(t, restored.Shadow, core.IntegrationJira, "shadow is consumed on restore")
}

func TestApply_CheckboxesAreShadowed(t *testing.T) {
	reg := core.DefaultRegistry()
	doc := filledDoc()
	doc.IA.StackSpot.Enabled = false
	res := Apply(reg, doc, Enablement{core.IntegrationStackSpot: true}, nil)

	assert.False(t, res.Document.IA.StackSpot.Streaming)
	assert.Equal(t, true, res.Shadow[core.IntegrationStackSpot][core.FieldStackSpotStreaming])
	assert.Equal(t, false, res.Shadow[core.IntegrationStackSpot][core.FieldStackSpotKnowledge])
	_, hasRealm := res.Shadow[core.IntegrationStackSpot][core.FieldStackSpotRealm]
	assert.False(t, hasRealm, "empty text is not shadowed")
}

func TestApply_NilPrevTreatsBlocksAsEnabled(t *testing.T) {
	reg := core.DefaultRegistry()
	doc := core.DefaultDocument()
	doc.Integrations.Jira.SubtaskIssueTypeID = "10003"

	res := Apply(reg, doc, nil, nil)

	assert.Len(t, res.Transitions, 3)
	assert.Empty(t, res.Document.Integrations.Jira.SubtaskIssueTypeID)
	assert.Equal(t, "10003", res.Shadow[core.IntegrationJira][core.FieldJiraSubtaskIssueTypeID])
}

func TestApply_DoesNotMutateInputs(t *testing.T) {
	reg := core.DefaultRegistry()
	doc := filledDoc()
	doc.Integrations.Jira.Enabled = false
	shadow := core.ShadowValues{core.IntegrationOpenAI: {core.FieldOpenAIAPIKey: "sk-old"}}

	_ = Apply(reg, doc, Enablement{core.IntegrationJira: true, core.IntegrationOpenAI: true, core.IntegrationStackSpot: true}, shadow)

	assert.Equal(t, "tok", doc.Integrations.Jira.APIToken)
	assert.Len(t, shadow, 1)
}

func TestApply_Idempotent(t *testing.T) {
	reg := core.DefaultRegistry()
	doc := filledDoc()
	doc.IA.OpenAI.Enabled = false
	first := Apply(reg, doc, EnablementOf(filledDoc()), nil)
	second := Apply(reg, first.Document, first.Enablement, first.Shadow)

	assert.Equal(t, first.Document, second.Document)
	assert.Equal(t, first.Shadow, second.Shadow)
	assert.Empty(t, second.Transitions)
}

func TestStates(t *testing.T) {
	reg := core.DefaultRegistry()
	states := States(reg, Enablement{core.IntegrationJira: false, core.IntegrationOpenAI: true})

	assert.True(t, states.Disabled(core.FieldJiraBaseURL))
	assert.False(t, states.Disabled(core.FieldJiraEnabled), "toggles stay interactive")
	assert.False(t, states.Disabled(core.FieldOpenAIAPIKey))
	assert.True(t, states.Disabled(core.FieldStackSpotClientID))
	assert.False(t, states.Disabled(core.FieldUserName))
	assert.Len(t, states, len(reg.Fields()))
}

func TestApply_MandatoryFieldsStayEnabled(t *testing.T) {
	reg := core.DefaultRegistry().WithMandatory(core.FieldJiraBaseURL)
	doc := filledDoc()
	doc.Integrations.Jira.Enabled = false

	res := Apply(reg, doc, Enablement{core.IntegrationJira: true}, nil)

	assert.False(t, res.States.Disabled(core.FieldJiraBaseURL))
	assert.Equal(t, "https://acme.atlassian.net", res.Document.Integrations.Jira.BaseURL)
	assert.Empty(t, res.Document.Integrations.Jira.APIToken)
}

func TestDiscardDisabled(t *testing.T) {
	shadow := core.ShadowValues{
		core.IntegrationJira:   {core.FieldJiraAPIToken: "tok"},
		core.IntegrationOpenAI: {core.FieldOpenAIAPIKey: "sk"},
	}
	got := DiscardDisabled(shadow, Enablement{core.IntegrationJira: false, core.IntegrationOpenAI: true})
	assert.NotContains(t, got, core.IntegrationJira)
	assert.Contains(t, got, core.IntegrationOpenAI)
	assert.Len(t, shadow, 2)
}
