package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_TracksEveryFormField(t *testing.T) {
	reg := DefaultRegistry()
	assert.Len(t, reg.Fields(), 27)

	seen := map[FieldID]bool{}
	for _, f := range reg.Fields() {
		assert.False(t, seen[f.ID], "duplicate field %s", f.ID)
		seen[f.ID] = true
		assert.NotEmpty(t, f.Path, f.ID)
	}
}

func TestRegistry_Blocks(t *testing.T) {
	reg := DefaultRegistry()

	master, ok := reg.Master(IntegrationJira)
	require.True(t, ok)
	assert.Equal(t, FieldJiraEnabled, master.ID)

	jira := reg.Dependents(IntegrationJira)
	assert.Len(t, jira, 7)
	assert.Len(t, reg.Dependents(IntegrationOpenAI), 2)
	assert.Len(t, reg.Dependents(IntegrationStackSpot), 7)

	resets := map[FieldID]any{}
	for _, f := range jira {
		if f.Reset != nil {
			resets[f.ID] = f.Reset
		}
	}
	assert.Equal(t, map[FieldID]any{
		FieldJiraRequestTimeout:    30,
		FieldJiraBugIssueTypeID:    "10004",
		FieldJiraSubBugIssueTypeID: "10271",
	}, resets)
}

func TestRegistry_SetCoerces(t *testing.T) {
	reg := DefaultRegistry()
	doc := DefaultDocument()

	tests := []struct {
		id    FieldID
		value any
		check func(ConfigDocument) bool
	}{
		{FieldJiraRequestTimeout, "45", func(d ConfigDocument) bool { return d.Integrations.Jira.RequestTimeout == 45 }},
		{FieldJiraRequestTimeout, float64(60), func(d ConfigDocument) bool { return d.Integrations.Jira.RequestTimeout == 60 }},
		{FieldJiraBugIssueTypeID, json.Number("10099"), func(d ConfigDocument) bool { return d.Integrations.Jira.BugIssueTypeID == "10099" }},
		{FieldAutoCopy, "on", func(d ConfigDocument) bool { return d.Preferences.AutoCopy }},
		{FieldStackSpotStreaming, true, func(d ConfigDocument) bool { return d.IA.StackSpot.Streaming }},
		{FieldTheme, "light", func(d ConfigDocument) bool { return d.Preferences.Theme == ThemeLight }},
		{FieldOpenAIMaxTokens, "", func(d ConfigDocument) bool { return d.IA.OpenAI.MaxTokens == 0 }},
	}
	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			require.NoError(t, reg.Set(&doc, tt.id, tt.value))
			assert.True(t, tt.check(doc))
		})
	}
}

func TestRegistry_SetRejects(t *testing.T) {
	reg := DefaultRegistry()
	doc := DefaultDocument()

	err := reg.Set(&doc, FieldJiraRequestTimeout, "soon")
	require.Error(t, err)
	assert.True(t, IsCategory(err, ErrCatValidation))
	assert.Equal(t, 30, doc.Integrations.Jira.RequestTimeout)

	err = reg.Set(&doc, FieldAutoCopy, map[string]any{})
	require.Error(t, err)

	err = reg.Set(&doc, FieldID("nope"), "x")
	require.Error(t, err)
}

func TestRegistry_GetAndValues(t *testing.T) {
	reg := DefaultRegistry()
	doc := DefaultDocument()
	doc.User.Name = "Ana"

	v, err := reg.Get(doc, FieldUserName)
	require.NoError(t, err)
	assert.Equal(t, "Ana", v)

	values := reg.Values(doc)
	assert.Equal(t, 30, values[FieldJiraRequestTimeout])
	assert.Equal(t, false, values[FieldJiraEnabled])
	assert.Equal(t, "dark", values[FieldTheme])
}

func TestRegistry_WithMandatory(t *testing.T) {
	reg := DefaultRegistry().WithMandatory(FieldJiraBaseURL)

	f, ok := reg.Lookup(FieldJiraBaseURL)
	require.True(t, ok)
	assert.True(t, f.Mandatory)

	orig, _ := DefaultRegistry().Lookup(FieldJiraBaseURL)
	assert.False(t, orig.Mandatory, "default registry must stay untouched")
}

func TestShadowValuesClone(t *testing.T) {
	s := ShadowValues{IntegrationOpenAI: {FieldOpenAIAPIKey: "sk"}}
	c := s.Clone()
	c[IntegrationOpenAI][FieldOpenAIAPIKey] = "changed"
	assert.Equal(t, "sk", s[IntegrationOpenAI][FieldOpenAIAPIKey])
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty("  "))
	assert.True(t, IsEmpty(0))
	assert.False(t, IsEmpty(false))
	assert.False(t, IsEmpty("x"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "••••", MaskSecret("abc"))
	assert.Equal(t, "••••6789", MaskSecret("123456789"))
}
