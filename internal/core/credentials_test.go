package core

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJiraSessionCredentials_Complete(t *testing.T) {
	c := JiraSessionCredentials{BaseURL: "https://acme.atlassian.net", Email: "qa@acme.io", Token: "t"}
	assert.True(t, c.Complete())

	c.Token = "  "
	assert.False(t, c.Complete())
}

func TestJiraSessionCredentials_AuthHeader(t *testing.T) {
	c := JiraSessionCredentials{Email: "qa@acme.io", Token: "abc"}
	decoded, err := base64.StdEncoding.DecodeString(c.AuthHeader())
	require.NoError(t, err)
	assert.Equal(t, "qa@acme.io:abc", string(decoded))
}

func TestJiraSessionCredentials_InstanceName(t *testing.T) {
	tests := map[string]string{
		"https://acme-corp.atlassian.net": "Acme Corp",
		"acme.atlassian.net/":             "Acme",
		"https://jira.internal.example":   "Jira",
		"https://QA-team.atlassian.net":   "Qa Team",
		"":                                "Jira",
	}
	for in, want := range tests {
		assert.Equal(t, want, JiraSessionCredentials{BaseURL: in}.InstanceName(), in)
	}
}

func TestJiraSessionCredentials_Normalized(t *testing.T) {
	c := JiraSessionCredentials{BaseURL: " https://acme.atlassian.net/ ", Email: " a@b ", Token: "t "}.Normalized()
	assert.Equal(t, "https://acme.atlassian.net", c.BaseURL)
	assert.Equal(t, "a@b", c.Email)
	assert.Equal(t, "t", c.Token)
}

func TestJiraSessionCredentials_DisplayName(t *testing.T) {
	c := JiraSessionCredentials{Email: "a@b"}
	assert.Equal(t, "a@b", c.DisplayName())
	c.UserDisplayName = "Ana"
	assert.Equal(t, "Ana", c.DisplayName())
}

func TestAPIConfigRoundTrip(t *testing.T) {
	doc := DefaultDocument()
	doc.IA.OpenAI.Enabled = true
	doc.IA.OpenAI.APIKey = "sk-1"
	doc.IA.StackSpot = StackSpotConfig{ClientID: "c", ClientSecret: "s", Realm: "r", AgentID: "a"}

	env := APIConfigFromDocument(doc)
	assert.Equal(t, map[string]string{EnvOpenAIAPIKey: "sk-1"}, env, "disabled stackspot stays out")

	env[EnvStackSpotClientID] = "c"
	env[EnvStackSpotClientSecret] = "s"
	env[EnvStackSpotRealm] = "r"
	env[EnvStackSpotAgentID] = "a"

	applied := ApplyAPIConfig(DefaultDocument(), env)
	assert.True(t, applied.IA.OpenAI.Enabled)
	assert.True(t, applied.IA.StackSpot.Enabled)
	assert.Equal(t, "a", applied.IA.StackSpot.AgentID)

	partial := ApplyAPIConfig(DefaultDocument(), map[string]string{EnvStackSpotClientID: "c"})
	assert.False(t, partial.IA.StackSpot.Enabled)
}
