package merge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

func raw(t *testing.T, s string) core.RawDocument {
	t.Helper()
	r, err := core.ParseRaw([]byte(s))
	require.NoError(t, err)
	return r
}

func TestMerge_RemoteKeysReplaceWholesale(t *testing.T) {
	local := raw(t, `{"preferences":{"theme":"dark","autoCopy":true},"user":{"name":"Ana"}}`)
	remote := raw(t, `{"preferences":{"theme":"light"}}`)

	got := Merge(local, remote)

	assert.JSONEq(t, `{"theme":"light"}`, string(got["preferences"]), "no deep merge")
	assert.JSONEq(t, `{"name":"Ana"}`, string(got["user"]))
}

func TestMerge_NilRemoteReturnsCopy(t *testing.T) {
	local := raw(t, `{"user":{"name":"Ana"}}`)
	got := Merge(local, nil)
	assert.Equal(t, local, got)

	got["user"] = json.RawMessage(`{}`)
	assert.JSONEq(t, `{"name":"Ana"}`, string(local["user"]), "result must not alias local")
}

func TestMerge_NilLocal(t *testing.T) {
	got := Merge(nil, raw(t, `{"ia":{}}`))
	assert.Len(t, got, 1)
	assert.NotNil(t, Merge(nil, nil))
}

type fakeCache struct {
	raw     core.RawDocument
	written core.RawDocument
	writes  int
	session *core.JiraSessionCredentials
}

func (c *fakeCache) ReadRaw(context.Context) core.RawDocument { return c.raw.Clone() }

func (c *fakeCache) WriteRaw(_ context.Context, r core.RawDocument) error {
	c.writes++
	c.written = r
	return nil
}

func (c *fakeCache) ReadJiraSession(context.Context) *core.JiraSessionCredentials { return c.session }

type fakeSource struct {
	config    core.RawDocument
	configErr error
	api       map[string]string
	apiErr    error
}

func (s fakeSource) FetchConfig(context.Context) (core.RawDocument, error) {
	return s.config, s.configErr
}

func (s fakeSource) FetchAPIConfig(context.Context) (map[string]string, error) {
	return s.api, s.apiErr
}

func TestLoader_RemoteWinsAndIsCached(t *testing.T) {
	cache := &fakeCache{raw: raw(t, `{"preferences":{"theme":"dark"},"user":{"name":"Ana"}}`)}
	src := fakeSource{config: raw(t, `{"preferences":{"theme":"light"}}`)}

	res := NewLoader(cache, src, nil).Load(context.Background())

	assert.True(t, res.Remote)
	assert.Equal(t, core.ThemeLight, res.Document.Preferences.Theme)
	assert.Equal(t, "Ana", res.Document.User.Name)
	assert.Equal(t, 1, cache.writes)
	assert.JSONEq(t, `{"theme":"light"}`, string(cache.written["preferences"]))
}

func TestLoader_RemoteFailureFallsBackToCache(t *testing.T) {
	cache := &fakeCache{raw: raw(t, `{"preferences":{"theme":"auto"}}`)}
	src := fakeSource{configErr: core.ErrNetwork("down")}

	res := NewLoader(cache, src, nil).Load(context.Background())

	assert.False(t, res.Remote)
	assert.Equal(t, core.ThemeAuto, res.Document.Preferences.Theme)
	assert.Zero(t, cache.writes, "cache is not rewritten when the backend is down")
}

func TestLoader_Offline(t *testing.T) {
	cache := &fakeCache{raw: core.RawDocument{}}
	res := NewLoader(cache, nil, nil).Load(context.Background())
	assert.False(t, res.Remote)
	assert.Equal(t, core.DefaultDocument(), res.Document)
}

func TestLoader_FoldsAPIConfig(t *testing.T) {
	cache := &fakeCache{raw: core.RawDocument{}}
	src := fakeSource{
		config: raw(t, `{"preferences":{"defaultAI":"stackspot"}}`),
		api: map[string]string{
			core.EnvOpenAIAPIKey:          "sk-remote",
			core.EnvStackSpotClientID:     "id",
			core.EnvStackSpotClientSecret: "secret",
			core.EnvStackSpotRealm:        "realm",
		},
	}

	res := NewLoader(cache, src, nil).Load(context.Background())

	assert.True(t, res.Document.IA.OpenAI.Enabled)
	assert.Equal(t, "sk-remote", res.Document.IA.OpenAI.APIKey)
	assert.False(t, res.Document.IA.StackSpot.Enabled, "agent id missing")
	assert.Equal(t, core.AIStackSpot, res.Document.Preferences.DefaultAI)
}

func TestLoader_APIConfigFailureIsIgnored(t *testing.T) {
	cache := &fakeCache{raw: core.RawDocument{}}
	src := fakeSource{
		config: raw(t, `{"user":{"name":"Remote"}}`),
		apiErr: errors.New("404"),
	}
	res := NewLoader(cache, src, nil).Load(context.Background())
	assert.True(t, res.Remote)
	assert.Equal(t, "Remote", res.Document.User.Name)
}

func TestLoader_OverlaysJiraSession(t *testing.T) {
	cache := &fakeCache{
		raw: raw(t, `{"user":{"name":"Typed"}}`),
		session: &core.JiraSessionCredentials{
			BaseURL:         "https://acme-corp.atlassian.net",
			Email:           "ana@acme.com",
			Token:           "tok",
			UserDisplayName: "Ana Jira",
			UserEmail:       "ana@acme.com",
		},
	}

	res := NewLoader(cache, nil, nil).Load(context.Background())

	jira := res.Document.Integrations.Jira
	assert.True(t, jira.Enabled)
	assert.Equal(t, "https://acme-corp.atlassian.net", jira.BaseURL)
	assert.Equal(t, "tok", jira.APIToken)
	assert.Equal(t, "Typed", res.Document.User.Name, "typed values are kept")
	assert.Equal(t, "ana@acme.com", res.Document.User.Email)
	assert.Equal(t, "Acme Corp", res.Document.User.Company)
	assert.NotNil(t, res.JiraSession)
}
