package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/backup"
	"github.com/hugo-lorenzo-mato/bsqa/internal/clip"
	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/dirty"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/merge"
	"github.com/hugo-lorenzo-mato/bsqa/internal/remote"
	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
)

type fakeSource struct {
	raw core.RawDocument
	err error
}

func (f *fakeSource) FetchConfig(context.Context) (core.RawDocument, error) {
	return f.raw, f.err
}

func (f *fakeSource) FetchAPIConfig(context.Context) (map[string]string, error) {
	return nil, errors.New("not found")
}

type fakeBackend struct {
	mu         sync.Mutex
	pushErr    error
	pushed     []core.ConfigDocument
	apiValues  []map[string]string
	jiraResult *remote.JiraTestResult
	jiraErr    error
	jiraCreds  core.JiraSessionCredentials
	apiResult  *remote.APITestResult
	onAPITest  func()
	catalog    core.AnalysisCatalog
}

func (f *fakeBackend) PushConfig(_ context.Context, doc core.ConfigDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, doc)
	return nil
}

func (f *fakeBackend) PushAPIConfig(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiValues = append(f.apiValues, values)
	return nil
}

func (f *fakeBackend) TestJiraConnection(_ context.Context, creds core.JiraSessionCredentials) (*remote.JiraTestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jiraCreds = creds
	return f.jiraResult, f.jiraErr
}

func (f *fakeBackend) TestAPIConfig(context.Context) (*remote.APITestResult, error) {
	if f.onAPITest != nil {
		f.onAPITest()
	}
	return f.apiResult, nil
}

func (f *fakeBackend) AnalysisTypes(context.Context) (core.AnalysisCatalog, error) {
	if f.catalog == nil {
		return nil, errors.New("unavailable")
	}
	return f.catalog, nil
}

type fakeClipboard struct {
	copied []string
}

func (f *fakeClipboard) Copy(text string) (clip.Result, error) {
	f.copied = append(f.copied, text)
	return clip.Result{Method: clip.MethodNative}, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixture struct {
	store   *store.CredentialStore
	source  *fakeSource
	backend *fakeBackend
	session *ConfigFormSession
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemoryScope(0), store.NewMemoryScope(0), opts...)
}

func newFixtureOn(t *testing.T, persistent, sessionScope store.Scope, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   store.New(persistent, sessionScope),
		source:  &fakeSource{err: core.ErrNetwork("backend unreachable")},
		backend: &fakeBackend{},
	}
	t.Cleanup(func() { _ = f.store.Close() })
	loader := merge.NewLoader(f.store, f.source, nil)
	opts = append([]Option{WithBackend(f.backend)}, opts...)
	f.session = New(f.store, loader, opts...)
	return f
}

func (f *fixture) seed(t *testing.T, doc core.ConfigDocument) {
	t.Helper()
	require.NoError(t, f.store.WriteConfig(context.Background(), doc))
}

func (f *fixture) load(t *testing.T) View {
	t.Helper()
	view, err := f.session.Load(context.Background())
	require.NoError(t, err)
	return view
}

func TestSession_LoadReplacesWholeTopLevelKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	local, err := core.ParseRaw([]byte(`{"preferences":{"theme":"dark"}}`))
	require.NoError(t, err)
	require.NoError(t, f.store.WriteRaw(ctx, local))
	f.source.raw, err = core.ParseRaw([]byte(`{"preferences":{"theme":"light"},"user":{"name":"Ana"}}`))
	require.NoError(t, err)
	f.source.err = nil

	view := f.load(t)
	assert.True(t, view.Remote)
	assert.Equal(t, core.ThemeLight, view.Document.Preferences.Theme)
	assert.Equal(t, "Ana", view.Document.User.Name)
	assert.False(t, view.Dirty)

	cached := f.store.ReadRaw(ctx)
	assert.JSONEq(t, `{"theme":"light"}`, string(cached[core.KeyPreferences]))
	assert.JSONEq(t, `{"name":"Ana"}`, string(cached[core.KeyUser]))
}

func TestSession_LoadOfflineUsesCacheAndFallbackCatalog(t *testing.T) {
	f := newFixture(t, WithCatalog(core.AnalysisCatalog{"card_QA_writer": "QA"}))
	doc := openAIDoc()
	doc.User.Name = "Ana"
	f.seed(t, doc)

	view := f.load(t)
	assert.False(t, view.Remote)
	assert.Equal(t, "Ana", view.Document.User.Name)
	assert.Equal(t, map[string]string{"card_QA_writer": "QA"}, view.Catalog)
	assert.NotEmpty(t, view.Marker)
	assert.Equal(t, f.store.ChangeMarker(context.Background()), view.Marker)
}

func TestSession_SavePersistsAndPushes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, openAIDoc())
	f.load(t)

	_, err := f.session.Change(ctx, core.FieldUserName, "Ana")
	require.NoError(t, err)
	require.True(t, f.session.View().Dirty)

	res, err := f.session.Save(ctx, SaveOptions{})
	require.NoError(t, err)
	assert.True(t, res.Remote)
	assert.Empty(t, res.Warning)
	assert.False(t, res.View.Dirty)
	assert.Equal(t, f.store.ChangeMarker(ctx), res.View.Marker)

	assert.Equal(t, "Ana", f.store.ReadConfig(ctx).User.Name)
	require.Len(t, f.backend.pushed, 1)
	assert.Equal(t, "Ana", f.backend.pushed[0].User.Name)
	require.Len(t, f.backend.apiValues, 1)
	assert.Equal(t, "sk-123", f.backend.apiValues[0][core.EnvOpenAIAPIKey])
}

func TestSession_SaveKeepsLocalCopyWhenPushFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, openAIDoc())
	f.load(t)
	f.backend.pushErr = core.ErrNetwork("backend unreachable")

	_, err := f.session.Change(ctx, core.FieldUserCompany, "Acme")
	require.NoError(t, err)
	res, err := f.session.Save(ctx, SaveOptions{})
	require.NoError(t, err)
	assert.False(t, res.Remote)
	assert.Contains(t, res.Warning, "saved locally")
	assert.Equal(t, "Acme", f.store.ReadConfig(ctx).User.Company)
}

func TestSession_SaveRefusesStaleMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, openAIDoc())
	view := f.load(t)

	// Another page saves in between.
	other := openAIDoc()
	other.User.Name = "Bea"
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, f.store.WriteConfig(ctx, other))

	_, err := f.session.Change(ctx, core.FieldUserName, "Ana")
	require.NoError(t, err)
	_, err = f.session.Save(ctx, SaveOptions{IfMatch: view.Marker})
	requireCode(t, err, core.CodeStaleDocument)
	assert.Equal(t, "Bea", f.store.ReadConfig(ctx).User.Name)

	_, err = f.session.Save(ctx, SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Ana", f.store.ReadConfig(ctx).User.Name)
}

func TestSession_SaveBlockedLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.load(t)

	_, err := f.session.Save(ctx, SaveOptions{})
	requireCode(t, err, core.CodeDefaultAIDisabled)
	assert.Empty(t, f.store.ReadRaw(ctx))
	assert.True(t, f.session.View().Issues.Has(core.CodeDefaultAIDisabled))

	_, err = f.session.Toggle(ctx, core.IntegrationOpenAI, true)
	require.NoError(t, err)
	assert.False(t, f.session.View().Issues.Has(core.CodeDefaultAIDisabled))
}

func TestSession_ImportRejectedLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, openAIDoc())
	f.load(t)
	before := f.store.ReadRaw(ctx)
	marker := f.store.ChangeMarker(ctx)

	_, err := f.session.Import(ctx, []byte(`{"user":{},"ia":{}}`))
	requireCode(t, err, core.CodeInvalidShape)

	assert.Equal(t, before, f.store.ReadRaw(ctx))
	assert.Equal(t, marker, f.store.ChangeMarker(ctx))
	assert.Equal(t, openAIDoc().IA.OpenAI.APIKey, f.session.View().Document.IA.OpenAI.APIKey)
}

func TestSession_ImportPersistsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.load(t)

	data := []byte(`{
		"user": {"name": "Ana"}, "preferences": {},
		"integrations": {"jira": {"enabled": true, "baseUrl": "https://acme.atlassian.net", "userEmail": "a@b.c", "apiToken": "t"}},
		"ia": {"openai": {"enabled": true, "apiKey": "sk-9"}}
	}`)
	view, err := f.session.Import(ctx, data)
	require.NoError(t, err)
	assert.False(t, view.Dirty)
	assert.True(t, view.JiraAuthenticated)

	stored := f.store.ReadConfig(ctx)
	assert.Equal(t, "Ana", stored.User.Name)
	assert.Equal(t, "", stored.Integrations.Jira.APIToken, "jira secrets stay out of the persistent scope")
	session := f.store.ReadJiraSession(ctx)
	require.NotNil(t, session)
	assert.Equal(t, "t", session.Token)
}

// failingScope rejects writes to one key.
type failingScope struct {
	store.Scope
	key string
}

func (f failingScope) Set(ctx context.Context, key string, value []byte) error {
	if key == f.key {
		return core.ErrStorage(core.CodeStorageWrite, "scope is read-only")
	}
	return f.Scope.Set(ctx, key, value)
}

const jiraImport = `{
	"user": {"name": "Ana"}, "preferences": {},
	"integrations": {"jira": {"enabled": true, "baseUrl": "https://acme.atlassian.net", "userEmail": "a@b.c", "apiToken": "t"}},
	"ia": {"openai": {"enabled": true, "apiKey": "sk-9"}}
}`

func TestSession_ImportFailingSessionWriteLeavesConfigUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixtureOn(t, store.NewMemoryScope(0), failingScope{Scope: store.NewMemoryScope(0), key: store.KeyJiraSession})
	f.seed(t, openAIDoc())
	f.load(t)
	before := f.store.ReadRaw(ctx)
	marker := f.store.ChangeMarker(ctx)

	_, err := f.session.Import(ctx, []byte(jiraImport))
	requireCode(t, err, core.CodeStorageWrite)

	assert.Equal(t, before, f.store.ReadRaw(ctx))
	assert.Equal(t, marker, f.store.ChangeMarker(ctx))
	assert.Nil(t, f.store.ReadJiraSession(ctx))
	assert.Empty(t, f.backend.pushed)
}

func TestSession_ImportFailingConfigWriteRestoresJiraSession(t *testing.T) {
	ctx := context.Background()
	f := newFixtureOn(t, failingScope{Scope: store.NewMemoryScope(0), key: store.KeyConfig}, store.NewMemoryScope(0))
	f.load(t)

	_, err := f.session.Import(ctx, []byte(jiraImport))
	requireCode(t, err, core.CodeStorageWrite)

	assert.Nil(t, f.store.ReadJiraSession(ctx))
	assert.False(t, f.session.View().JiraAuthenticated)
}

func TestSession_Navigate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithConfirmation(core.Answer(false)))
	f.load(t)

	require.NoError(t, f.session.Navigate(ctx, "dashboard"))
	assert.Equal(t, "", f.session.BeforeUnload())

	_, err := f.session.Change(ctx, core.FieldUserName, "Ana")
	require.NoError(t, err)

	assert.ErrorIs(t, f.session.Navigate(ctx, "dashboard"), core.ErrNavigationCancelled)
	assert.NoError(t, f.session.Navigate(ctx, dirty.TargetSave))
	assert.NoError(t, f.session.Navigate(core.WithConfirmation(ctx, core.Answer(true)), "dashboard"))
	assert.ErrorIs(t, f.session.Navigate(core.WithConfirmation(ctx, core.AnswerConfirmation{}), "dashboard"),
		core.ErrConfirmationRequired)
	assert.Equal(t, dirty.UnloadMessage, f.session.BeforeUnload())
	assert.True(t, f.session.View().Dirty, "leaving never saves")
}

func TestSession_NavigateWithoutPort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.load(t)
	_, err := f.session.Change(ctx, core.FieldUserName, "Ana")
	require.NoError(t, err)

	assert.ErrorIs(t, f.session.Navigate(ctx, "card"), core.ErrConfirmationRequired)
}

func TestSession_ClearAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := openAIDoc()
	doc.User.Name = "Ana"
	f.seed(t, doc)
	require.NoError(t, f.store.WriteJiraSession(ctx, core.JiraSessionCredentials{
		BaseURL: "https://acme.atlassian.net", Email: "a@b.c", Token: "t",
	}))
	f.load(t)

	_, err := f.session.ClearAll(ctx)
	assert.ErrorIs(t, err, core.ErrConfirmationRequired)

	_, err = f.session.ClearAll(core.WithConfirmation(ctx, core.Answer(false)))
	assert.ErrorIs(t, err, core.ErrClearCancelled)
	assert.Equal(t, "Ana", f.store.ReadConfig(ctx).User.Name)

	var asked string
	port := core.ConfirmFunc(func(_ context.Context, msg string) (bool, error) {
		asked = msg
		return true, nil
	})
	view, err := f.session.ClearAll(core.WithConfirmation(ctx, port))
	require.NoError(t, err)
	assert.Equal(t, ClearMessage, asked)
	assert.Equal(t, "", view.Document.User.Name)
	assert.False(t, view.JiraAuthenticated)
	assert.Empty(t, f.store.ReadRaw(ctx))
	assert.Nil(t, f.store.ReadJiraSession(ctx))
}

func TestSession_ExportUsesSessionCredentialsAndClipboard(t *testing.T) {
	ctx := context.Background()
	cb := &fakeClipboard{}
	now := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	f := newFixture(t, WithClipboard(cb), WithClock(fixedClock{t: now}))
	doc := openAIDoc()
	doc.Preferences.AutoCopy = true
	doc.Integrations.Jira.Enabled = true
	f.seed(t, doc)
	require.NoError(t, f.store.WriteJiraSession(ctx, core.JiraSessionCredentials{
		BaseURL: "https://acme.atlassian.net", Email: "a@b.c", Token: "session-token",
	}))
	f.load(t)

	res, err := f.session.Export(ctx, backup.ExportOptions{})
	require.NoError(t, err)
	assert.Equal(t, backup.DefaultFilename, res.Artifact.Filename)
	assert.True(t, now.Equal(res.Artifact.ExportedAt))
	assert.Contains(t, string(res.Artifact.Data), "session-token")
	require.NotNil(t, res.Copied)
	assert.Equal(t, clip.MethodNative, res.Copied.Method)
	require.Len(t, cb.copied, 1)
	assert.Equal(t, string(res.Artifact.Data), cb.copied[0])
}

func TestSession_TestJiraConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc := openAIDoc()
	f.seed(t, doc)
	f.load(t)

	_, err := f.session.TestJiraConnection(ctx)
	requireCode(t, err, core.CodeFieldDisabled)

	_, err = f.session.Toggle(ctx, core.IntegrationJira, true)
	require.NoError(t, err)
	for id, v := range map[core.FieldID]string{
		core.FieldJiraBaseURL:   "https://acme-corp.atlassian.net",
		core.FieldJiraUserEmail: "ana@acme.com",
		core.FieldJiraAPIToken:  "tok",
	} {
		_, err = f.session.Change(ctx, id, v)
		require.NoError(t, err)
	}

	f.backend.jiraResult = &remote.JiraTestResult{Success: false, Error: "Unauthorized"}
	f.backend.jiraErr = core.ErrAuth("Unauthorized")
	res, err := f.session.TestJiraConnection(ctx)
	assert.True(t, core.IsCategory(err, core.ErrCatAuth))
	require.NotNil(t, res)
	assert.Nil(t, f.store.ReadJiraSession(ctx))

	f.backend.jiraErr = nil
	f.backend.jiraResult = &remote.JiraTestResult{
		Success: true,
		User:    &remote.JiraUser{DisplayName: "Ana Lima", EmailAddress: "ana@acme.com"},
	}
	res, err = f.session.TestJiraConnection(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "tok", f.backend.jiraCreds.Token)

	stored := f.store.ReadJiraSession(ctx)
	require.NotNil(t, stored)
	assert.Equal(t, "Ana Lima", stored.UserDisplayName)
	view := f.session.View()
	assert.True(t, view.JiraAuthenticated)
	assert.Equal(t, "Ana Lima", view.Document.User.Name)
	assert.Equal(t, "Acme Corp", view.Document.User.Company)
}

func TestSession_TestAIConfig(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.load(t)

	_, err := f.session.TestAIConfig(ctx)
	requireCode(t, err, core.CodeInvalidField)

	f.seed(t, openAIDoc())
	f.load(t)
	f.backend.apiResult = &remote.APITestResult{Success: true, Message: "ok"}
	res, err := f.session.TestAIConfig(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, f.backend.apiValues, 1)
	assert.Equal(t, map[string]string{core.EnvOpenAIAPIKey: "sk-123"}, f.backend.apiValues[0])
}

func TestSession_SupersededResponseIsDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, openAIDoc())
	f.load(t)

	f.backend.apiResult = &remote.APITestResult{Success: true}
	f.backend.onAPITest = func() {
		// A newer test starts while this one is in flight.
		f.session.gens.Next(remote.OpTestAPIConfig)
	}
	_, err := f.session.TestAIConfig(ctx)
	assert.ErrorIs(t, err, core.ErrStaleResponse)
}

func TestSession_PublishesDirtyChanges(t *testing.T) {
	ctx := context.Background()
	bus := events.New(10)
	defer bus.Close()
	ch := bus.Subscribe(events.TypeDirtyChanged)

	f := newFixture(t, WithEventBus(bus))
	f.load(t)

	_, err := f.session.Change(ctx, core.FieldUserName, "Ana")
	require.NoError(t, err)
	_, err = f.session.Change(ctx, core.FieldUserEmail, "ana@acme.com")
	require.NoError(t, err)
	_, err = f.session.Change(ctx, core.FieldUserName, "")
	require.NoError(t, err)

	select {
	case e := <-ch:
		changed, ok := e.(events.DirtyChangedEvent)
		require.True(t, ok)
		assert.True(t, changed.Dirty)
		assert.Equal(t, f.session.ID(), changed.SessionID())
	case <-time.After(time.Second):
		t.Fatal("expected a dirty event")
	}
	assert.Len(t, ch, 0, "staying dirty publishes nothing")
}
