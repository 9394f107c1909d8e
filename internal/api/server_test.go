package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/merge"
	"github.com/hugo-lorenzo-mato/bsqa/internal/metrics"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
	"github.com/hugo-lorenzo-mato/bsqa/internal/store"
	"github.com/hugo-lorenzo-mato/bsqa/internal/testutil"
)

type testServer struct {
	server *Server
	store  *store.CredentialStore
	bus    *events.EventBus
	pool   *SessionPool
}

func newTestServer(t *testing.T, opts ...ServerOption) *testServer {
	t.Helper()
	bus := events.New(100)
	st := testutil.NewMemoryStore(t, store.WithEventBus(bus))
	t.Cleanup(bus.Close)

	loader := merge.NewLoader(st, nil, nil)
	pool := NewSessionPool(func() *session.ConfigFormSession {
		return session.New(st, loader, session.WithEventBus(bus))
	}, 0)
	return &testServer{
		server: NewServer(pool, st, bus, opts...),
		store:  st,
		bus:    bus,
		pool:   pool,
	}
}

func (ts *testServer) do(t *testing.T, method, target string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) open(t *testing.T) (session.View, string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeView(t, rec), rec.Header().Get("ETag")
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) session.View {
	t.Helper()
	var view session.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// enableOpenAI makes the default document saveable.
func (ts *testServer) enableOpenAI(t *testing.T, id string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/toggles", ToggleRequest{Integration: "openai", Enabled: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestOpenSession_EditAndSave(t *testing.T) {
	ts := newTestServer(t)
	view, etag := ts.open(t)
	assert.NotEmpty(t, view.ID)
	assert.False(t, view.Dirty)
	assert.Empty(t, etag, "nothing was ever saved")
	assert.Equal(t, 1, ts.pool.Len())

	ts.enableOpenAI(t, view.ID)
	rec := ts.do(t, http.MethodPatch, "/api/v1/sessions/"+view.ID+"/fields", ChangeFieldsRequest{
		Changes: []FieldChange{
			{Field: core.FieldUserName, Value: "Ana"},
			{Field: core.FieldOpenAIMaxTokens, Value: 2048},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decodeView(t, rec)
	assert.True(t, edited.Dirty)
	assert.True(t, edited.SaveEnabled)
	assert.Equal(t, "Ana", edited.Document.User.Name)
	assert.Equal(t, 2048, edited.Document.IA.OpenAI.MaxTokens)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/save", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	var res session.SaveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.View.Dirty)
	assert.False(t, res.Remote, "no backend configured")
	assert.Equal(t, "Ana", ts.store.ReadConfig(context.Background()).User.Name)

	rec = ts.do(t, http.MethodGet, "/api/v1/sessions/"+view.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"`+res.View.Marker+`"`, rec.Header().Get("ETag"))
}

func TestSave_BlockedByValidation(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)

	rec := ts.do(t, http.MethodPatch, "/api/v1/sessions/"+view.ID+"/fields", ChangeFieldsRequest{Field: core.FieldUserName, Value: "Ana"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/save", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, core.CodeDefaultAIDisabled, body.Code)
	assert.Contains(t, body.Details, "issues")
	assert.Empty(t, ts.store.ChangeMarker(context.Background()))
}

func TestSave_StaleETag(t *testing.T) {
	ts := newTestServer(t)

	first, _ := ts.open(t)
	ts.enableOpenAI(t, first.ID)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/sessions/"+first.ID+"/save", nil).Code)

	second, etag := ts.open(t)
	require.NotEmpty(t, etag)

	// The first tab saves again after the second one loaded.
	ts.do(t, http.MethodPatch, "/api/v1/sessions/"+first.ID+"/fields", ChangeFieldsRequest{Field: core.FieldUserName, Value: "First"})
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/sessions/"+first.ID+"/save", nil).Code)

	ts.do(t, http.MethodPatch, "/api/v1/sessions/"+second.ID+"/fields", ChangeFieldsRequest{Field: core.FieldUserName, Value: "Second"})
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+second.ID+"/save", nil, "If-Match", etag)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, core.CodeStaleDocument, decodeError(t, rec).Code)
	assert.Equal(t, "First", ts.store.ReadConfig(context.Background()).User.Name)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+second.ID+"/save?force=true", nil, "If-Match", etag)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Second", ts.store.ReadConfig(context.Background()).User.Name)
}

func TestChangeFields_Errors(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	base := "/api/v1/sessions/" + view.ID + "/fields"

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"unknown field", ChangeFieldsRequest{Field: "nope", Value: "x"}, http.StatusUnprocessableEntity, core.CodeInvalidField},
		{"disabled field", ChangeFieldsRequest{Field: core.FieldJiraBaseURL, Value: "https://acme.atlassian.net"}, http.StatusUnprocessableEntity, core.CodeFieldDisabled},
		{"no changes", ChangeFieldsRequest{}, http.StatusUnprocessableEntity, core.CodeInvalidField},
		{"broken body", []byte("{"), http.StatusUnprocessableEntity, core.CodeInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPatch, base, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestToggle_UnknownIntegration(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/toggles", ToggleRequest{Integration: "slack", Enabled: true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUnknownSession(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseSession(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)

	rec := ts.do(t, http.MethodDelete, "/api/v1/sessions/"+view.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, ts.pool.Len())
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/sessions/"+view.ID, nil).Code)
}

func TestNavigate(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	base := "/api/v1/sessions/" + view.ID

	rec := ts.do(t, http.MethodPost, base+"/navigate", NavigateRequest{Target: "/dashboard"})
	assert.Equal(t, http.StatusOK, rec.Code, "clean form leaves freely")

	ts.do(t, http.MethodPatch, base+"/fields", ChangeFieldsRequest{Field: core.FieldUserName, Value: "Ana"})

	rec = ts.do(t, http.MethodPost, base+"/navigate", NavigateRequest{Target: "/dashboard"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, core.CodeConfirmationRequired, body.Code)
	assert.NotEmpty(t, body.Details["prompt"])

	no := false
	rec = ts.do(t, http.MethodPost, base+"/navigate", NavigateRequest{Target: "/dashboard", Confirm: &no})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.CodeNavigationCancelled, decodeError(t, rec).Code)

	yes := true
	rec = ts.do(t, http.MethodPost, base+"/navigate", NavigateRequest{Target: "/dashboard", Confirm: &yes})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/navigate?confirm=true", NavigateRequest{Target: "/cards"})
	assert.Equal(t, http.StatusOK, rec.Code, "answer may come in the query")

	rec = ts.do(t, http.MethodPost, base+"/navigate", NavigateRequest{Target: "save"})
	assert.Equal(t, http.StatusOK, rec.Code, "save never asks")

	rec = ts.do(t, http.MethodGet, base+"/unload", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unload UnloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &unload))
	assert.True(t, unload.Dirty)
	assert.NotEmpty(t, unload.Message)
}

func TestExportImport(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	base := "/api/v1/sessions/" + view.ID
	ts.enableOpenAI(t, view.ID)
	ts.do(t, http.MethodPatch, base+"/fields", ChangeFieldsRequest{Field: core.FieldOpenAIAPIKey, Value: "sk-export"})

	rec := ts.do(t, http.MethodGet, base+"/export?timestamped=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")
	exported := rec.Body.Bytes()
	assert.Contains(t, string(exported), "_exportedAt")
	assert.Contains(t, string(exported), "sk-export")

	other, _ := ts.open(t)
	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+other.ID+"/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	imported := decodeView(t, rec)
	assert.False(t, imported.Dirty)
	assert.Equal(t, "sk-export", imported.Document.IA.OpenAI.APIKey)
	assert.True(t, ts.store.ReadConfig(context.Background()).IA.OpenAI.Enabled)
}

func TestImport_RejectedLeavesStoreUntouched(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/import", []byte(`{"user":{}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, core.CodeInvalidShape, decodeError(t, rec).Code)
	assert.Empty(t, ts.store.ChangeMarker(context.Background()))
}

func TestClearSettings(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	ts.enableOpenAI(t, view.ID)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/save", nil).Code)

	rec := ts.do(t, http.MethodDelete, "/api/v1/settings", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, core.CodeConfirmationRequired, body.Code)
	assert.Equal(t, session.ClearMessage, body.Details["prompt"])

	rec = ts.do(t, http.MethodDelete, "/api/v1/settings?confirm=false", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.CodeClearCancelled, decodeError(t, rec).Code)
	assert.True(t, ts.store.ReadConfig(context.Background()).IA.OpenAI.Enabled)

	rec = ts.do(t, http.MethodDelete, "/api/v1/settings", nil, "X-Bsqa-Confirm", "true")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, ts.store.ReadConfig(context.Background()).IA.OpenAI.Enabled)
}

func TestClearSession(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	base := "/api/v1/sessions/" + view.ID
	ts.enableOpenAI(t, view.ID)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/save", nil).Code)

	rec := ts.do(t, http.MethodPost, base+"/clear", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/clear?confirm=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := decodeView(t, rec)
	assert.False(t, cleared.Document.IA.OpenAI.Enabled)
	assert.False(t, cleared.Dirty)
}

func TestJiraSessionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rec := ts.do(t, http.MethodGet, "/api/v1/jira/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JiraSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)

	require.NoError(t, ts.store.WriteJiraSession(ctx, core.JiraSessionCredentials{
		BaseURL: "https://acme-corp.atlassian.net",
		Email:   "ana@acme.com",
		Token:   "secret-token",
	}))
	rec = ts.do(t, http.MethodGet, "/api/v1/jira/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-token")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "Acme Corp", resp.Instance)
	assert.Equal(t, "ana@acme.com", resp.DisplayName)

	rec = ts.do(t, http.MethodDelete, "/api/v1/jira/session", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, ts.store.ReadJiraSession(ctx))
}

func TestRemoteActions_WithoutBackend(t *testing.T) {
	ts := newTestServer(t)
	view, _ := ts.open(t)
	ts.enableOpenAI(t, view.ID)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/ai/test", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(core.ErrCatNetwork), decodeError(t, rec).Category)

	rec = ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/jira/test", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, WithAllowedOrigins([]string{"http://localhost:3000"}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	ts := newTestServer(t, WithGatherer(reg))

	ts.do(t, http.MethodGet, "/health", nil)
	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bsqa_http_requests_total{method="GET",route="/health",status="200"}`)
}

func TestSSE_StreamsConfigChanges(t *testing.T) {
	ts := newTestServer(t, WithHeartbeat(time.Hour))
	srv := httptest.NewServer(ts.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					t.Fatalf("stream ended before %q", prefix)
				}
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-ctx.Done():
				t.Fatalf("timed out waiting for %q", prefix)
			}
		}
	}

	waitFor("event: connected")

	view, _ := ts.open(t)
	ts.enableOpenAI(t, view.ID)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/sessions/"+view.ID+"/save", nil).Code)

	waitFor("event: " + events.TypeConfigChanged)
	data := waitFor("data: ")
	assert.Contains(t, data, `"origin":"local"`)
}

func TestForSession(t *testing.T) {
	own := events.NewConfigChangedEvent("s-1", "1", events.OriginLocal, "")
	other := events.NewConfigChangedEvent("s-2", "2", events.OriginLocal, "")
	ownDirty := events.NewDirtyChangedEvent("s-1", true)
	otherDirty := events.NewDirtyChangedEvent("s-2", true)

	assert.True(t, forSession(own, ""))
	assert.False(t, forSession(own, "s-1"))
	assert.True(t, forSession(other, "s-1"))
	assert.True(t, forSession(ownDirty, "s-1"))
	assert.False(t, forSession(otherDirty, "s-1"))
}

func TestParseETag(t *testing.T) {
	assert.Equal(t, "123", parseETag(`"123"`))
	assert.Equal(t, "123", parseETag(`W/"123"`))
	assert.Equal(t, "123", parseETag(" 123 "))
	assert.Equal(t, "", parseETag("*"))
	assert.Equal(t, "", parseETag(""))
}

func TestSessionPool_EvictsOldest(t *testing.T) {
	st := testutil.NewMemoryStore(t)
	loader := merge.NewLoader(st, nil, nil)
	pool := NewSessionPool(func() *session.ConfigFormSession { return session.New(st, loader) }, 2)

	first, _, err := pool.Open(context.Background())
	require.NoError(t, err)
	_, _, err = pool.Open(context.Background())
	require.NoError(t, err)
	_, _, err = pool.Open(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, pool.Len())
	_, ok := pool.Get(first.ID())
	assert.False(t, ok)
	assert.False(t, pool.Close(first.ID()))
}
