package testutil

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
)

// JiraAccount is a Jira identity accepted by Backend.
type JiraAccount struct {
	BaseURL     string
	Email       string
	Token       string
	DisplayName string
}

// Backend is an in-process QA backend speaking the same routes as the real
// one. It keeps whatever is pushed to it.
type Backend struct {
	srv *httptest.Server

	mu        sync.Mutex
	config    core.RawDocument
	apiConfig map[string]string
	catalog   map[string]string
	accounts  []JiraAccount
	down      bool
	requests  map[string]int
}

// NewBackend starts a backend that is closed with the test.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	b := &Backend{
		apiConfig: map[string]string{},
		catalog: map[string]string{
			"card_QA_writer": "Card QA writer",
			"bug_report":     "Bug report",
		},
		requests: map[string]int{},
	}

	r := chi.NewRouter()
	r.Use(b.track)
	r.Get("/config", b.handleGetConfig)
	r.Post("/config", b.handlePostConfig)
	r.Get("/api-config", b.handleGetAPIConfig)
	r.Post("/api-config", b.handlePostAPIConfig)
	r.Get("/analysis-types", b.handleAnalysisTypes)
	r.Post("/jira/test-connection", b.handleJiraTest)
	r.Post("/test-api-config", b.handleTestAPIConfig)

	b.srv = httptest.NewServer(r)
	t.Cleanup(b.srv.Close)
	return b
}

// URL is the backend base URL.
func (b *Backend) URL() string { return b.srv.URL }

// AddJiraAccount makes the Jira test accept acct.
func (b *Backend) AddJiraAccount(acct JiraAccount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts = append(b.accounts, acct)
}

// SetConfig replaces the stored settings document.
func (b *Backend) SetConfig(doc core.ConfigDocument) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = core.Encode(doc)
}

// Config returns the stored settings document, or nil.
func (b *Backend) Config() core.RawDocument {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.config == nil {
		return nil
	}
	return b.config.Clone()
}

// APIConfig returns the stored credential map.
func (b *Backend) APIConfig() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.apiConfig))
	for k, v := range b.apiConfig {
		out[k] = v
	}
	return out
}

// SetDown makes every route answer 503.
func (b *Backend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Requests counts the requests received for "METHOD /path".
func (b *Backend) Requests(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[route]
}

func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests[r.Method+" "+r.URL.Path]++
		down := b.down
		b.mu.Unlock()
		if down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "backend unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := b.Config()
	if cfg == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "no configuration stored"})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (b *Backend) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	raw, err := core.ParseRaw(data)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "config must be an object"})
		return
	}
	b.mu.Lock()
	b.config = raw
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Configuration saved"})
}

func (b *Backend) handleGetAPIConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.APIConfig())
}

func (b *Backend) handlePostAPIConfig(w http.ResponseWriter, r *http.Request) {
	var values map[string]string
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	b.apiConfig = values
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handleAnalysisTypes(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"analysis_types": b.catalog})
}

func (b *Backend) handleJiraTest(w http.ResponseWriter, r *http.Request) {
	baseURL := strings.TrimRight(r.Header.Get("X-Jira-Base-Url"), "/")
	decoded, err := base64.StdEncoding.DecodeString(r.Header.Get("X-Jira-Auth"))
	if baseURL == "" || err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing Jira headers"})
		return
	}
	email, token, _ := strings.Cut(string(decoded), ":")

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acct := range b.accounts {
		if strings.TrimRight(acct.BaseURL, "/") == baseURL && acct.Email == email && acct.Token == token {
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"message": "Connected to Jira",
				"user":    map[string]string{"displayName": acct.DisplayName, "emailAddress": acct.Email},
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": false,
		"error":   "Authentication failed",
		"detail":  "invalid email or API token",
	})
}

func (b *Backend) handleTestAPIConfig(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	_, ok := b.apiConfig[core.EnvOpenAIAPIKey]
	b.mu.Unlock()
	status, msg := "ok", "OpenAI key accepted"
	if !ok {
		status, msg = "error", "no OpenAI key configured"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": ok,
		"message": msg,
		"results": []map[string]string{{"service": "openai", "status": status, "message": msg}},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
