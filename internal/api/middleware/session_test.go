package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/bsqa/internal/core"
	"github.com/hugo-lorenzo-mato/bsqa/internal/events"
	"github.com/hugo-lorenzo-mato/bsqa/internal/logging"
	"github.com/hugo-lorenzo-mato/bsqa/internal/merge"
	"github.com/hugo-lorenzo-mato/bsqa/internal/session"
	"github.com/hugo-lorenzo-mato/bsqa/internal/testutil"
)

type mockPool map[string]*session.ConfigFormSession

func (m mockPool) Get(id string) (*session.ConfigFormSession, bool) {
	s, ok := m[id]
	return s, ok
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func newFormSession(t *testing.T, id string) *session.ConfigFormSession {
	t.Helper()
	st := testutil.NewMemoryStore(t)
	return session.New(st, merge.NewLoader(st, nil, nil), session.WithID(id))
}

func TestGetSession(t *testing.T) {
	t.Run("returns nil for empty context", func(t *testing.T) {
		assert.Nil(t, GetSession(context.Background()))
	})

	t.Run("tags the context with the session id", func(t *testing.T) {
		s := newFormSession(t, "s-1")
		ctx := WithSession(context.Background(), s)
		assert.Same(t, s, GetSession(ctx))
		assert.Equal(t, "s-1", events.SessionIDFromContext(ctx))
	})
}

func TestSessionContextMiddleware(t *testing.T) {
	pool := mockPool{"s-1": newFormSession(t, "s-1")}

	newRouter := func() http.Handler {
		r := chi.NewRouter()
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(SessionContextMiddleware(pool, testLogger()))
			r.Use(RequireSession(testLogger()))
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(GetSession(r.Context()).ID()))
			})
		})
		return r
	}

	t.Run("known session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/s-1/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "s-1", rec.Body.String())
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/nope/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "NOT_FOUND", body["code"])
	})
}

func TestSessionContextMiddleware_MissingParam(t *testing.T) {
	h := SessionContextMiddleware(mockPool{}, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireSession_WithoutLookup(t *testing.T) {
	h := RequireSession(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConfirmationMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		header  string
		want    bool
		wantErr error
	}{
		{name: "no answer", target: "/", wantErr: core.ErrConfirmationRequired},
		{name: "query yes", target: "/?confirm=true", want: true},
		{name: "query no", target: "/?confirm=false", want: false},
		{name: "header yes", target: "/", header: "1", want: true},
		{name: "query wins over header", target: "/?confirm=false", header: "true", want: false},
		{name: "garbage is no answer", target: "/?confirm=maybe", wantErr: core.ErrConfirmationRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got    bool
				gotErr error
			)
			h := ConfirmationMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				port, ok := core.ConfirmationFromContext(r.Context())
				require.True(t, ok)
				got, gotErr = port.Confirm(r.Context(), "sure?")
			}))
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(HeaderConfirm, tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, gotErr, tt.wantErr)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.want, got)
		})
	}
}
